package chain

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per REST route so that a burst of
// balance lookups cannot starve UTXO queries against the same host.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*rate.Limiter
	every   rate.Limit
	burst   int
}

// NewRateLimiter allows ratePerSecond requests per route with the given
// burst. A non-positive rate disables limiting.
func NewRateLimiter(ratePerSecond float64, burst int) *RateLimiter {
	every := rate.Inf
	if ratePerSecond > 0 {
		every = rate.Limit(ratePerSecond)
	}
	return &RateLimiter{
		buckets: make(map[string]*rate.Limiter),
		every:   every,
		burst:   max(burst, 1),
	}
}

// DefaultRateLimiter allows 10 requests/second with a burst of 20, which
// stays under the public Kaspa REST service's published quota.
func DefaultRateLimiter() *RateLimiter {
	return NewRateLimiter(10, 20)
}

// Wait blocks until route has a token or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context, route string) error {
	return r.bucket(route).Wait(ctx)
}

// Allow takes a token for route without blocking.
func (r *RateLimiter) Allow(route string) bool {
	return r.bucket(route).Allow()
}

func (r *RateLimiter) bucket(route string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.buckets[route]
	if !ok {
		b = rate.NewLimiter(r.every, r.burst)
		r.buckets[route] = b
	}
	return b
}

// Package locator recovers the derivation path and private key of an address
// by re-deriving candidates on the receive and change chains.
package locator

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/metrics"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

const (
	// DefaultBatchSize is the number of indices derived concurrently before
	// the search synchronizes.
	DefaultBatchSize = 32

	// DefaultMaxSearchPerChain is used when Locate is given zero.
	DefaultMaxSearchPerChain = 10_000
)

// Options configures a Locator.
type Options struct {
	// BatchSize is the fixed batch width. Default: DefaultBatchSize.
	BatchSize int

	// Workers bounds concurrent derivations within a batch.
	// Default: GOMAXPROCS.
	Workers int

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Match is a located address.
type Match struct {
	Address    string
	Chain      keys.Chain
	Index      uint32
	Path       keys.Path
	PrivateKey *keys.PrivateKey

	// BatchesSearched counts batches derived across both chains, including
	// the matching one.
	BatchesSearched int
}

// Zero wipes the private key.
func (m *Match) Zero() {
	if m != nil && m.PrivateKey != nil {
		m.PrivateKey.Zero()
	}
}

// Locator searches for addresses in fixed-width batches.
type Locator struct {
	batchSize int
	workers   int
	log       zerolog.Logger
	metrics   *metrics.Metrics
}

// New creates a Locator. A nil opts uses the defaults.
func New(opts *Options) *Locator {
	if opts == nil {
		opts = &Options{}
	}
	l := &Locator{
		batchSize: opts.BatchSize,
		workers:   opts.Workers,
		log:       opts.Logger.With().Str("component", "locator").Logger(),
		metrics:   opts.Metrics,
	}
	if l.batchSize <= 0 {
		l.batchSize = DefaultBatchSize
	}
	if l.workers <= 0 {
		l.workers = runtime.GOMAXPROCS(0)
	}
	return l
}

// Locate searches with default options.
func Locate(ctx context.Context, deriver keys.Deriver, target string, maxSearchPerChain uint32) (*Match, error) {
	return New(nil).Locate(ctx, deriver, target, maxSearchPerChain)
}

// Locate searches indices [0, maxSearchPerChain) of the receive chain and then
// the change chain for target. Within a batch the lowest matching index wins,
// so the result does not depend on scheduling.
func (l *Locator) Locate(ctx context.Context, deriver keys.Deriver, target string, maxSearchPerChain uint32) (*Match, error) {
	if deriver == nil {
		return nil, fmt.Errorf("%w: no root key", sompierr.ErrInvalidKeyMaterial)
	}
	if err := keys.ValidateAddress(target, deriver.Network()); err != nil {
		return nil, err
	}
	if maxSearchPerChain == 0 {
		maxSearchPerChain = DefaultMaxSearchPerChain
	}
	maxSearchPerChain = min(maxSearchPerChain, keys.MaxIndex)

	batches := 0
	defer func() { l.metrics.RecordLocatorBatches(batches) }()

	for _, chain := range keys.Chains() {
		for start := uint32(0); start < maxSearchPerChain; start += uint32(l.batchSize) { //nolint:gosec // batchSize is positive
			end := min(start+uint32(l.batchSize), maxSearchPerChain) //nolint:gosec // batchSize is positive

			batches++
			index, ok, err := l.searchBatch(ctx, deriver, chain, start, end, target)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}

			pk, err := deriver.DerivePrivateKey(chain, index)
			if err != nil {
				return nil, err
			}
			l.log.Debug().Str("chain", chain.String()).Uint32("index", index).Int("batches", batches).Msg("address located")
			return &Match{
				Address:         target,
				Chain:           chain,
				Index:           index,
				Path:            deriver.PathFor(chain, index),
				PrivateKey:      pk,
				BatchesSearched: batches,
			}, nil
		}
	}

	l.log.Debug().Int("batches", batches).Uint32("max_per_chain", maxSearchPerChain).Msg("address not found")
	return nil, sompierr.WithDetails(sompierr.ErrAddressNotFound, map[string]string{
		"address":       target,
		"searched":      fmt.Sprintf("%d per chain", maxSearchPerChain),
		"batches":       fmt.Sprintf("%d", batches),
		"account":       fmt.Sprintf("%d", deriver.PathFor(keys.Receive, 0).Account),
		"network":       deriver.Network().String(),
		"search_bounds": fmt.Sprintf("[0, %d)", maxSearchPerChain),
	})
}

// searchBatch derives [start, end) concurrently and returns the lowest index
// whose address equals target.
func (l *Locator) searchBatch(ctx context.Context, deriver keys.Deriver, chain keys.Chain, start, end uint32, target string) (uint32, bool, error) {
	hits := make([]bool, end-start)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for index := start; index < end; index++ {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			address, err := deriver.DeriveAddress(chain, index)
			if err != nil {
				return fmt.Errorf("deriving %s index %d: %w", chain, index, err)
			}
			hits[index-start] = address == target
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			return 0, false, fmt.Errorf("locate canceled: %w", ctx.Err())
		}
		return 0, false, err
	}

	for i, hit := range hits {
		if hit {
			return start + uint32(i), true, nil //nolint:gosec // i < batch size
		}
	}
	return 0, false, nil
}

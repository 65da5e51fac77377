package balance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/sompi/internal/metrics"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

const (
	// DefaultCallTimeout bounds a single ledger query.
	DefaultCallTimeout = 15 * time.Second

	// DefaultMaxBatchSize is the number of addresses sent per batched query.
	DefaultMaxBatchSize = 50
)

// Operation labels used for logging and metrics.
const (
	opConnect  = "connect"
	opBalance  = "balance"
	opBalances = "balances"
	opUTXOs    = "utxos"
)

// Options configures an Oracle.
type Options struct {
	CallTimeout  time.Duration
	MaxBatchSize int
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

// Oracle wraps a QueryService with per-call deadlines, error classification,
// batching and a reference-counted scoped connection.
type Oracle struct {
	svc  QueryService
	opts Options
	log  zerolog.Logger

	mu   sync.Mutex
	refs int
}

// NewOracle creates an Oracle over svc.
func NewOracle(svc QueryService, opts Options) *Oracle {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.MaxBatchSize <= 0 {
		opts.MaxBatchSize = DefaultMaxBatchSize
	}
	return &Oracle{
		svc:  svc,
		opts: opts,
		log:  opts.Logger.With().Str("component", "oracle").Logger(),
	}
}

// WithConnection connects once, runs fn and always disconnects. Nested
// calls share the outer connection.
func (o *Oracle) WithConnection(ctx context.Context, fn func(context.Context) error) error {
	if err := o.acquire(ctx); err != nil {
		return err
	}
	defer o.release()
	return fn(ctx)
}

func (o *Oracle) acquire(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.refs == 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		start := time.Now()
		err := o.svc.Connect(callCtx)
		cancel()
		err = o.classify(ctx, err)
		o.opts.Metrics.RecordOracleCall(opConnect, time.Since(start), err)
		if err != nil {
			o.log.Warn().Err(err).Msg("connect failed")
			return err
		}
		o.log.Debug().Msg("connected")
	}
	o.refs++
	return nil
}

func (o *Oracle) release() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.refs--
	if o.refs > 0 {
		return
	}
	if err := o.svc.Disconnect(); err != nil {
		o.log.Warn().Err(err).Msg("disconnect failed")
		return
	}
	o.log.Debug().Msg("disconnected")
}

// Connected reports whether a scoped connection is currently held.
func (o *Oracle) Connected() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refs > 0
}

// BalanceByAddress is the authoritative "does this address hold funds" query.
// Zero is a valid answer; failures are ErrNetworkUnavailable.
func (o *Oracle) BalanceByAddress(ctx context.Context, address string) (uint64, error) {
	return call(ctx, o, opBalance, func(ctx context.Context) (uint64, error) {
		return o.svc.GetBalance(ctx, address)
	})
}

// BalancesByAddresses returns balances aligned positionally with addresses.
func (o *Oracle) BalancesByAddresses(ctx context.Context, addresses []string) ([]uint64, error) {
	out := make([]uint64, 0, len(addresses))
	for start := 0; start < len(addresses); start += o.opts.MaxBatchSize {
		end := min(start+o.opts.MaxBatchSize, len(addresses))
		batch := addresses[start:end]

		balances, err := call(ctx, o, opBalances, func(ctx context.Context) ([]uint64, error) {
			return o.svc.GetBalances(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		if len(balances) != len(batch) {
			return nil, sompierr.WithCause(sompierr.ErrNetworkUnavailable,
				fmt.Errorf("balances response has %d entries for %d addresses", len(balances), len(batch)))
		}
		out = append(out, balances...)
	}
	return out, nil
}

// UTXOsByAddresses returns the UTXO set of each address. Every input address
// is present in the result, with an empty slice when it has no outputs.
func (o *Oracle) UTXOsByAddresses(ctx context.Context, addresses []string) (map[string][]UTXO, error) {
	out := make(map[string][]UTXO, len(addresses))
	for start := 0; start < len(addresses); start += o.opts.MaxBatchSize {
		end := min(start+o.opts.MaxBatchSize, len(addresses))
		batch := addresses[start:end]

		utxos, err := call(ctx, o, opUTXOs, func(ctx context.Context) (map[string][]UTXO, error) {
			return o.svc.GetUTXOs(ctx, batch)
		})
		if err != nil {
			return nil, err
		}
		for _, addr := range batch {
			set := utxos[addr]
			if set == nil {
				set = []UTXO{}
			}
			out[addr] = set
		}
	}
	return out, nil
}

// call runs one query under its own deadline. It returns as soon as the
// deadline passes even if the service does not honor ctx.
func call[T any](ctx context.Context, o *Oracle, op string, fn func(context.Context) (T, error)) (T, error) {
	var result T
	err := o.WithConnection(ctx, func(ctx context.Context) error {
		callCtx, cancel := context.WithTimeout(ctx, o.opts.CallTimeout)
		defer cancel()

		type outcome struct {
			value T
			err   error
		}
		done := make(chan outcome, 1)
		start := time.Now()
		go func() {
			v, err := fn(callCtx)
			done <- outcome{value: v, err: err}
		}()

		var err error
		select {
		case r := <-done:
			result, err = r.value, r.err
		case <-callCtx.Done():
			err = callCtx.Err()
		}

		err = o.classify(ctx, err)
		o.opts.Metrics.RecordOracleCall(op, time.Since(start), err)
		if err != nil {
			o.log.Debug().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("query failed")
		}
		return err
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

// classify maps transport failures onto ErrNetworkUnavailable. Caller
// cancellation passes through as ctx.Err(); address format errors pass
// through unchanged.
func (o *Oracle) classify(parent context.Context, err error) error {
	if err == nil {
		return nil
	}
	if perr := parent.Err(); perr != nil {
		return perr
	}
	switch {
	case errors.Is(err, sompierr.ErrInvalidAddressFormat),
		errors.Is(err, sompierr.ErrInvalidInput),
		errors.Is(err, sompierr.ErrNetworkUnavailable):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return sompierr.WithCause(sompierr.ErrNetworkUnavailable,
			fmt.Errorf("call exceeded %s deadline: %w", o.opts.CallTimeout, err))
	default:
		return sompierr.WithCause(sompierr.ErrNetworkUnavailable, err)
	}
}

package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/metrics"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// Scanner performs gap-limited discovery over the receive and change chains.
type Scanner struct {
	deriver keys.Deriver
	oracle  BalanceSource
	sink    RecordSink
	opts    *Options
	log     zerolog.Logger
}

// NewScanner creates a new discovery scanner. sink may be nil when only the
// returned Result is wanted.
func NewScanner(deriver keys.Deriver, oracle BalanceSource, sink RecordSink, opts *Options) *Scanner {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &Scanner{
		deriver: deriver,
		oracle:  oracle,
		sink:    sink,
		opts:    opts,
		log:     opts.Logger.With().Str("component", "discovery").Logger(),
	}
}

// Scan walks every configured chain over a single scoped connection. Failed
// probes are counted on the result and never abort the scan. Invalid key
// material aborts immediately; cancellation stops further probes and returns
// ErrScanCanceled. In both cases the partial result is returned with the
// error.
func (s *Scanner) Scan(ctx context.Context) (*Result, error) {
	if err := s.opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}
	if s.deriver == nil {
		return nil, fmt.Errorf("%w: no root key", sompierr.ErrInvalidKeyMaterial)
	}

	start := time.Now()
	result := &Result{}

	err := s.oracle.WithConnection(ctx, func(ctx context.Context) error {
		for _, chain := range s.opts.Chains() {
			cr, err := s.scanChain(ctx, chain)
			if addErr := result.add(cr); addErr != nil && err == nil {
				err = addErr
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	result.Duration = time.Since(start)

	if err != nil && ctx.Err() != nil && !errors.Is(err, sompierr.ErrScanCanceled) {
		err = sompierr.WithCause(sompierr.ErrScanCanceled, ctx.Err())
	}
	s.opts.Metrics.RecordScan(err)

	if err != nil {
		s.log.Warn().Err(err).Int("found", result.AddressesFound).Msg("scan ended early")
		return result, err
	}

	s.log.Info().
		Int("found", result.AddressesFound).
		Int("scanned", result.AddressesScanned).
		Int("network_errors", result.NetworkErrorCount).
		Str("total", balance.FormatSompi(result.TotalBalance)).
		Dur("elapsed", result.Duration).
		Msg("scan complete")
	return result, nil
}

// scanChain probes indices 0, 1, 2, ... on one chain until the session
// says stop.
//
//nolint:gocognit // Gap limit bookkeeping is inherently branchy
func (s *Scanner) scanChain(ctx context.Context, chain keys.Chain) (ChainResult, error) {
	sess := newScanSession(chain, s.opts)
	cr := ChainResult{Chain: chain}

	sess.begin()
	log := s.log.With().Str("chain", chain.String()).Logger()

	for index := uint32(0); sess.shouldProbe(index); index++ {
		if err := ctx.Err(); err != nil {
			sess.abort(err)
			cr.State = sess.State
			return cr, sompierr.WithCause(sompierr.ErrScanCanceled, err)
		}

		address, err := s.deriver.DeriveAddress(chain, index)
		if err != nil {
			sess.abort(err)
			cr.State = sess.State
			return cr, fmt.Errorf("deriving %s index %d: %w", chain, index, err)
		}

		cr.AddressesScanned++
		cr.LastIndex = index

		amount, err := s.oracle.BalanceByAddress(ctx, address)
		if err != nil {
			if ctx.Err() != nil {
				sess.abort(ctx.Err())
				cr.State = sess.State
				return cr, sompierr.WithCause(sompierr.ErrScanCanceled, ctx.Err())
			}

			sess.recordNetworkError()
			cr.NetworkErrorCount = sess.NetworkErrorCount
			cr.FailedIndices = append(cr.FailedIndices, index)
			s.opts.Metrics.RecordProbe(chain.String(), metrics.ProbeError)
			log.Debug().Err(err).Uint32("index", index).Msg("probe failed")

			s.reportProgress(ProgressUpdate{
				Phase:            PhaseError,
				Chain:            chain,
				Index:            index,
				AddressesScanned: cr.AddressesScanned,
				AddressesFound:   len(cr.Addresses),
				BalanceFound:     cr.TotalBalance,
				NetworkErrors:    cr.NetworkErrorCount,
				CurrentAddress:   address,
				Message:          fmt.Sprintf("Error scanning %s: %v", address, err),
			})
			continue
		}

		if amount == 0 {
			sess.recordEmpty()
			s.opts.Metrics.RecordProbe(chain.String(), metrics.ProbeEmpty)
			s.reportProgress(ProgressUpdate{
				Phase:            PhaseScanning,
				Chain:            chain,
				Index:            index,
				AddressesScanned: cr.AddressesScanned,
				AddressesFound:   len(cr.Addresses),
				BalanceFound:     cr.TotalBalance,
				NetworkErrors:    cr.NetworkErrorCount,
				CurrentAddress:   address,
			})
			continue
		}

		sess.recordFunded()
		s.opts.Metrics.RecordProbe(chain.String(), metrics.ProbeFunded)

		found, err := s.recordFunded(ctx, chain, index, address, amount)
		if err != nil {
			if ctx.Err() != nil {
				sess.abort(ctx.Err())
				cr.State = sess.State
				return cr, sompierr.WithCause(sompierr.ErrScanCanceled, ctx.Err())
			}
			sess.abort(err)
			cr.State = sess.State
			return cr, err
		}
		if found.UTXOsUnavailable {
			cr.NetworkErrorCount++
			sess.NetworkErrorCount++
		}
		if !found.Reconciled && !found.UTXOsUnavailable {
			cr.Mismatches++
		}

		total, err := balance.SafeAdd(cr.TotalBalance, amount)
		if err != nil {
			sess.abort(err)
			cr.State = sess.State
			return cr, err
		}
		cr.TotalBalance = total
		cr.Addresses = append(cr.Addresses, found)

		log.Info().Uint32("index", index).Str("balance", balance.FormatSompi(amount)).Msg("found funded address")
		s.reportProgress(ProgressUpdate{
			Phase:            PhaseFound,
			Chain:            chain,
			Index:            index,
			AddressesScanned: cr.AddressesScanned,
			AddressesFound:   len(cr.Addresses),
			BalanceFound:     cr.TotalBalance,
			NetworkErrors:    cr.NetworkErrorCount,
			CurrentAddress:   address,
			Message:          fmt.Sprintf("Found %s KAS at %s", balance.FormatSompi(amount), address),
		})
	}

	cr.Incomplete = sess.networkBoundHit()
	sess.complete()
	cr.State = sess.State

	if cr.Incomplete {
		log.Warn().Int("network_errors", cr.NetworkErrorCount).Msg("chain stopped after repeated network errors")
	}
	s.reportProgress(ProgressUpdate{
		Phase:            PhaseComplete,
		Chain:            chain,
		Index:            cr.LastIndex,
		AddressesScanned: cr.AddressesScanned,
		AddressesFound:   len(cr.Addresses),
		BalanceFound:     cr.TotalBalance,
		NetworkErrors:    cr.NetworkErrorCount,
		Message:          fmt.Sprintf("Finished %s chain", chain),
	})
	return cr, nil
}

// recordFunded fetches UTXO detail for a funded address, reconciles it with
// the authoritative balance and writes the record to the sink.
func (s *Scanner) recordFunded(ctx context.Context, chain keys.Chain, index uint32, address string, amount uint64) (DiscoveredAddress, error) {
	found := DiscoveredAddress{
		Address: address,
		Path:    s.deriver.PathFor(chain, index).String(),
		Chain:   chain,
		Index:   index,
		Balance: amount,
	}

	var utxos []balance.UTXO
	sets, err := s.oracle.UTXOsByAddresses(ctx, []string{address})
	switch {
	case err != nil && ctx.Err() != nil:
		return found, ctx.Err()
	case err != nil:
		found.UTXOsUnavailable = true
		s.log.Warn().Err(err).Str("chain", chain.String()).Uint32("index", index).
			Msg("utxo detail unavailable, keeping authoritative balance")
	default:
		utxos = sets[address]
		rec, rerr := balance.Reconcile(amount, utxos)
		if rerr != nil {
			return found, rerr
		}
		found.UTXOCount = rec.UTXOCount
		found.UTXOSum = rec.UTXOSum
		found.Reconciled = rec.Match
		if !rec.Match {
			s.opts.Metrics.RecordMismatch()
			s.log.Warn().
				Str("chain", chain.String()).
				Uint32("index", index).
				Str("balance", balance.FormatSompi(rec.Balance)).
				Str("utxo_sum", balance.FormatSompi(rec.UTXOSum)).
				Msg("utxo sum disagrees with aggregate balance")
		}
	}

	if s.sink == nil {
		return found, nil
	}
	if _, err := s.sink.EnsureIndex(chain, index); err != nil {
		return found, fmt.Errorf("recording %s index %d: %w", chain, index, err)
	}
	if err := s.sink.UpdateBalance(address, amount, utxos); err != nil {
		return found, fmt.Errorf("recording balance of %s: %w", address, err)
	}
	return found, nil
}

// reportProgress safely calls the progress callback if configured.
func (s *Scanner) reportProgress(update ProgressUpdate) {
	if s.opts.ProgressCallback != nil {
		s.opts.ProgressCallback(update)
	}
}

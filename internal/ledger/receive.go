package ledger

import (
	"context"
	"fmt"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/keys"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// ErrNoVerifier is returned by CurrentReceiveAddress when the ledger has no
// way to check the address for activity.
var ErrNoVerifier = &sompierr.SompiError{
	Code:       "NO_VERIFIER",
	Message:    "receive address cannot be verified without a ledger query service",
	Suggestion: "Configure network.api_url so addresses can be checked before reuse",
	ExitCode:   sompierr.ExitGeneral,
}

// CurrentReceiveAddress returns the latest receive address, verified to have
// no UTXOs at the moment it is returned. A verified-funded address is marked
// used and the next index is allocated and verified in turn. The check runs
// on every call. If verification fails, no address is returned.
func (l *Ledger) CurrentReceiveAddress(ctx context.Context) (string, error) {
	l.mu.RLock()
	verifier := l.opts.Verifier
	maxRotations := l.opts.MaxReceiveRotations
	l.mu.RUnlock()

	if verifier == nil {
		return "", ErrNoVerifier
	}

	for rotation := 0; ; rotation++ {
		address, index, err := l.latestUnused(keys.Receive)
		if err != nil {
			return "", err
		}

		utxos, err := verifier.UTXOsByAddresses(ctx, []string{address})
		if err != nil {
			l.log.Warn().Err(err).Uint32("index", index).Msg("receive address verification failed")
			return "", fmt.Errorf("verifying receive address: %w", err)
		}

		set := utxos[address]
		if len(set) == 0 {
			return address, nil
		}

		l.log.Info().Uint32("index", index).Int("utxos", len(set)).Msg("receive address has activity, rotating")
		if err := l.recordActivity(address, set); err != nil {
			return "", err
		}

		if rotation+1 >= maxRotations {
			return "", sompierr.WithDetails(sompierr.ErrGeneral, map[string]string{
				"reason":    "too many funded receive addresses in a row",
				"rotations": fmt.Sprintf("%d", rotation+1),
			})
		}
	}
}

// CurrentChangeAddress returns the latest change address, generating one
// when the chain is empty or its latest record is used. Change addresses
// are not verified against the network.
func (l *Ledger) CurrentChangeAddress() (string, error) {
	address, _, err := l.latestUnused(keys.Change)
	return address, err
}

// latestUnused returns the chain's latest record, allocating the next index
// if there is none or it is already used.
func (l *Ledger) latestUnused(chain keys.Chain) (string, uint32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	records := l.chains[chain]
	if n := len(records); n > 0 && !records[n-1].Used {
		rec := records[n-1]
		return rec.Address, rec.Path.Index, nil
	}

	rec, err := l.generateLocked(chain)
	if err != nil {
		return "", 0, err
	}
	return rec.Address, rec.Path.Index, nil
}

// recordActivity marks address used and stores the UTXOs that were found.
func (l *Ledger) recordActivity(address string, utxos []balance.UTXO) error {
	sum, err := balance.BalanceFromUTXOs(utxos)
	if err != nil {
		return err
	}
	if err := l.MarkUsed(address); err != nil {
		return err
	}
	return l.UpdateBalance(address, sum, utxos)
}

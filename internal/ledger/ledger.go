// Package ledger owns the derived address records of one wallet session:
// one ordered list per chain, monotonic next-index counters and the
// aggregate balance.
package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/keys"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// DefaultMaxReceiveRotations bounds how many funded receive addresses
// CurrentReceiveAddress skips in one call.
const DefaultMaxReceiveRotations = 20

// UTXOVerifier checks addresses for on-chain activity.
// balance.Oracle satisfies it.
type UTXOVerifier interface {
	UTXOsByAddresses(ctx context.Context, addresses []string) (map[string][]balance.UTXO, error)
}

// Options configures a Ledger.
type Options struct {
	// Verifier re-checks the current receive address before it is returned.
	Verifier UTXOVerifier

	// MaxReceiveRotations bounds rotations per CurrentReceiveAddress call.
	MaxReceiveRotations int

	// RetainPrivateKeys stores each record's private key alongside it.
	RetainPrivateKeys bool

	Logger zerolog.Logger
}

// Ledger is the address ledger. All methods are safe for concurrent use,
// though only one discovery pass should write to a ledger at a time.
type Ledger struct {
	mu        sync.RWMutex
	deriver   keys.Deriver
	chains    [2][]*Record
	byAddress map[string]*Record
	aggregate uint64

	opts Options
	log  zerolog.Logger
}

// New creates an empty ledger deriving addresses from deriver.
func New(deriver keys.Deriver, opts Options) *Ledger {
	if opts.MaxReceiveRotations <= 0 {
		opts.MaxReceiveRotations = DefaultMaxReceiveRotations
	}
	return &Ledger{
		deriver:   deriver,
		byAddress: make(map[string]*Record),
		opts:      opts,
		log:       opts.Logger.With().Str("component", "ledger").Logger(),
	}
}

// SetVerifier replaces the receive-address verifier.
func (l *Ledger) SetVerifier(v UTXOVerifier) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.opts.Verifier = v
}

// GenerateNext derives the address at the chain's next index, inserts an
// unused record and advances the counter.
func (l *Ledger) GenerateNext(chain keys.Chain) (*Record, error) {
	if !chain.IsValid() {
		return nil, invalidChain(chain)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rec, err := l.generateLocked(chain)
	if err != nil {
		return nil, err
	}
	return rec.clone(), nil
}

// EnsureIndex allocates records in order up to and including index and
// returns the record at index. Existing records are left untouched.
func (l *Ledger) EnsureIndex(chain keys.Chain, index uint32) (*Record, error) {
	if !chain.IsValid() {
		return nil, invalidChain(chain)
	}
	if index > keys.MaxIndex {
		return nil, sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{
			"index": fmt.Sprintf("%d", index),
		})
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for uint32(len(l.chains[chain])) <= index {
		if _, err := l.generateLocked(chain); err != nil {
			return nil, err
		}
	}
	return l.chains[chain][index].clone(), nil
}

func (l *Ledger) generateLocked(chain keys.Chain) (*Record, error) {
	next := len(l.chains[chain])
	if next > int(keys.MaxIndex) {
		return nil, fmt.Errorf("%w: %s chain is exhausted", sompierr.ErrInvalidInput, chain)
	}
	index := uint32(next)

	address, err := l.deriver.DeriveAddress(chain, index)
	if err != nil {
		return nil, err
	}

	rec := &Record{
		Address: address,
		Path:    l.deriver.PathFor(chain, index),
	}
	if l.opts.RetainPrivateKeys {
		pk, err := l.deriver.DerivePrivateKey(chain, index)
		if err != nil {
			return nil, err
		}
		rec.PrivateKey = pk
	}

	l.chains[chain] = append(l.chains[chain], rec)
	l.byAddress[address] = rec

	l.log.Debug().Str("chain", chain.String()).Uint32("index", index).Msg("allocated address")
	return rec, nil
}

// MarkUsed flags the record for address as used.
func (l *Ledger) MarkUsed(address string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byAddress[address]
	if !ok {
		return notFound(address)
	}
	rec.Used = true
	return nil
}

// UpdateBalance sets the balance and UTXO set of address and recomputes the
// aggregate from scratch. An address with activity is marked used. The
// update is rejected, leaving the ledger unchanged, if the aggregate would
// overflow.
func (l *Ledger) UpdateBalance(address string, amount uint64, utxos []balance.UTXO) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec, ok := l.byAddress[address]
	if !ok {
		return notFound(address)
	}

	prevBalance, prevUTXOs := rec.Balance, rec.UTXOs
	rec.Balance = amount
	rec.UTXOs = copyUTXOs(utxos)

	aggregate, err := l.sumLocked()
	if err != nil {
		rec.Balance, rec.UTXOs = prevBalance, prevUTXOs
		return err
	}

	l.aggregate = aggregate
	if rec.HasActivity() {
		rec.Used = true
	}
	return nil
}

// sumLocked recomputes the aggregate balance over every record.
func (l *Ledger) sumLocked() (uint64, error) {
	var total uint64
	for _, records := range l.chains {
		for _, rec := range records {
			if rec.Balance == 0 {
				continue
			}
			var err error
			if total, err = balance.SafeAdd(total, rec.Balance); err != nil {
				return 0, err
			}
		}
	}
	return total, nil
}

// ResetAllBalances zeroes every record's balance and UTXO set.
func (l *Ledger) ResetAllBalances() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, records := range l.chains {
		for _, rec := range records {
			rec.Balance = 0
			rec.UTXOs = nil
		}
	}
	l.aggregate = 0
}

// AggregateBalance returns the exact sum of every record balance.
func (l *Ledger) AggregateBalance() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.aggregate
}

// NextIndex returns the next index that GenerateNext would allocate.
func (l *Ledger) NextIndex(chain keys.Chain) uint32 {
	if !chain.IsValid() {
		return 0
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return uint32(len(l.chains[chain]))
}

// Records returns copies of a chain's records in index order.
func (l *Ledger) Records(chain keys.Chain) []*Record {
	if !chain.IsValid() {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]*Record, len(l.chains[chain]))
	for i, rec := range l.chains[chain] {
		out[i] = rec.clone()
	}
	return out
}

// Funded returns copies of every record with a non-zero balance, receive
// chain first.
func (l *Ledger) Funded() []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []*Record
	for _, records := range l.chains {
		for _, rec := range records {
			if rec.Balance > 0 {
				out = append(out, rec.clone())
			}
		}
	}
	return out
}

// Lookup returns a copy of the record for address.
func (l *Ledger) Lookup(address string) (*Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.byAddress[address]
	if !ok {
		return nil, false
	}
	return rec.clone(), true
}

// Wipe zeroes any retained private keys.
func (l *Ledger) Wipe() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, records := range l.chains {
		for _, rec := range records {
			if rec.PrivateKey != nil {
				rec.PrivateKey.Zero()
				rec.PrivateKey = nil
			}
		}
	}
}

func copyUTXOs(utxos []balance.UTXO) []balance.UTXO {
	if len(utxos) == 0 {
		return nil
	}
	out := make([]balance.UTXO, len(utxos))
	copy(out, utxos)
	return out
}

func invalidChain(chain keys.Chain) error {
	return sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{"chain": chain.String()})
}

func notFound(address string) error {
	return sompierr.WithDetails(sompierr.ErrAddressNotFound, map[string]string{"address": address})
}

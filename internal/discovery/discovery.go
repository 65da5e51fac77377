// Package discovery finds the funded addresses of an HD wallet by walking
// each derivation chain until a run of consecutive empty addresses reaches
// the gap limit.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/ledger"
	"github.com/mrz1836/sompi/internal/metrics"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// Default scanning parameters.
const (
	// DefaultGapLimit is the standard HD wallet gap limit.
	// Scanning stops after this many consecutive empty addresses.
	DefaultGapLimit = 20

	// DefaultMaxIndexBound caps how far a chain is walked when no explicit
	// bound is given.
	DefaultMaxIndexBound = 100_000

	// DefaultMaxConsecutiveNetworkErrors stops a chain after this many
	// failed probes in a row.
	DefaultMaxConsecutiveNetworkErrors = 10

	// DefaultTimeout is the default context timeout for a whole scan.
	DefaultTimeout = 10 * time.Minute
)

// ErrInvalidGapLimit indicates the gap limit is invalid.
var ErrInvalidGapLimit = &sompierr.SompiError{
	Code:     "INVALID_GAP_LIMIT",
	Message:  "gap limit must be positive",
	ExitCode: sompierr.ExitInput,
}

// ErrInvalidIndexBound indicates the max index bound is invalid.
var ErrInvalidIndexBound = &sompierr.SompiError{
	Code:     "INVALID_INDEX_BOUND",
	Message:  "max index bound is out of range",
	ExitCode: sompierr.ExitInput,
}

// Progress phases.
const (
	PhaseScanning = "scanning"
	PhaseFound    = "found"
	PhaseError    = "error"
	PhaseComplete = "complete"
)

// ProgressUpdate provides feedback during scanning operations.
type ProgressUpdate struct {
	// Phase is one of the Phase constants.
	Phase string

	// Chain is the chain being scanned.
	Chain keys.Chain

	// Index is the derivation index just probed.
	Index uint32

	// AddressesScanned is the number of addresses probed on this chain.
	AddressesScanned int

	// AddressesFound is the number of funded addresses on this chain.
	AddressesFound int

	// BalanceFound is the chain's discovered balance in sompi.
	BalanceFound uint64

	// NetworkErrors is the chain's failed probe count.
	NetworkErrors int

	// CurrentAddress is the address just probed.
	CurrentAddress string

	// Message provides additional context.
	Message string
}

// ProgressCallback is called during scanning to report progress.
type ProgressCallback func(ProgressUpdate)

// Options configures a scan.
type Options struct {
	// GapLimit is the number of consecutive empty addresses before stopping.
	// Default: DefaultGapLimit (20).
	GapLimit int

	// MaxIndexBound is the exclusive upper bound on indices probed per chain.
	// Zero means DefaultMaxIndexBound, or 2×GapLimit in comprehensive mode.
	MaxIndexBound uint32

	// Comprehensive applies the 2×GapLimit bound when MaxIndexBound is unset.
	Comprehensive bool

	// ScanChange determines whether the change chain is scanned.
	// Default: true.
	ScanChange bool

	// CountNetworkErrorsAsEmpty makes failed probes advance the gap counter.
	// Default: false, so transient outages cannot end a chain early.
	CountNetworkErrorsAsEmpty bool

	// MaxConsecutiveNetworkErrors ends a chain, marked incomplete, after this
	// many failed probes in a row. Zero disables the bound.
	MaxConsecutiveNetworkErrors int

	// ProgressCallback receives updates during scanning.
	ProgressCallback ProgressCallback

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		GapLimit:                    DefaultGapLimit,
		ScanChange:                  true,
		MaxConsecutiveNetworkErrors: DefaultMaxConsecutiveNetworkErrors,
	}
}

// Validate checks that the options are valid.
func (o *Options) Validate() error {
	if o.GapLimit <= 0 {
		return sompierr.WithDetails(ErrInvalidGapLimit, map[string]string{"value": fmt.Sprintf("%d", o.GapLimit)})
	}
	if o.MaxIndexBound > keys.MaxIndex {
		return sompierr.WithDetails(ErrInvalidIndexBound, map[string]string{"value": fmt.Sprintf("%d", o.MaxIndexBound)})
	}
	if o.MaxConsecutiveNetworkErrors < 0 {
		return sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{
			"max_consecutive_network_errors": fmt.Sprintf("%d", o.MaxConsecutiveNetworkErrors),
		})
	}
	return nil
}

// IndexBound returns the effective exclusive index bound per chain.
func (o *Options) IndexBound() uint32 {
	switch {
	case o.MaxIndexBound > 0:
		return o.MaxIndexBound
	case o.Comprehensive:
		return uint32(o.GapLimit) * 2 //nolint:gosec // GapLimit validated positive
	default:
		return DefaultMaxIndexBound
	}
}

// Chains returns the chains a scan with these options walks.
func (o *Options) Chains() []keys.Chain {
	if o.ScanChange {
		return keys.Chains()
	}
	return []keys.Chain{keys.Receive}
}

// DiscoveredAddress is a funded address found by a scan.
type DiscoveredAddress struct {
	Address string     `json:"address"`
	Path    string     `json:"path"`
	Chain   keys.Chain `json:"chain"`
	Index   uint32     `json:"index"`

	// Balance is the authoritative aggregate balance in sompi.
	Balance uint64 `json:"balance"`

	// UTXOCount is the number of unspent outputs at this address.
	UTXOCount int `json:"utxo_count"`

	// UTXOSum is the local sum of those outputs.
	UTXOSum uint64 `json:"utxo_sum"`

	// Reconciled is false when UTXOSum disagrees with Balance.
	Reconciled bool `json:"reconciled"`

	// UTXOsUnavailable is set when the UTXO detail query failed.
	UTXOsUnavailable bool `json:"utxos_unavailable,omitempty"`
}

// ChainResult is the outcome of scanning one chain.
type ChainResult struct {
	Chain            keys.Chain          `json:"chain"`
	State            State               `json:"state"`
	Addresses        []DiscoveredAddress `json:"addresses"`
	TotalBalance     uint64              `json:"total_balance"`
	AddressesScanned int                 `json:"addresses_scanned"`

	// LastIndex is the highest index probed, valid when AddressesScanned > 0.
	LastIndex uint32 `json:"last_index"`

	NetworkErrorCount int      `json:"network_error_count"`
	FailedIndices     []uint32 `json:"failed_indices,omitempty"`
	Mismatches        int      `json:"mismatches"`

	// Incomplete is set when the chain stopped on the network error bound
	// rather than the gap limit or the index bound.
	Incomplete bool `json:"incomplete,omitempty"`
}

// Result contains the complete discovery scan results.
type Result struct {
	Chains            []ChainResult `json:"chains"`
	AddressesFound    int           `json:"addresses_found"`
	TotalBalance      uint64        `json:"total_balance"`
	AddressesScanned  int           `json:"addresses_scanned"`
	NetworkErrorCount int           `json:"network_error_count"`
	Mismatches        int           `json:"mismatches"`
	Incomplete        bool          `json:"incomplete,omitempty"`
	Duration          time.Duration `json:"-"`
}

// HasFunds returns true if any funds were discovered.
func (r *Result) HasFunds() bool {
	return r.TotalBalance > 0
}

// AllAddresses returns every discovered address, receive chain first.
func (r *Result) AllAddresses() []DiscoveredAddress {
	total := 0
	for _, c := range r.Chains {
		total += len(c.Addresses)
	}
	all := make([]DiscoveredAddress, 0, total)
	for _, c := range r.Chains {
		all = append(all, c.Addresses...)
	}
	return all
}

// ByChain returns the result of one chain.
func (r *Result) ByChain(chain keys.Chain) (ChainResult, bool) {
	for _, c := range r.Chains {
		if c.Chain == chain {
			return c, true
		}
	}
	return ChainResult{}, false
}

// add merges a chain result into the totals.
func (r *Result) add(c ChainResult) error {
	total, err := balance.SafeAdd(r.TotalBalance, c.TotalBalance)
	if err != nil {
		return err
	}
	r.Chains = append(r.Chains, c)
	r.TotalBalance = total
	r.AddressesFound += len(c.Addresses)
	r.AddressesScanned += c.AddressesScanned
	r.NetworkErrorCount += c.NetworkErrorCount
	r.Mismatches += c.Mismatches
	r.Incomplete = r.Incomplete || c.Incomplete
	return nil
}

// BalanceSource is the subset of balance.Oracle the scanner needs.
type BalanceSource interface {
	WithConnection(ctx context.Context, fn func(context.Context) error) error
	BalanceByAddress(ctx context.Context, address string) (uint64, error)
	UTXOsByAddresses(ctx context.Context, addresses []string) (map[string][]balance.UTXO, error)
}

// RecordSink receives funded addresses. *ledger.Ledger satisfies it.
type RecordSink interface {
	EnsureIndex(chain keys.Chain, index uint32) (*ledger.Record, error)
	UpdateBalance(address string, amount uint64, utxos []balance.UTXO) error
}

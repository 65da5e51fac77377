// Package wallet ties a root key, its address ledger and a balance source
// into one session with the operations callers use: scan, next receive and
// change address, private key lookup and aggregate balance.
package wallet

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/mrz1836/sompi/internal/discovery"
	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/ledger"
	"github.com/mrz1836/sompi/internal/locator"
	"github.com/mrz1836/sompi/internal/metrics"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// Options configures a Session.
type Options struct {
	// MaxReceiveRotations bounds rotations per CurrentReceiveAddress call.
	MaxReceiveRotations int

	// RetainPrivateKeys keeps each ledger record's private key in memory.
	RetainPrivateKeys bool

	// Locator configures the reverse search used by LocatePrivateKey.
	Locator locator.Options

	// MaxSearchPerChain bounds the reverse search. Zero uses the locator default.
	MaxSearchPerChain uint32

	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

// Session is a single-writer wallet session. Reads may run concurrently;
// at most one scan runs at a time.
type Session struct {
	// mu guards root and closed. Operations hold it for reading so Close
	// waits for them to finish before zeroing the key.
	mu     sync.RWMutex
	closed bool

	// scanMu is held for the duration of a scan.
	scanMu sync.Mutex

	root    *keys.RootKey
	ledger  *ledger.Ledger
	oracle  discovery.BalanceSource
	locator *locator.Locator
	opts    Options
	log     zerolog.Logger
}

// Open creates a session over root. The session takes ownership of root and
// zeroes it on Close. oracle may be nil for offline use; Scan and
// CurrentReceiveAddress then fail.
func Open(root *keys.RootKey, oracle discovery.BalanceSource, opts Options) (*Session, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: no root key", sompierr.ErrInvalidKeyMaterial)
	}

	lopts := ledger.Options{
		MaxReceiveRotations: opts.MaxReceiveRotations,
		RetainPrivateKeys:   opts.RetainPrivateKeys,
		Logger:              opts.Logger,
	}
	if oracle != nil {
		lopts.Verifier = oracle
	}

	locOpts := opts.Locator
	if locOpts.Metrics == nil {
		locOpts.Metrics = opts.Metrics
	}
	locOpts.Logger = opts.Logger

	s := &Session{
		root:    root,
		ledger:  ledger.New(root, lopts),
		oracle:  oracle,
		locator: locator.New(&locOpts),
		opts:    opts,
		log: opts.Logger.With().
			Str("component", "session").
			Str("network", root.Network().String()).
			Uint32("account", root.Account()).
			Logger(),
	}
	s.log.Debug().Msg("session opened")
	return s, nil
}

// Network returns the session's network.
func (s *Session) Network() keys.Network {
	return s.root.Network()
}

// Ledger exposes the session's address ledger for read access.
func (s *Session) Ledger() *ledger.Ledger {
	return s.ledger
}

// Scan runs gap-limit discovery, replacing all balances in the ledger with
// freshly discovered ones. A second Scan while one is running returns
// ErrScanInProgress.
func (s *Session) Scan(ctx context.Context, opts *discovery.Options) (*discovery.Result, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	if s.oracle == nil {
		return nil, sompierr.WithSuggestion(sompierr.ErrNetworkUnavailable, "configure a ledger query endpoint")
	}
	if !s.scanMu.TryLock() {
		return nil, sompierr.ErrScanInProgress
	}
	defer s.scanMu.Unlock()

	scanOpts := discovery.DefaultOptions()
	if opts != nil {
		copied := *opts
		scanOpts = &copied
	}
	scanOpts.Logger = s.opts.Logger
	if scanOpts.Metrics == nil {
		scanOpts.Metrics = s.opts.Metrics
	}

	s.ledger.ResetAllBalances()
	return discovery.NewScanner(s.root, s.oracle, s.ledger, scanOpts).Scan(ctx)
}

// CurrentReceiveAddress returns the latest receive address verified to have
// no on-chain activity.
func (s *Session) CurrentReceiveAddress(ctx context.Context) (string, error) {
	if err := s.acquire(); err != nil {
		return "", err
	}
	defer s.mu.RUnlock()

	return s.ledger.CurrentReceiveAddress(ctx)
}

// CurrentChangeAddress returns the latest unused change address, generating
// one if needed.
func (s *Session) CurrentChangeAddress() (string, error) {
	if err := s.acquire(); err != nil {
		return "", err
	}
	defer s.mu.RUnlock()

	return s.ledger.CurrentChangeAddress()
}

// LocatePrivateKey returns the private key for address. Addresses already in
// the ledger are derived directly from their recorded path; others are found
// by reverse search. The caller owns the returned key and should Zero it.
func (s *Session) LocatePrivateKey(ctx context.Context, address string) (*locator.Match, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	if rec, ok := s.ledger.Lookup(address); ok {
		pk, err := s.root.DerivePrivateKey(rec.Chain(), rec.Index())
		if err != nil {
			return nil, err
		}
		return &locator.Match{
			Address:    address,
			Chain:      rec.Chain(),
			Index:      rec.Index(),
			Path:       rec.Path,
			PrivateKey: pk,
		}, nil
	}

	return s.locator.Locate(ctx, s.root, address, s.opts.MaxSearchPerChain)
}

// AggregateBalance returns the ledger's total balance in sompi.
func (s *Session) AggregateBalance() uint64 {
	return s.ledger.AggregateBalance()
}

// Snapshot exports the ledger's addresses and used flags.
func (s *Session) Snapshot() (ledger.Snapshot, error) {
	if err := s.acquire(); err != nil {
		return ledger.Snapshot{}, err
	}
	defer s.mu.RUnlock()

	return s.ledger.ExportSnapshot(), nil
}

// Restore loads a snapshot into the ledger. It is refused during a scan.
func (s *Session) Restore(snap ledger.Snapshot) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	if !s.scanMu.TryLock() {
		return sompierr.ErrScanInProgress
	}
	defer s.scanMu.Unlock()

	return s.ledger.ImportSnapshot(snap)
}

// Close zeroes the root key and wipes the ledger. It waits for in-flight
// operations and is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.ledger.Wipe()
	s.root.Zero()
	s.log.Debug().Msg("session closed")
	return nil
}

// acquire takes the read lock, failing if the session is closed.
func (s *Session) acquire() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return sompierr.ErrSessionClosed
	}
	return nil
}

package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/mrz1836/sompi/internal/keys"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// Snapshot is the persisted form of a ledger: addresses, paths and used
// flags. It is a hint about how many addresses exist, never a balance source.
type Snapshot struct {
	Version   int             `json:"version"`
	Network   keys.Network    `json:"network"`
	Account   uint32          `json:"account"`
	CreatedAt time.Time       `json:"created_at"`
	Receive   []SnapshotEntry `json:"receive"`
	Change    []SnapshotEntry `json:"change"`
}

// SnapshotEntry is one persisted address.
type SnapshotEntry struct {
	Index   uint32 `json:"index"`
	Address string `json:"address"`
	Path    string `json:"path"`
	Used    bool   `json:"used"`

	// Balance is accepted for compatibility with older files and ignored on
	// import. ExportSnapshot never writes it.
	Balance uint64 `json:"balance,omitempty"`
}

// ExportSnapshot returns the ledger's addresses, paths and used flags.
func (l *Ledger) ExportSnapshot() Snapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return Snapshot{
		Version:   SnapshotVersion,
		Network:   l.deriver.Network(),
		Account:   l.deriver.PathFor(keys.Receive, 0).Account,
		CreatedAt: time.Now().UTC(),
		Receive:   exportChain(l.chains[keys.Receive]),
		Change:    exportChain(l.chains[keys.Change]),
	}
}

func exportChain(records []*Record) []SnapshotEntry {
	out := make([]SnapshotEntry, len(records))
	for i, rec := range records {
		out[i] = SnapshotEntry{
			Index:   rec.Path.Index,
			Address: rec.Address,
			Path:    rec.Path.String(),
			Used:    rec.Used,
		}
	}
	return out
}

// ImportSnapshot replaces the ledger contents with the snapshot's records.
// Indices must be contiguous from zero and every address must re-derive from
// this ledger's root; otherwise the ledger is left unchanged. All balances
// and UTXO sets start empty regardless of the snapshot's contents.
func (l *Ledger) ImportSnapshot(snap Snapshot) error {
	if snap.Version != SnapshotVersion {
		return sompierr.WithDetails(sompierr.ErrSnapshotMismatch, map[string]string{
			"version": fmt.Sprintf("%d", snap.Version),
		})
	}
	if snap.Network != "" && snap.Network != l.deriver.Network() {
		return sompierr.WithDetails(sompierr.ErrSnapshotMismatch, map[string]string{
			"network": string(snap.Network),
		})
	}
	if account := l.deriver.PathFor(keys.Receive, 0).Account; snap.Account != account {
		return sompierr.WithDetails(sompierr.ErrSnapshotMismatch, map[string]string{
			"account": fmt.Sprintf("%d", snap.Account),
		})
	}

	var chains [2][]*Record
	byAddress := make(map[string]*Record)

	for _, chain := range keys.Chains() {
		entries := snap.Receive
		if chain == keys.Change {
			entries = snap.Change
		}

		records, err := l.importChain(chain, entries)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if _, dup := byAddress[rec.Address]; dup {
				return sompierr.WithDetails(sompierr.ErrSnapshotMismatch, map[string]string{"duplicate": rec.Address})
			}
			byAddress[rec.Address] = rec
		}
		chains[chain] = records
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.chains = chains
	l.byAddress = byAddress
	l.aggregate = 0

	l.log.Info().
		Int("receive", len(chains[keys.Receive])).
		Int("change", len(chains[keys.Change])).
		Msg("imported ledger snapshot")
	return nil
}

func (l *Ledger) importChain(chain keys.Chain, entries []SnapshotEntry) ([]*Record, error) {
	sorted := make([]SnapshotEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	records := make([]*Record, 0, len(sorted))
	for i, entry := range sorted {
		if entry.Index != uint32(i) {
			return nil, sompierr.WithDetails(sompierr.ErrSnapshotMismatch, map[string]string{
				"chain":    chain.String(),
				"expected": fmt.Sprintf("%d", i),
				"index":    fmt.Sprintf("%d", entry.Index),
			})
		}

		path := l.deriver.PathFor(chain, entry.Index)
		if entry.Path != "" && entry.Path != path.String() {
			return nil, sompierr.WithDetails(sompierr.ErrSnapshotMismatch, map[string]string{
				"path": entry.Path,
				"want": path.String(),
			})
		}

		address, err := l.deriver.DeriveAddress(chain, entry.Index)
		if err != nil {
			return nil, err
		}
		if address != entry.Address {
			return nil, sompierr.WithDetails(sompierr.ErrSnapshotMismatch, map[string]string{
				"path":    path.String(),
				"address": entry.Address,
			})
		}

		rec := &Record{Address: address, Path: path, Used: entry.Used}
		if l.opts.RetainPrivateKeys {
			pk, err := l.deriver.DerivePrivateKey(chain, entry.Index)
			if err != nil {
				return nil, err
			}
			rec.PrivateKey = pk
		}
		records = append(records, rec)
	}
	return records, nil
}

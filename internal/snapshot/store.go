// Package snapshot persists ledger snapshots by wallet name. Snapshots hold
// addresses, paths and used flags only; balances are always rediscovered.
package snapshot

import (
	"regexp"

	"github.com/mrz1836/sompi/internal/ledger"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// Storage backends.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
)

var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// Store loads and saves snapshots.
type Store interface {
	// Load returns ErrSnapshotNotFound when name has no snapshot.
	Load(name string) (ledger.Snapshot, error)
	Save(name string, snap ledger.Snapshot) error
	Delete(name string) error
	List() ([]string, error)
	Close() error
}

// Open returns the store for backend rooted at dir.
func Open(backend, dir string) (Store, error) {
	switch backend {
	case BackendFile, "":
		return NewFileStore(dir)
	case BackendBadger:
		return NewBadgerStore(dir)
	default:
		return nil, sompierr.WithDetails(sompierr.ErrConfigInvalid, map[string]string{"storage.backend": backend})
	}
}

// ValidateName checks a wallet name used as a snapshot key.
func ValidateName(name string) error {
	if !nameRegex.MatchString(name) {
		return sompierr.WithSuggestion(
			sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{"name": name}),
			"Use 1-64 letters, digits, dashes or underscores",
		)
	}
	return nil
}

func notFound(name string) error {
	return sompierr.WithDetails(sompierr.ErrSnapshotNotFound, map[string]string{"name": name})
}

package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/mrz1836/sompi/internal/ledger"
)

var keyPrefix = []byte("snapshot/")

// BadgerStore keeps snapshots in a Badger database.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens or creates a Badger database at dir.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		if strings.Contains(err.Error(), "Cannot acquire directory lock") {
			return nil, fmt.Errorf("snapshot database at %s is locked by another process: %w", dir, err)
		}
		return nil, fmt.Errorf("opening snapshot database at %s: %w", dir, err)
	}
	return &BadgerStore{db: db}, nil
}

func key(name string) []byte {
	return append(append([]byte{}, keyPrefix...), name...)
}

// Load reads the named snapshot.
func (s *BadgerStore) Load(name string) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	if err := ValidateName(name); err != nil {
		return snap, err
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key(name))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &snap)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return snap, notFound(name)
	}
	if err != nil {
		return snap, fmt.Errorf("loading snapshot %s: %w", name, err)
	}
	return snap, nil
}

// Save stores the named snapshot.
func (s *BadgerStore) Save(name string, snap ledger.Snapshot) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot %s: %w", name, err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(name), data)
	}); err != nil {
		return fmt.Errorf("saving snapshot %s: %w", name, err)
	}
	return nil
}

// Delete removes the named snapshot.
func (s *BadgerStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(key(name)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return notFound(name)
			}
			return err
		}
		return txn.Delete(key(name))
	})
}

// List returns the stored snapshot names in key order.
func (s *BadgerStore) List() ([]string, error) {
	var names []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = keyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(keyPrefix); it.ValidForPrefix(keyPrefix); it.Next() {
			names = append(names, string(it.Item().Key()[len(keyPrefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	return names, nil
}

// Close closes the database.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mrz1836/sompi/internal/fileutil"
	"github.com/mrz1836/sompi/internal/ledger"
)

const fileExt = ".json"

// FileStore keeps one JSON file per snapshot.
type FileStore struct {
	dir string
}

// NewFileStore creates a store under dir, creating it if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, fileutil.PrivateDir); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name+fileExt)
}

// Load reads the named snapshot.
func (s *FileStore) Load(name string) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	if err := ValidateName(name); err != nil {
		return snap, err
	}
	if err := fileutil.ReadJSON(s.path(name), &snap); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snap, notFound(name)
		}
		return snap, fmt.Errorf("loading snapshot %s: %w", name, err)
	}
	return snap, nil
}

// Save writes the named snapshot atomically.
func (s *FileStore) Save(name string, snap ledger.Snapshot) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	return fileutil.WriteJSON(s.path(name), snap, fileutil.PrivateFile)
}

// Delete removes the named snapshot.
func (s *FileStore) Delete(name string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := os.Remove(s.path(name)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return notFound(name)
		}
		return err
	}
	return nil
}

// List returns the stored snapshot names in sorted order.
func (s *FileStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), fileExt) {
			continue
		}
		name := strings.TrimSuffix(e.Name(), fileExt)
		if ValidateName(name) == nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Close is a no-op.
func (s *FileStore) Close() error { return nil }

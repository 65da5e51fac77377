package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/ledger"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

func sample() ledger.Snapshot {
	return ledger.Snapshot{
		Version:   ledger.SnapshotVersion,
		Network:   keys.Mainnet,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Receive: []ledger.SnapshotEntry{
			{Index: 0, Address: "kaspa:a0", Path: "m/44'/111111'/0'/0/0", Used: true},
			{Index: 1, Address: "kaspa:a1", Path: "m/44'/111111'/0'/0/1"},
		},
		Change: []ledger.SnapshotEntry{
			{Index: 0, Address: "kaspa:c0", Path: "m/44'/111111'/0'/1/0", Used: true},
		},
	}
}

func stores(t *testing.T) map[string]Store {
	t.Helper()

	fs, err := Open(BackendFile, filepath.Join(t.TempDir(), "files"))
	require.NoError(t, err)

	bs, err := Open(BackendBadger, filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = bs.Close() })

	return map[string]Store{BackendFile: fs, BackendBadger: bs}
}

func TestStore_SaveLoad(t *testing.T) {
	t.Parallel()

	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			want := sample()
			require.NoError(t, store.Save("main", want))

			got, err := store.Load("main")
			require.NoError(t, err)
			assert.Equal(t, want, got)

			want.Receive = append(want.Receive, ledger.SnapshotEntry{Index: 2, Address: "kaspa:a2"})
			require.NoError(t, store.Save("main", want))
			got, err = store.Load("main")
			require.NoError(t, err)
			assert.Len(t, got.Receive, 3, "save overwrites")
		})
	}
}

func TestStore_ListDelete(t *testing.T) {
	t.Parallel()

	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			require.NoError(t, store.Save("beta", sample()))
			require.NoError(t, store.Save("alpha", sample()))

			names, err := store.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"alpha", "beta"}, names)

			require.NoError(t, store.Delete("alpha"))
			require.ErrorIs(t, store.Delete("alpha"), sompierr.ErrSnapshotNotFound)

			names, err = store.List()
			require.NoError(t, err)
			assert.Equal(t, []string{"beta"}, names)
		})
	}
}

func TestStore_Errors(t *testing.T) {
	t.Parallel()

	for backend, store := range stores(t) {
		t.Run(backend, func(t *testing.T) {
			_, err := store.Load("missing")
			require.ErrorIs(t, err, sompierr.ErrSnapshotNotFound)
			assert.Equal(t, sompierr.ExitNotFound, sompierr.ExitCode(err))

			for _, name := range []string{"", "../escape", "a/b", "has space"} {
				require.ErrorIs(t, store.Save(name, sample()), sompierr.ErrInvalidInput, name)
				_, err := store.Load(name)
				require.ErrorIs(t, err, sompierr.ErrInvalidInput, name)
			}
		})
	}
}

func TestFileStore_PermissionsAndJunk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.Save("main", sample()))

	info, err := os.Stat(filepath.Join(dir, "main.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad name.json"), []byte("{}"), 0o600))
	names, err := store.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"main"}, names)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "corrupt.json"), []byte("{"), 0o600))
	_, err = store.Load("corrupt")
	require.Error(t, err)
	assert.NotErrorIs(t, err, sompierr.ErrSnapshotNotFound)
}

func TestOpen_UnknownBackend(t *testing.T) {
	t.Parallel()
	_, err := Open("sqlite", t.TempDir())
	require.ErrorIs(t, err, sompierr.ErrConfigInvalid)
}

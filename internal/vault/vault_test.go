package vault

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sompi/internal/keys"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

// testWorkFactor keeps scrypt fast in tests.
const testWorkFactor = 10

func TestSealOpen(t *testing.T) {
	t.Parallel()
	v := New(testWorkFactor)

	sealed, err := v.Seal("  ABANDON abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about ", "correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(sealed), "-----BEGIN AGE ENCRYPTED FILE-----"))
	assert.NotContains(t, string(sealed), "abandon")

	secret, err := v.Open(sealed, "correct horse")
	require.NoError(t, err)
	defer secret.Destroy()
	assert.Equal(t, testMnemonic, secret.String(), "mnemonic is normalized before sealing")
}

func TestOpen_WrongPassphrase(t *testing.T) {
	t.Parallel()
	v := New(testWorkFactor)

	sealed, err := v.Seal(testMnemonic, "right")
	require.NoError(t, err)

	_, err = v.Open(sealed, "wrong")
	require.ErrorIs(t, err, sompierr.ErrDecryptionFailed)
	assert.Equal(t, sompierr.ExitAuth, sompierr.ExitCode(err))

	_, err = v.Open([]byte("not a vault"), "right")
	require.ErrorIs(t, err, sompierr.ErrDecryptionFailed)
}

func TestSeal_Rejects(t *testing.T) {
	t.Parallel()
	v := New(testWorkFactor)

	_, err := v.Seal(testMnemonic, "")
	require.ErrorIs(t, err, ErrEmptyPassphrase)

	_, err = v.Seal("abandon abandon abandon", "pass")
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)
}

func TestSealFile_UnlockRoot(t *testing.T) {
	t.Parallel()
	v := New(testWorkFactor)
	path := filepath.Join(t.TempDir(), "vaults", "main.age")

	require.NoError(t, v.SealFile(path, testMnemonic, "pw"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	require.ErrorIs(t, v.SealFile(path, testMnemonic, "pw"), sompierr.ErrInvalidInput, "never overwrites")

	root, err := v.UnlockRoot(path, "pw", "", keys.Mainnet, 0)
	require.NoError(t, err)
	defer root.Zero()

	want, err := keys.NewRootKeyFromMnemonic(testMnemonic, "", keys.Mainnet, 0)
	require.NoError(t, err)
	defer want.Zero()

	got, err := root.DeriveAddress(keys.Receive, 0)
	require.NoError(t, err)
	expected, err := want.DeriveAddress(keys.Receive, 0)
	require.NoError(t, err)
	assert.Equal(t, expected, got)

	_, err = v.UnlockRoot(path, "bad", "", keys.Mainnet, 0)
	require.ErrorIs(t, err, sompierr.ErrDecryptionFailed)
}

func TestOpenFile_Missing(t *testing.T) {
	t.Parallel()
	_, err := New(testWorkFactor).OpenFile(filepath.Join(t.TempDir(), "none.age"), "pw")
	require.ErrorIs(t, err, ErrVaultNotFound)
	assert.Equal(t, sompierr.ExitNotFound, sompierr.ExitCode(err))
}

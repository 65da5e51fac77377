package keys

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

const testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func newTestRoot(t *testing.T, net Network) *RootKey {
	t.Helper()
	root, err := NewRootKeyFromMnemonic(testMnemonic, "", net, 0)
	require.NoError(t, err)
	t.Cleanup(root.Zero)
	return root
}

func TestDerive_Deterministic(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, Mainnet)

	for _, chain := range Chains() {
		for _, index := range []uint32{0, 1, 37, 1000} {
			first, err := Derive(root, chain, index)
			require.NoError(t, err)
			second, err := Derive(root, chain, index)
			require.NoError(t, err)

			assert.Equal(t, first.Address, second.Address)
			assert.Equal(t, first.PrivateKey.Hex(), second.PrivateKey.Hex())
			assert.Equal(t, first.Path, second.Path)
		}
	}
}

func TestDerive_SameMnemonicTwoRoots(t *testing.T) {
	t.Parallel()
	a := newTestRoot(t, Mainnet)
	b := newTestRoot(t, Mainnet)

	addrA, err := a.DeriveAddress(Change, 5)
	require.NoError(t, err)
	addrB, err := b.DeriveAddress(Change, 5)
	require.NoError(t, err)
	assert.Equal(t, addrA, addrB)
}

func TestDerive_DistinctPerChainAndIndex(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, Mainnet)

	seen := make(map[string]Path)
	for _, chain := range Chains() {
		for index := uint32(0); index < 10; index++ {
			addr, err := root.DeriveAddress(chain, index)
			require.NoError(t, err)
			prev, dup := seen[addr]
			require.False(t, dup, "address at %s collides with %s", root.PathFor(chain, index), prev)
			seen[addr] = root.PathFor(chain, index)
		}
	}
}

func TestDerive_AddressMatchesPrivateKey(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, Mainnet)

	derived, err := Derive(root, Change, 37)
	require.NoError(t, err)
	defer derived.PrivateKey.Zero()

	fromKey, err := derived.PrivateKey.Address(Mainnet)
	require.NoError(t, err)
	assert.Equal(t, derived.Address, fromKey)
	assert.Equal(t, "m/44'/111111'/0'/1/37", derived.Path.String())
}

func TestDerive_NetworkPrefix(t *testing.T) {
	t.Parallel()

	mainAddr, err := newTestRoot(t, Mainnet).DeriveAddress(Receive, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(mainAddr, "kaspa:"), mainAddr)
	require.NoError(t, ValidateAddress(mainAddr, Mainnet))

	testAddr, err := newTestRoot(t, Testnet).DeriveAddress(Receive, 0)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(testAddr, "kaspatest:"), testAddr)

	err = ValidateAddress(testAddr, Mainnet)
	require.ErrorIs(t, err, sompierr.ErrInvalidAddressFormat)
}

func TestDerive_InvalidKeyMaterial(t *testing.T) {
	t.Parallel()

	_, err := NewRootKeyFromMnemonic("abandon abandon abandon", "", Mainnet, 0)
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)

	_, err = NewRootKeyFromSeed([]byte("short"), Mainnet, 0)
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)

	_, err = NewRootKeyFromExtendedKey("kprvnotakey", Mainnet, 0)
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)

	_, err = NewRootKeyFromMnemonic(testMnemonic, "", Network("moonnet"), 0)
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)

	_, err = Derive(nil, Receive, 0)
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)
}

func TestDerive_ZeroedRoot(t *testing.T) {
	t.Parallel()
	root, err := NewRootKeyFromMnemonic(testMnemonic, "", Mainnet, 0)
	require.NoError(t, err)

	root.Zero()
	_, err = root.DeriveAddress(Receive, 0)
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)
}

func TestDerive_InvalidInputs(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, Mainnet)

	_, err := root.DeriveAddress(Chain(2), 0)
	require.ErrorIs(t, err, sompierr.ErrInvalidInput)

	_, err = root.DeriveAddress(Receive, MaxIndex+1)
	require.ErrorIs(t, err, sompierr.ErrInvalidInput)
}

func TestDerive_PassphraseChangesAddresses(t *testing.T) {
	t.Parallel()
	plain := newTestRoot(t, Mainnet)
	salted, err := NewRootKeyFromMnemonic(testMnemonic, "TREZOR", Mainnet, 0)
	require.NoError(t, err)
	defer salted.Zero()

	a, err := plain.DeriveAddress(Receive, 0)
	require.NoError(t, err)
	b, err := salted.DeriveAddress(Receive, 0)
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDerive_ConcurrentReaders(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, Mainnet)

	want := make([]string, 16)
	for i := range want {
		addr, err := root.DeriveAddress(Receive, uint32(i))
		require.NoError(t, err)
		want[i] = addr
	}

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range want {
				addr, err := root.DeriveAddress(Receive, uint32(i))
				if err != nil {
					errs <- err
					return
				}
				if addr != want[i] {
					errs <- assert.AnError
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
}

func TestPrivateKey_Zero(t *testing.T) {
	t.Parallel()
	root := newTestRoot(t, Mainnet)

	pk, err := root.DerivePrivateKey(Receive, 3)
	require.NoError(t, err)
	require.Len(t, pk.Bytes(), PrivateKeyLen)
	assert.Len(t, pk.Hex(), PrivateKeyLen*2)

	pk.Zero()
	assert.True(t, pk.IsZeroed())
	assert.Nil(t, pk.Bytes())

	_, err = pk.Address(Mainnet)
	require.ErrorIs(t, err, sompierr.ErrInvalidKeyMaterial)
}

func TestPath_RoundTrip(t *testing.T) {
	t.Parallel()
	p := NewPath(2, Change, 37)
	parsed, err := ParsePath(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, parsed)

	for _, bad := range []string{"", "m/44'/111111'/0'/2/1", "m/44'/0'/0'/0/1", "m/44'/111111'/0/0/1", "m/44'/111111'/0'/0/x"} {
		_, err := ParsePath(bad)
		require.ErrorIs(t, err, sompierr.ErrInvalidInput, bad)
	}
}

func TestParseChainAndNetwork(t *testing.T) {
	t.Parallel()

	c, ok := ParseChain("internal")
	require.True(t, ok)
	assert.Equal(t, Change, c)
	_, ok = ParseChain("sideways")
	assert.False(t, ok)

	n, ok := ParseNetwork("TEST")
	require.True(t, ok)
	assert.Equal(t, Testnet, n)
	_, ok = ParseNetwork("mainet")
	assert.False(t, ok)
	assert.True(t, Simnet.IsValid())
	assert.False(t, Network("Mainnet").IsValid())
}

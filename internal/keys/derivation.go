// Package keys derives Kaspa addresses and private keys from HD root key
// material. Derivation is pure: the same root, chain and index always yield
// the same address and key, and nothing here touches the network or any ledger.
package keys

import (
	"fmt"
	"strings"
	"sync"

	"github.com/decred/dcrd/hdkeychain/v3"
	"github.com/tyler-smith/go-bip39"

	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// accountDepth is the depth of an m/44'/111111'/account' key.
const accountDepth = 3

// Deriver derives addresses and keys for a single account.
// RootKey is the production implementation; tests substitute fakes.
type Deriver interface {
	// DeriveAddress returns the address at (chain, index).
	DeriveAddress(chain Chain, index uint32) (string, error)

	// DerivePrivateKey returns the private key at (chain, index).
	DerivePrivateKey(chain Chain, index uint32) (*PrivateKey, error)

	// PathFor returns the derivation path of (chain, index).
	PathFor(chain Chain, index uint32) Path

	// Network returns the network addresses are encoded for.
	Network() Network
}

// DerivedKey is the output of Derive.
type DerivedKey struct {
	Address    string
	Path       Path
	PrivateKey *PrivateKey
}

// RootKey is the session's root key material, held as the pre-derived
// account key plus both chain keys. It is read-only after construction and
// safe for concurrent derivation.
type RootKey struct {
	mu      sync.RWMutex
	net     Network
	account uint32
	chains  [2]*hdkeychain.ExtendedKey
	zeroed  bool
}

// NewRootKeyFromMnemonic builds root key material from a BIP39 mnemonic and
// optional passphrase.
func NewRootKeyFromMnemonic(mnemonic, passphrase string, net Network, account uint32) (*RootKey, error) {
	mnemonic = NormalizeMnemonic(mnemonic)
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("%w: mnemonic checksum or word list mismatch", sompierr.ErrInvalidKeyMaterial)
	}

	seed := bip39.NewSeed(mnemonic, passphrase)
	defer ZeroBytes(seed)

	return NewRootKeyFromSeed(seed, net, account)
}

// NewRootKeyFromSeed builds root key material from a raw BIP32 seed.
func NewRootKeyFromSeed(seed []byte, net Network, account uint32) (*RootKey, error) {
	if !net.IsValid() {
		return nil, fmt.Errorf("%w: unknown network %q", sompierr.ErrInvalidKeyMaterial, net)
	}

	master, err := hdkeychain.NewMaster(seed, net.hdParams())
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrInvalidKeyMaterial, err)
	}
	defer master.Zero()

	return newRootKey(master, net, account)
}

// NewRootKeyFromExtendedKey builds root key material from an imported
// extended private key. Both master (depth 0) and account-level (depth 3)
// keys are accepted.
func NewRootKeyFromExtendedKey(encoded string, net Network, account uint32) (*RootKey, error) {
	if !net.IsValid() {
		return nil, fmt.Errorf("%w: unknown network %q", sompierr.ErrInvalidKeyMaterial, net)
	}

	key, err := hdkeychain.NewKeyFromString(strings.TrimSpace(encoded), net.hdParams())
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrInvalidKeyMaterial, err)
	}
	defer key.Zero()

	if !key.IsPrivate() {
		return nil, fmt.Errorf("%w: extended key is public-only", sompierr.ErrInvalidKeyMaterial)
	}

	switch key.Depth() {
	case 0:
		return newRootKey(key, net, account)
	case accountDepth:
		return newRootKeyFromAccount(key, net, account)
	default:
		return nil, fmt.Errorf("%w: extended key depth %d is neither master nor account",
			sompierr.ErrInvalidKeyMaterial, key.Depth())
	}
}

// newRootKey derives m/44'/111111'/account' from the master key.
func newRootKey(master *hdkeychain.ExtendedKey, net Network, account uint32) (*RootKey, error) {
	if account > MaxIndex {
		return nil, fmt.Errorf("%w: account %d out of range", sompierr.ErrInvalidKeyMaterial, account)
	}

	purposeKey, err := master.ChildBIP32Std(hdkeychain.HardenedKeyStart + PurposeBIP44)
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrInvalidKeyMaterial, fmt.Errorf("deriving purpose key: %w", err))
	}
	defer purposeKey.Zero()

	coinTypeKey, err := purposeKey.ChildBIP32Std(hdkeychain.HardenedKeyStart + CoinTypeKaspa)
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrInvalidKeyMaterial, fmt.Errorf("deriving coin type key: %w", err))
	}
	defer coinTypeKey.Zero()

	accountKey, err := coinTypeKey.ChildBIP32Std(hdkeychain.HardenedKeyStart + account)
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrInvalidKeyMaterial, fmt.Errorf("deriving account key: %w", err))
	}
	defer accountKey.Zero()

	return newRootKeyFromAccount(accountKey, net, account)
}

func newRootKeyFromAccount(accountKey *hdkeychain.ExtendedKey, net Network, account uint32) (*RootKey, error) {
	root := &RootKey{net: net, account: account}

	for _, chain := range Chains() {
		chainKey, err := accountKey.ChildBIP32Std(uint32(chain))
		if err != nil {
			root.Zero()
			return nil, sompierr.WithCause(sompierr.ErrInvalidKeyMaterial,
				fmt.Errorf("deriving %s chain key: %w", chain, err))
		}
		// Warm the cached public key so later concurrent derivations only read.
		_ = chainKey.SerializedPubKey()
		root.chains[chain] = chainKey
	}

	return root, nil
}

// Derive is the pure derivation contract: (root, chain, index) -> (address, key).
func Derive(root *RootKey, chain Chain, index uint32) (*DerivedKey, error) {
	if root == nil {
		return nil, fmt.Errorf("%w: nil root key", sompierr.ErrInvalidKeyMaterial)
	}

	child, err := root.child(chain, index)
	if err != nil {
		return nil, err
	}
	defer child.Zero()

	address, err := EncodeAddress(child.SerializedPubKey()[1:], root.net)
	if err != nil {
		return nil, err
	}

	raw, err := child.SerializedPrivKey()
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrInvalidKeyMaterial, err)
	}
	pk, err := PrivateKeyFromBytes(raw)
	ZeroBytes(raw)
	if err != nil {
		return nil, err
	}

	return &DerivedKey{
		Address:    address,
		Path:       root.PathFor(chain, index),
		PrivateKey: pk,
	}, nil
}

// DeriveAddress derives only the address at (chain, index).
func (r *RootKey) DeriveAddress(chain Chain, index uint32) (string, error) {
	child, err := r.child(chain, index)
	if err != nil {
		return "", err
	}
	defer child.Zero()

	return EncodeAddress(child.SerializedPubKey()[1:], r.net)
}

// DerivePrivateKey derives only the private key at (chain, index).
func (r *RootKey) DerivePrivateKey(chain Chain, index uint32) (*PrivateKey, error) {
	derived, err := Derive(r, chain, index)
	if err != nil {
		return nil, err
	}
	return derived.PrivateKey, nil
}

// PathFor returns the path of (chain, index) under this root's account.
func (r *RootKey) PathFor(chain Chain, index uint32) Path {
	return NewPath(r.account, chain, index)
}

// Network returns the network the root encodes addresses for.
func (r *RootKey) Network() Network {
	return r.net
}

// Account returns the BIP44 account index.
func (r *RootKey) Account() uint32 {
	return r.account
}

// Zero wipes the key material. Later derivations fail with ErrInvalidKeyMaterial.
func (r *RootKey) Zero() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, k := range r.chains {
		if k != nil {
			k.Zero()
			r.chains[i] = nil
		}
	}
	r.zeroed = true
}

func (r *RootKey) child(chain Chain, index uint32) (*hdkeychain.ExtendedKey, error) {
	if !chain.IsValid() {
		return nil, sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{"chain": chain.String()})
	}
	if index > MaxIndex {
		return nil, sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{"index": fmt.Sprintf("%d", index)})
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.zeroed || r.chains[chain] == nil {
		return nil, fmt.Errorf("%w: root key has been zeroed", sompierr.ErrInvalidKeyMaterial)
	}

	child, err := r.chains[chain].ChildBIP32Std(index)
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrInvalidKeyMaterial,
			fmt.Errorf("deriving %s index %d: %w", chain, index, err))
	}
	return child, nil
}

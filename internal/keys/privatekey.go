package keys

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// PrivateKeyLen is the length of a raw secp256k1 private key.
const PrivateKeyLen = 32

// PrivateKey is a derived secp256k1 private key. Call Zero when done with it.
type PrivateKey struct {
	mu  sync.Mutex
	key [PrivateKeyLen]byte
	set bool
}

// PrivateKeyFromBytes copies a raw 32-byte key.
func PrivateKeyFromBytes(b []byte) (*PrivateKey, error) {
	if len(b) != PrivateKeyLen {
		return nil, fmt.Errorf("%w: private key must be %d bytes, got %d",
			sompierr.ErrInvalidKeyMaterial, PrivateKeyLen, len(b))
	}
	pk := &PrivateKey{set: true}
	copy(pk.key[:], b)
	return pk, nil
}

// Bytes returns a copy of the raw key. The caller must zero it.
func (k *PrivateKey) Bytes() []byte {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.set {
		return nil
	}
	out := make([]byte, PrivateKeyLen)
	copy(out, k.key[:])
	return out
}

// Hex returns the key as lowercase hex.
func (k *PrivateKey) Hex() string {
	b := k.Bytes()
	defer ZeroBytes(b)
	return hex.EncodeToString(b)
}

// SchnorrPublicKey returns the 32-byte x-only public key.
func (k *PrivateKey) SchnorrPublicKey() ([]byte, error) {
	b := k.Bytes()
	if b == nil {
		return nil, fmt.Errorf("%w: private key has been zeroed", sompierr.ErrInvalidKeyMaterial)
	}
	defer ZeroBytes(b)

	priv := secp256k1.PrivKeyFromBytes(b)
	defer priv.Zero()

	return priv.PubKey().SerializeCompressed()[1:], nil
}

// Address re-derives the P2PK address controlled by this key.
func (k *PrivateKey) Address(net Network) (string, error) {
	pub, err := k.SchnorrPublicKey()
	if err != nil {
		return "", err
	}
	return EncodeAddress(pub, net)
}

// Zero wipes the key.
func (k *PrivateKey) Zero() {
	k.mu.Lock()
	defer k.mu.Unlock()
	ZeroBytes(k.key[:])
	k.set = false
}

// IsZeroed reports whether Zero has been called.
func (k *PrivateKey) IsZeroed() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return !k.set
}

package keys

import (
	"fmt"
	"strings"

	"github.com/kaspanet/kaspad/util"

	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// xOnlyPubKeyLen is the length of a Schnorr (x-only) public key.
const xOnlyPubKeyLen = 32

// EncodeAddress encodes an x-only public key as a Kaspa P2PK address.
func EncodeAddress(xOnlyPubKey []byte, net Network) (string, error) {
	if len(xOnlyPubKey) != xOnlyPubKeyLen {
		return "", fmt.Errorf("%w: public key must be %d bytes, got %d",
			sompierr.ErrInvalidKeyMaterial, xOnlyPubKeyLen, len(xOnlyPubKey))
	}

	addr, err := util.NewAddressPublicKey(xOnlyPubKey, net.Prefix())
	if err != nil {
		return "", sompierr.WithCause(sompierr.ErrInvalidKeyMaterial, err)
	}
	return addr.String(), nil
}

// ValidateAddress checks that address is a well-formed address for net.
func ValidateAddress(address string, net Network) error {
	if strings.TrimSpace(address) == "" {
		return sompierr.WithDetails(sompierr.ErrInvalidAddressFormat, map[string]string{"address": "(empty)"})
	}
	if _, err := util.DecodeAddress(address, net.Prefix()); err != nil {
		return fmt.Errorf("%w (address: %s): %w", sompierr.ErrInvalidAddressFormat, address, err)
	}
	return nil
}

package keys

import (
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"

	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// Supported mnemonic lengths and their entropy sizes in bits.
var entropyBits = map[int]int{ //nolint:gochecknoglobals // lookup table
	12: 128,
	15: 160,
	18: 192,
	21: 224,
	24: 256,
}

// NormalizeMnemonic lowercases and collapses whitespace.
func NormalizeMnemonic(mnemonic string) string {
	return strings.Join(strings.Fields(strings.ToLower(mnemonic)), " ")
}

// ValidateMnemonic checks word count, word list and checksum.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonic(mnemonic)
	words := len(strings.Fields(normalized))
	if _, ok := entropyBits[words]; !ok {
		return fmt.Errorf("%w: %d words (want 12, 15, 18, 21 or 24)", sompierr.ErrInvalidKeyMaterial, words)
	}
	if !bip39.IsMnemonicValid(normalized) {
		return fmt.Errorf("%w: mnemonic checksum or word list mismatch", sompierr.ErrInvalidKeyMaterial)
	}
	return nil
}

// GenerateMnemonic creates a fresh mnemonic with the given word count.
func GenerateMnemonic(words int) (string, error) {
	bits, ok := entropyBits[words]
	if !ok {
		return "", sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{"words": fmt.Sprintf("%d", words)})
	}

	entropy, err := bip39.NewEntropy(bits)
	if err != nil {
		return "", fmt.Errorf("generating entropy: %w", err)
	}
	defer ZeroBytes(entropy)

	return bip39.NewMnemonic(entropy)
}

package cli

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"

	"github.com/mrz1836/sompi/internal/keys"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// minVaultPassphrase is the shortest accepted vault passphrase.
const minVaultPassphrase = 8

// Prompt hooks, replaced in tests.
//
//nolint:gochecknoglobals // test hooks
var (
	promptPasswordFn    = promptPassword
	promptNewPasswordFn = promptNewPassword
	promptPassphraseFn  = promptPassphrase
	promptMnemonicFn    = promptMnemonic
)

// promptPassword prompts for a secret with hidden input.
// The caller is responsible for zeroing the returned bytes after use.
func promptPassword(prompt string) ([]byte, error) {
	out(os.Stderr, "%s", prompt)

	password, err := term.ReadPassword(int(os.Stdin.Fd())) //nolint:gosec // G115: Fd fits int
	outln(os.Stderr)

	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}

// promptNewPassword prompts for a new vault passphrase with confirmation.
// The caller is responsible for zeroing the returned bytes after use.
func promptNewPassword() ([]byte, error) {
	password, err := promptPassword("Enter vault passphrase: ")
	if err != nil {
		return nil, err
	}

	if len(password) < minVaultPassphrase {
		keys.ZeroBytes(password)
		return nil, sompierr.WithSuggestion(
			sompierr.ErrInvalidInput,
			fmt.Sprintf("passphrase must be at least %d characters", minVaultPassphrase),
		)
	}

	confirm, err := promptPassword("Confirm passphrase: ")
	if err != nil {
		keys.ZeroBytes(password)
		return nil, err
	}
	defer keys.ZeroBytes(confirm)

	if string(password) != string(confirm) {
		keys.ZeroBytes(password)
		return nil, sompierr.WithSuggestion(sompierr.ErrInvalidInput, "passphrases do not match")
	}
	return password, nil
}

// promptPassphrase prompts for the optional BIP39 mnemonic extension.
func promptPassphrase() (string, error) {
	outln(os.Stderr, "BIP39 passphrase (the extension word, not the vault passphrase).")
	passphrase, err := promptPassword("Enter passphrase (or press Enter for none): ")
	if err != nil {
		return "", err
	}
	defer keys.ZeroBytes(passphrase)
	return string(passphrase), nil
}

// promptMnemonic reads a mnemonic with hidden input.
func promptMnemonic() (string, error) {
	outln(os.Stderr, "Enter your mnemonic phrase (12, 15, 18, 21 or 24 words) on one line.")
	words, err := promptPassword("Mnemonic: ")
	if err != nil {
		return "", err
	}
	defer keys.ZeroBytes(words)

	mnemonic := strings.TrimSpace(string(words))
	if mnemonic == "" {
		return "", sompierr.WithSuggestion(sompierr.ErrInvalidInput, "no mnemonic provided")
	}
	return mnemonic, nil
}

// Package vault seals wallet mnemonics with a passphrase using age scrypt
// encryption, ASCII-armored so vault files survive copy and paste.
package vault

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"filippo.io/age"
	"filippo.io/age/armor"

	"github.com/mrz1836/sompi/internal/fileutil"
	"github.com/mrz1836/sompi/internal/keys"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// DefaultWorkFactor is age's scrypt log2(N).
const DefaultWorkFactor = 18

// maxPlaintext bounds decrypted output. A 24-word mnemonic is well under it.
const maxPlaintext = 4096

// ErrEmptyPassphrase is returned when sealing with an empty passphrase.
var ErrEmptyPassphrase = &sompierr.SompiError{
	Code:       "EMPTY_PASSPHRASE",
	Message:    "vault passphrase must not be empty",
	Suggestion: "Choose a passphrase of at least 8 characters",
	ExitCode:   sompierr.ExitInput,
}

// ErrVaultNotFound is returned when the vault file does not exist.
var ErrVaultNotFound = &sompierr.SompiError{
	Code:       "VAULT_NOT_FOUND",
	Message:    "vault file not found",
	Suggestion: "Create one with: sompi vault seal",
	ExitCode:   sompierr.ExitNotFound,
}

// Vault seals and opens mnemonics.
type Vault struct {
	workFactor int
}

// New returns a Vault with the given scrypt work factor; values <= 0 use
// DefaultWorkFactor.
func New(workFactor int) *Vault {
	if workFactor <= 0 {
		workFactor = DefaultWorkFactor
	}
	return &Vault{workFactor: workFactor}
}

// Seal validates mnemonic and encrypts its normalized form.
func (v *Vault) Seal(mnemonic, passphrase string) ([]byte, error) {
	if passphrase == "" {
		return nil, ErrEmptyPassphrase
	}
	if err := keys.ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("creating scrypt recipient: %w", err)
	}
	recipient.SetWorkFactor(v.workFactor)

	buf := &bytes.Buffer{}
	aw := armor.NewWriter(buf)
	w, err := age.Encrypt(aw, recipient)
	if err != nil {
		return nil, fmt.Errorf("initializing encryption: %w", err)
	}

	plaintext := []byte(keys.NormalizeMnemonic(mnemonic))
	defer keys.ZeroBytes(plaintext)

	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("writing encrypted data: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finalizing encryption: %w", err)
	}
	if err := aw.Close(); err != nil {
		return nil, fmt.Errorf("finalizing armor: %w", err)
	}
	return buf.Bytes(), nil
}

// Open decrypts a sealed mnemonic into locked memory. A wrong passphrase or
// damaged ciphertext yields ErrDecryptionFailed.
func (v *Vault) Open(sealed []byte, passphrase string) (*keys.SecureBytes, error) {
	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrDecryptionFailed, err)
	}
	identity.SetMaxWorkFactor(max(v.workFactor, DefaultWorkFactor))

	r, err := age.Decrypt(armor.NewReader(bytes.NewReader(sealed)), identity)
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrDecryptionFailed, err)
	}

	plaintext, err := io.ReadAll(io.LimitReader(r, maxPlaintext+1))
	defer keys.ZeroBytes(plaintext)
	if err != nil {
		return nil, sompierr.WithCause(sompierr.ErrDecryptionFailed, err)
	}
	if len(plaintext) > maxPlaintext {
		return nil, sompierr.WithDetails(sompierr.ErrDecryptionFailed, map[string]string{"reason": "plaintext too large"})
	}
	if err := keys.ValidateMnemonic(string(plaintext)); err != nil {
		return nil, sompierr.WithCause(sompierr.ErrDecryptionFailed, err)
	}
	return keys.NewSecureBytes(plaintext), nil
}

// SealFile seals mnemonic into path with owner-only permissions. An existing
// file is not overwritten.
func (v *Vault) SealFile(path, mnemonic, passphrase string) error {
	if _, err := os.Stat(path); err == nil {
		return sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{"reason": "vault file exists", "path": path})
	}
	sealed, err := v.Seal(mnemonic, passphrase)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, sealed, fileutil.PrivateFile)
}

// OpenFile reads and opens the vault at path.
func (v *Vault) OpenFile(path, passphrase string) (*keys.SecureBytes, error) {
	sealed, err := os.ReadFile(path) //nolint:gosec // G304: user-selected vault path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, sompierr.WithDetails(ErrVaultNotFound, map[string]string{"path": path})
		}
		return nil, fmt.Errorf("reading vault: %w", err)
	}
	return v.Open(sealed, passphrase)
}

// UnlockRoot opens the vault at path and derives the account root key.
// bip39Passphrase is the optional mnemonic extension, not the vault passphrase.
func (v *Vault) UnlockRoot(path, passphrase, bip39Passphrase string, net keys.Network, account uint32) (*keys.RootKey, error) {
	secret, err := v.OpenFile(path, passphrase)
	if err != nil {
		return nil, err
	}
	defer secret.Destroy()

	return keys.NewRootKeyFromMnemonic(secret.String(), bip39Passphrase, net, account)
}

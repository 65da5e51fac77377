package cli

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/locator"
	"github.com/mrz1836/sompi/internal/output"
	"github.com/mrz1836/sompi/internal/snapshot"
	"github.com/mrz1836/sompi/internal/vault"
	"github.com/mrz1836/sompi/internal/wallet"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// vaultWorkFactor is the scrypt work factor for sealing vaults. Tests lower it.
//
//nolint:gochecknoglobals // test hook
var vaultWorkFactor = vault.DefaultWorkFactor

// walletFlags are shared by every command that opens a wallet.
type walletFlags struct {
	name       string
	passphrase bool
}

func (f *walletFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.name, "wallet", "w", "main", "wallet name")
	cmd.Flags().BoolVar(&f.passphrase, "passphrase", false, "prompt for a BIP39 passphrase")
}

// openedWallet is an unlocked session plus the snapshot store it persists to.
type openedWallet struct {
	name    string
	session *wallet.Session
	store   snapshot.Store
	stderr  io.Writer
}

// openWallet unlocks the named vault, opens a session and restores the
// wallet's ledger snapshot if one exists. online attaches a balance oracle.
func openWallet(cmd *cobra.Command, cc *CommandContext, flags *walletFlags, online bool) (*openedWallet, error) {
	if err := snapshot.ValidateName(flags.name); err != nil {
		return nil, err
	}

	password, err := promptPasswordFn("Vault passphrase for " + flags.name + ": ")
	if err != nil {
		return nil, err
	}
	defer keys.ZeroBytes(password)

	var bip39Passphrase string
	if flags.passphrase {
		if bip39Passphrase, err = promptPassphraseFn(); err != nil {
			return nil, err
		}
	}

	root, err := vault.New(vaultWorkFactor).UnlockRoot(
		cc.Cfg.VaultPath(flags.name),
		string(password),
		bip39Passphrase,
		cc.Cfg.NetworkID(),
		cc.Cfg.Network.Account,
	)
	if err != nil {
		return nil, err
	}

	log := cc.Logger()
	opts := wallet.Options{
		MaxReceiveRotations: cc.Cfg.Discovery.MaxReceiveRotations,
		Locator: locator.Options{
			BatchSize: cc.Cfg.Locator.BatchSize,
			Workers:   cc.Cfg.Locator.Workers,
		},
		MaxSearchPerChain: cc.Cfg.Locator.MaxSearchPerChain,
		Logger:            log,
		Metrics:           cc.Metrics,
	}

	var session *wallet.Session
	if online {
		session, err = wallet.Open(root, cc.Oracle(), opts)
	} else {
		session, err = wallet.Open(root, nil, opts)
	}
	if err != nil {
		root.Zero()
		return nil, err
	}

	store, err := snapshot.Open(cc.Cfg.Storage.Backend, cc.Cfg.SnapshotDir())
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	w := &openedWallet{name: flags.name, session: session, store: store, stderr: cmd.ErrOrStderr()}
	if err := w.restore(); err != nil {
		w.close()
		return nil, err
	}
	return w, nil
}

// restore loads the wallet's snapshot. A missing snapshot is normal for a
// wallet that was never scanned; one from another root is discarded.
func (w *openedWallet) restore() error {
	snap, err := w.store.Load(w.name)
	if errors.Is(err, sompierr.ErrSnapshotNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := w.session.Restore(snap); err != nil {
		if errors.Is(err, sompierr.ErrSnapshotMismatch) {
			output.Warnf(w.stderr, "ignoring ledger snapshot for %q: %v", w.name, err)
			return nil
		}
		return err
	}
	return nil
}

// save persists the session's ledger.
func (w *openedWallet) save() error {
	snap, err := w.session.Snapshot()
	if err != nil {
		return err
	}
	return w.store.Save(w.name, snap)
}

func (w *openedWallet) close() {
	_ = w.session.Close()
	_ = w.store.Close()
}

package cli

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/output"
	"github.com/mrz1836/sompi/internal/snapshot"
	"github.com/mrz1836/sompi/internal/vault"
)

// vaultExt is the vault file extension.
const vaultExt = ".age"

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// sealGenerate creates a new mnemonic instead of prompting for one.
	sealGenerate bool
	// sealWords is the word count for --generate.
	sealWords int
)

// vaultCmd is the parent command for vault operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage encrypted mnemonic vaults",
	Long: `Vaults hold a wallet's mnemonic encrypted with a passphrase (age scrypt).
Every wallet command unlocks the vault named by --wallet.`,
}

// vaultSealCmd encrypts a mnemonic into a new vault.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vaultSealCmd = &cobra.Command{
	Use:   "seal <name>",
	Short: "Encrypt a mnemonic into a new vault",
	Long: `Prompt for a mnemonic (or generate one) and seal it under a passphrase.

An existing vault is never overwritten.

Examples:
  sompi vault seal main
  sompi vault seal savings --generate --words 24`,
	Args: cobra.ExactArgs(1),
	RunE: runVaultSeal,
}

// vaultListCmd lists vaults.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var vaultListCmd = &cobra.Command{
	Use:   "list",
	Short: "List vaults and their ledger snapshots",
	RunE:  runVaultList,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	vaultCmd.GroupID = groupSetup
	rootCmd.AddCommand(vaultCmd)
	vaultCmd.AddCommand(vaultSealCmd, vaultListCmd)

	vaultSealCmd.Flags().BoolVar(&sealGenerate, "generate", false, "generate a new mnemonic")
	vaultSealCmd.Flags().IntVar(&sealWords, "words", 24, "mnemonic length for --generate: 12, 15, 18, 21 or 24")
}

// VaultResponse is the JSON response for vault seal.
type VaultResponse struct {
	Name      string `json:"name"`
	Path      string `json:"path"`
	Generated bool   `json:"generated"`
	Address   string `json:"first_address"`
}

func runVaultSeal(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	name := args[0]
	if err := snapshot.ValidateName(name); err != nil {
		return err
	}

	var (
		mnemonic string
		err      error
	)
	if sealGenerate {
		mnemonic, err = keys.GenerateMnemonic(sealWords)
	} else {
		mnemonic, err = promptMnemonicFn()
	}
	if err != nil {
		return err
	}
	if err := keys.ValidateMnemonic(mnemonic); err != nil {
		return err
	}

	password, err := promptNewPasswordFn()
	if err != nil {
		return err
	}
	defer keys.ZeroBytes(password)

	path := cc.Cfg.VaultPath(name)
	if err := vault.New(vaultWorkFactor).SealFile(path, mnemonic, string(password)); err != nil {
		return err
	}

	// The first receive address lets the user confirm the right mnemonic was sealed.
	root, err := keys.NewRootKeyFromMnemonic(mnemonic, "", cc.Cfg.NetworkID(), cc.Cfg.Network.Account)
	if err != nil {
		return err
	}
	defer root.Zero()
	first, err := root.DeriveAddress(keys.Receive, 0)
	if err != nil {
		return err
	}

	if sealGenerate {
		output.Warnf(cmd.ErrOrStderr(), "write down this mnemonic; it is the only backup of the wallet")
		outln(cmd.ErrOrStderr(), mnemonic)
	}

	resp := VaultResponse{Name: name, Path: path, Generated: sealGenerate, Address: first}
	if cc.Fmt.IsJSON() {
		return cc.Fmt.JSON(resp)
	}
	out(cmd.OutOrStdout(), "Sealed %s\n", path)
	out(cmd.OutOrStdout(), "First receive address: %s\n", first)
	return nil
}

// VaultEntry is one row of vault list.
type VaultEntry struct {
	Name        string `json:"name"`
	HasSnapshot bool   `json:"has_snapshot"`
}

func runVaultList(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	entries, err := os.ReadDir(cc.Cfg.VaultDir())
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	store, err := snapshot.Open(cc.Cfg.Storage.Backend, cc.Cfg.SnapshotDir())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	snaps, err := store.List()
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(snaps))
	for _, s := range snaps {
		have[s] = true
	}

	list := make([]VaultEntry, 0, len(entries))
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), vaultExt)
		if e.IsDir() || !ok || snapshot.ValidateName(name) != nil {
			continue
		}
		list = append(list, VaultEntry{Name: name, HasSnapshot: have[name]})
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.JSON(list)
	}
	if len(list) == 0 {
		outln(cmd.OutOrStdout(), "No vaults. Create one with: sompi vault seal <name>")
		return nil
	}
	tbl := output.NewTable("NAME", "SCANNED")
	for _, v := range list {
		scanned := "no"
		if v.HasSnapshot {
			scanned = "yes"
		}
		tbl.AddRow(v.Name, scanned)
	}
	return tbl.Render(cmd.OutOrStdout())
}

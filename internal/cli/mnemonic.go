package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/output"
)

// mnemonicWords is the word count for mnemonic new.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var mnemonicWords int

// mnemonicCmd is the parent command for mnemonic helpers.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var mnemonicCmd = &cobra.Command{
	Use:   "mnemonic",
	Short: "Mnemonic helpers",
}

// mnemonicNewCmd prints a freshly generated mnemonic.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var mnemonicNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Generate a new BIP39 mnemonic",
	Long: `Generate a new BIP39 mnemonic from system entropy and print it.

Nothing is stored. To keep the wallet, seal it with 'sompi vault seal'.

Example:
  sompi mnemonic new --words 12`,
	RunE: runMnemonicNew,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	mnemonicCmd.GroupID = groupSetup
	rootCmd.AddCommand(mnemonicCmd)
	mnemonicCmd.AddCommand(mnemonicNewCmd)

	mnemonicNewCmd.Flags().IntVar(&mnemonicWords, "words", 24, "number of words: 12, 15, 18, 21 or 24")
}

// MnemonicResponse is the JSON response for mnemonic new.
type MnemonicResponse struct {
	Mnemonic string `json:"mnemonic"`
	Words    int    `json:"words"`
}

func runMnemonicNew(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	mnemonic, err := keys.GenerateMnemonic(mnemonicWords)
	if err != nil {
		return err
	}

	output.Warnf(cmd.ErrOrStderr(), "anyone with these words controls the wallet")
	if cc.Fmt.IsJSON() {
		return cc.Fmt.JSON(MnemonicResponse{Mnemonic: mnemonic, Words: len(strings.Fields(mnemonic))})
	}
	outln(cmd.OutOrStdout(), mnemonic)
	return nil
}

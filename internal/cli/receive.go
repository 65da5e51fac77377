package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// receiveTimeout bounds the activity checks behind a receive address.
const receiveTimeout = 2 * time.Minute

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	receiveWallet walletFlags
	changeWallet  walletFlags
)

// receiveCmd shows the current receive address.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var receiveCmd = &cobra.Command{
	Use:   "receive",
	Short: "Show a fresh receiving address",
	Long: `Display the wallet's current receive address.

The address is checked against the ledger query service first; if it has
received funds since the last scan, the next index is used instead, so a
receive address is never handed out twice.

Examples:
  sompi receive --wallet main
  sompi receive --wallet main -o json`,
	RunE: runReceive,
}

// changeCmd shows the current change address.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var changeCmd = &cobra.Command{
	Use:   "change",
	Short: "Show the next unused change address",
	Long: `Display the wallet's next unused change address.

Change addresses come from the ledger alone, so this works offline.

Example:
  sompi change --wallet main`,
	RunE: runChange,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	receiveCmd.GroupID = groupWallet
	changeCmd.GroupID = groupWallet
	rootCmd.AddCommand(receiveCmd, changeCmd)

	receiveWallet.register(receiveCmd)
	changeWallet.register(changeCmd)
}

// AddressResponse is the JSON response for receive and change.
type AddressResponse struct {
	Wallet  string `json:"wallet"`
	Address string `json:"address"`
	Chain   string `json:"chain"`
	Index   uint32 `json:"index"`
	Path    string `json:"path"`
}

func runReceive(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	w, err := openWallet(cmd, cc, &receiveWallet, true)
	if err != nil {
		return err
	}
	defer w.close()

	ctx, cancel := contextWithTimeout(cmd, receiveTimeout)
	defer cancel()

	address, err := w.session.CurrentReceiveAddress(ctx)
	if err != nil {
		return err
	}
	return showAddress(cmd, cc, w, address)
}

func runChange(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	w, err := openWallet(cmd, cc, &changeWallet, false)
	if err != nil {
		return err
	}
	defer w.close()

	address, err := w.session.CurrentChangeAddress()
	if err != nil {
		return err
	}
	return showAddress(cmd, cc, w, address)
}

// showAddress saves the ledger, which may have grown, and prints address.
func showAddress(cmd *cobra.Command, cc *CommandContext, w *openedWallet, address string) error {
	if err := w.save(); err != nil {
		return fmt.Errorf("saving ledger snapshot: %w", err)
	}

	resp := AddressResponse{Wallet: w.name, Address: address}
	if rec, ok := w.session.Ledger().Lookup(address); ok {
		resp.Chain = rec.Chain().String()
		resp.Index = rec.Index()
		resp.Path = rec.Path.String()
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.JSON(resp)
	}
	writeAddressText(cmd.OutOrStdout(), resp)
	return nil
}

func writeAddressText(w io.Writer, resp AddressResponse) {
	outln(w, resp.Address)
	if resp.Path != "" {
		out(w, "  %s address %d (%s)\n", resp.Chain, resp.Index, resp.Path)
	}
}

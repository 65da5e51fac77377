package cli

import (
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sompi/internal/output"
)

// locateTimeout bounds a reverse key search.
const locateTimeout = 5 * time.Minute

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	locateWallet walletFlags
	// locateMaxSearch overrides locator.max_search_per_chain when positive.
	locateMaxSearch uint32
	// locateShowKey prints the private key.
	locateShowKey bool
)

// locateCmd finds the derivation path and private key of an address.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var locateCmd = &cobra.Command{
	Use:   "locate <address>",
	Short: "Find the derivation path and key behind an address",
	Long: `Find which index of the wallet derived an address.

Addresses in the wallet's ledger resolve immediately. Others are searched
for on the receive chain and then the change chain, in batches, up to
--max-search indices per chain. No network access is needed.

The private key is only printed with --show-key.

Examples:
  sompi locate kaspa:qr... --wallet main
  sompi locate kaspa:qr... --wallet main --max-search 50000 --show-key`,
	Args: cobra.ExactArgs(1),
	RunE: runLocate,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	locateCmd.GroupID = groupWallet
	rootCmd.AddCommand(locateCmd)

	locateWallet.register(locateCmd)
	locateCmd.Flags().Uint32Var(&locateMaxSearch, "max-search", 0, "indices searched per chain (default from config)")
	locateCmd.Flags().BoolVar(&locateShowKey, "show-key", false, "print the private key in hex")
}

// LocateResponse is the JSON response for the locate command.
type LocateResponse struct {
	Address         string `json:"address"`
	Chain           string `json:"chain"`
	Index           uint32 `json:"index"`
	Path            string `json:"path"`
	BatchesSearched int    `json:"batches_searched"`
	PrivateKey      string `json:"private_key,omitempty"`
}

func runLocate(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if locateMaxSearch > 0 {
		cc.Cfg.Locator.MaxSearchPerChain = locateMaxSearch
	}

	w, err := openWallet(cmd, cc, &locateWallet, false)
	if err != nil {
		return err
	}
	defer w.close()

	ctx, cancel := contextWithTimeout(cmd, locateTimeout)
	defer cancel()

	match, err := w.session.LocatePrivateKey(ctx, args[0])
	if err != nil {
		return err
	}
	defer match.Zero()

	resp := LocateResponse{
		Address:         match.Address,
		Chain:           match.Chain.String(),
		Index:           match.Index,
		Path:            match.Path.String(),
		BatchesSearched: match.BatchesSearched,
	}
	if locateShowKey {
		output.Warnf(cmd.ErrOrStderr(), "the private key below controls these funds; do not share it")
		resp.PrivateKey = match.PrivateKey.Hex()
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.JSON(resp)
	}
	writeLocateText(cmd.OutOrStdout(), resp)
	return nil
}

func writeLocateText(w io.Writer, resp LocateResponse) {
	out(w, "Address:  %s\n", resp.Address)
	out(w, "Path:     %s (%s address %d)\n", resp.Path, resp.Chain, resp.Index)
	if resp.BatchesSearched > 0 {
		out(w, "Searched: %d batches\n", resp.BatchesSearched)
	}
	if resp.PrivateKey != "" {
		out(w, "Key:      %s\n", resp.PrivateKey)
	}
}

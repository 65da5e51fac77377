package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/discovery"
	"github.com/mrz1836/sompi/internal/output"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	scanWallet walletFlags
	// scanGapLimit overrides discovery.gap_limit when positive.
	scanGapLimit int
	// scanMaxIndex overrides discovery.max_index_bound when positive.
	scanMaxIndex uint32
	// scanComprehensive bounds each chain at twice the gap limit.
	scanComprehensive bool
	// scanNoChange skips the change chain.
	scanNoChange bool
	// scanErrorsAsEmpty lets failed probes advance the gap counter.
	scanErrorsAsEmpty bool
)

// scanCmd runs gap-limit discovery for a wallet.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Discover funded addresses with a gap-limit scan",
	Long: `Scan the receive and change chains of a wallet for funded addresses.

Each chain is walked from index 0 until gap-limit consecutive addresses come
back empty. Failed queries are reported and, by default, do not count as
empty, so an outage cannot end a chain early. The address ledger is saved
afterwards so receive, change and locate work offline.

Examples:
  sompi scan --wallet main
  sompi scan --wallet main --gap-limit 50
  sompi scan --wallet main --comprehensive -o json`,
	RunE: runScan,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	scanCmd.GroupID = groupWallet
	rootCmd.AddCommand(scanCmd)

	scanWallet.register(scanCmd)
	scanCmd.Flags().IntVar(&scanGapLimit, "gap-limit", 0, "consecutive empty addresses that end a chain (default from config)")
	scanCmd.Flags().Uint32Var(&scanMaxIndex, "max-index", 0, "exclusive upper bound on indices probed per chain")
	scanCmd.Flags().BoolVar(&scanComprehensive, "comprehensive", false, "bound each chain at twice the gap limit")
	scanCmd.Flags().BoolVar(&scanNoChange, "no-change", false, "scan the receive chain only")
	scanCmd.Flags().BoolVar(&scanErrorsAsEmpty, "count-errors-as-empty", false, "let failed queries advance the gap counter")
}

// buildScanOptions merges config and flags into scan options.
func buildScanOptions(cc *CommandContext) *discovery.Options {
	opts := discovery.DefaultOptions()
	opts.GapLimit = cc.Cfg.Discovery.GapLimit
	opts.MaxIndexBound = cc.Cfg.Discovery.MaxIndexBound
	opts.CountNetworkErrorsAsEmpty = cc.Cfg.Discovery.CountNetworkErrorsAsEmpty
	opts.MaxConsecutiveNetworkErrors = cc.Cfg.Discovery.MaxConsecutiveNetworkErrors

	if scanGapLimit > 0 {
		opts.GapLimit = scanGapLimit
	}
	if scanMaxIndex > 0 {
		opts.MaxIndexBound = scanMaxIndex
	}
	opts.Comprehensive = scanComprehensive
	opts.ScanChange = !scanNoChange
	if scanErrorsAsEmpty {
		opts.CountNetworkErrorsAsEmpty = true
	}
	return opts
}

func runScan(cmd *cobra.Command, _ []string) error {
	cc := GetCmdContext(cmd)

	opts := buildScanOptions(cc)
	if err := opts.Validate(); err != nil {
		return err
	}
	if !cc.Fmt.IsJSON() {
		opts.ProgressCallback = scanProgress(cmd.ErrOrStderr())
	}

	w, err := openWallet(cmd, cc, &scanWallet, true)
	if err != nil {
		return err
	}
	defer w.close()

	ctx, cancel := contextWithTimeout(cmd, discovery.DefaultTimeout)
	defer cancel()

	result, err := w.session.Scan(ctx, opts)
	if err != nil {
		return err
	}
	if err := w.save(); err != nil {
		return fmt.Errorf("saving ledger snapshot: %w", err)
	}

	if result.Incomplete {
		output.Warnf(cmd.ErrOrStderr(),
			"scan incomplete: %d queries failed; rerun when the query service is reachable", result.NetworkErrorCount)
	}
	if result.Mismatches > 0 {
		output.Warnf(cmd.ErrOrStderr(),
			"%d addresses have UTXO sets that disagree with their reported balance", result.Mismatches)
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.JSON(newScanResponse(w.name, result))
	}
	return writeScanText(cmd.OutOrStdout(), w.name, result)
}

// scanProgress reports found addresses and chain completion.
func scanProgress(w io.Writer) discovery.ProgressCallback {
	return func(u discovery.ProgressUpdate) {
		switch u.Phase {
		case discovery.PhaseFound:
			out(w, "  found %s/%d %s (%s KAS)\n", u.Chain, u.Index, u.CurrentAddress, balance.FormatSompi(u.BalanceFound))
		case discovery.PhaseComplete:
			out(w, "  %s chain: %d scanned, %d funded\n", u.Chain, u.AddressesScanned, u.AddressesFound)
		}
	}
}

// ScanResponse is the JSON response for the scan command.
type ScanResponse struct {
	Wallet            string                        `json:"wallet"`
	TotalBalance      uint64                        `json:"total_balance"`
	TotalBalanceKAS   string                        `json:"total_balance_kas"`
	AddressesFound    int                           `json:"addresses_found"`
	AddressesScanned  int                           `json:"addresses_scanned"`
	NetworkErrorCount int                           `json:"network_error_count"`
	Mismatches        int                           `json:"mismatches"`
	Incomplete        bool                          `json:"incomplete"`
	DurationMs        int64                         `json:"duration_ms"`
	Addresses         []discovery.DiscoveredAddress `json:"addresses"`
	Chains            []discovery.ChainResult       `json:"chains"`
}

func newScanResponse(name string, r *discovery.Result) ScanResponse {
	resp := ScanResponse{
		Wallet:            name,
		TotalBalance:      r.TotalBalance,
		TotalBalanceKAS:   balance.FormatSompi(r.TotalBalance),
		AddressesFound:    r.AddressesFound,
		AddressesScanned:  r.AddressesScanned,
		NetworkErrorCount: r.NetworkErrorCount,
		Mismatches:        r.Mismatches,
		Incomplete:        r.Incomplete,
		DurationMs:        r.Duration.Milliseconds(),
		Addresses:         r.AllAddresses(),
		Chains:            r.Chains,
	}
	if resp.Chains == nil {
		resp.Chains = []discovery.ChainResult{}
	}
	return resp
}

func writeScanText(w io.Writer, name string, r *discovery.Result) error {
	outln(w)
	out(w, "Wallet:   %s\n", name)
	out(w, "Scanned:  %d addresses\n", r.AddressesScanned)
	out(w, "Funded:   %d addresses\n", r.AddressesFound)
	out(w, "Balance:  %s KAS\n", balance.FormatSompi(r.TotalBalance))
	if r.NetworkErrorCount > 0 {
		out(w, "Errors:   %d failed queries\n", r.NetworkErrorCount)
	}

	addrs := r.AllAddresses()
	if len(addrs) == 0 {
		outln(w)
		outln(w, "No funds discovered. Try --gap-limit with a larger value or --passphrase.")
		return nil
	}

	outln(w)
	tbl := output.NewTable("PATH", "ADDRESS", "BALANCE (KAS)", "UTXOS").AlignRight(2).AlignRight(3)
	for _, a := range addrs {
		utxos := fmt.Sprintf("%d", a.UTXOCount)
		if a.UTXOsUnavailable {
			utxos = "?"
		} else if !a.Reconciled {
			utxos += "!"
		}
		tbl.AddRow(a.Path, a.Address, balance.FormatSompi(a.Balance), utxos)
	}
	return tbl.Render(w)
}

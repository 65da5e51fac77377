package cli

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/output"
)

// queryTimeout bounds a balance or sufficiency command.
const queryTimeout = 2 * time.Minute

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	// balanceVerify also fetches UTXOs and reconciles them with the balance.
	balanceVerify bool

	// sufficiencyAmount and sufficiencyFee are decimal KAS strings.
	sufficiencyAmount string
	sufficiencyFee    string
)

// balanceCmd shows the balances of arbitrary addresses.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var balanceCmd = &cobra.Command{
	Use:   "balance <address>...",
	Short: "Show the balance of one or more addresses",
	Long: `Query the ledger service for the balance of each address.

With --verify the UTXO set of each address is fetched too and summed
locally; addresses whose two totals disagree are flagged.

Examples:
  sompi balance kaspa:qr... kaspa:qp...
  sompi balance kaspa:qr... --verify -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBalance,
}

// sufficiencyCmd checks whether addresses can cover a spend.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var sufficiencyCmd = &cobra.Command{
	Use:   "sufficiency <address>...",
	Short: "Check whether addresses hold enough to cover a spend",
	Long: `Sum the UTXOs of the given addresses and compare them with amount + fee.

Exits with status 5 when the funds are insufficient.

Example:
  sompi sufficiency --amount 12.5 --fee 0.0001 kaspa:qr... kaspa:qp...`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSufficiency,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	balanceCmd.GroupID = groupQuery
	sufficiencyCmd.GroupID = groupQuery
	rootCmd.AddCommand(balanceCmd, sufficiencyCmd)

	balanceCmd.Flags().BoolVar(&balanceVerify, "verify", false, "reconcile each balance against its UTXO set")

	sufficiencyCmd.Flags().StringVar(&sufficiencyAmount, "amount", "", "amount to send in KAS (required)")
	sufficiencyCmd.Flags().StringVar(&sufficiencyFee, "fee", "0", "network fee in KAS")
	_ = sufficiencyCmd.MarkFlagRequired("amount")
}

// AddressBalance is one row of the balance response.
type AddressBalance struct {
	Address    string `json:"address"`
	Balance    uint64 `json:"balance"`
	BalanceKAS string `json:"balance_kas"`

	// Set with --verify.
	UTXOCount  *int    `json:"utxo_count,omitempty"`
	UTXOSum    *uint64 `json:"utxo_sum,omitempty"`
	Reconciled *bool   `json:"reconciled,omitempty"`
}

// BalanceResponse is the JSON response for the balance command.
type BalanceResponse struct {
	Addresses []AddressBalance `json:"addresses"`
	Total     uint64           `json:"total"`
	TotalKAS  string           `json:"total_kas"`
}

func validateAddresses(cc *CommandContext, addresses []string) error {
	for _, addr := range addresses {
		if err := keys.ValidateAddress(addr, cc.Cfg.NetworkID()); err != nil {
			return err
		}
	}
	return nil
}

func runBalance(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)
	if err := validateAddresses(cc, args); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, queryTimeout)
	defer cancel()

	resp, err := fetchBalances(ctx, cc.Oracle(), args, balanceVerify)
	if err != nil {
		return err
	}

	if cc.Fmt.IsJSON() {
		return cc.Fmt.JSON(resp)
	}
	return writeBalanceText(cmd.OutOrStdout(), resp)
}

// fetchBalances queries all addresses over one scoped connection.
func fetchBalances(ctx context.Context, oracle *balance.Oracle, addresses []string, verify bool) (*BalanceResponse, error) {
	resp := &BalanceResponse{Addresses: make([]AddressBalance, 0, len(addresses))}

	err := oracle.WithConnection(ctx, func(ctx context.Context) error {
		balances, err := oracle.BalancesByAddresses(ctx, addresses)
		if err != nil {
			return err
		}

		var utxos map[string][]balance.UTXO
		if verify {
			if utxos, err = oracle.UTXOsByAddresses(ctx, addresses); err != nil {
				return err
			}
		}

		for i, addr := range addresses {
			row := AddressBalance{
				Address:    addr,
				Balance:    balances[i],
				BalanceKAS: balance.FormatSompi(balances[i]),
			}
			if verify {
				rec, err := balance.Reconcile(balances[i], utxos[addr])
				if err != nil {
					return err
				}
				row.UTXOCount, row.UTXOSum, row.Reconciled = &rec.UTXOCount, &rec.UTXOSum, &rec.Match
			}
			if resp.Total, err = balance.SafeAdd(resp.Total, balances[i]); err != nil {
				return err
			}
			resp.Addresses = append(resp.Addresses, row)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	resp.TotalKAS = balance.FormatSompi(resp.Total)
	return resp, nil
}

func writeBalanceText(w io.Writer, resp *BalanceResponse) error {
	headers := []string{"ADDRESS", "BALANCE (KAS)"}
	verified := len(resp.Addresses) > 0 && resp.Addresses[0].Reconciled != nil
	if verified {
		headers = append(headers, "UTXOS", "UTXO SUM (KAS)")
	}

	tbl := output.NewTable(headers...).AlignRight(1).AlignRight(2).AlignRight(3)
	for _, row := range resp.Addresses {
		cells := []string{row.Address, row.BalanceKAS}
		if verified {
			sum := balance.FormatSompi(*row.UTXOSum)
			if !*row.Reconciled {
				sum += " !"
			}
			cells = append(cells, strconv.Itoa(*row.UTXOCount), sum)
		}
		tbl.AddRow(cells...)
	}
	if err := tbl.Render(w); err != nil {
		return err
	}
	outln(w)
	out(w, "Total: %s KAS\n", resp.TotalKAS)
	return nil
}

// SufficiencyResponse is the JSON response for the sufficiency command.
type SufficiencyResponse struct {
	balance.Sufficiency

	AvailableKAS string `json:"available_kas"`
	RequiredKAS  string `json:"required_kas"`
	ShortfallKAS string `json:"shortfall_kas"`
	UTXOCount    int    `json:"utxo_count"`
}

func runSufficiency(cmd *cobra.Command, args []string) error {
	cc := GetCmdContext(cmd)

	amount, err := balance.ParseAmount(sufficiencyAmount)
	if err != nil {
		return err
	}
	fee, err := balance.ParseAmount(sufficiencyFee)
	if err != nil {
		return err
	}
	if err := validateAddresses(cc, args); err != nil {
		return err
	}

	ctx, cancel := contextWithTimeout(cmd, queryTimeout)
	defer cancel()

	sets, err := cc.Oracle().UTXOsByAddresses(ctx, args)
	if err != nil {
		return err
	}
	var all []balance.UTXO
	for _, addr := range args {
		all = append(all, sets[addr]...)
	}

	result, err := balance.SufficiencyCheck(all, amount, fee)
	if err != nil {
		return err
	}

	resp := SufficiencyResponse{
		Sufficiency:  result,
		AvailableKAS: balance.FormatSompi(result.Available),
		RequiredKAS:  balance.FormatSompi(result.Required),
		ShortfallKAS: balance.FormatSompi(result.Shortfall),
		UTXOCount:    len(all),
	}
	if cc.Fmt.IsJSON() {
		if err := cc.Fmt.JSON(resp); err != nil {
			return err
		}
	} else {
		writeSufficiencyText(cmd.OutOrStdout(), resp)
	}
	return result.Err()
}

func writeSufficiencyText(w io.Writer, resp SufficiencyResponse) {
	out(w, "Available: %s KAS (%d UTXOs)\n", resp.AvailableKAS, resp.UTXOCount)
	out(w, "Required:  %s KAS\n", resp.RequiredKAS)
	if resp.Sufficient {
		outln(w, "Sufficient")
		return
	}
	out(w, "Short by:  %s KAS\n", resp.ShortfallKAS)
}

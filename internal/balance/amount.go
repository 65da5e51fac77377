package balance

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/shopspring/decimal"

	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

const (
	// Decimals is the number of fractional digits of one KAS.
	Decimals = 8

	// SompiPerKAS is the number of sompi in one whole KAS.
	SompiPerKAS uint64 = 100_000_000
)

// FormatSompi renders sompi as a fixed-point decimal with exactly 8
// fractional digits, using integer division only.
func FormatSompi(sompi uint64) string {
	return fmt.Sprintf("%d.%08d", sompi/SompiPerKAS, sompi%SompiPerKAS)
}

// ParseAmount converts a user-supplied decimal KAS amount into sompi.
// More than 8 fractional digits, negative values and values above the
// uint64 range are rejected.
func ParseAmount(input string) (uint64, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return 0, sompierr.WithDetails(sompierr.ErrInvalidAmount, map[string]string{"amount": "empty"})
	}

	d, err := decimal.NewFromString(input)
	if err != nil {
		return 0, sompierr.WithDetails(sompierr.ErrInvalidAmount, map[string]string{"amount": input})
	}
	if d.Sign() < 0 {
		return 0, sompierr.WithDetails(sompierr.ErrInvalidAmount, map[string]string{"amount": input, "reason": "negative"})
	}
	if !d.Equal(d.Truncate(Decimals)) {
		return 0, sompierr.WithDetails(sompierr.ErrInvalidAmount, map[string]string{
			"amount": input,
			"reason": fmt.Sprintf("more than %d decimal places", Decimals),
		})
	}

	sompi := d.Shift(Decimals).BigInt()
	if !sompi.IsUint64() {
		return 0, sompierr.WithDetails(sompierr.ErrAmountOverflow, map[string]string{"amount": input})
	}
	return sompi.Uint64(), nil
}

// BalanceFromUTXOs sums the amounts of a UTXO set. An empty set is zero.
func BalanceFromUTXOs(utxos []UTXO) (uint64, error) {
	var total uint64
	for _, u := range utxos {
		var carry uint64
		total, carry = bits.Add64(total, u.Amount, 0)
		if carry != 0 {
			return 0, sompierr.ErrAmountOverflow
		}
	}
	return total, nil
}

// SafeAdd adds two sompi values, failing instead of wrapping.
func SafeAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, sompierr.ErrAmountOverflow
	}
	return sum, nil
}

package balance

import (
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// Sufficiency is the result of checking a UTXO set against a spend.
type Sufficiency struct {
	Sufficient bool   `json:"sufficient"`
	Available  uint64 `json:"available"`
	Required   uint64 `json:"required"`
	Shortfall  uint64 `json:"shortfall"`
}

// SufficiencyCheck reports whether utxos cover amount plus fee.
// An insufficient set is a valid result, not an error.
func SufficiencyCheck(utxos []UTXO, amount, fee uint64) (Sufficiency, error) {
	available, err := BalanceFromUTXOs(utxos)
	if err != nil {
		return Sufficiency{}, err
	}
	required, err := SafeAdd(amount, fee)
	if err != nil {
		return Sufficiency{}, err
	}

	s := Sufficiency{Available: available, Required: required}
	if available >= required {
		s.Sufficient = true
		return s, nil
	}
	s.Shortfall = required - available
	return s, nil
}

// Err returns ErrInsufficientFunds with the amounts attached when the
// check failed, or nil.
func (s Sufficiency) Err() error {
	if s.Sufficient {
		return nil
	}
	return sompierr.WithSuggestion(
		sompierr.WithDetails(sompierr.ErrInsufficientFunds, map[string]string{
			"available": FormatSompi(s.Available),
			"required":  FormatSompi(s.Required),
			"shortfall": FormatSompi(s.Shortfall),
		}),
		"Run 'sompi scan' to refresh balances or lower the amount",
	)
}

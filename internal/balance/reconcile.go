package balance

// Reconciliation compares the authoritative aggregate balance of an address
// with the local sum of its UTXOs. The authoritative value always wins.
type Reconciliation struct {
	Balance   uint64 `json:"balance"`
	UTXOSum   uint64 `json:"utxoSum"`
	Match     bool   `json:"match"`
	UTXOCount int    `json:"utxoCount"`
}

// Reconcile compares authoritative with the sum of utxos.
func Reconcile(authoritative uint64, utxos []UTXO) (Reconciliation, error) {
	sum, err := BalanceFromUTXOs(utxos)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconciliation{
		Balance:   authoritative,
		UTXOSum:   sum,
		Match:     sum == authoritative,
		UTXOCount: len(utxos),
	}, nil
}

// Difference returns the absolute gap between the two paths.
func (r Reconciliation) Difference() uint64 {
	if r.Balance >= r.UTXOSum {
		return r.Balance - r.UTXOSum
	}
	return r.UTXOSum - r.Balance
}

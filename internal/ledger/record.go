package ledger

import (
	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/keys"
)

// Record is one derived address and its observed state. Records handed out
// by the ledger are copies; mutate through the Ledger methods.
type Record struct {
	Address    string           `json:"address"`
	Path       keys.Path        `json:"path"`
	Used       bool             `json:"used"`
	Balance    uint64           `json:"balance"`
	UTXOs      []balance.UTXO   `json:"utxos,omitempty"`
	PrivateKey *keys.PrivateKey `json:"-"`
}

// Chain returns the record's derivation chain.
func (r *Record) Chain() keys.Chain {
	return r.Path.Chain
}

// Index returns the record's derivation index.
func (r *Record) Index() uint32 {
	return r.Path.Index
}

// HasActivity reports whether the address has funds or outputs.
func (r *Record) HasActivity() bool {
	return r.Balance > 0 || len(r.UTXOs) > 0
}

func (r *Record) clone() *Record {
	c := *r
	if r.UTXOs != nil {
		c.UTXOs = make([]balance.UTXO, len(r.UTXOs))
		copy(c.UTXOs, r.UTXOs)
	}
	return &c
}

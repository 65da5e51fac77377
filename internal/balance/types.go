// Package balance resolves address balances two ways: by summing a UTXO set
// locally and by asking the ledger query service for its authoritative
// aggregate. All amounts are uint64 sompi; decimal strings exist only at the
// display and input boundaries.
package balance

import (
	"context"
)

// UTXO is the normalized unspent output shape used by every component.
// Script data is passed through unmodified.
type UTXO struct {
	Address         string `json:"address"`
	TransactionID   string `json:"transactionId"`
	OutputIndex     uint32 `json:"outputIndex"`
	Amount          uint64 `json:"amount"`
	ScriptPublicKey string `json:"scriptPublicKey,omitempty"`
	BlockDAAScore   uint64 `json:"blockDaaScore,omitempty"`
	IsCoinbase      bool   `json:"isCoinbase,omitempty"`
}

// QueryService is the ledger query collaborator. Implementations must honor
// ctx deadlines; network identity is a construction parameter.
type QueryService interface {
	// Connect prepares the service for queries. Every successful Connect is
	// followed by exactly one Disconnect.
	Connect(ctx context.Context) error

	// Disconnect releases whatever Connect acquired.
	Disconnect() error

	// GetBalance returns the aggregate balance of one address.
	GetBalance(ctx context.Context, address string) (uint64, error)

	// GetBalances returns balances aligned positionally with addresses.
	GetBalances(ctx context.Context, addresses []string) ([]uint64, error)

	// GetUTXOs returns the unspent outputs of each address.
	GetUTXOs(ctx context.Context, addresses []string) (map[string][]UTXO, error)
}

package keys

import (
	"fmt"
	"strconv"
	"strings"

	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// Kaspa BIP44 constants.
const (
	// PurposeBIP44 is the BIP44 purpose.
	PurposeBIP44 uint32 = 44

	// CoinTypeKaspa is the registered SLIP-44 coin type for Kaspa.
	CoinTypeKaspa uint32 = 111111

	// MaxIndex is the largest non-hardened child index.
	MaxIndex uint32 = 1<<31 - 1
)

// Chain is the BIP44 change branch: receive (external) or change (internal).
type Chain uint32

// Derivation chains.
const (
	Receive Chain = 0
	Change  Chain = 1
)

// Chains returns both chains in scan order.
func Chains() []Chain {
	return []Chain{Receive, Change}
}

// IsValid reports whether c is receive or change.
func (c Chain) IsValid() bool {
	return c == Receive || c == Change
}

// String returns "receive" or "change".
func (c Chain) String() string {
	switch c {
	case Receive:
		return "receive"
	case Change:
		return "change"
	default:
		return fmt.Sprintf("chain(%d)", uint32(c))
	}
}

// ParseChain parses "receive"/"external"/"0" or "change"/"internal"/"1".
func ParseChain(s string) (Chain, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "receive", "external", "0":
		return Receive, true
	case "change", "internal", "1":
		return Change, true
	default:
		return 0, false
	}
}

// Path is a full derivation path m/44'/111111'/account'/chain/index.
type Path struct {
	Account uint32 `json:"account"`
	Chain   Chain  `json:"chain"`
	Index   uint32 `json:"index"`
}

// NewPath builds a Path.
func NewPath(account uint32, chain Chain, index uint32) Path {
	return Path{Account: account, Chain: chain, Index: index}
}

// String renders the path in BIP32 notation.
func (p Path) String() string {
	return fmt.Sprintf("m/%d'/%d'/%d'/%d/%d", PurposeBIP44, CoinTypeKaspa, p.Account, uint32(p.Chain), p.Index)
}

// ParsePath parses a path produced by Path.String.
func ParsePath(s string) (Path, error) {
	invalid := sompierr.WithDetails(sompierr.ErrInvalidInput, map[string]string{"path": s})

	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) != 6 || parts[0] != "m" {
		return Path{}, invalid
	}
	if parts[1] != fmt.Sprintf("%d'", PurposeBIP44) || parts[2] != fmt.Sprintf("%d'", CoinTypeKaspa) {
		return Path{}, invalid
	}
	if !strings.HasSuffix(parts[3], "'") {
		return Path{}, invalid
	}

	account, err := parseIndex(strings.TrimSuffix(parts[3], "'"))
	if err != nil {
		return Path{}, invalid
	}
	chainVal, err := parseIndex(parts[4])
	if err != nil || !Chain(chainVal).IsValid() {
		return Path{}, invalid
	}
	index, err := parseIndex(parts[5])
	if err != nil {
		return Path{}, invalid
	}

	return Path{Account: account, Chain: Chain(chainVal), Index: index}, nil
}

func parseIndex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	if uint32(v) > MaxIndex {
		return 0, strconv.ErrRange
	}
	return uint32(v), nil
}

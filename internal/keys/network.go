package keys

import (
	"strings"

	"github.com/kaspanet/kaspad/util"
)

// Network identifies which Kaspa network addresses and extended keys belong to.
type Network string

// Supported networks.
const (
	Mainnet Network = "mainnet"
	Testnet Network = "testnet"
	Devnet  Network = "devnet"
	Simnet  Network = "simnet"
)

// Networks returns every supported network name.
func Networks() []Network {
	return []Network{Mainnet, Testnet, Devnet, Simnet}
}

// ParseNetwork parses a network name. "main", "test" etc. are accepted as aliases.
func ParseNetwork(s string) (Network, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "mainnet", "main", "kaspa":
		return Mainnet, true
	case "testnet", "test", "kaspatest":
		return Testnet, true
	case "devnet", "dev", "kaspadev":
		return Devnet, true
	case "simnet", "sim", "kaspasim":
		return Simnet, true
	default:
		return "", false
	}
}

// String returns the network name.
func (n Network) String() string {
	return string(n)
}

// IsValid reports whether n is a supported network.
func (n Network) IsValid() bool {
	_, ok := ParseNetwork(string(n))
	return ok && n == Network(strings.ToLower(string(n)))
}

// Prefix returns the bech32 address prefix of the network.
func (n Network) Prefix() util.Bech32Prefix {
	switch n {
	case Testnet:
		return util.Bech32PrefixKaspaTest
	case Devnet:
		return util.Bech32PrefixKaspaDev
	case Simnet:
		return util.Bech32PrefixKaspaSim
	default:
		return util.Bech32PrefixKaspa
	}
}

// hdParams satisfies hdkeychain.NetworkParams with the Kaspa extended key
// version bytes (kprv/kpub, ktrv/ktub, kdrv/kdub, ksrv/ksub).
type hdParams struct {
	priv [4]byte
	pub  [4]byte
}

func (p hdParams) HDPrivKeyVersion() [4]byte { return p.priv }
func (p hdParams) HDPubKeyVersion() [4]byte  { return p.pub }

func (n Network) hdParams() hdParams {
	switch n {
	case Testnet:
		return hdParams{priv: [4]byte{0x03, 0x90, 0x9e, 0x07}, pub: [4]byte{0x03, 0x90, 0xa2, 0x41}}
	case Devnet:
		return hdParams{priv: [4]byte{0x03, 0x8b, 0x3d, 0x80}, pub: [4]byte{0x03, 0x8b, 0x41, 0xba}}
	case Simnet:
		return hdParams{priv: [4]byte{0x03, 0x92, 0x42, 0x88}, pub: [4]byte{0x03, 0x92, 0x46, 0xc2}}
	default:
		return hdParams{priv: [4]byte{0x03, 0x8f, 0x2e, 0xf4}, pub: [4]byte{0x03, 0x8f, 0x33, 0x2e}}
	}
}

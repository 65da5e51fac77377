package config

import (
	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/discovery"
	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/ledger"
	"github.com/mrz1836/sompi/internal/locator"
	"github.com/mrz1836/sompi/internal/snapshot"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.sompi",
		Network: NetworkConfig{
			Name:        string(keys.Mainnet),
			CallTimeout: balance.DefaultCallTimeout,
			RateLimit:   10,
			RateBurst:   20,
		},
		Discovery: DiscoveryConfig{
			GapLimit:                    discovery.DefaultGapLimit,
			MaxConsecutiveNetworkErrors: discovery.DefaultMaxConsecutiveNetworkErrors,
			MaxReceiveRotations:         ledger.DefaultMaxReceiveRotations,
		},
		Locator: LocatorConfig{
			MaxSearchPerChain: locator.DefaultMaxSearchPerChain,
			BatchSize:         locator.DefaultBatchSize,
		},
		Storage: StorageConfig{
			Backend: snapshot.BackendFile,
			Path:    "snapshots",
		},
		Output: OutputConfig{
			DefaultFormat: "text",
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "~/.sompi/sompi.log",
		},
	}
}

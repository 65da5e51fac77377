// Package config provides configuration management for sompi.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/sompi/internal/fileutil"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Network   NetworkConfig   `yaml:"network"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Locator   LocatorConfig   `yaml:"locator"`
	Storage   StorageConfig   `yaml:"storage"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// NetworkConfig selects the Kaspa network and the ledger query endpoint.
type NetworkConfig struct {
	Name    string `yaml:"name"`
	Account uint32 `yaml:"account"`

	// APIURL overrides the public REST endpoint for Name.
	APIURL      string        `yaml:"api_url,omitempty"`
	CallTimeout time.Duration `yaml:"call_timeout"`
	RateLimit   float64       `yaml:"rate_limit"`
	RateBurst   int           `yaml:"rate_burst"`
}

// DiscoveryConfig holds gap-limit scan settings.
type DiscoveryConfig struct {
	GapLimit                    int    `yaml:"gap_limit"`
	MaxIndexBound               uint32 `yaml:"max_index_bound"`
	CountNetworkErrorsAsEmpty   bool   `yaml:"count_network_errors_as_empty"`
	MaxConsecutiveNetworkErrors int    `yaml:"max_consecutive_network_errors"`
	MaxReceiveRotations         int    `yaml:"max_receive_rotations"`
}

// LocatorConfig holds reverse key search settings.
type LocatorConfig struct {
	MaxSearchPerChain uint32 `yaml:"max_search_per_chain"`
	BatchSize         int    `yaml:"batch_size"`
	Workers           int    `yaml:"workers"`
}

// StorageConfig selects where ledger snapshots and vaults live.
type StorageConfig struct {
	// Backend is "file" or "badger".
	Backend string `yaml:"backend"`

	// Path is the snapshot directory; relative paths are under Home.
	Path string `yaml:"path"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from path on top of Defaults. A missing file
// returns ErrConfigNotFound.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: config path comes from --home
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, sompierr.WithDetails(sompierr.ErrConfigNotFound, map[string]string{"path": path})
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, sompierr.WithCause(sompierr.ErrConfigInvalid, err)
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Defaults when the file is missing.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, sompierr.ErrConfigNotFound) {
		return Defaults(), nil
	}
	return cfg, err
}

// Save writes configuration to path.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return fileutil.WriteAtomic(path, data, fileutil.PrivateFile)
}

// Path returns the config file path under home.
func Path(home string) string {
	return filepath.Join(home, "config.yaml")
}

// HomeDir returns Home with "~/" expanded.
func (c *Config) HomeDir() string {
	return fileutil.ExpandHome(c.Home)
}

// SnapshotDir returns the absolute snapshot directory.
func (c *Config) SnapshotDir() string {
	p := fileutil.ExpandHome(c.Storage.Path)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.HomeDir(), p)
}

// VaultDir returns the directory holding wallet vaults.
func (c *Config) VaultDir() string {
	return filepath.Join(c.HomeDir(), "vaults")
}

// VaultPath returns the vault file path for a wallet name.
func (c *Config) VaultPath(name string) string {
	return filepath.Join(c.VaultDir(), name+".age")
}

// DefaultHome returns the default sompi home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sompi"
	}
	return filepath.Join(home, ".sompi")
}

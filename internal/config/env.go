package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/mrz1836/go-sanitize"
)

// Environment variable names.
const (
	EnvHome         = "SOMPI_HOME"
	EnvNetwork      = "SOMPI_NETWORK"
	EnvAPIURL       = "SOMPI_API_URL"
	EnvGapLimit     = "SOMPI_GAP_LIMIT"
	EnvOutputFormat = "SOMPI_OUTPUT_FORMAT"
	EnvVerbose      = "SOMPI_VERBOSE"
	EnvLogLevel     = "SOMPI_LOG_LEVEL"
	EnvStorage      = "SOMPI_STORAGE_BACKEND"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
// Unparseable numeric values are ignored.
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}
	if v := os.Getenv(EnvNetwork); v != "" {
		cfg.Network.Name = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.Network.APIURL = SanitizeURL(v)
	}
	if v := os.Getenv(EnvGapLimit); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n > 0 {
			cfg.Discovery.GapLimit = n
		}
	}
	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}
	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(EnvStorage); v != "" {
		cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(v))
	}
}

// parseBool parses a boolean string value.
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}

// SanitizeURL cleans a URL string of invalid characters and surrounding
// whitespace left over from copy and paste.
func SanitizeURL(url string) string {
	return sanitize.URL(strings.TrimSpace(url))
}

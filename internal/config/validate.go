package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/mrz1836/sompi/internal/keys"
	"github.com/mrz1836/sompi/internal/snapshot"
	sompierr "github.com/mrz1836/sompi/pkg/errors"
)

// maxSuggestDistance is the largest edit distance offered as a suggestion.
const maxSuggestDistance = 3

var outputFormats = []string{"text", "json", "auto"} //nolint:gochecknoglobals // lookup table

// Validate checks the configuration, returning ErrConfigInvalid with the
// offending key and, for misspelled names, a suggestion.
func (c *Config) Validate() error {
	if _, ok := keys.ParseNetwork(c.Network.Name); !ok {
		names := make([]string, 0, len(keys.Networks()))
		for _, n := range keys.Networks() {
			names = append(names, n.String())
		}
		return invalid("network.name", c.Network.Name, names)
	}

	if c.Network.APIURL != "" {
		u, err := url.Parse(c.Network.APIURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return sompierr.WithDetails(sompierr.ErrConfigInvalid, map[string]string{"network.api_url": c.Network.APIURL})
		}
	}
	if c.Network.Account > keys.MaxIndex {
		return invalid("network.account", fmt.Sprintf("%d", c.Network.Account), nil)
	}
	if c.Network.CallTimeout < 0 {
		return invalid("network.call_timeout", c.Network.CallTimeout.String(), nil)
	}

	if c.Discovery.GapLimit <= 0 {
		return invalid("discovery.gap_limit", fmt.Sprintf("%d", c.Discovery.GapLimit), nil)
	}
	if c.Discovery.MaxIndexBound > keys.MaxIndex {
		return invalid("discovery.max_index_bound", fmt.Sprintf("%d", c.Discovery.MaxIndexBound), nil)
	}
	if c.Discovery.MaxConsecutiveNetworkErrors < 0 {
		return invalid("discovery.max_consecutive_network_errors", fmt.Sprintf("%d", c.Discovery.MaxConsecutiveNetworkErrors), nil)
	}

	if c.Locator.BatchSize < 0 || c.Locator.Workers < 0 {
		return invalid("locator", fmt.Sprintf("batch_size=%d workers=%d", c.Locator.BatchSize, c.Locator.Workers), nil)
	}

	switch c.Storage.Backend {
	case snapshot.BackendFile, snapshot.BackendBadger:
	default:
		return invalid("storage.backend", c.Storage.Backend, []string{snapshot.BackendFile, snapshot.BackendBadger})
	}

	if !slices.Contains(outputFormats, c.Output.DefaultFormat) {
		return invalid("output.default_format", c.Output.DefaultFormat, outputFormats)
	}
	if !slices.Contains(logLevels, strings.ToLower(c.Logging.Level)) {
		return invalid("logging.level", c.Logging.Level, logLevels)
	}
	return nil
}

// NetworkID returns the parsed network. Call Validate first.
func (c *Config) NetworkID() keys.Network {
	n, _ := keys.ParseNetwork(c.Network.Name)
	return n
}

func invalid(key, value string, choices []string) error {
	err := sompierr.WithDetails(sompierr.ErrConfigInvalid, map[string]string{key: value})
	if s := Suggest(value, choices); s != "" {
		return sompierr.WithSuggestion(err, fmt.Sprintf("Did you mean %q?", s))
	}
	if len(choices) > 0 {
		return sompierr.WithSuggestion(err, "Valid values: "+strings.Join(choices, ", "))
	}
	return err
}

// Suggest returns the choice closest to input by edit distance, or "" when
// none is close enough.
func Suggest(input string, choices []string) string {
	input = strings.ToLower(strings.TrimSpace(input))
	if input == "" {
		return ""
	}

	best, bestDist := "", maxSuggestDistance+1
	for _, c := range choices {
		if d := levenshtein.ComputeDistance(input, c); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

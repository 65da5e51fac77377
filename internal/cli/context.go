package cli

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/mrz1836/sompi/internal/balance"
	"github.com/mrz1836/sompi/internal/chain"
	"github.com/mrz1836/sompi/internal/chain/kaspa"
	"github.com/mrz1836/sompi/internal/config"
	"github.com/mrz1836/sompi/internal/metrics"
	"github.com/mrz1836/sompi/internal/output"
)

// CommandContext holds dependencies for CLI commands.
type CommandContext struct {
	Cfg     *config.Config
	Log     *config.Logger
	Fmt     *output.Formatter
	Metrics *metrics.Metrics
}

type cmdContextKey struct{}

// newQueryService builds the ledger query transport. Tests replace it.
//
//nolint:gochecknoglobals // test hook
var newQueryService = func(c *config.Config, log zerolog.Logger) balance.QueryService {
	return kaspa.NewClient(&kaspa.ClientOptions{
		BaseURL:     c.Network.APIURL,
		Network:     c.NetworkID(),
		RateLimiter: chain.NewRateLimiter(c.Network.RateLimit, c.Network.RateBurst),
		Logger:      log,
	})
}

// NewCommandContext creates a context with the given dependencies.
func NewCommandContext(c *config.Config, log *config.Logger, f *output.Formatter) *CommandContext {
	return &CommandContext{Cfg: c, Log: log, Fmt: f}
}

// WithMetrics sets the metrics collector.
func (c *CommandContext) WithMetrics(m *metrics.Metrics) *CommandContext {
	c.Metrics = m
	return c
}

// Logger returns the structured logger, a no-op when none is configured.
func (c *CommandContext) Logger() zerolog.Logger {
	if c.Log == nil {
		return zerolog.Nop()
	}
	return c.Log.Zerolog()
}

// Oracle builds a balance oracle over the configured query service.
func (c *CommandContext) Oracle() *balance.Oracle {
	log := c.Logger()
	return balance.NewOracle(newQueryService(c.Cfg, log), balance.Options{
		CallTimeout: c.Cfg.Network.CallTimeout,
		Logger:      log,
		Metrics:     c.Metrics,
	})
}

// SetCmdContext attaches cc to the command's context.
func SetCmdContext(cmd *cobra.Command, cc *CommandContext) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	cmd.SetContext(context.WithValue(base, cmdContextKey{}, cc))
}

// GetCmdContext returns the CommandContext attached to cmd, or nil.
func GetCmdContext(cmd *cobra.Command) *CommandContext {
	ctx := cmd.Context()
	if ctx == nil {
		return nil
	}
	cc, _ := ctx.Value(cmdContextKey{}).(*CommandContext)
	return cc
}

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	return context.WithTimeout(base, d)
}

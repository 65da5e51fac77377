package cli

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sompi/internal/config"
	"github.com/mrz1836/sompi/internal/output"
)

func TestCmdContext(t *testing.T) {
	t.Parallel()

	cmd := &cobra.Command{}
	assert.Nil(t, GetCmdContext(cmd))

	cc := NewCommandContext(config.Defaults(), nil, output.NewFormatter(output.FormatText, nil))
	SetCmdContext(cmd, cc)
	assert.Same(t, cc, GetCmdContext(cmd))

	newer := NewCommandContext(config.Defaults(), nil, nil)
	SetCmdContext(cmd, newer)
	assert.Same(t, newer, GetCmdContext(cmd))
}

func TestCommandContext_NilLogger(t *testing.T) {
	t.Parallel()

	cc := NewCommandContext(config.Defaults(), nil, nil)
	log := cc.Logger()
	assert.NotPanics(t, func() { log.Info().Msg("discarded") })
}

func TestContextWithTimeout(t *testing.T) {
	t.Parallel()

	t.Run("without command context", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := contextWithTimeout(&cobra.Command{}, time.Minute)
		defer cancel()

		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Minute), deadline, 5*time.Second)
	})

	t.Run("inherits cancellation", func(t *testing.T) {
		t.Parallel()
		parent, cancelParent := context.WithCancel(context.Background())
		cmd := &cobra.Command{}
		cmd.SetContext(parent)

		ctx, cancel := contextWithTimeout(cmd, time.Hour)
		defer cancel()

		cancelParent()
		<-ctx.Done()
		require.ErrorIs(t, ctx.Err(), context.Canceled)
	})
}

func TestFormatVersion(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info BuildInfo
		want string
	}{
		{"empty", BuildInfo{}, "dev (commit: unknown, built: unknown)"},
		{"full", BuildInfo{Version: "1.0.0", Commit: "abc1234", Date: "2026-01-02"}, "1.0.0 (commit: abc1234, built: 2026-01-02)"},
		{"version only", BuildInfo{Version: "0.3.1"}, "0.3.1 (commit: unknown, built: unknown)"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, formatVersion(tc.info))
		})
	}
}

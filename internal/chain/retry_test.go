package chain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrz1836/sompi/internal/chain"
)

var errNonRetryable = errors.New("non-retryable error")

func fastRetry() chain.RetryConfig {
	return chain.RetryConfig{MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestRetry_SuccessFirstAttempt(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := chain.RetryWithConfig(context.Background(), fastRetry(), func(context.Context) (string, error) {
		attempts++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, attempts)
}

func TestRetry_SuccessAfterRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	result, err := chain.RetryWithConfig(context.Background(), fastRetry(), func(context.Context) (int, error) {
		attempts++
		if attempts < 3 {
			return 0, chain.WrapRetryable(errNonRetryable)
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.Equal(t, 3, attempts)
}

func TestRetry_NonRetryableError(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := chain.RetryWithConfig(context.Background(), fastRetry(), func(context.Context) (string, error) {
		attempts++
		return "", errNonRetryable
	})

	require.ErrorIs(t, err, errNonRetryable)
	assert.Equal(t, 1, attempts)
}

func TestRetry_MaxAttempts(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := chain.RetryWithConfig(context.Background(), fastRetry(), func(context.Context) (string, error) {
		attempts++
		return "", chain.ErrRateLimited
	})

	require.ErrorIs(t, err, chain.ErrRateLimited)
	assert.Equal(t, 4, attempts)
	assert.Contains(t, err.Error(), "after 4 attempts")
}

func TestRetry_ContextCanceled(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(context.Background())
	cfg := chain.RetryConfig{MaxAttempts: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	attempts := 0
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := chain.RetryWithConfig(ctx, cfg, func(context.Context) (string, error) {
		attempts++
		return "", chain.ErrRetryable
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestNoRetry(t *testing.T) {
	t.Parallel()
	attempts := 0
	_, err := chain.RetryWithConfig(context.Background(), chain.NoRetry(), func(context.Context) (string, error) {
		attempts++
		return "", chain.ErrRetryable
	})
	require.ErrorIs(t, err, chain.ErrRetryable)
	assert.Equal(t, 1, attempts)
}

func TestParseRetryAfter(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 3*time.Second, chain.ParseRetryAfter("3"))
	assert.Zero(t, chain.ParseRetryAfter(""))
	assert.Zero(t, chain.ParseRetryAfter("soon"))
	assert.Zero(t, chain.ParseRetryAfter("-1"))
}

func TestRateLimiter(t *testing.T) {
	t.Parallel()
	rl := chain.NewRateLimiter(1, 2)
	assert.True(t, rl.Allow("/balances"))
	assert.True(t, rl.Allow("/balances"))
	assert.False(t, rl.Allow("/balances"))
	assert.True(t, rl.Allow("/utxos"), "routes have independent buckets")

	unlimited := chain.NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, unlimited.Wait(context.Background(), "/x"))
	}
}

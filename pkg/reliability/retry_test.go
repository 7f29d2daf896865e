package reliability

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:   attempts,
		InitialDelay:  time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(4), func() error {
		calls++
		if calls < 3 {
			return errors.New("connection refused")
		}
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	boom := errors.New("i/o timeout")
	err := RetryWithBackoff(context.Background(), fastRetry(3), func() error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := RetryWithBackoff(context.Background(), fastRetry(5), func() error {
		calls++
		return errors.New("LOGIN failed: invalid credentials")
	})
	require.ErrorContains(t, err, "invalid credentials")
	require.Equal(t, 1, calls)
}

func TestRetryHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	cfg := RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour, MaxDelay: time.Hour, BackoffFactor: 2.0}
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	err := RetryWithBackoff(ctx, cfg, func() error {
		calls++
		return errors.New("connection refused")
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, calls)
}

func TestIsRetryable(t *testing.T) {
	require.False(t, IsRetryable(nil))
	require.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	require.True(t, IsRetryable(errors.New("unexpected EOF")))
	require.True(t, IsRetryable(errors.New("* BYE server shutting down")))
	require.False(t, IsRetryable(errors.New("authentication failed")))
	require.False(t, IsRetryable(errors.New("x509: certificate signed by unknown authority")))
	// Unknown errors default to retryable.
	require.True(t, IsRetryable(errors.New("something odd happened")))
}

func TestDelayIsCappedAtMax(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 4 * time.Second, BackoffFactor: 2.0}
	require.Equal(t, time.Second, cfg.delay(0))
	require.Equal(t, 2*time.Second, cfg.delay(1))
	require.Equal(t, 4*time.Second, cfg.delay(2))
	require.Equal(t, 4*time.Second, cfg.delay(10))
}

func TestDelayJitterStaysWithinMax(t *testing.T) {
	cfg := RetryConfig{InitialDelay: time.Second, MaxDelay: 2 * time.Second, BackoffFactor: 2.0, Jitter: true}
	for i := 0; i < 50; i++ {
		d := cfg.delay(5)
		require.LessOrEqual(t, d, 2*time.Second)
		require.Greater(t, d, time.Duration(0))
	}
}

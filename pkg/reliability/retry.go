package reliability

import (
	"context"
	"math"
	"math/rand"
	"strings"
	"time"
)

// RetryConfig controls RetryWithBackoff.
type RetryConfig struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// ConnectRetryConfig is tuned for establishing IMAP connections: network
// flaps are common, auth failures are not worth retrying at all.
func ConnectRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   4,
		InitialDelay:  250 * time.Millisecond,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// RetryWithBackoff runs fn until it succeeds, the attempts are exhausted, a
// non-retryable error occurs, or ctx is cancelled.
func RetryWithBackoff(ctx context.Context, cfg RetryConfig, fn func() error) error {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 100 * time.Millisecond
	}
	if cfg.MaxDelay < cfg.InitialDelay {
		cfg.MaxDelay = cfg.InitialDelay
	}
	if cfg.BackoffFactor <= 1.0 {
		cfg.BackoffFactor = 2.0
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err
		if attempt == cfg.MaxAttempts-1 {
			break
		}
		if !IsRetryable(err) {
			return err
		}
		select {
		case <-time.After(cfg.delay(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}

func (c RetryConfig) delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	if d > float64(c.MaxDelay) || math.IsInf(d, 0) || math.IsNaN(d) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter {
		d += rand.Float64() * d * 0.25
		if d > float64(c.MaxDelay) {
			d = float64(c.MaxDelay)
		}
	}
	return time.Duration(d)
}

var retryablePatterns = []string{
	"connection refused",
	"connection reset",
	"connection timed out",
	"i/o timeout",
	"broken pipe",
	"use of closed network connection",
	"unexpected eof",
	"temporary failure in name resolution",
	"network unreachable",
	"host unreachable",
	"no such host",
	"server temporarily unavailable",
	"mailbox unavailable",
	"* bye",
}

var permanentPatterns = []string{
	"authentication failed",
	"invalid credentials",
	"login failed",
	"authorizationfailed",
	"certificate",
}

// IsRetryable reports whether an error is worth another connection attempt.
// Auth and TLS trust failures are permanent until the operator fixes the
// account configuration.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, p := range permanentPatterns {
		if strings.Contains(msg, p) {
			return false
		}
	}
	for _, p := range retryablePatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	// Unknown errors default to retryable: a flaky server response should
	// not permanently park an account.
	return true
}

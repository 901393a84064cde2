// Package resilience offers opt-in retries for idempotent reads. The request
// executor never retries on its own; callers decide.
package resilience

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/api"
)

// RetryConfig defines configuration for retry logic
type RetryConfig struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Jitter adds up to 10% to each backoff.
	Jitter bool

	// Retryable decides whether err is worth another attempt.
	Retryable func(error) bool
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    250 * time.Millisecond,
		MaxBackoff:        5 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            true,
		Retryable:         Retryable,
	}
}

// Retryable reports whether err is an *api.Error the server may accept on a
// second attempt (timeouts, transport failures, 408/429/502/503/504).
func Retryable(err error) bool {
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

// Retry runs fn until it succeeds, fails with a non-retryable error, or
// MaxRetries is exhausted. The last error is returned as is.
func Retry(ctx context.Context, config RetryConfig, fn func(ctx context.Context) error) error {
	retryable := config.Retryable
	if retryable == nil {
		retryable = Retryable
	}
	var lastErr error
	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || attempt == config.MaxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(calculateBackoff(attempt, config)):
		}
	}
	return lastErr
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	backoff := float64(config.InitialBackoff) * math.Pow(config.BackoffMultiplier, float64(attempt))
	if backoff > float64(config.MaxBackoff) {
		backoff = float64(config.MaxBackoff)
	}
	if config.Jitter {
		backoff += rand.Float64() * 0.1 * backoff
	}
	return time.Duration(backoff)
}

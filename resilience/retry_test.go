package resilience

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/shopdash/dataaccess/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig(retries int) RetryConfig {
	return RetryConfig{
		MaxRetries:        retries,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        5 * time.Millisecond,
		BackoffMultiplier: 2,
	}
}

func TestRetrySucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := Retry(context.Background(), fastConfig(3), func(context.Context) error {
		attempts++
		if attempts < 3 {
			return &api.Error{Kind: api.KindApplication, Status: http.StatusServiceUnavailable}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetryStopsAtMaxRetries(t *testing.T) {
	attempts := 0
	timeout := &api.Error{Kind: api.KindTimeout, Message: api.TimeoutMessage}
	err := Retry(context.Background(), fastConfig(2), func(context.Context) error {
		attempts++
		return timeout
	})
	assert.Equal(t, 3, attempts)
	assert.Same(t, timeout, err)
}

func TestRetrySkipsNonRetryable(t *testing.T) {
	tests := []error{
		&api.Error{Kind: api.KindApplication, Status: http.StatusBadRequest},
		&api.Error{Kind: api.KindSessionFatal, Status: http.StatusUnauthorized},
		&api.Error{Kind: api.KindCanceled},
		errors.New("plain error"),
	}
	for _, failure := range tests {
		attempts := 0
		err := Retry(context.Background(), fastConfig(3), func(context.Context) error {
			attempts++
			return failure
		})
		assert.Equal(t, 1, attempts, "%v", failure)
		assert.Equal(t, failure, err)
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig(5)
	cfg.InitialBackoff = time.Hour
	cfg.MaxBackoff = time.Hour
	attempts := 0
	err := Retry(ctx, cfg, func(context.Context) error {
		attempts++
		cancel()
		return &api.Error{Kind: api.KindNetwork}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	assert.Equal(t, 100*time.Millisecond, calculateBackoff(0, cfg))
	assert.Equal(t, 400*time.Millisecond, calculateBackoff(2, cfg))
	assert.Equal(t, time.Second, calculateBackoff(10, cfg))

	cfg.Jitter = true
	d := calculateBackoff(0, cfg)
	assert.GreaterOrEqual(t, d, 100*time.Millisecond)
	assert.LessOrEqual(t, d, 110*time.Millisecond)
}

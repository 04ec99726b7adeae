package publish

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChicagoHAI/idea-explorer/errors"
)

var fastRetry = RetryConfig{
	MaxRetries:    3,
	BaseDelay:     time.Millisecond,
	MaxDelay:      10 * time.Millisecond,
	BackoffFactor: 2,
}

func TestWithRetryEventualSuccess(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), fastRetry, "flaky", func() error {
		attempts++
		if attempts < 3 {
			return &net.DNSError{Err: "temporary", IsTimeout: true}
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryNonRetryableFailsFast(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), fastRetry, "rejected", func() error {
		attempts++
		return errors.New("422 validation failed")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts, "permanent failures are not retried")
	assert.Contains(t, err.Error(), "rejected failed")
}

func TestWithRetryExhaustion(t *testing.T) {
	attempts := 0
	err := withRetry(context.Background(), fastRetry, "down", func() error {
		attempts++
		return &net.DNSError{Err: "unreachable", IsTimeout: true}
	})
	require.Error(t, err)
	assert.Equal(t, fastRetry.MaxRetries+1, attempts)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastRetry
	cfg.BaseDelay = time.Hour

	err := withRetry(ctx, cfg, "slow", func() error {
		return &net.DNSError{Err: "temporary", IsTimeout: true}
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestRetryable(t *testing.T) {
	assert.True(t, retryable(&net.DNSError{IsTimeout: true}))
	assert.True(t, retryable(context.DeadlineExceeded))
	assert.False(t, retryable(errors.New("bad request")))
}

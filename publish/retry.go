// Package publish pushes research artifacts to GitHub: repository
// creation through the gh CLI, commits and pushes through go-git, and a
// summary pull request when a run completes.
package publish

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/ChicagoHAI/idea-explorer/errors"
	"github.com/ChicagoHAI/idea-explorer/logger"
)

// RetryConfig bounds the exponential backoff for remote operations
type RetryConfig struct {
	MaxRetries    int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetry matches the API-call policy used throughout: three
// retries starting at two seconds, doubling, capped at a minute.
var DefaultRetry = RetryConfig{
	MaxRetries:    3,
	BaseDelay:     2 * time.Second,
	MaxDelay:      time.Minute,
	BackoffFactor: 2,
}

// retryable reports whether the error looks transient: network trouble
// or a timeout, not a 4xx-shaped rejection.
func retryable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.IsAny(err, os.ErrDeadlineExceeded, context.DeadlineExceeded)
}

// withRetry runs op, retrying transient failures with exponential
// backoff. The final error is returned with the attempt count attached.
func withRetry(ctx context.Context, cfg RetryConfig, name string, op func() error) error {
	delay := cfg.BaseDelay
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxRetries+1; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !retryable(lastErr) || attempt > cfg.MaxRetries {
			break
		}

		logger.Warnw("retrying after transient failure",
			logger.FieldOperation, name,
			logger.FieldAttempt, attempt,
			"delay", delay.String(),
			logger.FieldError, lastErr)

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "%s cancelled during backoff", name)
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * cfg.BackoffFactor)
		if delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}

	return errors.Wrapf(lastErr, "%s failed", name)
}

// Package watch runs the scan cycles: fetch candidates per platform, diff
// against the retention store, notify on new listings, persist.
package watch

import (
	"context"
	"time"

	"flatwatch-go/pkg/logger"
)

// Retrier reruns a failing operation with exponential backoff. The wait
// before retry n is InitialDelay * 2^(n-1). Listing sites throw transient
// blocks and timeouts indiscriminately, so every error is considered
// retryable.
type Retrier struct {
	maxRetries   int
	initialDelay time.Duration
	log          *logger.Logger
}

func NewRetrier(maxRetries int, initialDelay time.Duration) *Retrier {
	if maxRetries < 0 {
		maxRetries = 0
	}
	if initialDelay <= 0 {
		initialDelay = 30 * time.Second
	}
	return &Retrier{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		log:          logger.GetLogger().WithComponent("retrier"),
	}
}

// Execute runs fn until it succeeds or retries are exhausted, then returns
// the last error. The context is honored before every attempt and during
// backoff waits.
func (r *Retrier) Execute(ctx context.Context, fn func() error) error {
	var lastErr error

	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == r.maxRetries {
			break
		}

		delay := time.Duration(1<<uint(attempt)) * r.initialDelay
		r.log.WithError(err).WithFields(map[string]interface{}{
			"attempt": attempt + 1,
			"delay":   delay.String(),
		}).Warn("Attempt failed, backing off")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

package services

import (
	"context"
	"errors"
	"time"
)

// RetryConfig bounds a retry loop.
type RetryConfig struct {
	MaxAttempts int
	// Backoff is multiplied by the attempt number before each retry.
	Backoff time.Duration
}

// DefaultTokenRetry covers token value collisions, which should never happen
// more than once in practice.
var DefaultTokenRetry = RetryConfig{MaxAttempts: 3, Backoff: 10 * time.Millisecond}

// retryOn runs fn until it succeeds, fails with an error other than retryable,
// or MaxAttempts is used up. The last error is returned.
func retryOn(ctx context.Context, cfg RetryConfig, retryable error, fn func(attempt int) error) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(attempt)
		if err == nil || !errors.Is(err, retryable) {
			return err
		}
		if attempt == attempts {
			break
		}
		if cfg.Backoff > 0 {
			timer := time.NewTimer(cfg.Backoff * time.Duration(attempt))
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return err
}

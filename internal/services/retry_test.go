package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errFlaky = errors.New("flaky")

func TestRetryOn(t *testing.T) {
	ctx := context.Background()

	t.Run("stops on success", func(t *testing.T) {
		calls := 0
		err := retryOn(ctx, RetryConfig{MaxAttempts: 3}, errFlaky, func(int) error {
			calls++
			if calls < 2 {
				return errFlaky
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("bounded", func(t *testing.T) {
		calls := 0
		err := retryOn(ctx, RetryConfig{MaxAttempts: 3}, errFlaky, func(int) error {
			calls++
			return errFlaky
		})
		assert.ErrorIs(t, err, errFlaky)
		assert.Equal(t, 3, calls)
	})

	t.Run("other errors are final", func(t *testing.T) {
		calls := 0
		err := retryOn(ctx, RetryConfig{MaxAttempts: 3}, errFlaky, func(int) error {
			calls++
			return assert.AnError
		})
		assert.ErrorIs(t, err, assert.AnError)
		assert.Equal(t, 1, calls)
	})

	t.Run("zero attempts still runs once", func(t *testing.T) {
		calls := 0
		_ = retryOn(ctx, RetryConfig{}, errFlaky, func(int) error {
			calls++
			return errFlaky
		})
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := retryOn(cctx, RetryConfig{MaxAttempts: 3, Backoff: time.Hour}, errFlaky, func(int) error {
			calls++
			cancel()
			return errFlaky
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 1, calls)
	})
}

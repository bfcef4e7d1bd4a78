package transfer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy(t *testing.T) {
	t.Run("retries transient failures until success", func(t *testing.T) {
		calls := 0
		fn := func() error {
			calls++
			if calls < 3 {
				return errTransient
			}
			return nil
		}

		p := NewRetryPolicy(
			WithMaxAttempts(5),
			WithBaseDelay(time.Millisecond),
			WithJitter(false),
		)

		attempts, err := p.Do(context.Background(), fn)

		require.NoError(t, err)
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("never retries permission errors", func(t *testing.T) {
		calls := 0
		permErr := &PermissionError{URI: "s3://src/x", Op: "copy"}

		p := NewRetryPolicy(WithMaxAttempts(5), WithBaseDelay(time.Millisecond))
		attempts, err := p.Do(context.Background(), func() error {
			calls++
			return permErr
		})

		require.ErrorIs(t, err, error(permErr))
		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("never retries not-found errors", func(t *testing.T) {
		calls := 0
		p := NewRetryPolicy(WithMaxAttempts(5), WithBaseDelay(time.Millisecond))

		attempts, _ := p.Do(context.Background(), func() error {
			calls++
			return &NotFoundError{URI: "s3://src/x"}
		})

		assert.Equal(t, 1, attempts)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhausts attempts and returns last error", func(t *testing.T) {
		calls := 0
		p := NewRetryPolicy(WithMaxAttempts(3), WithBaseDelay(time.Millisecond), WithJitter(false))

		attempts, err := p.Do(context.Background(), func() error {
			calls++
			return errTransient
		})

		require.Error(t, err)
		assert.Equal(t, KindTransient, Kind(err))
		assert.Equal(t, 3, attempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("honors context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		p := NewRetryPolicy(WithMaxAttempts(3))
		attempts, err := p.Do(ctx, func() error { return errTransient })

		require.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 0, attempts)
	})

	t.Run("backoff grows and is capped", func(t *testing.T) {
		p := NewRetryPolicy(
			WithBaseDelay(100*time.Millisecond),
			WithMaxDelay(300*time.Millisecond),
			WithJitter(false),
		)

		assert.Equal(t, 100*time.Millisecond, p.delay(0))
		assert.Equal(t, 200*time.Millisecond, p.delay(1))
		assert.Equal(t, 300*time.Millisecond, p.delay(2))
		assert.Equal(t, 300*time.Millisecond, p.delay(5))
	})
}

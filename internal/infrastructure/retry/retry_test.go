package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	f := Exponential(time.Second, 30*time.Second)

	assert.Equal(t, time.Second, f(0))
	assert.Equal(t, 2*time.Second, f(1))
	assert.Equal(t, 8*time.Second, f(3))
	assert.Equal(t, 30*time.Second, f(5))
	assert.Equal(t, 30*time.Second, f(100))
}

func TestDo(t *testing.T) {
	ctx := context.Background()
	errBoom := errors.New("boom")

	t.Run("stops after first success", func(t *testing.T) {
		calls := 0
		err := Do(ctx, Policy{MaxAttempts: 4}, func(context.Context) error {
			calls++
			if calls < 2 {
				return errBoom
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, calls)
	})

	t.Run("gives up after max attempts and returns last error", func(t *testing.T) {
		calls := 0
		var waits []time.Duration
		var retried []int
		err := Do(ctx, Policy{
			MaxAttempts: 4,
			Backoff: func(attempt int) time.Duration {
				d := time.Millisecond * time.Duration(attempt+1)
				waits = append(waits, d)
				return d
			},
			OnRetry: func(attempt int, _ error, _ time.Duration) {
				retried = append(retried, attempt)
			},
		}, func(context.Context) error {
			calls++
			return errBoom
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 4, calls)
		assert.Len(t, waits, 3)
		assert.Equal(t, []int{0, 1, 2}, retried)
	})

	t.Run("permanent errors are not retried", func(t *testing.T) {
		calls := 0
		err := Do(ctx, Policy{MaxAttempts: 4}, func(context.Context) error {
			calls++
			return Permanent(errBoom)
		})
		assert.ErrorIs(t, err, errBoom)
		assert.Equal(t, 1, calls)
	})

	t.Run("cancelled context stops the loop", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		calls := 0
		err := Do(cctx, Policy{MaxAttempts: 10, Backoff: Exponential(time.Millisecond, time.Millisecond)}, func(context.Context) error {
			calls++
			cancel()
			return errBoom
		})
		assert.Error(t, err)
		assert.Equal(t, 1, calls)
	})
}

// Package retry runs an operation a bounded number of times with a delay
// between failed attempts.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffFunc returns the wait before the next attempt, given the zero-based
// index of the attempt that just failed.
type BackoffFunc func(attempt int) time.Duration

// Policy bounds a retry loop
type Policy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	// OnRetry is called after each failed attempt that will be retried.
	OnRetry func(attempt int, err error, wait time.Duration)
}

// Exponential returns min(maxDelay, base * 2^attempt)
func Exponential(base, maxDelay time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt > 30 {
			return maxDelay
		}
		d := base * time.Duration(1<<uint(attempt))
		if d > maxDelay || d <= 0 {
			return maxDelay
		}
		return d
	}
}

// Permanent wraps err so Do stops without further attempts
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Do calls fn until it succeeds, returns a Permanent error, ctx is done, or
// MaxAttempts is reached. The last error is returned.
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context) error) error {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.Backoff == nil {
		policy.Backoff = func(int) time.Duration { return 0 }
	}

	schedule := &funcBackOff{fn: policy.Backoff}
	b := backoff.WithContext(backoff.WithMaxRetries(schedule, uint64(policy.MaxAttempts-1)), ctx)

	var notify backoff.Notify
	if policy.OnRetry != nil {
		notify = func(err error, wait time.Duration) {
			policy.OnRetry(schedule.attempt-1, err, wait)
		}
	}

	err := backoff.RetryNotify(func() error { return fn(ctx) }, b, notify)
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// funcBackOff adapts a BackoffFunc to backoff.BackOff
type funcBackOff struct {
	fn      BackoffFunc
	attempt int
}

func (b *funcBackOff) NextBackOff() time.Duration {
	d := b.fn(b.attempt)
	b.attempt++
	return d
}

func (b *funcBackOff) Reset() { b.attempt = 0 }

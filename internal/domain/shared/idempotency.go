package shared

import (
	"context"
	"time"
)

// DedupStore records units of work that were already performed.
// The mere existence of a marker means "already handled".
type DedupStore interface {
	// Claim atomically marks key as handled. Returns true only for the first caller
	// within the TTL window.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Seen reports whether a marker exists for key
	Seen(ctx context.Context, key string) (bool, error)

	// Mark persists a marker for key
	Mark(ctx context.Context, key string, ttl time.Duration) error

	// Release removes the marker for key
	Release(ctx context.Context, key string) error
}

// IdempotencyConfig holds configuration for dedup markers
type IdempotencyConfig struct {
	// TTL is how long a marker survives. After it elapses the same key can be processed again.
	// Default: 72 hours (Stripe retries deliveries for up to three days)
	TTL time.Duration

	// Enabled determines whether dedup checking is enabled
	// Default: true
	Enabled bool
}

// DefaultIdempotencyConfig returns the default idempotency configuration
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:     72 * time.Hour,
		Enabled: true,
	}
}

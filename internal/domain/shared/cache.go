package shared

import (
	"context"
	"errors"
	"time"
)

// Cache backend names reported by Cache.Backend
const (
	CacheBackendRemote = "remote"
	CacheBackendMemory = "memory"
)

// ErrCacheUnavailable is returned when the cache backend cannot be reached
var ErrCacheUnavailable = errors.New("cache unavailable")

// Cache is the single shared-state primitive of the service.
// Values are stored as JSON. A zero ttl means the entry never expires.
type Cache interface {
	// Get decodes the value stored under key into dest.
	// Returns false when the key is missing or expired.
	Get(ctx context.Context, key string, dest any) (bool, error)

	// Set stores value under key
	Set(ctx context.Context, key string, value any, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// IncrementWithTTL atomically increments the counter under key and returns the new value.
	// A fresh (or expired) key starts at 1 and gets ttl as its window; the window is not extended
	// by later increments.
	IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Backend returns "remote" or "memory"
	Backend() string

	// Close releases backend resources
	Close() error
}

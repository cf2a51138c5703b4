package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/shipfunnel/backend/internal/domain/shared"
)

// entry represents a stored JSON value with an optional expiration
type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache implements shared.Cache using an in-process map.
// Suitable for single-instance deployments and tests: state is not shared across processes.
type MemoryCache struct {
	mu            sync.Mutex
	entries       map[string]entry
	now           func() time.Time
	sweepInterval time.Duration
	lastSweep     time.Time
}

// MemoryCacheOption configures a MemoryCache
type MemoryCacheOption func(*MemoryCache)

// WithClock overrides the time source (for tests)
func WithClock(now func() time.Time) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.now = now
	}
}

// WithSweepInterval sets the minimum time between two full sweeps of expired keys
func WithSweepInterval(d time.Duration) MemoryCacheOption {
	return func(c *MemoryCache) {
		c.sweepInterval = d
	}
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(opts ...MemoryCacheOption) *MemoryCache {
	c := &MemoryCache{
		entries:       make(map[string]entry),
		now:           time.Now,
		sweepInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get decodes the live value stored under key into dest
func (c *MemoryCache) Get(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	now := c.now()
	c.sweepLocked(now)
	e, exists := c.entries[key]
	if exists && e.expired(now) {
		delete(c.entries, key)
		exists = false
	}
	c.mu.Unlock()

	if !exists {
		return false, nil
	}
	if dest == nil {
		return true, nil
	}
	if err := json.Unmarshal(e.value, dest); err != nil {
		return false, fmt.Errorf("cache: failed to decode %q: %w", key, err)
	}
	return true, nil
}

// Set stores value under key
func (c *MemoryCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache: failed to encode %q: %w", key, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)
	c.entries[key] = entry{value: data, expiresAt: expiry(now, ttl)}
	return nil
}

// Delete removes key
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// IncrementWithTTL increments the counter under key. Read, increment and write happen
// under one lock so concurrent callers always observe distinct counts.
func (c *MemoryCache) IncrementWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweepLocked(now)

	e, exists := c.entries[key]
	if !exists || e.expired(now) {
		c.entries[key] = entry{value: []byte("1"), expiresAt: expiry(now, ttl)}
		return 1, nil
	}

	n, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("cache: value under %q is not a counter: %w", key, err)
	}
	n++
	e.value = []byte(strconv.FormatInt(n, 10))
	c.entries[key] = e
	return n, nil
}

// Backend returns "memory"
func (c *MemoryCache) Backend() string {
	return shared.CacheBackendMemory
}

// Close is a no-op for the memory backend
func (c *MemoryCache) Close() error {
	return nil
}

// Size returns the number of stored entries, expired ones included (for testing/monitoring)
func (c *MemoryCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// sweepLocked removes expired entries, at most once per sweep interval.
// Callers must hold c.mu.
func (c *MemoryCache) sweepLocked(now time.Time) {
	if now.Sub(c.lastSweep) < c.sweepInterval {
		return
	}
	c.lastSweep = now
	for key, e := range c.entries {
		if e.expired(now) {
			delete(c.entries, key)
		}
	}
}

func expiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return now.Add(ttl)
}

// Ensure MemoryCache implements Cache
var _ shared.Cache = (*MemoryCache)(nil)

package cache

import (
	"context"
	"sync"
	"time"

	"github.com/shipfunnel/backend/internal/domain/shared"
)

const dedupKeyPrefix = "dedup:"

// DedupStore implements shared.DedupStore on top of the shared cache.
// The shared cache is authoritative; the local set only short-circuits repeats
// seen by this process and starts empty on every boot.
type DedupStore struct {
	cache shared.Cache

	mu    sync.Mutex
	local map[string]time.Time
	now   func() time.Time
}

// NewDedupStore creates a dedup store over the given cache
func NewDedupStore(cache shared.Cache) *DedupStore {
	return &DedupStore{
		cache: cache,
		local: make(map[string]time.Time),
		now:   time.Now,
	}
}

// Claim atomically marks key. Only the caller that observes the first increment wins.
func (s *DedupStore) Claim(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if s.seenLocally(key) {
		return false, nil
	}

	n, err := s.cache.IncrementWithTTL(ctx, dedupKeyPrefix+key, ttl)
	if err != nil {
		return false, err
	}
	s.remember(key, ttl)
	return n == 1, nil
}

// Seen reports whether a marker exists for key
func (s *DedupStore) Seen(ctx context.Context, key string) (bool, error) {
	if s.seenLocally(key) {
		return true, nil
	}

	found, err := s.cache.Get(ctx, dedupKeyPrefix+key, nil)
	if err != nil {
		return false, err
	}
	return found, nil
}

// Mark persists a marker for key
func (s *DedupStore) Mark(ctx context.Context, key string, ttl time.Duration) error {
	if err := s.cache.Set(ctx, dedupKeyPrefix+key, 1, ttl); err != nil {
		return err
	}
	s.remember(key, ttl)
	return nil
}

// Release removes the marker for key
func (s *DedupStore) Release(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.local, key)
	s.mu.Unlock()

	return s.cache.Delete(ctx, dedupKeyPrefix+key)
}

func (s *DedupStore) seenLocally(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.local[key]
	if !ok {
		return false
	}
	if !expiresAt.IsZero() && !s.now().Before(expiresAt) {
		delete(s.local, key)
		return false
	}
	return true
}

func (s *DedupStore) remember(key string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.local[key] = expiry(s.now(), ttl)
}

// Ensure DedupStore implements DedupStore
var _ shared.DedupStore = (*DedupStore)(nil)

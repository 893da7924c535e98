// Package catalog provides a small TTL cache for the slow-changing
// service listings fetched from the clinic backend.
package catalog

import (
	"context"
	"sync"
	"time"
)

// DefaultTTL matches the backend catalog refresh cadence.
const DefaultTTL = 30 * time.Minute

type entry[V any] struct {
	value     V
	fetchedAt time.Time
}

// Cache is a TTL cache keyed by string. A stale entry is refreshed by
// the caller's fetcher; concurrent callers may each fetch on expiry and
// the last writer wins, which is acceptable for a read-mostly catalog.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	now     func() time.Time
}

// New creates a Cache using the wall clock.
func New[V any]() *Cache[V] {
	return NewWithClock[V](time.Now)
}

// NewWithClock creates a Cache with an injectable clock for tests.
func NewWithClock[V any](now func() time.Time) *Cache[V] {
	return &Cache[V]{
		entries: make(map[string]entry[V]),
		now:     now,
	}
}

// GetOrFetch returns the cached value for key when it is younger than
// ttl, otherwise calls fetch and caches the result. A fetch error is
// returned without disturbing any previously cached value.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(context.Context) (V, error)) (V, error) {
	c.mu.Lock()
	e, ok := c.entries[key]
	now := c.now()
	c.mu.Unlock()

	if ok && now.Sub(e.fetchedAt) < ttl {
		return e.value, nil
	}

	value, err := fetch(ctx)
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, fetchedAt: now}
	c.mu.Unlock()
	return value, nil
}

// Put stores a value directly, used for startup warming.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, fetchedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops one key.
func (c *Cache[V]) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

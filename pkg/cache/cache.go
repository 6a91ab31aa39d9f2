// Package cache provides a bounded, generic key-value store combining LRU
// eviction with per-entry TTL expiry. It backs the fetch results owned by
// pkg/fetchctl.
package cache

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"
)

type entry[T any] struct {
	value T
	ts    time.Time
}

// Cache is a bounded mapping from string key to a value of type T. Eviction
// is LRU at insertion time; reads additionally enforce a TTL, removing
// expired entries on access rather than on a background timer.
type Cache[T any] struct {
	mu      sync.Mutex
	inner   *lru.LRU[string, *entry[T]]
	ttl     time.Duration
	clock   func() time.Time
	onHit   func()
	onMiss  func()
}

// New creates a Cache with the given capacity (minimum 1) and TTL.
func New[T any](capacity int, ttl time.Duration) *Cache[T] {
	if capacity < 1 {
		capacity = 1
	}
	inner, err := lru.NewLRU[string, *entry[T]](capacity, nil)
	if err != nil {
		// capacity is clamped to >= 1 above; simplelru only rejects size <= 0.
		panic(err)
	}
	return &Cache[T]{inner: inner, ttl: ttl, clock: time.Now}
}

// WithClock overrides the time source, for deterministic TTL tests.
func (c *Cache[T]) WithClock(clock func() time.Time) *Cache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clock = clock
	return c
}

// WithHitMissHooks registers callbacks fired on every Get: onHit when the
// key is present and unexpired, onMiss otherwise. pkg/collection uses it to
// feed internal/telemetry's cache hit/miss counters without the cache package
// depending on Prometheus.
func (c *Cache[T]) WithHitMissHooks(onHit, onMiss func()) *Cache[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onHit, c.onMiss = onHit, onMiss
	return c
}

// Get returns the value for key if present and not expired. A hit promotes
// the entry to most-recently-used; an expired entry is removed on access.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	e, ok := c.inner.Get(key)
	if ok && c.expiredLocked(e) {
		c.inner.Remove(key)
		ok = false
	}
	onHit, onMiss := c.onHit, c.onMiss
	c.mu.Unlock()

	if !ok {
		if onMiss != nil {
			onMiss()
		}
		var zero T
		return zero, false
	}
	if onHit != nil {
		onHit()
	}
	return e.value, true
}

// expiredLocked reports whether e is expired. TTL is inclusive on the upper
// bound: at exactly ttl the entry is still valid.
func (c *Cache[T]) expiredLocked(e *entry[T]) bool {
	return c.clock().Sub(e.ts) > c.ttl
}

// Set inserts or overwrites key. Overwriting resets ts and promotes to MRU.
// If the cache is at capacity and key is new, the LRU entry is evicted.
func (c *Cache[T]) Set(key string, value T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Add(key, &entry[T]{value: value, ts: c.clock()})
}

// Invalidate removes key if present. No error if absent.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Remove(key)
}

// Clear empties the cache.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inner.Purge()
}

// Has reports whether Get(key) would return a value. Like Get, it promotes
// the entry's LRU order — an accepted asymmetry carried over unchanged from
// the original design.
func (c *Cache[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Size returns the current entry count, which may include expired entries
// that have not yet been touched by Get/Has.
func (c *Cache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inner.Len()
}

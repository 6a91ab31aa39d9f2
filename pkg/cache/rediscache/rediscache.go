// Package rediscache adds an optional second cache tier backed by Redis,
// mirroring the L1 (in-process) / L2 (Redis) split the teacher codebase uses
// for fetch results: pkg/cache stays the L1 tier, this package is the L2
// fallback a FetchController can consult on an L1 miss.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a JSON-encoded Redis-backed cache for values of type T.
type Cache[T any] struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// New creates a Cache using client, expiring entries after ttl. Keys are
// namespaced with prefix to let several collections share one Redis instance.
func New[T any](client *redis.Client, ttl time.Duration, prefix string) *Cache[T] {
	return &Cache[T]{client: client, ttl: ttl, prefix: prefix}
}

func (c *Cache[T]) key(k string) string {
	return c.prefix + ":" + k
}

// Get returns the cached value for key. A Redis miss or a decode failure is
// reported as (_, false, nil): corrupted/missing L2 entries are treated the
// same as a cold cache rather than surfaced as fetch errors.
func (c *Cache[T]) Get(ctx context.Context, key string) (T, bool, error) {
	var zero T

	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, err
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, false, nil
	}
	return value, true, nil
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache[T]) Set(ctx context.Context, key string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), raw, c.ttl).Err()
}

// Invalidate removes key from Redis, ignoring a not-found result.
func (c *Cache[T]) Invalidate(ctx context.Context, key string) error {
	return c.client.Del(ctx, c.key(key)).Err()
}

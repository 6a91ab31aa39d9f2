package cache

import "context"

// L2 is satisfied by pkg/cache/rediscache.Cache[T]; declared here, rather
// than importing that package, so pkg/cache never depends on redis.
type L2[T any] interface {
	Get(ctx context.Context, key string) (T, bool, error)
	Set(ctx context.Context, key string, value T) error
	Invalidate(ctx context.Context, key string) error
}

// Tiered checks an in-process Cache first and falls back to a remote L2 on
// miss, populating L1 from whatever L2 returns. A nil L2 makes Tiered behave
// exactly like the underlying L1 Cache.
type Tiered[T any] struct {
	l1 *Cache[T]
	l2 L2[T]
}

// NewTiered wraps l1 with an optional l2. Passing a nil l2 is valid and
// turns every Get into a pure L1 lookup.
func NewTiered[T any](l1 *Cache[T], l2 L2[T]) *Tiered[T] {
	return &Tiered[T]{l1: l1, l2: l2}
}

// WithL2 attaches or replaces the L2 tier.
func (t *Tiered[T]) WithL2(l2 L2[T]) *Tiered[T] {
	t.l2 = l2
	return t
}

// L1 returns the underlying in-process cache, for callers that need to wire
// hit/miss hooks directly onto it.
func (t *Tiered[T]) L1() *Cache[T] {
	return t.l1
}

// Get checks L1 first. On an L1 miss with a configured L2, it consults L2
// and, on an L2 hit, backfills L1 so the next Get avoids the round trip. An
// L2 error is swallowed: a degraded remote tier falls back to treating the
// key as a cold cache rather than failing the fetch.
func (t *Tiered[T]) Get(ctx context.Context, key string) (T, bool) {
	if v, ok := t.l1.Get(key); ok {
		return v, true
	}
	if t.l2 == nil {
		var zero T
		return zero, false
	}
	v, ok, err := t.l2.Get(ctx, key)
	if err != nil || !ok {
		var zero T
		return zero, false
	}
	t.l1.Set(key, v)
	return v, true
}

// Set writes through to both tiers. An L2 write failure is not returned: L1
// already has the value. Get never writes to L2, so L2 receives the value
// again only on a later Set.
func (t *Tiered[T]) Set(ctx context.Context, key string, value T) {
	t.l1.Set(key, value)
	if t.l2 != nil {
		_ = t.l2.Set(ctx, key, value)
	}
}

// Invalidate removes key from both tiers.
func (t *Tiered[T]) Invalidate(ctx context.Context, key string) {
	t.l1.Invalidate(key)
	if t.l2 != nil {
		_ = t.l2.Invalidate(ctx, key)
	}
}

// Clear empties the L1 tier. L2 is left alone: the L2 interface has no
// bulk-delete operation, since a shared Redis instance may be namespaced by
// prefix but clearing by prefix is not something every backend supports.
func (t *Tiered[T]) Clear() {
	t.l1.Clear()
}

// Package fetchctl serializes context-driven fetches for a single
// collection: it owns a result cache, guarantees at most one in-flight
// fetch, retries transient failures, and makes abort cooperative and silent.
package fetchctl

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/vitaliisemenov/collectionengine/pkg/cache"
	"github.com/vitaliisemenov/collectionengine/pkg/retry"
)

// Status is the FetchController's lifecycle state.
type Status string

const (
	StatusIdle     Status = "idle"
	StatusFetching Status = "fetching"
	StatusError    Status = "error"
)

// ErrNoContext is returned by Refresh when called with no context and none
// was ever established by a prior Fetch.
var ErrNoContext = errors.New("fetchctl: no context to refresh")

// FetchFunc performs the actual network (or local) fetch for context c. It
// must return promptly when ctx is cancelled; fetchctl treats
// context.Canceled specially and never surfaces it as an error.
type FetchFunc[T any, C any] func(ctx context.Context, c C) ([]T, error)

// State is an immutable snapshot of the controller.
type State[T any] struct {
	Status        Status
	Items         []T
	Err           error
	RetryCount    int
	CurrentContext any
}

// MetricsSink receives fetch outcome/duration observations. internal/telemetry.Metrics
// satisfies this structurally.
type MetricsSink interface {
	ObserveFetch(outcome string, duration time.Duration)
}

// Controller owns the cache and the single in-flight fetch for a collection.
type Controller[T any, C any] struct {
	collectionID string
	fetch        FetchFunc[T, C]
	policy       *retry.Policy
	cache        *cache.Tiered[[]T]
	metrics      MetricsSink

	mu          sync.Mutex
	status      Status
	items       []T
	err         error
	retryCount  int
	hasContext  bool
	currentCtx  C
	generation  int64
	cancelFunc  context.CancelFunc
	subscribers []func(State[T])
}

// Option configures a Controller at construction.
type Option[T any, C any] func(*Controller[T, C])

// WithRetries sets the max retry count on non-abort fetch errors.
func WithRetries[T any, C any](maxRetries int) Option[T, C] {
	return func(c *Controller[T, C]) { c.policy.MaxRetries = maxRetries }
}

// WithCache supplies a pre-built result cache (capacity/TTL already set) as
// the controller's L1 tier, discarding any L2 set by an earlier WithL2Cache.
func WithCache[T any, C any](ch *cache.Cache[[]T]) Option[T, C] {
	return func(c *Controller[T, C]) { c.cache = cache.NewTiered[[]T](ch, nil) }
}

// WithL2Cache attaches a remote fallback tier consulted on an L1 miss, e.g.
// a pkg/cache/rediscache.Cache. Apply after WithCache if both are given.
func WithL2Cache[T any, C any](l2 cache.L2[[]T]) Option[T, C] {
	return func(c *Controller[T, C]) { c.cache.WithL2(l2) }
}

// WithRecorder wires rec into the controller's retry policy, so every fetch
// attempt and backoff is observable, and sets the policy's operation name to
// the collection id for metric labeling.
func WithRecorder[T any, C any](rec retry.Recorder) Option[T, C] {
	return func(c *Controller[T, C]) {
		c.policy.Recorder = rec
		c.policy.OperationName = c.collectionID
	}
}

// WithMetrics wires sink to receive per-fetch outcome/duration observations.
func WithMetrics[T any, C any](sink MetricsSink) Option[T, C] {
	return func(c *Controller[T, C]) { c.metrics = sink }
}

// New creates a Controller for collectionID, fetching via fetch.
func New[T any, C any](collectionID string, fetch FetchFunc[T, C], opts ...Option[T, C]) *Controller[T, C] {
	c := &Controller[T, C]{
		collectionID: collectionID,
		fetch:        fetch,
		status:       StatusIdle,
		policy:       retry.DefaultPolicy(),
		cache:        cache.NewTiered[[]T](cache.New[[]T](10, time.Minute), nil),
	}
	c.policy.MaxRetries = 0 // fetchRetries defaults to 0 per the engine's config defaults
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Controller[T, C]) cacheKey(ctx C) string {
	raw, err := json.Marshal(ctx)
	if err != nil {
		raw = []byte(fmt.Sprintf("%v", ctx))
	}
	sum := sha256.Sum256(append([]byte(c.collectionID+"|"), raw...))
	return hex.EncodeToString(sum[:])
}

// Fetch returns cached items for ctx if present and unexpired; otherwise it
// aborts any in-flight fetch, runs a new one with retry, and caches the
// result on success. The latest call always wins: an aborted fetch resolves
// to the pre-existing items rather than an error.
func (c *Controller[T, C]) Fetch(ctx context.Context, fctx C) ([]T, error) {
	key := c.cacheKey(fctx)

	if cached, ok := c.cache.Get(ctx, key); ok {
		c.mu.Lock()
		c.status = StatusIdle
		c.items = cached
		c.err = nil
		c.hasContext = true
		c.currentCtx = fctx
		c.mu.Unlock()
		c.emit()
		return cached, nil
	}

	c.mu.Lock()
	if c.cancelFunc != nil {
		c.cancelFunc()
	}
	c.generation++
	gen := c.generation
	runCtx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.status = StatusFetching
	c.hasContext = true
	c.currentCtx = fctx
	c.mu.Unlock()
	c.emit()

	fetchStart := time.Now()
	result, err := retry.Do(runCtx, c.policy, func() ([]T, error) {
		return c.fetch(runCtx, fctx)
	})

	c.mu.Lock()

	if gen != c.generation {
		// Superseded by a newer fetch; abort is cooperative and silent.
		items := c.items
		c.mu.Unlock()
		return items, nil
	}

	switch {
	case err != nil && errors.Is(err, context.Canceled):
		c.status = StatusIdle
		items := c.items
		c.mu.Unlock()
		c.observeFetch("aborted", time.Since(fetchStart))
		c.emit()
		return items, nil
	case err != nil:
		c.status = StatusError
		c.err = err
		items := c.items
		c.mu.Unlock()
		c.observeFetch("error", time.Since(fetchStart))
		c.emit()
		return items, nil
	default:
		c.cache.Set(runCtx, key, result)
		c.status = StatusIdle
		c.err = nil
		c.items = result
		c.mu.Unlock()
		c.observeFetch("success", time.Since(fetchStart))
		c.emit()
		return result, nil
	}
}

func (c *Controller[T, C]) observeFetch(outcome string, d time.Duration) {
	if c.metrics != nil {
		c.metrics.ObserveFetch(outcome, d)
	}
}

// Cache returns the controller's underlying result cache, so callers can
// wire hit/miss hooks or otherwise observe the L1 tier directly.
func (c *Controller[T, C]) Cache() *cache.Cache[[]T] {
	return c.cache.L1()
}

// Refresh invalidates the cache entry for ctx (defaulting to the current
// context) and fetches again. Calling Refresh with no context ever
// established is a programmer error.
func (c *Controller[T, C]) Refresh(ctx context.Context, fctx *C) ([]T, error) {
	c.mu.Lock()
	var target C
	if fctx != nil {
		target = *fctx
	} else if c.hasContext {
		target = c.currentCtx
	} else {
		c.mu.Unlock()
		return nil, ErrNoContext
	}
	key := c.cacheKey(target)
	c.mu.Unlock()

	c.cache.Invalidate(ctx, key)
	return c.Fetch(ctx, target)
}

// InvalidateCache clears every cached fetch result for this controller.
func (c *Controller[T, C]) InvalidateCache() {
	c.cache.Clear()
}

// InvalidateCacheForContext clears the cached result for ctx only.
func (c *Controller[T, C]) InvalidateCacheForContext(ctx context.Context, fctx C) {
	c.cache.Invalidate(ctx, c.cacheKey(fctx))
}

// GetState returns the current snapshot.
func (c *Controller[T, C]) GetState() State[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ctxAny any
	if c.hasContext {
		ctxAny = c.currentCtx
	}
	return State[T]{
		Status:         c.status,
		Items:          c.items,
		Err:            c.err,
		RetryCount:     c.retryCount,
		CurrentContext: ctxAny,
	}
}

// GetContext returns the last context used for a fetch, if any.
func (c *Controller[T, C]) GetContext() (C, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentCtx, c.hasContext
}

// IsFetching reports whether a fetch is currently in flight.
func (c *Controller[T, C]) IsFetching() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status == StatusFetching
}

// Subscribe registers cb to be called with every new state. It returns an
// unsubscribe function.
func (c *Controller[T, C]) Subscribe(cb func(State[T])) func() {
	c.mu.Lock()
	c.subscribers = append(c.subscribers, cb)
	idx := len(c.subscribers) - 1
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if idx < len(c.subscribers) {
			c.subscribers[idx] = nil
		}
	}
}

func (c *Controller[T, C]) emit() {
	c.mu.Lock()
	subs := make([]func(State[T]), 0, len(c.subscribers))
	for _, s := range c.subscribers {
		if s != nil {
			subs = append(subs, s)
		}
	}
	c.mu.Unlock()

	state := c.GetState()
	for _, s := range subs {
		s(state)
	}
}

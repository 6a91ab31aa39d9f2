// Package collection composes a FetchController and a SyncQueue into a
// consumer-facing optimistic store: local mutations apply immediately and
// are queued for the server, fetches replace the authoritative item set.
package collection

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vitaliisemenov/collectionengine/internal/telemetry"
	"github.com/vitaliisemenov/collectionengine/pkg/cache"
	"github.com/vitaliisemenov/collectionengine/pkg/fetchctl"
	"github.com/vitaliisemenov/collectionengine/pkg/syncqueue"
	"github.com/vitaliisemenov/collectionengine/pkg/transport"
)

// Collection is the top-level engine type a consumer constructs per logical
// resource (one per Config.ID, enforced by Registry).
type Collection[T any, C any] struct {
	id   string
	idOf func(T) string

	mu      sync.Mutex
	items   *orderedMap[T]
	ctx     C
	loading bool
	closed  bool

	refetchOnMutation bool
	subscribers       []func(State[T, C])

	fetcher *fetchctl.Controller[T, C]
	queue   *syncqueue.Queue[T]
}

// metricsOrNil converts a possibly-nil *telemetry.Metrics into a
// syncqueue.DrainObserver. Assigning a nil *telemetry.Metrics directly to an
// interface-typed field would produce a non-nil interface wrapping a nil
// pointer, so the conversion must happen through a function boundary.
func metricsOrNil(m *telemetry.Metrics) syncqueue.DrainObserver {
	if m == nil {
		return nil
	}
	return m
}

func defaultIDOf[T any]() func(T) string {
	return func(v T) string {
		if m, ok := any(v).(map[string]any); ok {
			if id, ok := m["id"].(string); ok {
				return id
			}
		}
		return ""
	}
}

// New constructs a Collection per cfg. If cfg.ServerItems is set the initial
// fetch is skipped; otherwise, when cfg.Handler is non-nil, an initial fetch
// against cfg.InitialContext is kicked off in the background.
func New[T any, C any](cfg Config[T, C]) *Collection[T, C] {
	if cfg.SyncDebounce < 0 {
		cfg.SyncDebounce = 300 * time.Millisecond
	}
	if cfg.SyncRetries == 0 {
		cfg.SyncRetries = 3
	}
	if cfg.CacheCapacity == 0 {
		cfg.CacheCapacity = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 60 * time.Second
	}
	idOf := cfg.IDOf
	if idOf == nil {
		idOf = defaultIDOf[T]()
	}

	col := &Collection[T, C]{
		id:                cfg.ID,
		idOf:              idOf,
		items:             newOrderedMap[T](),
		ctx:               cfg.InitialContext,
		refetchOnMutation: cfg.RefetchOnMutation,
	}

	if cfg.Handler != nil {
		fetchCache := cache.New[[]T](cfg.CacheCapacity, cfg.CacheTTL)
		if cfg.Metrics != nil {
			fetchCache.WithHitMissHooks(cfg.Metrics.CacheHits.Inc, cfg.Metrics.CacheMisses.Inc)
		}
		fetchOpts := []fetchctl.Option[T, C]{
			fetchctl.WithRetries[T, C](cfg.FetchRetries),
			fetchctl.WithCache[T, C](fetchCache),
		}
		if cfg.Metrics != nil {
			fetchOpts = append(fetchOpts, fetchctl.WithMetrics[T, C](cfg.Metrics), fetchctl.WithRecorder[T, C](cfg.Metrics))
		}
		if cfg.L2Cache != nil {
			fetchOpts = append(fetchOpts, fetchctl.WithL2Cache[T, C](cfg.L2Cache))
		}
		col.fetcher = fetchctl.New[T, C](cfg.ID, func(ctx context.Context, fctx C) ([]T, error) {
			resp, err := cfg.Handler(ctx, transport.Request[T, C]{Query: &fctx})
			if err != nil {
				return nil, err
			}
			return resp.Results, nil
		}, fetchOpts...)
	}

	col.queue = syncqueue.New(syncqueue.Config[T]{
		Debounce:   cfg.SyncDebounce,
		MaxRetries: cfg.SyncRetries,
		Notify:     col.notify,
		Metrics:    metricsOrNil(cfg.Metrics),
		Handler: func(ctx context.Context, changes []syncqueue.Change[T]) (map[string]syncqueue.Result, error) {
			if cfg.Handler == nil {
				results := make(map[string]syncqueue.Result, len(changes))
				for _, ch := range changes {
					results[ch.ID] = syncqueue.Result{Status: "success"}
				}
				return results, nil
			}
			resp, err := cfg.Handler(ctx, transport.Request[T, C]{Changes: changes})
			if err != nil {
				return nil, err
			}
			results := make(map[string]syncqueue.Result, len(resp.SyncResults))
			for id, r := range resp.SyncResults {
				results[id] = syncqueue.Result{Status: r.Status, Error: r.Error}
			}
			if col.refetchOnMutation && hasSuccessfulCreateOrRemove(changes, results) {
				go col.Refresh(context.Background())
			}
			return results, nil
		},
	})

	if len(cfg.ServerItems) > 0 {
		col.items.Replace(cfg.ServerItems, idOf)
	} else if cfg.Handler != nil {
		go col.Refresh(context.Background())
	}

	return col
}

// deepClone round-trips v through JSON to produce an independent copy —
// the generic stand-in for "structured clone" since T carries no
// clone-method constraint.
func deepClone[T any](v T) T {
	var out T
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func assignID[T any](v T, id string) T {
	if m, ok := any(v).(map[string]any); ok {
		m["id"] = id
		return v
	}
	return v // structs without a map-shaped T keep whatever id the caller set
}

// hasSuccessfulCreateOrRemove reports whether the batch contains at least
// one Create or Remove change whose per-item result succeeded. Update
// changes, and any change that failed, never justify a refetch on their own.
func hasSuccessfulCreateOrRemove[T any](changes []syncqueue.Change[T], results map[string]syncqueue.Result) bool {
	for _, ch := range changes {
		if ch.Type != syncqueue.Create && ch.Type != syncqueue.Remove {
			continue
		}
		if r, ok := results[ch.ID]; ok && r.Status == "success" {
			return true
		}
	}
	return false
}

// Create assigns or accepts record's id, inserts it into items, and enqueues
// a create change. Returns the assigned id.
func (c *Collection[T, C]) Create(record T) (string, error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}
	id := c.idOf(record)
	if id == "" {
		id = uuid.New().String()
		record = assignID(record, id)
	}
	c.items.Set(id, record)
	c.mu.Unlock()

	c.queue.Enqueue(syncqueue.Change[T]{ID: id, Type: syncqueue.Create, Data: record})
	c.notify()
	return id, nil
}

// Update applies mutator to a deep clone of the current record for id and
// replaces it in items. No-op if id is absent.
func (c *Collection[T, C]) Update(id string, mutator func(*T)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	current, ok := c.items.Get(id)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	updated := deepClone(current)
	mutator(&updated)
	c.items.Set(id, updated)
	c.mu.Unlock()

	c.queue.Enqueue(syncqueue.Change[T]{ID: id, Type: syncqueue.Update, Data: updated})
	c.notify()
	return nil
}

// Remove captures the current data for id, deletes it from items, and
// enqueues a remove change carrying the last known data. No-op if absent.
func (c *Collection[T, C]) Remove(id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	lastKnown, ok := c.items.Get(id)
	if !ok {
		c.mu.Unlock()
		return nil
	}
	c.items.Delete(id)
	c.mu.Unlock()

	c.queue.Enqueue(syncqueue.Change[T]{ID: id, Type: syncqueue.Remove, Data: lastKnown})
	c.notify()
	return nil
}

// SetContext applies mutator to a clone of the current context. If the
// result differs (by JSON equality) from the old context, the fetch cache
// entry for the old context is invalidated and a fetch against the new
// context runs, replacing items on success.
func (c *Collection[T, C]) SetContext(ctx context.Context, mutator func(*C)) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	oldCtx := c.ctx
	newCtx := deepClone(oldCtx)
	mutator(&newCtx)
	c.mu.Unlock()

	oldRaw, _ := json.Marshal(oldCtx)
	newRaw, _ := json.Marshal(newCtx)
	if string(oldRaw) == string(newRaw) {
		return nil
	}

	c.mu.Lock()
	c.ctx = newCtx
	c.mu.Unlock()
	c.notify()

	if c.fetcher == nil {
		return nil
	}
	c.fetcher.InvalidateCacheForContext(ctx, oldCtx)
	items, err := c.fetcher.Fetch(ctx, newCtx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	c.mu.Lock()
	c.items.Replace(items, c.idOf)
	c.mu.Unlock()
	c.notify()
	return nil
}

// Refresh forces a cache-bypassing fetch with the current context; on
// success items is replaced wholesale. Locally pending changes remain
// queued but their visible effect on items is lost until they resync.
func (c *Collection[T, C]) Refresh(ctx context.Context) error {
	if c.fetcher == nil {
		return nil
	}
	c.mu.Lock()
	c.loading = true
	fctx := c.ctx
	c.mu.Unlock()
	c.notify()

	items, err := c.fetcher.Refresh(ctx, &fctx)

	c.mu.Lock()
	c.loading = false
	if err == nil {
		c.items.Replace(items, c.idOf)
	}
	c.mu.Unlock()
	c.notify()

	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return nil
}

// PauseSync forwards to the SyncQueue.
func (c *Collection[T, C]) PauseSync() {
	c.queue.PauseSync()
}

// ResumeSync forwards to the SyncQueue and then triggers a refresh — which
// may temporarily resurrect a locally-removed row until its pending remove
// drains. This is documented, expected behavior, not a bug.
func (c *Collection[T, C]) ResumeSync() {
	c.queue.ResumeSync()
	go c.Refresh(context.Background())
}

// GetItem returns a lightweight handle for id: its current data (if any),
// sync status, and bound Update/Remove convenience methods.
func (c *Collection[T, C]) GetItem(id string) ItemHandle[T] {
	c.mu.Lock()
	data, found := c.items.Get(id)
	c.mu.Unlock()

	return ItemHandle[T]{
		ID:     id,
		Data:   data,
		Found:  found,
		Status: c.queue.Status(id),
		update: func(mutator func(*T)) { _ = c.Update(id, mutator) },
		remove: func() { _ = c.Remove(id) },
	}
}

// GetItemStatus returns the sync status for id, or nil if idle.
func (c *Collection[T, C]) GetItemStatus(id string) *ItemStatus {
	return c.queue.Status(id)
}

// GetState returns a structurally new snapshot of the collection.
func (c *Collection[T, C]) GetState() State[T, C] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State[T, C]{
		Items:   c.items.Values(),
		Context: c.ctx,
		Loading: c.loading,
		Syncing: c.queue.IsSyncing(),
	}
}

// Subscribe registers cb to be called with every new snapshot. Returns an
// unsubscribe function.
func (c *Collection[T, C]) Subscribe(cb func(State[T, C])) func() {
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

func (c *Collection[T, C]) notify() {
	c.mu.Lock()
	subs := make([]func(State[T, C]), 0, len(c.subscribers))
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

// Close stops the sync queue from scheduling further drains and marks the
// collection closed to new mutations. Already-queued work is abandoned.
func (c *Collection[T, C]) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.queue.PauseSync()
}

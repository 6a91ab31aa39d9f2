package collection

import (
	"time"

	"github.com/vitaliisemenov/collectionengine/internal/telemetry"
	"github.com/vitaliisemenov/collectionengine/pkg/cache"
	"github.com/vitaliisemenov/collectionengine/pkg/syncqueue"
	"github.com/vitaliisemenov/collectionengine/pkg/transport"
)

// Config configures a Collection. ID and InitialContext are the only
// required fields; everything else defaults per the documented values.
type Config[T any, C any] struct {
	ID             string
	InitialContext C
	Handler        transport.Handler[T, C] // nil => pure local mode, no network
	ServerItems    []T                      // when set, skips the initial fetch
	IDOf           func(T) string           // if nil, reads the "id" key of a map[string]any; other types get ""

	SyncDebounce time.Duration // default 300ms; negative means default, 0 is honored (drain on next tick)
	SyncRetries  int           // default 3
	FetchRetries int           // default 0

	CacheCapacity int           // default 10
	CacheTTL      time.Duration // default 60s

	// L2Cache is an optional remote fallback tier consulted on an L1 miss,
	// e.g. a pkg/cache/rediscache.Cache shared across process instances.
	L2Cache cache.L2[[]T]

	RefetchOnMutation bool

	// Metrics is optional; when set, fetch/drain/cache activity is reported
	// through it.
	Metrics *telemetry.Metrics
}

// SyncStatus re-exports syncqueue's status vocabulary so callers of
// Collection never need to import pkg/syncqueue directly.
type SyncStatus = syncqueue.SyncStatus

// ItemStatus re-exports syncqueue's per-item projection.
type ItemStatus = syncqueue.ItemStatus

// State is an immutable snapshot handed to subscribers and returned by
// GetState. Items is a structurally new slice on every snapshot.
type State[T any, C any] struct {
	Items   []T
	Context C
	Loading bool
	Syncing bool
}

// ItemHandle is a lightweight view onto one item: its data and sync status at
// the time GetItem was called, plus convenience mutators that forward to the
// owning Collection. GetItem builds a new handle value on every call; handles
// are not cached per id.
type ItemHandle[T any] struct {
	ID     string
	Data   T
	Found  bool
	Status *ItemStatus

	update func(mutator func(*T))
	remove func()
}

// Update forwards to the owning Collection's Update(h.ID, mutator).
func (h ItemHandle[T]) Update(mutator func(*T)) {
	h.update(mutator)
}

// Remove forwards to the owning Collection's Remove(h.ID).
func (h ItemHandle[T]) Remove() {
	h.remove()
}

// Package transport defines the wire contract between a Collection and the
// server: a single request/response shape carrying an optional fetch query
// and an optional batch of pending changes.
package transport

import (
	"context"
	"time"

	"github.com/vitaliisemenov/collectionengine/pkg/syncqueue"
)

// Request carries either a fetch query, a batch of changes, or both. Scope
// is an optional namespace the server may use to partition records (mirrors
// internal/store's scope-then-id keying).
type Request[T any, Q any] struct {
	Scope   *string
	Query   *Q
	Changes []syncqueue.Change[T]
}

// SyncResult is the per-change outcome keyed by change id in Response. The
// keyed-object shape is canonical; pkg/transport/legacy.go also accepts the
// array-of-{id,...} shape some servers emit.
type SyncResult struct {
	Status string // "success" | "error"
	Error  string
}

// Response is the authoritative result of a Request. Results, when present,
// replaces the caller's items in full (it is never a partial patch).
type Response[T any] struct {
	Results         []T
	SyncResults     map[string]SyncResult
	ServerTimeStamp *time.Time
}

// Handler is the single transport entrypoint a Collection is configured
// with. A nil Handler means the collection runs in pure local mode (no
// network, no fetch; every mutation is marked synced without a network call).
type Handler[T any, Q any] func(ctx context.Context, req Request[T, Q]) (Response[T], error)

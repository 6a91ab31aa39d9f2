// Package dispatcher is a reference server-side implementation of the
// transport contract: it turns a pkg/transport.Request into calls against
// consumer-supplied Fetcher/Creator/Updater/Remover callbacks, fanning
// changes out concurrently and aggregating per-id sync results.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/vitaliisemenov/collectionengine/pkg/syncqueue"
	"github.com/vitaliisemenov/collectionengine/pkg/transport"
)

// Fetcher resolves the authoritative item list for a scope/query pair.
type Fetcher[T any, Q any] func(ctx context.Context, scope string, query *Q) ([]T, error)

// Creator persists a new record and returns the stored form (which may
// differ from the input, e.g. server-assigned fields).
type Creator[T any] func(ctx context.Context, scope string, data T) (T, error)

// Updater persists a full replacement for id.
type Updater[T any] func(ctx context.Context, scope string, id string, data T) (T, error)

// Remover deletes id. A missing id is not an error.
type Remover[T any] func(ctx context.Context, scope string, id string) error

// Dispatcher wires the four callbacks into a transport.Handler.
type Dispatcher[T any, Q any] struct {
	Fetch  Fetcher[T, Q]
	Create Creator[T]
	Update Updater[T]
	Remove Remover[T]
	Logger *slog.Logger
}

// Handler returns a transport.Handler[T, Q] that dispatches req against d's
// callbacks. Fetch and sync are both handled if the request carries both.
func (d *Dispatcher[T, Q]) Handler() transport.Handler[T, Q] {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, req transport.Request[T, Q]) (transport.Response[T], error) {
		scope := ""
		if req.Scope != nil {
			scope = *req.Scope
		}

		var resp transport.Response[T]

		if req.Query != nil && d.Fetch != nil {
			items, err := d.Fetch(ctx, scope, req.Query)
			if err != nil {
				return transport.Response[T]{}, fmt.Errorf("dispatcher: fetch: %w", err)
			}
			resp.Results = items
		}

		if len(req.Changes) > 0 {
			resp.SyncResults = d.dispatchChanges(ctx, scope, req.Changes, logger)
		}

		return resp, nil
	}
}

func (d *Dispatcher[T, Q]) dispatchChanges(ctx context.Context, scope string, changes []syncqueue.Change[T], logger *slog.Logger) map[string]transport.SyncResult {
	results := make(map[string]transport.SyncResult, len(changes))
	var mu sync.Mutex

	setResult := func(id string, r transport.SyncResult) {
		mu.Lock()
		defer mu.Unlock()
		results[id] = r
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, change := range changes {
		change := change
		group.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("dispatcher callback panicked", "id", change.ID, "panic", r)
					setResult(change.ID, transport.SyncResult{Status: "error", Error: fmt.Sprintf("panic: %v", r)})
				}
			}()

			setResult(change.ID, d.applyOne(groupCtx, scope, change))
			return nil
		})
	}
	_ = group.Wait() // per-id errors are already captured in results; never aborts the batch

	return results
}

func (d *Dispatcher[T, Q]) applyOne(ctx context.Context, scope string, change syncqueue.Change[T]) transport.SyncResult {
	var err error
	switch change.Type {
	case syncqueue.Create:
		if d.Create != nil {
			_, err = d.Create(ctx, scope, change.Data)
		}
	case syncqueue.Update:
		if d.Update != nil {
			_, err = d.Update(ctx, scope, change.ID, change.Data)
		}
	case syncqueue.Remove:
		if d.Remove != nil {
			err = d.Remove(ctx, scope, change.ID)
		}
	default:
		err = fmt.Errorf("unknown change type %q", change.Type)
	}

	if err != nil {
		return transport.SyncResult{Status: "error", Error: err.Error()}
	}
	return transport.SyncResult{Status: "success"}
}

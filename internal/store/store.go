// Package store is an in-memory, mutex-guarded record store keyed by scope
// then id. It backs internal/dispatcher's demo Fetcher/Creator/Updater/
// Remover callbacks so cmd/collectiond can run without an external database.
//
// WARNING: data is not persisted; it is lost on process restart. This is a
// reference implementation for exercising the collection engine end to end,
// not a production datastore.
package store

import (
	"log/slog"
	"sync"
)

const defaultScopeCapacity = 10000

// Store is a generic scope → id → record map.
type Store[T any] struct {
	mu       sync.RWMutex
	scopes   map[string]map[string]T
	order    map[string][]string // insertion order per scope, for FIFO eviction
	logger   *slog.Logger
	capacity int
}

// New creates an empty Store. logger defaults to slog.Default if nil.
func New[T any](logger *slog.Logger) *Store[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store[T]{
		scopes:   make(map[string]map[string]T),
		order:    make(map[string][]string),
		logger:   logger,
		capacity: defaultScopeCapacity,
	}
}

// Put inserts or replaces the record at (scope, id), evicting the oldest
// entry in that scope (FIFO) if capacity is exceeded.
func (s *Store[T]) Put(scope, id string, record T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	bucket, ok := s.scopes[scope]
	if !ok {
		bucket = make(map[string]T)
		s.scopes[scope] = bucket
	}

	if _, exists := bucket[id]; !exists {
		if len(bucket) >= s.capacity {
			oldest := s.order[scope][0]
			s.order[scope] = s.order[scope][1:]
			delete(bucket, oldest)
			s.logger.Warn("store capacity exceeded, evicting oldest record", "scope", scope, "evicted", oldest)
		}
		s.order[scope] = append(s.order[scope], id)
	}
	bucket[id] = record
}

// Get returns the record at (scope, id).
func (s *Store[T]) Get(scope, id string) (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket, ok := s.scopes[scope]
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := bucket[id]
	return v, ok
}

// List returns every record in scope, in insertion order.
func (s *Store[T]) List(scope string) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.scopes[scope]
	ids := s.order[scope]
	out := make([]T, 0, len(ids))
	for _, id := range ids {
		if v, ok := bucket[id]; ok {
			out = append(out, v)
		}
	}
	return out
}

// Delete removes the record at (scope, id). No-op if absent.
func (s *Store[T]) Delete(scope, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.scopes[scope]
	if !ok {
		return nil
	}
	if _, ok := bucket[id]; !ok {
		return nil
	}
	delete(bucket, id)
	ids := s.order[scope]
	for i, existing := range ids {
		if existing == id {
			s.order[scope] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	return nil
}

// Package syncqueue accepts, debounces, batches, retries, and reconciles
// optimistic local mutations against a server, tracking a per-change sync
// status until each change reaches a terminal outcome.
package syncqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vitaliisemenov/collectionengine/pkg/retry"
)

// ChangeType identifies the kind of mutation a Change represents.
type ChangeType string

const (
	Create ChangeType = "create"
	Update ChangeType = "update"
	Remove ChangeType = "remove"
)

// Change is a pending intent to mutate the server record identified by ID.
type Change[T any] struct {
	ID   string
	Type ChangeType
	Data T
}

// SyncStatus is the lifecycle state of a queued change.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusError   SyncStatus = "error"
)

// ItemStatus projects a change's queue state for a given id. A nil
// *ItemStatus means idle: the id is in none of queue/inFlight/errors.
type ItemStatus struct {
	Type    ChangeType
	Status  SyncStatus
	Retries int
	Err     error
}

// Result is the server's outcome for one change, keyed by change id in the
// map the Handler returns.
type Result struct {
	Status string // "success" | "error"
	Error  string
}

// Handler ships a batch of changes to the server and returns a per-id
// result. Context cancellation signals the batch was aborted.
type Handler[T any] func(ctx context.Context, changes []Change[T]) (map[string]Result, error)

type queueEntry[T any] struct {
	change      Change[T]
	retries     int
	lastErr     error
	nextRetryAt time.Time
}

// Queue is the SyncQueue: three maps (queue, inFlight, errors) keyed by
// change id, drained on a debounce timer. A change enqueued while its id is
// in flight waits in queue for the next batch, so an id can be in inFlight
// and queue at once; it is never in errors and queue at once.
type Queue[T any] struct {
	mu       sync.Mutex
	queue    map[string]*queueEntry[T]
	inFlight map[string]*queueEntry[T]
	errors   map[string]*queueEntry[T]
	paused   bool
	syncing  bool

	debounce   time.Duration
	maxRetries int
	backoff    *retry.Policy
	handler    Handler[T]
	notify     func()
	logger     *slog.Logger
	clock      func() time.Time
	metrics    DrainObserver

	timer  *time.Timer
	cancel context.CancelFunc
}

// DrainObserver receives per-drain outcome/duration observations.
// internal/telemetry.Metrics satisfies this structurally via ObserveDrain.
type DrainObserver interface {
	ObserveDrain(outcome string, duration time.Duration)
}

// DepthObserver is an optional extension of DrainObserver: a metrics sink
// that also wants to track the live count of queued+inFlight+errored
// changes. internal/telemetry.Metrics satisfies this via its QueueDepth
// gauge.
type DepthObserver interface {
	SetQueueDepth(n int)
}

// Config configures a new Queue.
type Config[T any] struct {
	// Debounce defaults to 300ms when negative. A zero value is honored as
	// written: the queue drains on the next tick rather than waiting.
	Debounce   time.Duration
	MaxRetries int
	Handler    Handler[T]
	Notify     func()
	Logger     *slog.Logger
	Metrics    DrainObserver
}

// New creates a Queue. Debounce defaults to 300ms, MaxRetries to 3, matching
// the engine's documented defaults.
func New[T any](cfg Config[T]) *Queue[T] {
	if cfg.Debounce < 0 {
		cfg.Debounce = 300 * time.Millisecond
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.Notify == nil {
		cfg.Notify = func() {}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	backoff := retry.DefaultPolicy()
	backoff.MaxRetries = cfg.MaxRetries
	return &Queue[T]{
		queue:      make(map[string]*queueEntry[T]),
		inFlight:   make(map[string]*queueEntry[T]),
		errors:     make(map[string]*queueEntry[T]),
		debounce:   cfg.Debounce,
		maxRetries: cfg.MaxRetries,
		backoff:    backoff,
		handler:    cfg.Handler,
		notify:     cfg.Notify,
		logger:     cfg.Logger,
		clock:      time.Now,
		metrics:    cfg.Metrics,
	}
}

// WithClock overrides the time source, for deterministic backoff tests.
func (q *Queue[T]) WithClock(clock func() time.Time) *Queue[T] {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clock = clock
	return q
}

// Enqueue adds a Change, coalescing with any existing queue/error entry for
// the same id per the documented coalescing table.
func (q *Queue[T]) Enqueue(c Change[T]) {
	q.mu.Lock()
	q.enqueueLocked(c)
	q.scheduleDrainLocked()
	q.reportDepthLocked()
	q.mu.Unlock()
	q.notify()
}

// reportDepthLocked pushes the current queued+inFlight+errored count to the
// configured metrics sink, if it implements DepthObserver. Must be called
// with q.mu held.
func (q *Queue[T]) reportDepthLocked() {
	depth, ok := q.metrics.(DepthObserver)
	if !ok {
		return
	}
	depth.SetQueueDepth(len(q.queue) + len(q.inFlight) + len(q.errors))
}

func (q *Queue[T]) enqueueLocked(c Change[T]) {
	id := c.ID

	if _, ok := q.inFlight[id]; ok {
		// inFlight entries are immutable; the new intent waits for the next batch.
		q.queue[id] = &queueEntry[T]{change: c}
		return
	}

	if errEntry, ok := q.errors[id]; ok {
		delete(q.errors, id)
		q.queue[id] = &queueEntry[T]{change: c, retries: errEntry.retries}
		return
	}

	existing, ok := q.queue[id]
	if !ok {
		q.queue[id] = &queueEntry[T]{change: c}
		return
	}

	switch existing.change.Type {
	case Create:
		switch c.Type {
		case Remove:
			delete(q.queue, id) // never born on the server
		default: // Create or Update both just replace the carried data
			existing.change.Data = c.Data
		}
	case Update:
		switch c.Type {
		case Remove:
			existing.change.Type = Remove
			existing.change.Data = c.Data
		default:
			existing.change.Data = c.Data
		}
	case Remove:
		q.logger.Warn("ignoring mutation enqueued against a pending remove", "id", id, "type", c.Type)
	}
}

func (q *Queue[T]) scheduleDrainLocked() {
	if q.paused {
		return
	}
	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(q.debounce, q.drain)
}

// scheduleRetryLocked reschedules the drain timer after a drain completes or
// finds nothing eligible. Fresh queued work is debounced as usual; if only
// errored entries remain, the timer is set for the earliest nextRetryAt
// instead of a fixed debounce, so a drain always eventually re-examines
// every errored entry rather than firing too early and giving up. Must be
// called with q.mu held.
func (q *Queue[T]) scheduleRetryLocked() {
	if q.paused {
		return
	}

	delay := q.debounce
	if len(q.queue) == 0 {
		earliest, ok := q.earliestRetryLocked()
		if !ok {
			return
		}
		if until := earliest.Sub(q.clock()); until > 0 {
			delay = until
		} else {
			delay = 0
		}
	}

	if q.timer != nil {
		q.timer.Stop()
	}
	q.timer = time.AfterFunc(delay, q.drain)
}

// earliestRetryLocked returns the soonest nextRetryAt among errored entries
// that haven't exhausted maxRetries. Must be called with q.mu held.
func (q *Queue[T]) earliestRetryLocked() (time.Time, bool) {
	var earliest time.Time
	found := false
	for _, e := range q.errors {
		if e.retries >= q.maxRetries {
			continue
		}
		if !found || e.nextRetryAt.Before(earliest) {
			earliest = e.nextRetryAt
			found = true
		}
	}
	return earliest, found
}

func (q *Queue[T]) drain() {
	q.mu.Lock()
	if q.paused || q.syncing {
		q.mu.Unlock()
		return
	}

	now := q.clock()
	batch := make(map[string]Change[T])
	for id, e := range q.queue {
		batch[id] = e.change
		q.inFlight[id] = e
		delete(q.queue, id)
	}
	for id, e := range q.errors {
		if e.retries < q.maxRetries && !now.Before(e.nextRetryAt) {
			batch[id] = e.change
			q.inFlight[id] = e
			delete(q.errors, id)
		}
	}

	if len(batch) == 0 {
		// Nothing eligible yet, but errored entries may still be waiting out
		// their backoff: reschedule for the earliest nextRetryAt instead of
		// giving up, or the retry would never fire again.
		q.scheduleRetryLocked()
		q.mu.Unlock()
		return
	}

	q.syncing = true
	changes := make([]Change[T], 0, len(batch))
	for _, c := range batch {
		changes = append(changes, c)
	}
	q.mu.Unlock()
	q.notify()

	ctx, cancel := context.WithCancel(context.Background())
	q.mu.Lock()
	q.cancel = cancel
	q.mu.Unlock()

	drainStart := q.clock()
	results, err := q.handler(ctx, changes)

	q.mu.Lock()
	outcome := "success"
	for id, e := range q.inFlight {
		res, present := results[id]
		switch {
		case present && res.Status == "success":
			delete(q.inFlight, id)
		case present:
			q.markErrorLocked(id, e, errors.New(res.Error))
			outcome = "error"
		case err != nil && errors.Is(err, context.Canceled):
			q.markErrorLocked(id, e, errors.New("aborted"))
			outcome = "aborted"
		case err != nil:
			q.markErrorLocked(id, e, err)
			outcome = "error"
		default:
			q.markErrorLocked(id, e, errors.New("missing result"))
			outcome = "error"
		}
	}
	q.syncing = false
	needsDrain := len(q.queue) > 0 || q.hasRetriableErrorsLocked()
	if needsDrain {
		q.scheduleRetryLocked()
	}
	if q.metrics != nil {
		q.metrics.ObserveDrain(outcome, q.clock().Sub(drainStart))
	}
	q.reportDepthLocked()
	q.mu.Unlock()
	q.notify()
}

func (q *Queue[T]) markErrorLocked(id string, e *queueEntry[T], err error) {
	e.lastErr = err
	e.retries++
	e.nextRetryAt = q.clock().Add(q.retryDelay(e.retries))
	delete(q.inFlight, id)
	if queued, ok := q.queue[id]; ok {
		// a newer change for id arrived while this one was in flight; it
		// replaces the failed one and carries the retry count forward
		queued.retries = e.retries
		return
	}
	q.errors[id] = e
}

func (q *Queue[T]) retryDelay(retries int) time.Duration {
	delay := q.backoff.BaseDelay
	for i := 1; i < retries; i++ {
		delay = time.Duration(float64(delay) * q.backoff.Multiplier)
		if delay > q.backoff.MaxDelay {
			delay = q.backoff.MaxDelay
			break
		}
	}
	return delay
}

func (q *Queue[T]) hasRetriableErrorsLocked() bool {
	for _, e := range q.errors {
		if e.retries < q.maxRetries {
			return true
		}
	}
	return false
}

// PauseSync stops future drains until ResumeSync is called.
func (q *Queue[T]) PauseSync() {
	q.mu.Lock()
	q.paused = true
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()
	q.notify()
}

// ResumeSync clears the pause flag and schedules an immediate drain.
func (q *Queue[T]) ResumeSync() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.notify()
	q.Flush()
}

// CancelItem drops any queued/inflight/errored entry for id. Local state
// effects of prior mutations are not undone.
func (q *Queue[T]) CancelItem(id string) {
	q.mu.Lock()
	delete(q.queue, id)
	delete(q.inFlight, id)
	delete(q.errors, id)
	q.reportDepthLocked()
	q.mu.Unlock()
	q.notify()
}

// Flush forces an immediate drain, bypassing the debounce timer.
func (q *Queue[T]) Flush() {
	q.mu.Lock()
	if q.timer != nil {
		q.timer.Stop()
	}
	q.mu.Unlock()
	q.drain()
}

// Status projects the current sync state for id, or nil if idle.
func (q *Queue[T]) Status(id string) *ItemStatus {
	q.mu.Lock()
	defer q.mu.Unlock()

	if e, ok := q.inFlight[id]; ok {
		return &ItemStatus{Type: e.change.Type, Status: StatusSyncing, Retries: e.retries}
	}
	if e, ok := q.errors[id]; ok {
		return &ItemStatus{Type: e.change.Type, Status: StatusError, Retries: e.retries, Err: e.lastErr}
	}
	if e, ok := q.queue[id]; ok {
		return &ItemStatus{Type: e.change.Type, Status: StatusPending, Retries: e.retries}
	}
	return nil
}

// IsSyncing reports whether a drain is currently in flight.
func (q *Queue[T]) IsSyncing() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.syncing
}

// IsPaused reports whether the queue is paused.
func (q *Queue[T]) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// Idle reports whether the queue has no queued work and no retriable
// errors — the condition the documented drain invariant requires to hold
// once isSyncing is false and the debounce window has elapsed.
func (q *Queue[T]) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.queue) == 0 && !q.hasRetriableErrorsLocked()
}

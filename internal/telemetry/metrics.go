// Package telemetry exposes Prometheus metrics for the engine's fetch,
// sync-drain, and cache activity, plus a pkg/retry.Recorder implementation
// so retry attempts/backoffs are observable too.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is the engine's Prometheus surface. Construct one per process
// (or per test, against a fresh *prometheus.Registry) via New.
type Metrics struct {
	FetchTotal    *prometheus.CounterVec
	FetchDuration *prometheus.HistogramVec

	DrainTotal    *prometheus.CounterVec
	DrainDuration prometheus.Histogram
	QueueDepth    prometheus.Gauge

	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	RetryAttempts *prometheus.CounterVec
	RetryBackoff  *prometheus.HistogramVec
}

// New registers the engine's metrics under namespace into reg. Pass
// prometheus.NewRegistry() in tests to avoid collisions with the process
// default registry; pass prometheus.DefaultRegisterer to use the default
// registry. A nil reg creates the collectors without registering them.
func New(namespace string, reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "total",
			Help:      "Total number of FetchController fetches, by outcome.",
		}, []string{"outcome"}),

		FetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "duration_seconds",
			Help:      "FetchController fetch duration in seconds, by outcome.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"outcome"}),

		DrainTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "syncqueue",
			Name:      "drain_total",
			Help:      "Total number of SyncQueue drains, by outcome.",
		}, []string{"outcome"}),

		DrainDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "syncqueue",
			Name:      "drain_duration_seconds",
			Help:      "SyncQueue drain duration in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}),

		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "syncqueue",
			Name:      "queue_depth",
			Help:      "Number of queued, in-flight and errored changes, as last reported by a sync queue.",
		}),

		CacheHits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Total fetch cache hits.",
		}),

		CacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Total fetch cache misses.",
		}),

		RetryAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "attempts_total",
			Help:      "Total retry attempts, by operation and outcome.",
		}, []string{"operation", "outcome"}),

		RetryBackoff: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retry",
			Name:      "backoff_seconds",
			Help:      "Backoff delay applied before a retry, by operation.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"operation"}),
	}
}

// RecordAttempt implements pkg/retry.Recorder.
func (m *Metrics) RecordAttempt(operation, outcome string, duration time.Duration) {
	m.RetryAttempts.WithLabelValues(operation, outcome).Inc()
}

// RecordBackoff implements pkg/retry.Recorder.
func (m *Metrics) RecordBackoff(operation string, delay time.Duration) {
	m.RetryBackoff.WithLabelValues(operation).Observe(delay.Seconds())
}

// ObserveFetch records one FetchController fetch outcome and duration.
func (m *Metrics) ObserveFetch(outcome string, duration time.Duration) {
	m.FetchTotal.WithLabelValues(outcome).Inc()
	m.FetchDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveDrain records one SyncQueue drain outcome and duration.
func (m *Metrics) ObserveDrain(outcome string, duration time.Duration) {
	m.DrainTotal.WithLabelValues(outcome).Inc()
	m.DrainDuration.Observe(duration.Seconds())
}

// SetQueueDepth implements pkg/syncqueue.DepthObserver.
func (m *Metrics) SetQueueDepth(n int) {
	m.QueueDepth.Set(float64(n))
}

// Package metrics collects prometheus metrics about commits, merges and reviews.
//
// Metrics are registered on an explicit registerer. All methods may be called on a nil *Metrics,
// which collects nothing: engines built without metrics need no special casing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "revstore"

// Metrics of a revision store
type Metrics struct {
	Writes struct {
		Commits    *prometheus.CounterVec
		Components prometheus.Histogram
	}
	Merges struct {
		Count     *prometheus.CounterVec
		Conflicts *prometheus.CounterVec
		Timing    *prometheus.HistogramVec
	}
	Reviews struct {
		Transitions *prometheus.CounterVec
		Pending     prometheus.Gauge
	}
	Locks struct {
		Timeouts prometheus.Counter
	}
	Store struct {
		Timing *prometheus.HistogramVec
		Errors *prometheus.CounterVec
	}

	factory promauto.Factory
}

// New metrics, registered on reg. A nil registerer creates unregistered collectors.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{factory: promauto.With(reg)}
	f := m.factory

	m.Writes.Commits = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "commits",
		Name:      "total",
		Help:      "Number of commits written, by origin (commit, merge, rebase)",
	}, []string{"origin"})
	m.Writes.Components = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "commits",
		Name:      "components",
		Help:      "Number of components changed by a commit",
		Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
	})

	m.Merges.Count = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merges",
		Name:      "total",
		Help:      "Number of merges and rebases, by outcome",
	}, []string{"operation", "status"})
	m.Merges.Conflicts = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "merges",
		Name:      "conflicts_total",
		Help:      "Number of merge conflicts reported, by kind",
	}, []string{"kind"})
	m.Merges.Timing = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "merges",
		Name:      "duration_seconds",
		Help:      "Time spent diffing and applying merges",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})

	m.Reviews.Transitions = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reviews",
		Name:      "transitions_total",
		Help:      "Number of review status changes, by new status",
	}, []string{"status"})
	m.Reviews.Pending = f.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "reviews",
		Name:      "pending",
		Help:      "Number of reviews waiting for computation",
	})

	m.Locks.Timeouts = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "locks",
		Name:      "timeouts_total",
		Help:      "Number of branch lock acquisitions that timed out",
	})

	m.Store.Timing = f.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "duration_seconds",
		Help:      "Time spent in key-value store transactions, by kind (view, update)",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
	}, []string{"kind"})
	m.Store.Errors = f.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "store",
		Name:      "errors_total",
		Help:      "Number of key-value store transactions that failed, by kind",
	}, []string{"kind"})
	return m
}

// Committed records a commit
func (m *Metrics) Committed(origin string, components int) {
	if m == nil {
		return
	}
	m.Writes.Commits.WithLabelValues(origin).Inc()
	m.Writes.Components.Observe(float64(components))
}

// Merged records the outcome of a merge or rebase, with the kinds of the conflicts found
func (m *Metrics) Merged(operation, status string, conflictKinds ...string) {
	if m == nil {
		return
	}
	m.Merges.Count.WithLabelValues(operation, status).Inc()
	for _, kind := range conflictKinds {
		m.Merges.Conflicts.WithLabelValues(kind).Inc()
	}
}

// Since records the time spent on an operation since start
func (m *Metrics) Since(start time.Time, operation string) {
	if m == nil {
		return
	}
	m.Merges.Timing.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// Transition records a review status change
func (m *Metrics) Transition(status string) {
	if m == nil {
		return
	}
	m.Reviews.Transitions.WithLabelValues(status).Inc()
}

// Queued tracks the number of pending reviews
func (m *Metrics) Queued(delta int) {
	if m == nil {
		return
	}
	m.Reviews.Pending.Add(float64(delta))
}

// LockTimeout records a failure to acquire a branch lock
func (m *Metrics) LockTimeout() {
	if m == nil {
		return
	}
	m.Locks.Timeouts.Inc()
}

// Transaction records a key-value store transaction that started at start
func (m *Metrics) Transaction(kind string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.Store.Timing.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	if err != nil {
		m.Store.Errors.WithLabelValues(kind).Inc()
	}
}

// CacheStats exposes the hit and miss counts of a cache, read at collection time
func (m *Metrics) CacheStats(name string, stats func() (hits, misses uint64)) {
	if m == nil || stats == nil {
		return
	}
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "hits_total",
		Help:        "Number of cache hits",
		ConstLabels: prometheus.Labels{"cache": name},
	}, func() float64 {
		hits, _ := stats()
		return float64(hits)
	})
	m.factory.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   namespace,
		Subsystem:   "cache",
		Name:        "misses_total",
		Help:        "Number of cache misses",
		ConstLabels: prometheus.Labels{"cache": name},
	}, func() float64 {
		_, misses := stats()
		return float64(misses)
	})
}

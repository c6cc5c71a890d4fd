// Package metrics provides Prometheus collectors for the handle cache, the
// command engine and the sync state machine.
//
// All recording methods are safe on a nil *Metrics, so components can run
// without instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "projectgate"

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeError    = "error"
	OutcomeDeclined = "declined"
)

// Metrics holds the gateway collectors.
type Metrics struct {
	// CacheLookups counts handle lookups by result (hit, miss).
	CacheLookups *prometheus.CounterVec

	// CacheLoads counts loader invocations by outcome.
	CacheLoads *prometheus.CounterVec

	// CacheLoadSeconds measures loader latency.
	CacheLoadSeconds prometheus.Histogram

	// CacheEvictions counts handles leaving the cache by reason (lru, dispose).
	CacheEvictions *prometheus.CounterVec

	// Commands counts apply/undo/redo by op and outcome.
	Commands *prometheus.CounterVec

	// SyncTransitions counts sync state changes by target state.
	SyncTransitions *prometheus.CounterVec

	// SyncRuns counts sync runs by trigger (manual, auto) and outcome.
	SyncRuns *prometheus.CounterVec

	// SyncSeconds measures sync run duration by trigger.
	SyncSeconds *prometheus.HistogramVec

	// OpenProjects tracks the number of open projects.
	OpenProjects prometheus.Gauge
}

// New creates the collectors and registers them with reg. Passing a fresh
// prometheus.NewRegistry() keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Workspace handle lookups by result",
		}, []string{"result"}),
		CacheLoads: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "loads_total",
			Help:      "Workspace loader invocations by outcome",
		}, []string{"outcome"}),
		CacheLoadSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "load_duration_seconds",
			Help:      "Workspace load latency in seconds",
			Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 1, 2.5, 10},
		}),
		CacheEvictions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Workspace handles removed from the cache by reason",
		}, []string{"reason"}),
		Commands: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commands",
			Name:      "total",
			Help:      "Command operations by op and outcome",
		}, []string{"op", "outcome"}),
		SyncTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "transitions_total",
			Help:      "Sync state changes by target state",
		}, []string{"state"}),
		SyncRuns: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Sync runs by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		SyncSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "run_duration_seconds",
			Help:      "Sync run duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"trigger"}),
		OpenProjects: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_projects",
			Help:      "Number of open projects",
		}),
	}
}

// CacheHit records a lookup served from the cache.
func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("hit").Inc()
}

// CacheMiss records a lookup that required a load.
func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// Load records one loader invocation.
func (m *Metrics) Load(d time.Duration, err error) {
	if m == nil {
		return
	}
	m.CacheLoads.WithLabelValues(outcome(err, false)).Inc()
	m.CacheLoadSeconds.Observe(d.Seconds())
}

// Eviction records a handle leaving the cache.
func (m *Metrics) Eviction(reason string) {
	if m == nil {
		return
	}
	m.CacheEvictions.WithLabelValues(reason).Inc()
}

// Command records a command operation. declined distinguishes refused
// operations from failures.
func (m *Metrics) Command(op string, err error, declined bool) {
	if m == nil {
		return
	}
	m.Commands.WithLabelValues(op, outcome(err, declined)).Inc()
}

// SyncTransition records a state change.
func (m *Metrics) SyncTransition(state string) {
	if m == nil {
		return
	}
	m.SyncTransitions.WithLabelValues(state).Inc()
}

// SyncRun records a completed sync run.
func (m *Metrics) SyncRun(trigger string, d time.Duration, err error) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(trigger, outcome(err, false)).Inc()
	m.SyncSeconds.WithLabelValues(trigger).Observe(d.Seconds())
}

// ProjectOpened increments the open project gauge.
func (m *Metrics) ProjectOpened() {
	if m == nil {
		return
	}
	m.OpenProjects.Inc()
}

// ProjectClosed decrements the open project gauge.
func (m *Metrics) ProjectClosed() {
	if m == nil {
		return
	}
	m.OpenProjects.Dec()
}

func outcome(err error, declined bool) string {
	switch {
	case err == nil:
		return OutcomeSuccess
	case declined:
		return OutcomeDeclined
	default:
		return OutcomeError
	}
}

// Package metrics provides Prometheus instrumentation for the persistence core.
//
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultNamespace = "reply_tracker"

	ResultOK    = "ok"
	ResultError = "error"
)

type Metrics struct {
	namespace string
	registry  *prometheus.Registry

	eventsCaptured prometheus.Counter
	eventsDropped  prometheus.Counter
	bufferSize     prometheus.Gauge

	flushes       *prometheus.CounterVec
	flushDuration prometheus.Histogram

	storeSaves  *prometheus.CounterVec
	storeEvents prometheus.Gauge

	backups        *prometheus.CounterVec
	backupsPruned  prometheus.Counter
	lastBackupUnix prometheus.Gauge
}

// Option applies a configuration option to Metrics.
type Option func(*Metrics)

// WithNamespace sets the namespace for all metrics.
func WithNamespace(namespace string) Option {
	return func(m *Metrics) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// New registers every collector on a private registry.
func New(opts ...Option) *Metrics {
	m := &Metrics{namespace: defaultNamespace, registry: prometheus.NewRegistry()}
	for _, opt := range opts {
		opt(m)
	}
	auto := promauto.With(m.registry)

	m.eventsCaptured = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "buffer", Name: "events_captured_total",
		Help: "Reply events appended to the write buffer.",
	})
	m.eventsDropped = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "buffer", Name: "events_dropped_total",
		Help: "Unflushed events dropped because the buffer was full.",
	})
	m.bufferSize = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "buffer", Name: "size",
		Help: "Events currently waiting for a flush.",
	})
	m.flushes = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "buffer", Name: "flushes_total",
		Help: "Flush attempts by result.",
	}, []string{"result"})
	m.flushDuration = auto.NewHistogram(prometheus.HistogramOpts{
		Namespace: m.namespace, Subsystem: "buffer", Name: "flush_duration_seconds",
		Help:    "Time spent draining the buffer into the store.",
		Buckets: prometheus.DefBuckets,
	})
	m.storeSaves = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "store", Name: "saves_total",
		Help: "Atomic saves of the event log by result.",
	}, []string{"result"})
	m.storeEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "store", Name: "events",
		Help: "Events in the persisted log as of the last read or write.",
	})
	m.backups = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "backup", Name: "snapshots_total",
		Help: "Snapshot runs by result.",
	}, []string{"result"})
	m.backupsPruned = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace, Subsystem: "backup", Name: "pruned_total",
		Help: "Snapshots deleted by retention sweeps.",
	})
	m.lastBackupUnix = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace, Subsystem: "backup", Name: "last_success_unixtime",
		Help: "Unix time of the last successful snapshot run.",
	})
	return m
}

// Registry exposes the private registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordCaptured() {
	if m == nil {
		return
	}
	m.eventsCaptured.Inc()
}

func (m *Metrics) RecordDropped(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.eventsDropped.Add(float64(n))
}

func (m *Metrics) SetBufferSize(n int) {
	if m == nil {
		return
	}
	m.bufferSize.Set(float64(n))
}

func (m *Metrics) RecordFlush(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.flushes.WithLabelValues(result).Inc()
	m.flushDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordStoreSave(ok bool) {
	if m == nil {
		return
	}
	m.storeSaves.WithLabelValues(result(ok)).Inc()
}

func (m *Metrics) SetStoreEvents(n int) {
	if m == nil {
		return
	}
	m.storeEvents.Set(float64(n))
}

func (m *Metrics) RecordBackup(ok bool, at time.Time) {
	if m == nil {
		return
	}
	m.backups.WithLabelValues(result(ok)).Inc()
	if ok {
		m.lastBackupUnix.Set(float64(at.Unix()))
	}
}

func (m *Metrics) RecordPruned(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backupsPruned.Add(float64(n))
}

func result(ok bool) string {
	if ok {
		return ResultOK
	}
	return ResultError
}

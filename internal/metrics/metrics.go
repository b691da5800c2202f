// Package metrics holds the Prometheus collectors for the cascade, the
// orphan sweep and the HTTP layer. A nil *Metrics is valid and records
// nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fastpgmongo"

type Metrics struct {
	registry *prometheus.Registry

	CascadeOps   *prometheus.CounterVec
	OrphansLeft  prometheus.Counter
	SweepDeleted *prometheus.CounterVec
	SweepErrors  *prometheus.CounterVec
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
	CacheLookups *prometheus.CounterVec
}

// New creates the collectors and registers them on a private registry.
func New() (*Metrics, error) {
	m := &Metrics{
		CascadeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_operations_total",
			Help:      "Cascade operations partitioned by operation and outcome.",
		}, []string{"op", "status"}),
		OrphansLeft: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_orphans_left_total",
			Help:      "Documents left without an image row after a failed create.",
		}),
		SweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Documents deleted by cleanup sweeps.",
		}, []string{"sweep"}),
		SweepErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_errors_total",
			Help:      "Per-document failures during cleanup sweeps.",
		}, []string{"sweep"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests partitioned by route pattern, method and status.",
		}, []string{"route", "method", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metadata_cache_lookups_total",
			Help:      "Document metadata cache lookups by result.",
		}, []string{"result"}),
	}

	m.registry = prometheus.NewRegistry()
	cs := []prometheus.Collector{
		m.CascadeOps,
		m.OrphansLeft,
		m.SweepDeleted,
		m.SweepErrors,
		m.HTTPRequests,
		m.HTTPDuration,
		m.CacheLookups,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range cs {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) CascadeOp(op string, ok bool) {
	if m == nil {
		return
	}
	status := "success"
	if !ok {
		status = "failure"
	}
	m.CascadeOps.WithLabelValues(op, status).Inc()
}

func (m *Metrics) OrphanLeft() {
	if m == nil {
		return
	}
	m.OrphansLeft.Inc()
}

func (m *Metrics) Swept(sweep string, deleted, failed int) {
	if m == nil {
		return
	}
	m.SweepDeleted.WithLabelValues(sweep).Add(float64(deleted))
	m.SweepErrors.WithLabelValues(sweep).Add(float64(failed))
}

func (m *Metrics) HTTPRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

// Package metrics exposes Prometheus metrics for the results service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "skating_results"

// Import outcomes used as the "outcome" label of imports_total.
const (
	OutcomeStored   = "stored"
	OutcomeCleared  = "cleared"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
)

// Manager owns a private registry so several instances can coexist in tests.
type Manager struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	imports             *prometheus.CounterVec
	storedResults       prometheus.Gauge
}

// NewManager registers every collector, including the Go runtime and process
// collectors, on a fresh registry.
func NewManager() *Manager {
	reg := prometheus.NewRegistry()
	m := &Manager{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Result imports by outcome.",
		}, []string{"outcome"}),
		storedResults: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stored_results",
			Help:      "Number of result rows in the current snapshot.",
		}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpRequestDuration,
		m.imports,
		m.storedResults,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveHTTP records one finished request.
func (m *Manager) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RecordImport counts an import attempt. stored is only applied to the
// snapshot gauge for successful outcomes.
func (m *Manager) RecordImport(outcome string, stored int) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(outcome).Inc()
	if outcome == OutcomeStored || outcome == OutcomeCleared {
		m.storedResults.Set(float64(stored))
	}
}

// SetStoredResults seeds the snapshot gauge, e.g. at startup.
func (m *Manager) SetStoredResults(n int) {
	if m == nil {
		return
	}
	m.storedResults.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the private registry the Manager's collectors live on.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

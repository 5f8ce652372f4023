// Package metrics publishes Prometheus collectors for service operations,
// relationship loader batches and HTTP traffic.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ledgerql"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	OperationDuration *prometheus.HistogramVec
	LoaderBatches     *prometheus.CounterVec
	LoaderKeys        *prometheus.CounterVec
	LoaderCacheHits   *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	ExportJobs        *prometheus.CounterVec
}

// New registers every collector plus the Go runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations by outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		LoaderBatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "batches_total",
			Help:      "Batch fetches dispatched by relationship loaders.",
		}, []string{"loader", "status"}),
		LoaderKeys: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "keys_total",
			Help:      "Distinct keys passed to batch fetches.",
		}, []string{"loader"}),
		LoaderCacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "loader",
			Name:      "cache_hits_total",
			Help:      "Loads answered from the per-request cache.",
		}, []string{"loader"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by path and status code.",
		}, []string{"path", "code"}),
		ExportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exports",
			Name:      "jobs_total",
			Help:      "Ledger export jobs by format and final state.",
		}, []string{"format", "state"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.OperationDuration,
		m.LoaderBatches,
		m.LoaderKeys,
		m.LoaderCacheHits,
		m.HTTPRequests,
		m.ExportJobs,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// InstrumentHandler counts requests served by next under the given path label.
func (m *Metrics) InstrumentHandler(path string, next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(
		m.HTTPRequests.MustCurryWith(prometheus.Labels{"path": path}), next)
}

// Observe records a service operation.
func (m *Metrics) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	m.OperationDuration.WithLabelValues(operation, status(success)).Observe(duration.Seconds())
}

// ObserveBatch records one loader dispatch.
func (m *Metrics) ObserveBatch(loader string, keys int, err error) {
	m.LoaderBatches.WithLabelValues(loader, status(err == nil)).Inc()
	m.LoaderKeys.WithLabelValues(loader).Add(float64(keys))
}

// ObserveCacheHit records a load answered without a fetch.
func (m *Metrics) ObserveCacheHit(loader string) {
	m.LoaderCacheHits.WithLabelValues(loader).Inc()
}

// ObserveExport records an export job reaching a terminal state.
func (m *Metrics) ObserveExport(format, state string) {
	m.ExportJobs.WithLabelValues(format, state).Inc()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "error"
}

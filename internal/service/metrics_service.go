package service

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService owns the Prometheus registry and the pipeline's
// instrument set.
type MetricsService struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	extractionDuration *prometheus.HistogramVec
	scansRouted        *prometheus.CounterVec
	scoresWritten      prometheus.Counter

	cacheOperations *prometheus.CounterVec
}

// NewMetricsService builds a registry with process, Go runtime and domain
// collectors registered.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &MetricsService{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		extractionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scan_extraction_duration_seconds",
			Help:    "Time spent extracting marks from one sheet image.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"outcome"}),
		scansRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "scans_routed_total",
			Help: "Scans routed by the review rule, labelled by resulting status.",
		}, []string{"status"}),
		scoresWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "scores_written_total",
			Help: "Score upserts attempted, including recomputes and bulk imports.",
		}),
		cacheOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache lookups by result.",
		}, []string{"result"}),
	}

	registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.extractionDuration,
		m.scansRouted,
		m.scoresWritten,
		m.cacheOperations,
	)

	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *MetricsService) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTPRequest records one served request.
func (m *MetricsService) ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveExtraction records one extraction attempt with its outcome label
// (ready, needs_review, rejected, error).
func (m *MetricsService) ObserveExtraction(outcome string, duration time.Duration) {
	m.extractionDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// IncScanRouted counts a routing decision.
func (m *MetricsService) IncScanRouted(status string) {
	m.scansRouted.WithLabelValues(status).Inc()
}

// IncScoreWritten counts a score upsert.
func (m *MetricsService) IncScoreWritten() {
	m.scoresWritten.Inc()
}

// RecordCacheOperation counts a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheOperations.WithLabelValues(result).Inc()
}

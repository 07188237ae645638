// Package metrics defines the Prometheus collectors used across the services
// and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	SearchQueriesTotal   *prometheus.CounterVec
	SearchLatency        *prometheus.HistogramVec
	SearchResultsCount   *prometheus.HistogramVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexRows            *prometheus.GaugeVec
	IndexReloadsTotal    *prometheus.CounterVec
	ChunksFilteredTotal  *prometheus.CounterVec
	EmbedBatchesTotal    *prometheus.CounterVec
	WorksIndexedTotal    *prometheus.CounterVec
	WorkerCyclesTotal    *prometheus.CounterVec
	CircuitBreakerState  *prometheus.GaugeVec
}

// New creates the collectors and registers them with the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates the collectors and registers them with reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		SearchQueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "search_queries_total",
				Help: "Search queries by mode and outcome (ok, zero_result, invalid, unavailable, error).",
			},
			[]string{"mode", "outcome"},
		),
		SearchLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "Search latency in seconds by mode and cache status.",
				Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"mode", "cache_status"},
		),
		SearchResultsCount: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search.",
				Buckets: []float64{0, 1, 2, 3, 5, 10, 25},
			},
			[]string{"mode"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_hits_total",
				Help: "Total number of query cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "cache_misses_total",
				Help: "Total number of query cache misses.",
			},
		),
		IndexRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "index_rows",
				Help: "Rows in the loaded index snapshot per flavor.",
			},
			[]string{"flavor"},
		),
		IndexReloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "index_reloads_total",
				Help: "Index snapshot reloads by flavor and status.",
			},
			[]string{"flavor", "status"},
		),
		ChunksFilteredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chunks_filtered_total",
				Help: "Chunks seen by the quality filter by flavor and decision.",
			},
			[]string{"flavor", "decision"},
		),
		EmbedBatchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "embed_batches_total",
				Help: "Embedding batches by status (ok, failed).",
			},
			[]string{"status"},
		),
		WorksIndexedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "works_indexed_total",
				Help: "Works leaving PENDING by resulting status.",
			},
			[]string{"status"},
		),
		WorkerCyclesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "worker_cycles_total",
				Help: "Incremental indexer cycles by result (idle, indexed, error).",
			},
			[]string{"result"},
		),
		CircuitBreakerState: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "circuit_breaker_state",
				Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
			},
			[]string{"name"},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.IndexRows,
		m.IndexReloadsTotal,
		m.ChunksFilteredTotal,
		m.EmbedBatchesTotal,
		m.WorksIndexedTotal,
		m.WorkerCyclesTotal,
		m.CircuitBreakerState,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

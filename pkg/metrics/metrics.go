// Package metrics defines the Prometheus collectors for the search and
// ingestion services and exposes an HTTP handler for scraping.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors for the system.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge

	SearchQueriesTotal *prometheus.CounterVec
	SearchLatency      prometheus.Histogram
	SearchResultsCount prometheus.Histogram
	CacheHitsTotal     prometheus.Counter
	CacheMissesTotal   prometheus.Counter

	VideosIngestedTotal  prometheus.Counter
	VideosSkippedTotal   prometheus.Counter
	VideosFailedTotal    *prometheus.CounterVec
	ChunksPersistedTotal prometheus.Counter
	StoreRetriesTotal    prometheus.Counter
}

// New creates and registers all collectors on the default registry.
func New() *Metrics {
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
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
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
				Help: "Total search queries by outcome (ok, invalid, error).",
			},
			[]string{"outcome"},
		),
		SearchLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_latency_seconds",
				Help:    "End-to-end search latency including rerank and diversity.",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
		),
		SearchResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "search_results_count",
				Help:    "Number of results returned per search.",
				Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
			},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_hits_total",
				Help: "Total query-cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "search_cache_misses_total",
				Help: "Total query-cache misses.",
			},
		),
		VideosIngestedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_videos_total",
				Help: "Videos successfully ingested.",
			},
		),
		VideosSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_videos_skipped_total",
				Help: "Videos skipped because the checkpoint marks them complete.",
			},
		),
		VideosFailedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ingest_videos_failed_total",
				Help: "Videos that failed ingestion by reason class.",
			},
			[]string{"reason"},
		),
		ChunksPersistedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_chunks_persisted_total",
				Help: "Chunks upserted into the store.",
			},
		),
		StoreRetriesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "ingest_store_retries_total",
				Help: "Store writes that needed at least one retry.",
			},
		),
	}

	prometheus.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.SearchQueriesTotal,
		m.SearchLatency,
		m.SearchResultsCount,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
		m.VideosIngestedTotal,
		m.VideosSkippedTotal,
		m.VideosFailedTotal,
		m.ChunksPersistedTotal,
		m.StoreRetriesTotal,
	)
	return m
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

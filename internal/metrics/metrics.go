// Package metrics exposes Prometheus collectors for the crawler.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchTotal                 *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	cacheHitsTotal             *prometheus.CounterVec
	extractionFailuresTotal    *prometheus.CounterVec
	recordsTotal               *prometheus.CounterVec
	crawlPhase                 prometheus.Gauge
	activeSessions             prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keiba_fetch_total",
				Help: "Total number of page fetch attempts, labeled by page kind and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "keiba_fetch_duration_seconds",
				Help:    "Histogram of page fetch latencies, labeled by page kind.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"kind"},
		)

		cacheHitsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keiba_cache_hits_total",
				Help: "Pages served from the page cache without fetching, labeled by page kind.",
			},
			[]string{"kind"},
		)

		extractionFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keiba_extraction_failures_total",
				Help: "Pages whose text did not match an extraction rule, labeled by page kind.",
			},
			[]string{"kind"},
		)

		recordsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "keiba_records_total",
				Help: "Records handed to the result sink, labeled by table.",
			},
			[]string{"table"},
		)

		crawlPhase = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "keiba_crawl_phase",
				Help: "Current phase of the crawl state machine.",
			},
		)

		activeSessions = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "keiba_fetch_sessions_active",
				Help: "Number of fetch sessions currently working on a page.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// ObserveFetch records one fetch attempt.
func ObserveFetch(kind, outcome string, duration time.Duration) {
	Init()
	fetchTotal.WithLabelValues(kind, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(kind).Observe(duration.Seconds())
}

// ObserveCacheHit counts a page that was already cached.
func ObserveCacheHit(kind string) {
	Init()
	cacheHitsTotal.WithLabelValues(kind).Inc()
}

// ObserveExtractionFailure counts a page that failed an extraction rule.
func ObserveExtractionFailure(kind string) {
	Init()
	extractionFailuresTotal.WithLabelValues(kind).Inc()
}

// ObserveRecords counts n records written to table.
func ObserveRecords(table string, n int) {
	Init()
	recordsTotal.WithLabelValues(table).Add(float64(n))
}

// SetPhase publishes the current crawl phase.
func SetPhase(phase int) {
	Init()
	crawlPhase.Set(float64(phase))
}

// IncActiveSessions increments the active sessions gauge.
func IncActiveSessions() {
	Init()
	activeSessions.Inc()
}

// DecActiveSessions decrements the active sessions gauge.
func DecActiveSessions() {
	Init()
	activeSessions.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

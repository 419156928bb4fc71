// Package metrics provides Prometheus instrumentation for the generation
// pipeline, matcher, and host API client. Mount Handler() at GET /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ── Gauges ────────────────────────────────────────────────────────────────

// ManagedChannels is the current count of non-deleted managed channels.
var ManagedChannels = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "teamarr_managed_channels",
	Help: "Number of currently managed (non-deleted) channels, by group.",
}, []string{"group_id"})

// CacheEntries is the current stream-match cache size.
var CacheEntries = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Name: "teamarr_cache_entries",
	Help: "Number of stream-match cache entries, by group.",
}, []string{"group_id"})

// ── Counters ──────────────────────────────────────────────────────────────

// StreamsMatched counts matched streams by group and inclusion outcome.
var StreamsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teamarr_streams_matched_total",
	Help: "Streams resolved by the matcher, by group and outcome.",
}, []string{"group_id", "outcome"}) // outcome: included|excluded|exception|unmatched

// CacheHits counts stream-match cache hits and misses.
var CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teamarr_cache_lookups_total",
	Help: "Stream-match cache lookups, by group and result.",
}, []string{"group_id", "result"}) // result: hit|miss

// HostAPICalls counts host orchestration API calls by operation and outcome.
var HostAPICalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teamarr_host_api_calls_total",
	Help: "Host orchestration API calls, by operation and outcome.",
}, []string{"operation", "outcome"}) // outcome: success|error

// RunsCompleted counts processing runs by run_type and final status.
var RunsCompleted = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teamarr_runs_total",
	Help: "Completed processing runs, by run_type and status.",
}, []string{"run_type", "status"})

// HTTPRequests counts admin HTTP requests by method, path, and status code.
var HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "teamarr_http_requests_total",
	Help: "Total admin HTTP requests handled.",
}, []string{"method", "path", "status"})

// ── Histograms ────────────────────────────────────────────────────────────

// GenerationDuration tracks how long a full generation run takes.
var GenerationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "teamarr_generation_duration_seconds",
	Help:    "Wall-clock time for a full generation run, by run_type.",
	Buckets: prometheus.DefBuckets,
}, []string{"run_type"})

// HTTPDuration tracks admin HTTP request latency.
var HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "teamarr_http_request_duration_seconds",
	Help:    "Admin HTTP request latency in seconds.",
	Buckets: prometheus.DefBuckets,
}, []string{"method", "path"})

// ── Handler ───────────────────────────────────────────────────────────────

// Handler returns the Prometheus scrape handler. Mount at GET /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ── Middleware ────────────────────────────────────────────────────────────

// Middleware wraps an HTTP handler to record request counts and latency.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		dur := time.Since(start).Seconds()
		path := sanitizePath(r.URL.Path)
		status := strconv.Itoa(rw.status)
		HTTPRequests.WithLabelValues(r.Method, path, status).Inc()
		HTTPDuration.WithLabelValues(r.Method, path).Observe(dur)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

// sanitizePath bounds the path label's length: paths longer than 64
// characters are cut to their first 64 and suffixed with "...".
func sanitizePath(path string) string {
	if len(path) > 64 {
		return path[:64] + "..."
	}
	return path
}

// Init registers an isolated copy of every metric with reg. Intended for
// tests that want a fresh registry instead of the global default.
func Init(reg prometheus.Registerer) {
	reg.MustRegister(
		prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "teamarr_managed_channels",
			Help: "Number of currently managed (non-deleted) channels, by group.",
		}, []string{"group_id"}),
		prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "teamarr_cache_entries",
			Help: "Number of stream-match cache entries, by group.",
		}, []string{"group_id"}),
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamarr_streams_matched_total",
			Help: "Streams resolved by the matcher, by group and outcome.",
		}, []string{"group_id", "outcome"}),
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamarr_cache_lookups_total",
			Help: "Stream-match cache lookups, by group and result.",
		}, []string{"group_id", "result"}),
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamarr_host_api_calls_total",
			Help: "Host orchestration API calls, by operation and outcome.",
		}, []string{"operation", "outcome"}),
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamarr_runs_total",
			Help: "Completed processing runs, by run_type and status.",
		}, []string{"run_type", "status"}),
		prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "teamarr_http_requests_total",
			Help: "Total admin HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teamarr_generation_duration_seconds",
			Help:    "Wall-clock time for a full generation run, by run_type.",
			Buckets: prometheus.DefBuckets,
		}, []string{"run_type"}),
		prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "teamarr_http_request_duration_seconds",
			Help:    "Admin HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
	)
}

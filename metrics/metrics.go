// Package metrics holds the Prometheus collectors for the analytics API and a
// Sink that records engine notifications into them.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Analysis metrics
	AnalysesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_analyses_total",
			Help: "Total number of completed analyses",
		},
		[]string{"kind", "backend"},
	)

	AnalysisDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analytics_analysis_duration_seconds",
			Help:    "Duration of analyses in seconds, including any fallback attempt",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"kind", "backend"},
	)

	AnalysisFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_analysis_failures_total",
			Help: "Total number of analyses no backend could serve",
		},
		[]string{"kind"},
	)

	// Backend metrics
	BackendFallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_backend_fallbacks_total",
			Help: "Total number of operations retried on the fallback backend",
		},
		[]string{"kind", "from", "to"},
	)

	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "analytics_backend_breaker_state",
			Help: "Primary backend circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"backend"},
	)

	// Cache metrics
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "analytics_cache_lookups_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"kind", "result"}, // "hit", "miss", "error"
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	APIActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "api_active_requests",
			Help: "Number of API requests currently being served",
		},
	)
)

const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// RecordAnalysis counts a completed analysis. Degraded runs are counted by
// AnalysisFailures instead.
func RecordAnalysis(kind, backend string, duration time.Duration) {
	AnalysesTotal.WithLabelValues(kind, backend).Inc()
	AnalysisDuration.WithLabelValues(kind, backend).Observe(duration.Seconds())
}

func RecordCacheLookup(kind, result string) {
	CacheLookups.WithLabelValues(kind, result).Inc()
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

func TrackActiveRequest(inc bool) {
	if inc {
		APIActiveRequests.Inc()
	} else {
		APIActiveRequests.Dec()
	}
}

// breakerStateValue maps gobreaker state names onto the gauge encoding.
func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

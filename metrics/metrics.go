// Package metrics provides Prometheus metrics for the savings service.
//
// HTTP metrics:
//   - http_request_total: Counter with method, path, and status labels
//   - http_request_duration_seconds: Histogram with method and path labels
//   - http_request_in_flight: Gauge for concurrent requests
//
// Savings metrics:
//   - ppu_freshness_cache_total: hits and misses of the freshness-gated caches
//   - ppu_memo_cache_total: hits and misses of the content-keyed memo store
//   - ppu_computation_duration_seconds: time spent computing memoized aggregates
//   - ppu_substitution_sets: number of substitution sets currently built
//   - ppu_data_refresh_total: matrix store refreshes by outcome
//   - ppu_db_breaker_state: database circuit breaker state (0 closed, 1 half-open, 2 open)
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestTotals = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_request_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "path"},
	)

	HTTPRequestInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_request_in_flight",
			Help: "Current in-flight requests",
		},
	)

	FreshnessCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppu_freshness_cache_total",
			Help: "Freshness-gated cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)

	MemoCacheTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppu_memo_cache_total",
			Help: "Content-keyed memo lookups by memo name and result",
		},
		[]string{"memo", "result"},
	)

	ComputationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ppu_computation_duration_seconds",
			Help:    "Duration of memoized aggregate computations",
			Buckets: []float64{.001, .01, .05, .1, .5, 1, 5, 15, 60},
		},
		[]string{"memo"},
	)

	SubstitutionSets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ppu_substitution_sets",
			Help: "Number of substitution sets in the current collection",
		},
	)

	DataRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ppu_data_refresh_total",
			Help: "Prescribing data refreshes by outcome",
		},
		[]string{"outcome"},
	)

	DatabaseBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ppu_db_breaker_state",
			Help: "Database circuit breaker state: 0 closed, 1 half-open, 2 open",
		},
		[]string{"breaker"},
	)

	RateLimiterBucketsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rate_limiter_buckets_total",
			Help: "Total number of rate limiter buckets (IPs seen recently)",
		},
	)
)

func init() {
	prometheus.MustRegister(HTTPRequestTotals)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(HTTPRequestInFlight)
	prometheus.MustRegister(FreshnessCacheTotal)
	prometheus.MustRegister(MemoCacheTotal)
	prometheus.MustRegister(ComputationDuration)
	prometheus.MustRegister(SubstitutionSets)
	prometheus.MustRegister(DataRefreshTotal)
	prometheus.MustRegister(DatabaseBreakerState)
	prometheus.MustRegister(RateLimiterBucketsTotal)
}

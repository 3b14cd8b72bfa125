package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the console BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	backendDuration *prometheus.HistogramVec
	backendErrors   *prometheus.CounterVec
	tokenRefreshes  *prometheus.CounterVec
	cashOperations  *prometheus.CounterVec
	saleOperations  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	logins          *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		backendDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "console_backend_request_duration_seconds",
				Help:    "Duration of backend API calls by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		backendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_backend_errors_total",
				Help: "Backend calls that failed, by HTTP status (0 = transport).",
			},
			[]string{"status"},
		),
		tokenRefreshes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_token_refreshes_total",
				Help: "Access token refreshes triggered by a 401, by outcome.",
			},
			[]string{"result"},
		),
		cashOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cash_operations_total",
				Help: "Cash day operations by kind and outcome.",
			},
			[]string{"operation", "result"},
		),
		saleOperations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_sale_operations_total",
				Help: "Point of sale operations by kind and outcome.",
			},
			[]string{"operation", "result"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		logins: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "console_logins_total",
				Help: "Login attempts by outcome.",
			},
			[]string{"result"},
		),
	}
}

// RecordBackendCall records the duration of a backend call.
func (m *Metrics) RecordBackendCall(operation string, d time.Duration) {
	m.backendDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrBackendError counts a failed backend call. status is 0 for transport failures.
func (m *Metrics) IncrBackendError(status int) {
	m.backendErrors.WithLabelValues(strconv.Itoa(status)).Inc()
}

// IncrTokenRefresh counts a refresh attempt: "success", "refused" or "error".
func (m *Metrics) IncrTokenRefresh(result string) {
	m.tokenRefreshes.WithLabelValues(result).Inc()
}

// IncrCashOperation counts a cash day operation outcome.
func (m *Metrics) IncrCashOperation(operation, result string) {
	m.cashOperations.WithLabelValues(operation, result).Inc()
}

// IncrSaleOperation counts a point of sale operation outcome.
func (m *Metrics) IncrSaleOperation(operation, result string) {
	m.saleOperations.WithLabelValues(operation, result).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrLogin counts a login attempt outcome.
func (m *Metrics) IncrLogin(result string) {
	m.logins.WithLabelValues(result).Inc()
}

// TokenRefreshes returns how many refreshes ended with the given result.
func (m *Metrics) TokenRefreshes(result string) float64 {
	return getCounterValue(m.tokenRefreshes, result)
}

// CashOperations returns the count for an operation/result pair.
func (m *Metrics) CashOperations(operation, result string) float64 {
	return getCounterValue(m.cashOperations, operation, result)
}

// getCounterValue extracts the current float64 value from a CounterVec for the given labels.
func getCounterValue(cv *prometheus.CounterVec, labels ...string) float64 {
	counter := cv.WithLabelValues(labels...)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

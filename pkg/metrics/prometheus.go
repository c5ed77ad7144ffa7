// Package metrics provides Prometheus metrics for the cupcake API service.
package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	defaultNamespace       = "cupcake"
	subsystem              = "api"
	defaultRefreshInterval = 10 * time.Second
)

// latencyBuckets are in milliseconds.
var latencyBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 25, 50, 100, 250, 500, 1000} //nolint:gochecknoglobals // read-only

// Manager manages all Prometheus metrics for the cupcake service.
type Manager struct {
	namespace       string
	enabled         bool
	refreshInterval time.Duration
	registry        prometheus.Registerer

	// Resource metrics
	cupcakesTotal    prometheus.Gauge
	cupcakeMutations *prometheus.CounterVec

	// Store metrics
	storeLatency  *prometheus.HistogramVec
	storeErrors   *prometheus.CounterVec
	storeOpenConn prometheus.Gauge

	// HTTP metrics
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	errorRateByEndpoint *prometheus.CounterVec
	rateLimitRejects    prometheus.Counter
	panicRecoveries     prometheus.Counter
}

// global pairs the process-wide manager with the registry it registered on.
type global struct {
	manager  *Manager
	registry *prometheus.Registry
}

var current atomic.Pointer[global] //nolint:gochecknoglobals // singleton metrics manager

func init() { //nolint:gochecknoinits // metrics are usable before Configure
	Configure()
}

// Configure replaces the global manager with one built from opts on a fresh registry.
// Call it once at startup, before GetRegistry is handed to an HTTP handler.
func Configure(opts ...Option) {
	registry := prometheus.NewRegistry()
	all := append([]Option{WithPrometheusRegistry(registry)}, opts...)
	current.Store(&global{manager: NewManager(all...), registry: registry})
}

func manager() *Manager {
	return current.Load().manager
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:       defaultNamespace,
		enabled:         true,
		refreshInterval: defaultRefreshInterval,
		registry:        prometheus.DefaultRegisterer,
	}

	for _, opt := range opts {
		opt(m)
	}

	m.initializeMetrics()

	return m
}

// RefreshInterval reports how often gauges should be refreshed by the caller.
func (m *Manager) RefreshInterval() time.Duration { return m.refreshInterval }

// Enabled reports whether recording is active.
func (m *Manager) Enabled() bool { return m.enabled }

// initializeMetrics creates all the Prometheus metrics.
func (m *Manager) initializeMetrics() { //nolint:funlen // one block per metric
	auto := promauto.With(m.registry)

	m.cupcakesTotal = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "cupcakes_total",
		Help:      "Number of cupcake records currently stored",
	})

	m.cupcakeMutations = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: subsystem,
			Name:      "cupcake_mutations_total",
			Help:      "Successful cupcake mutations by operation",
		},
		[]string{"operation"},
	)

	m.storeLatency = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: subsystem,
			Name:      "store_latency_milliseconds",
			Help:      "Record store operation latency in milliseconds",
			Buckets:   latencyBuckets,
		},
		[]string{"operation"},
	)

	m.storeErrors = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: subsystem,
			Name:      "store_errors_total",
			Help:      "Record store failures by operation (not-found excluded)",
		},
		[]string{"operation"},
	)

	m.storeOpenConn = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "store_open_connections",
		Help:      "Open connections in the database pool",
	})

	m.httpRequests = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: subsystem,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests by endpoint and method",
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.httpRequestDuration = auto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: m.namespace,
			Subsystem: subsystem,
			Name:      "http_request_duration_milliseconds",
			Help:      "HTTP request duration in milliseconds",
			Buckets:   latencyBuckets,
		},
		[]string{"endpoint", "method", "status_code"},
	)

	m.errorRateByEndpoint = auto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: m.namespace,
			Subsystem: subsystem,
			Name:      "errors_by_endpoint_total",
			Help:      "Error responses by endpoint, method and error type",
		},
		[]string{"endpoint", "method", "error_type"},
	)

	m.rateLimitRejects = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "rate_limit_rejects_total",
		Help:      "Requests rejected by the rate limiter",
	})

	m.panicRecoveries = auto.NewCounter(prometheus.CounterOpts{
		Namespace: m.namespace,
		Subsystem: subsystem,
		Name:      "panic_recoveries_total",
		Help:      "Handler panics recovered by middleware",
	})
}

// UpdateCupcakesTotal sets the stored cupcake count.
func UpdateCupcakesTotal(count int64) {
	m := manager()
	if !m.enabled {
		return
	}
	m.cupcakesTotal.Set(float64(count))
}

// RecordCupcakeMutation counts a successful create, update or delete.
func RecordCupcakeMutation(operation string) {
	m := manager()
	if !m.enabled {
		return
	}
	m.cupcakeMutations.WithLabelValues(operation).Inc()
}

// RecordStoreLatency records a store operation latency in milliseconds.
func RecordStoreLatency(operation string, latencyMs float64) {
	m := manager()
	if !m.enabled {
		return
	}
	m.storeLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordStoreError counts a failed store operation.
func RecordStoreError(operation string) {
	m := manager()
	if !m.enabled {
		return
	}
	m.storeErrors.WithLabelValues(operation).Inc()
}

// UpdateStoreOpenConnections sets the open connection gauge.
func UpdateStoreOpenConnections(count int) {
	m := manager()
	if !m.enabled {
		return
	}
	m.storeOpenConn.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	m := manager()
	if !m.enabled {
		return
	}
	m.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	m := manager()
	if !m.enabled {
		return
	}
	m.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordErrorByEndpoint records an error response for an endpoint.
func RecordErrorByEndpoint(endpoint, method, errorType string) {
	m := manager()
	if !m.enabled {
		return
	}
	m.errorRateByEndpoint.WithLabelValues(endpoint, method, errorType).Inc()
}

// RecordRateLimitReject counts a request rejected by the limiter.
func RecordRateLimitReject() {
	m := manager()
	if !m.enabled {
		return
	}
	m.rateLimitRejects.Inc()
}

// RecordPanicRecovery counts a recovered handler panic.
func RecordPanicRecovery() {
	m := manager()
	if !m.enabled {
		return
	}
	m.panicRecoveries.Inc()
}

// RefreshInterval reports how often callers should refresh gauges.
func RefreshInterval() time.Duration {
	return manager().refreshInterval
}

// GetRegistry returns the registry the current manager records into.
func GetRegistry() *prometheus.Registry {
	return current.Load().registry
}

package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics holds all Prometheus collectors for the voxdeck console.
type Metrics struct {
	registry *prometheus.Registry

	// Console HTTP surface.
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Backend client.
	BackendRequestsTotal   *prometheus.CounterVec
	BackendRequestDuration *prometheus.HistogramVec
	BackendErrorsTotal     *prometheus.CounterVec

	// Store behavior.
	StaleScopeDropsTotal   prometheus.Counter
	EncodingFallbacksTotal *prometheus.CounterVec

	// Session lifecycle.
	SessionEventsTotal *prometheus.CounterVec

	// Notification synthesis.
	NotificationsBuilt prometheus.Gauge

	// Server lifecycle.
	ServerStartTime prometheus.Gauge
}

// New creates and registers all metrics on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,

		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxdeck_http_requests_total",
			Help: "Total number of console HTTP requests.",
		}, []string{"method", "path_pattern", "status_code"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxdeck_http_request_duration_seconds",
			Help:    "Console HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path_pattern"}),

		BackendRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxdeck_backend_requests_total",
			Help: "Total number of requests issued to the platform backend.",
		}, []string{"endpoint", "method", "status_code"}),

		BackendRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voxdeck_backend_request_duration_seconds",
			Help:    "Platform backend request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "method"}),

		BackendErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxdeck_backend_errors_total",
			Help: "Total number of backend request failures by error type.",
		}, []string{"endpoint", "error_type"}),

		StaleScopeDropsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "voxdeck_stale_scope_drops_total",
			Help: "Total number of agent fetch results discarded because the scope changed mid-flight.",
		}),

		EncodingFallbacksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxdeck_encoding_fallbacks_total",
			Help: "Total number of request-encoding fallback attempts against the backend.",
		}, []string{"endpoint", "encoding"}),

		SessionEventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "voxdeck_session_events_total",
			Help: "Total number of session lifecycle events.",
		}, []string{"event"}),

		NotificationsBuilt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voxdeck_notifications_built",
			Help: "Number of notifications produced by the last synthesis pass.",
		}),

		ServerStartTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "voxdeck_server_start_time_seconds",
			Help: "Unix timestamp when the console started.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.BackendRequestsTotal,
		m.BackendRequestDuration,
		m.BackendErrorsTotal,
		m.StaleScopeDropsTotal,
		m.EncodingFallbacksTotal,
		m.SessionEventsTotal,
		m.NotificationsBuilt,
		m.ServerStartTime,
	)

	m.ServerStartTime.Set(float64(time.Now().Unix()))

	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return m
}

// Registry returns the private Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RegisterCacheCollector registers a collector exposing store cache sizes.
func (m *Metrics) RegisterCacheCollector(statFunc CacheStatFunc) {
	m.registry.MustRegister(NewCacheCollector(statFunc))
}

// ObserveBackendRequest records one backend round trip.
func (m *Metrics) ObserveBackendRequest(endpoint, method string, statusCode int, seconds float64) {
	m.BackendRequestsTotal.WithLabelValues(endpoint, method, fmt.Sprintf("%d", statusCode)).Inc()
	m.BackendRequestDuration.WithLabelValues(endpoint, method).Observe(seconds)
}

// IncBackendError increments the backend error counter.
func (m *Metrics) IncBackendError(endpoint, errorType string) {
	m.BackendErrorsTotal.WithLabelValues(endpoint, errorType).Inc()
}

// IncStaleScopeDrop counts one discarded stale agent fetch.
func (m *Metrics) IncStaleScopeDrop() {
	m.StaleScopeDropsTotal.Inc()
}

// IncEncodingFallback counts one fallback to an alternate request encoding.
func (m *Metrics) IncEncodingFallback(endpoint, encoding string) {
	m.EncodingFallbacksTotal.WithLabelValues(endpoint, encoding).Inc()
}

// IncSessionEvent counts one session lifecycle event.
func (m *Metrics) IncSessionEvent(event string) {
	m.SessionEventsTotal.WithLabelValues(event).Inc()
}

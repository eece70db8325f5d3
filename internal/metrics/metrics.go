package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	// RequestLatency tracks HTTP request latency by endpoint and method
	RequestLatency *prometheus.HistogramVec
	// HTTPRequestsTotal total HTTP requests
	HTTPRequestsTotal *prometheus.CounterVec
	// HTTPRequestsInFlight current HTTP requests being processed
	HTTPRequestsInFlight prometheus.Gauge
	// ErrorCounter counts errors by type and endpoint
	ErrorCounter *prometheus.CounterVec

	// CRMRequests counts outbound CRM calls by operation and HTTP status
	CRMRequests *prometheus.CounterVec
	// CRMLatency tracks outbound CRM call latency by operation
	CRMLatency *prometheus.HistogramVec
	// TokenRefreshes counts refresh attempts by result
	TokenRefreshes *prometheus.CounterVec
	// Enrichments counts per-record enrichment outcomes
	Enrichments *prometheus.CounterVec
	// TaskNotifications counts tasks written back to the CRM
	TaskNotifications *prometheus.CounterVec
	// EventsServed counts events returned by source
	EventsServed *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics(namespace string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		RequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "request_latency_seconds",
				Help:      "HTTP request latency in seconds",
				Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"endpoint", "method", "status"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		ErrorCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of errors",
			},
			[]string{"type", "endpoint", "method"},
		),
		CRMRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crm_requests_total",
				Help:      "Total number of outbound CRM requests",
			},
			[]string{"operation", "status"},
		),
		CRMLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "crm_request_duration_seconds",
				Help:      "Outbound CRM request latency in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		TokenRefreshes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "token_refresh_total",
				Help:      "Total number of OAuth token refresh attempts",
			},
			[]string{"result"},
		),
		Enrichments: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "enrichment_total",
				Help:      "Per-record enrichment outcomes",
			},
			[]string{"kind", "result"},
		),
		TaskNotifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "task_notifications_total",
				Help:      "Tasks written back to the CRM",
			},
			[]string{"kind", "result"},
		),
		EventsServed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_served_total",
				Help:      "Events returned to clients by source",
			},
			[]string{"source"},
		),
	}

	registry.MustRegister(
		m.RequestLatency,
		m.HTTPRequestsTotal,
		m.HTTPRequestsInFlight,
		m.ErrorCounter,
		m.CRMRequests,
		m.CRMLatency,
		m.TokenRefreshes,
		m.Enrichments,
		m.TaskNotifications,
		m.EventsServed,
	)

	return m
}

// Handler returns a Prometheus handler for these metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry (tests gather from it).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordRequestLatency records the latency of an HTTP request
func (m *Metrics) RecordRequestLatency(endpoint, method, status string, durationSeconds float64) {
	m.RequestLatency.WithLabelValues(endpoint, method, status).Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(endpoint, method, status string) {
	m.HTTPRequestsTotal.WithLabelValues(endpoint, method, status).Inc()
}

// IncHTTPRequestsInFlight increments the in-flight requests counter
func (m *Metrics) IncHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Inc()
}

// DecHTTPRequestsInFlight decrements the in-flight requests counter
func (m *Metrics) DecHTTPRequestsInFlight() {
	m.HTTPRequestsInFlight.Dec()
}

// RecordError records an error
func (m *Metrics) RecordError(errorType, endpoint, method string) {
	if m == nil {
		return
	}
	m.ErrorCounter.WithLabelValues(errorType, endpoint, method).Inc()
}

// RecordCRMRequest records one outbound CRM call. status is the HTTP
// status code or "error" for transport failures.
func (m *Metrics) RecordCRMRequest(operation, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.CRMRequests.WithLabelValues(operation, status).Inc()
	m.CRMLatency.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordTokenRefresh records a refresh attempt ("success", "failure", "missing").
func (m *Metrics) RecordTokenRefresh(result string) {
	if m == nil {
		return
	}
	m.TokenRefreshes.WithLabelValues(result).Inc()
}

// RecordEnrichment records an enrichment outcome ("ok", "unknown", "denied").
func (m *Metrics) RecordEnrichment(kind, result string) {
	if m == nil {
		return
	}
	m.Enrichments.WithLabelValues(kind, result).Inc()
}

// RecordTaskNotification records a task write ("create"/"update", "success"/"failure").
func (m *Metrics) RecordTaskNotification(kind, result string) {
	if m == nil {
		return
	}
	m.TaskNotifications.WithLabelValues(kind, result).Inc()
}

// RecordEventsServed adds n events of the given source.
func (m *Metrics) RecordEventsServed(source string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.EventsServed.WithLabelValues(source).Add(float64(n))
}

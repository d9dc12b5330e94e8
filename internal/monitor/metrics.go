package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the playground.
type Metrics struct {
	Registry *prometheus.Registry

	ExecutionsTotal   *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	DiagnosesTotal    *prometheus.CounterVec
	ExecutionErrors   *prometheus.CounterVec
	ActiveExecutions  prometheus.Gauge
	SecurityEvents    *prometheus.CounterVec
	RequestsInFlight  prometheus.Gauge
	LiveConnections   prometheus.Gauge
	CodeSizeBytes     prometheus.Histogram
	OutputSizeBytes   prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		ExecutionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "playground",
				Name:      "executions_total",
				Help:      "Total number of snippet executions by backend and outcome status.",
			},
			[]string{"backend", "status"},
		),

		ExecutionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "playground",
				Name:      "execution_duration_seconds",
				Help:      "Duration of snippet executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
			[]string{"backend"},
		),

		DiagnosesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "playground",
				Name:      "diagnoses_total",
				Help:      "Failed executions by diagnosed category.",
			},
			[]string{"category"},
		),

		ExecutionErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "playground",
				Name:      "execution_errors_total",
				Help:      "Requests that produced no outcome, by error type.",
			},
			[]string{"type"},
		),

		ActiveExecutions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "playground",
				Name:      "active_executions",
				Help:      "Number of currently running workers.",
			},
		),

		SecurityEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "playground",
				Name:      "security_events_total",
				Help:      "Total security events detected in code or output.",
			},
			[]string{"type"},
		),

		RequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "playground",
				Subsystem: "api",
				Name:      "requests_in_flight",
				Help:      "Number of HTTP requests currently being processed.",
			},
		),

		LiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "playground",
				Subsystem: "api",
				Name:      "websocket_connections",
				Help:      "Number of open WebSocket run channels.",
			},
		),

		CodeSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "playground",
				Name:      "code_size_bytes",
				Help:      "Size of submitted code in bytes.",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 8),
			},
		),

		OutputSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "playground",
				Name:      "output_size_bytes",
				Help:      "Size of execution output in bytes.",
				Buckets:   prometheus.ExponentialBuckets(10, 4, 8),
			},
		),
	}

	// Register all collectors
	reg.MustRegister(
		m.ExecutionsTotal,
		m.ExecutionDuration,
		m.DiagnosesTotal,
		m.ExecutionErrors,
		m.ActiveExecutions,
		m.SecurityEvents,
		m.RequestsInFlight,
		m.LiveConnections,
		m.CodeSizeBytes,
		m.OutputSizeBytes,
	)

	return m
}

// RecordExecution records metrics for a completed execution.
func (m *Metrics) RecordExecution(backend, status string, durationSec float64, codeBytes, outputBytes int) {
	m.ExecutionsTotal.WithLabelValues(backend, status).Inc()
	m.ExecutionDuration.WithLabelValues(backend).Observe(durationSec)
	m.CodeSizeBytes.Observe(float64(codeBytes))
	m.OutputSizeBytes.Observe(float64(outputBytes))
}

// RecordDiagnosis counts a failed execution under its category.
func (m *Metrics) RecordDiagnosis(category string) {
	m.DiagnosesTotal.WithLabelValues(category).Inc()
}

// RecordError records an execution error by type.
func (m *Metrics) RecordError(errType string) {
	m.ExecutionErrors.WithLabelValues(errType).Inc()
}

// RecordSecurityEvent records a security event.
func (m *Metrics) RecordSecurityEvent(eventType string) {
	m.SecurityEvents.WithLabelValues(eventType).Inc()
}

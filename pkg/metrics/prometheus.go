// Package metrics provides Prometheus metrics for the interview runtime.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Manager manages all Prometheus metrics for the interview service.
type Manager struct {
	namespace        string
	subsystem        string
	histogramBuckets []float64
	constLabels      map[string]string
	registry         prometheus.Registerer

	// Session lifecycle
	sessionsStarted   prometheus.Counter
	sessionsEnded     *prometheus.CounterVec
	attemptsExhausted prometheus.Counter
	activeSessions    prometheus.Gauge
	chatTurns         prometheus.Counter

	// LLM and reports
	llmRequests    *prometheus.CounterVec
	llmLatency     *prometheus.HistogramVec
	reports        *prometheus.CounterVec
	scoringLatency prometheus.Histogram

	// Media upload pipeline
	uploadEnqueued  prometheus.Counter
	uploadDelivered prometheus.Counter
	uploadRetries   prometheus.Counter
	uploadLost      prometheus.Counter
	uploadRejected  prometheus.Counter
	uploadQueueSize prometheus.Gauge
	uploadLatency   prometheus.Histogram

	// Speech and proctoring
	transcriptionResults *prometheus.CounterVec
	proctorChecks        *prometheus.CounterVec

	// HTTP
	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Storage
	repositoryLatency *prometheus.HistogramVec

	errorsByComponent *prometheus.CounterVec
}

// Global metrics manager instance.
var globalManager *Manager //nolint:gochecknoglobals // intentional global for singleton metrics manager

// Custom registry to avoid default Go metrics.
var customRegistry = prometheus.NewRegistry() //nolint:gochecknoglobals // intentional global for metrics registry

func init() { //nolint:gochecknoinits // intentional init for global metrics setup
	globalManager = NewManager(WithPrometheusRegistry(customRegistry))
}

// NewManager creates a new metrics manager with default configuration.
func NewManager(opts ...Option) *Manager {
	m := &Manager{
		namespace:        "intervue",
		subsystem:        "runtime",
		histogramBuckets: prometheus.DefBuckets,
		constLabels:      map[string]string{},
		registry:         prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.initializeMetrics()
	return m
}

func (m *Manager) counter(name, help string) prometheus.Counter {
	return promauto.With(m.registry).NewCounter(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) counterVec(name, help string, labels ...string) *prometheus.CounterVec {
	return promauto.With(m.registry).NewCounterVec(prometheus.CounterOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	}, labels)
}

func (m *Manager) gauge(name, help string) prometheus.Gauge {
	return promauto.With(m.registry).NewGauge(prometheus.GaugeOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogram(name, help string) prometheus.Histogram {
	return promauto.With(m.registry).NewHistogram(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	})
}

func (m *Manager) histogramVec(name, help string, labels ...string) *prometheus.HistogramVec {
	return promauto.With(m.registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   m.namespace,
		Subsystem:   m.subsystem,
		Name:        name,
		Help:        help,
		Buckets:     m.histogramBuckets,
		ConstLabels: m.constLabels,
	}, labels)
}

// initializeMetrics creates all the Prometheus metrics on the configured registry.
func (m *Manager) initializeMetrics() {
	m.sessionsStarted = m.counter("sessions_started_total", "Total number of interview sessions started")
	m.sessionsEnded = m.counterVec("sessions_ended_total", "Total number of interview sessions ended by reason", "reason")
	m.attemptsExhausted = m.counter("attempts_exhausted_total", "Total number of starts refused because the attempt ceiling was reached")
	m.activeSessions = m.gauge("active_sessions", "Number of sessions currently in progress")
	m.chatTurns = m.counter("chat_turns_total", "Total number of candidate turns relayed to the interviewer")

	m.llmRequests = m.counterVec("llm_requests_total", "Total number of LLM requests by operation and outcome", "operation", "outcome")
	m.llmLatency = m.histogramVec("llm_latency_milliseconds", "LLM request latency in milliseconds", "operation")
	m.reports = m.counterVec("reports_generated_total", "Total number of reports generated by score source", "source")
	m.scoringLatency = m.histogram("scoring_latency_milliseconds", "End-to-end report scoring latency in milliseconds")

	m.uploadEnqueued = m.counter("upload_chunks_enqueued_total", "Total number of media chunks accepted for upload")
	m.uploadDelivered = m.counter("upload_chunks_delivered_total", "Total number of media chunks delivered")
	m.uploadRetries = m.counter("upload_retries_total", "Total number of media chunk delivery retries")
	m.uploadLost = m.counter("upload_chunks_lost_total", "Total number of media chunks dropped after exhausting retries")
	m.uploadRejected = m.counter("upload_chunks_rejected_total", "Total number of media chunks rejected after the queue was disabled")
	m.uploadQueueSize = m.gauge("upload_queue_size", "Current number of chunks waiting for upload")
	m.uploadLatency = m.histogram("upload_latency_milliseconds", "Media chunk delivery latency in milliseconds")

	m.transcriptionResults = m.counterVec("transcription_results_total", "Total number of recognition results by kind and disposition", "kind", "disposition")
	m.proctorChecks = m.counterVec("proctor_checks_total", "Total number of proctoring checks by status", "status")

	m.httpRequests = m.counterVec("http_requests_total", "Total number of HTTP requests by endpoint and method", "endpoint", "method", "status_code")
	m.httpRequestDuration = m.histogramVec("http_request_duration_milliseconds", "HTTP request duration in milliseconds", "endpoint", "method", "status_code")

	m.repositoryLatency = m.histogramVec("repository_latency_milliseconds", "Repository operation latency in milliseconds", "operation")

	m.errorsByComponent = m.counterVec("errors_by_component_total", "Total number of errors by component", "component", "error_type")
}

// RecordSessionStarted counts a started session and bumps the active gauge.
func RecordSessionStarted() {
	globalManager.sessionsStarted.Inc()
	globalManager.activeSessions.Inc()
}

// RecordSessionEnded counts an ended session and drops the active gauge.
func RecordSessionEnded(reason string) {
	globalManager.sessionsEnded.WithLabelValues(reason).Inc()
	globalManager.activeSessions.Dec()
}

// RecordAttemptsExhausted counts a refused start.
func RecordAttemptsExhausted() {
	globalManager.attemptsExhausted.Inc()
}

// RecordChatTurn counts a relayed candidate turn.
func RecordChatTurn() {
	globalManager.chatTurns.Inc()
}

// RecordLLMRequest records the outcome and latency of an LLM call.
func RecordLLMRequest(operation, outcome string, latencyMs float64) {
	globalManager.llmRequests.WithLabelValues(operation, outcome).Inc()
	globalManager.llmLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordReportGenerated counts a report by its score source.
func RecordReportGenerated(source string) {
	globalManager.reports.WithLabelValues(source).Inc()
}

// RecordScoringLatency records scoring latency in milliseconds.
func RecordScoringLatency(latencyMs float64) {
	globalManager.scoringLatency.Observe(latencyMs)
}

// RecordUploadEnqueued counts an accepted chunk.
func RecordUploadEnqueued() {
	globalManager.uploadEnqueued.Inc()
}

// RecordUploadDelivered counts a delivered chunk and its latency.
func RecordUploadDelivered(latencyMs float64) {
	globalManager.uploadDelivered.Inc()
	globalManager.uploadLatency.Observe(latencyMs)
}

// RecordUploadRetry counts a retry.
func RecordUploadRetry() {
	globalManager.uploadRetries.Inc()
}

// RecordUploadLost counts a chunk dropped after its final attempt.
func RecordUploadLost() {
	globalManager.uploadLost.Inc()
}

// RecordUploadRejected counts a chunk refused by a disabled queue.
func RecordUploadRejected() {
	globalManager.uploadRejected.Inc()
}

// UpdateUploadQueueSize sets the current upload backlog.
func UpdateUploadQueueSize(size int) {
	globalManager.uploadQueueSize.Set(float64(size))
}

// RecordTranscriptionResult counts a recognition result.
// kind is interim or final; disposition is accepted or discarded.
func RecordTranscriptionResult(kind, disposition string) {
	globalManager.transcriptionResults.WithLabelValues(kind, disposition).Inc()
}

// RecordProctorCheck counts a proctoring check by status.
func RecordProctorCheck(status string) {
	globalManager.proctorChecks.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request.
func RecordHTTPRequest(endpoint, method, statusCode string) {
	globalManager.httpRequests.WithLabelValues(endpoint, method, statusCode).Inc()
}

// RecordHTTPRequestDuration records HTTP request duration.
func RecordHTTPRequestDuration(endpoint, method, statusCode string, duration float64) {
	globalManager.httpRequestDuration.WithLabelValues(endpoint, method, statusCode).Observe(duration)
}

// RecordRepositoryLatency records a repository operation latency.
func RecordRepositoryLatency(operation string, latencyMs float64) {
	globalManager.repositoryLatency.WithLabelValues(operation).Observe(latencyMs)
}

// RecordErrorByComponent records an error with component and type labels.
func RecordErrorByComponent(component, errorType string) {
	globalManager.errorsByComponent.WithLabelValues(component, errorType).Inc()
}

// GetRegistry returns the custom Prometheus registry used by our metrics.
func GetRegistry() *prometheus.Registry {
	return customRegistry
}

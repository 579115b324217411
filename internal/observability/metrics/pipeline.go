package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/OMGitsNIK/AI-Expense-Analyzer/internal/core/domain"
)

const namespace = "expense"

// Handler exposes a registry in the Prometheus text format.
func Handler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

// PipelineMetrics implements the pipeline observer, the resilience observer
// and the worker job hooks on one registry.
type PipelineMetrics struct {
	service string

	documentsTotal     *prometheus.CounterVec
	documentDuration   *prometheus.HistogramVec
	rowsTotal          *prometheus.CounterVec
	extractionAttempts *prometheus.CounterVec
	categorizations    *prometheus.CounterVec
	retriesTotal       *prometheus.CounterVec
	breakerState       *prometheus.GaugeVec
	jobsTotal          *prometheus.CounterVec
	jobDuration        *prometheus.HistogramVec
	jobsInFlight       prometheus.Gauge
}

func NewPipelineMetrics(service string, registry *prometheus.Registry) *PipelineMetrics {
	documentsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "documents_total",
			Help:      "Processed documents by source kind and outcome.",
		},
		[]string{"service", "kind", "status"},
	)
	documentDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "document_duration_seconds",
			Help:      "Time spent on one document from routing to ledger append.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"service", "kind"},
	)
	rowsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "rows_total",
			Help:      "Rows by outcome: added, duplicate or error.",
		},
		[]string{"service", "outcome"},
	)
	extractionAttempts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "extraction",
			Name:      "attempts_total",
			Help:      "AI extraction attempts by provider and result.",
		},
		[]string{"service", "provider", "result"},
	)
	categorizations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "categorization",
			Name:      "assignments_total",
			Help:      "Category assignments by source.",
		},
		[]string{"service", "source"},
	)
	retriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "retries_total",
			Help:      "Retried outbound calls by operation.",
		},
		[]string{"service", "operation"},
	)
	breakerState := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by operation: 0 closed, 1 half-open, 2 open.",
		},
		[]string{"service", "operation"},
	)
	jobsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_total",
			Help:      "Queued document jobs handled by status.",
		},
		[]string{"service", "status"},
	)
	jobDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "job_duration_seconds",
			Help:      "Queued document job duration in seconds by status.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "status"},
	)
	jobsInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "jobs_in_flight",
			Help:      "Number of in-flight document jobs.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)

	registry.MustRegister(
		documentsTotal,
		documentDuration,
		rowsTotal,
		extractionAttempts,
		categorizations,
		retriesTotal,
		breakerState,
		jobsTotal,
		jobDuration,
		jobsInFlight,
	)

	return &PipelineMetrics{
		service:            service,
		documentsTotal:     documentsTotal,
		documentDuration:   documentDuration,
		rowsTotal:          rowsTotal,
		extractionAttempts: extractionAttempts,
		categorizations:    categorizations,
		retriesTotal:       retriesTotal,
		breakerState:       breakerState,
		jobsTotal:          jobsTotal,
		jobDuration:        jobDuration,
		jobsInFlight:       jobsInFlight,
	}
}

func (m *PipelineMetrics) ObserveDocument(kind domain.SourceKind, status domain.ExtractionStatus, duration time.Duration) {
	label := string(kind)
	if label == "" {
		label = "unknown"
	}
	m.documentsTotal.WithLabelValues(m.service, label, string(status)).Inc()
	m.documentDuration.WithLabelValues(m.service, label).Observe(duration.Seconds())
}

func (m *PipelineMetrics) ObserveRows(outcome string, n int) {
	if n <= 0 {
		return
	}
	m.rowsTotal.WithLabelValues(m.service, outcome).Add(float64(n))
}

func (m *PipelineMetrics) ObserveExtractionAttempt(provider, result string) {
	m.extractionAttempts.WithLabelValues(m.service, provider, result).Inc()
}

func (m *PipelineMetrics) ObserveCategorization(source domain.CategorySource) {
	label := string(source)
	if label == "" {
		label = "none"
	}
	m.categorizations.WithLabelValues(m.service, label).Inc()
}

func (m *PipelineMetrics) ObserveRetry(operation string) {
	m.retriesTotal.WithLabelValues(m.service, operation).Inc()
}

func (m *PipelineMetrics) ObserveBreakerState(operation string, state string) {
	value := 0.0
	switch state {
	case "half-open":
		value = 1
	case "open":
		value = 2
	}
	m.breakerState.WithLabelValues(m.service, operation).Set(value)
}

func (m *PipelineMetrics) StartJob() {
	m.jobsInFlight.Inc()
}

func (m *PipelineMetrics) FinishJob(duration time.Duration, err error) {
	m.jobsInFlight.Dec()

	status := "success"
	if err != nil {
		status = "error"
	}
	m.jobsTotal.WithLabelValues(m.service, status).Inc()
	m.jobDuration.WithLabelValues(m.service, status).Observe(duration.Seconds())
}

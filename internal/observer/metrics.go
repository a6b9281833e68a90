package observer

import (
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricsEnabled = false // Flag to control metric collection

	// Intake submission counter
	IntakesSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_intake_submissions_total",
			Help: "Total number of intake submissions, labeled by outcome (accepted, rejected, error).",
		},
		[]string{"outcome"},
	)

	IntakeFilesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "doc_intake_files_stored_total",
			Help: "Total number of uploaded documents written to the file store.",
		},
	)

	// Lead System request durations
	LeadSystemRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doc_intake_lead_system_request_duration_seconds",
			Help:    "Histogram of Lead System HTTP call durations.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
		[]string{"operation", "method", "encoding", "status"},
	)

	NotificationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_intake_notification_requests_total",
			Help: "Total number of notification relay calls, labeled by result.",
		},
		[]string{"status"},
	)

	// Pipeline stage outcomes
	ReconcileStageTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "doc_intake_reconcile_stage_total",
			Help: "Total count of reconciliation stage outcomes, labeled by stage and result.",
		},
		[]string{"stage", "result"},
	)
)

// Reconcile worker pool metrics
var (
	reconcileTasksSubmittedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_tasks_submitted_total",
			Help: "Total number of reconcile jobs submitted to the worker pool, labeled by source.",
		},
		[]string{"source"},
	)
	reconcileTasksProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_tasks_processed_total",
			Help: "Total number of reconcile jobs processed, labeled by final lead status.",
		},
		[]string{"lead_status"},
	)
	reconcileProcessingDurationSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reconcile_processing_duration_seconds",
			Help:    "Histogram of end to end reconciliation durations.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
		},
	)
	reconcileQueueLength = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reconcile_queue_length",
		Help: "Approximate number of jobs waiting for a reconcile worker.",
	})
	reconcileWorkersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "reconcile_workers_active",
		Help: "Current number of running reconcile workers.",
	})
)

// Job queue metrics (JetStream driver)
var (
	queueFetchRequestsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_queue_fetch_requests_total",
		Help: "Total number of fetch requests made to the reconcile stream.",
	})
	queueFetchErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconcile_queue_fetch_errors_total",
		Help: "Total number of errors encountered during reconcile stream fetches.",
	})
	queueMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_queue_messages_total",
			Help: "Total number of reconcile queue messages, labeled by action (published, ack, nak, term).",
		},
		[]string{"action"},
	)
)

// Labels for database operations
var (
	dbOperationLabels = []string{"operation", "entity", "status"}

	DatabaseOperationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "doc_intake_db_operation_duration_seconds",
			Help:    "Histogram of database operation durations.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15), // 1ms to ~16s
		},
		dbOperationLabels,
	)
)

// InitMetrics turns metric collection on. Call it during application startup.
// Metrics are registered by promauto either way; when disabled the helpers are no-ops.
func InitMetrics(enabled bool) {
	metricsEnabled = enabled
}

// Enabled reports whether metric collection is on.
func Enabled() bool {
	return metricsEnabled
}

// IncIntakeSubmitted counts an intake submission by outcome.
func IncIntakeSubmitted(outcome string) {
	if !metricsEnabled {
		return
	}
	IntakesSubmittedTotal.WithLabelValues(outcome).Inc()
}

// AddIntakeFiles counts stored documents.
func AddIntakeFiles(n int) {
	if !metricsEnabled {
		return
	}
	IntakeFilesTotal.Add(float64(n))
}

// ObserveLeadSystemRequest records one Lead System HTTP call. statusCode 0 means
// the request never got a response.
func ObserveLeadSystemRequest(operation, method, encoding string, statusCode int, duration time.Duration) {
	if !metricsEnabled {
		return
	}
	LeadSystemRequestDurationSeconds.WithLabelValues(operation, method, encoding, statusLabel(statusCode)).Observe(duration.Seconds())
}

// IncNotification counts a notification relay call.
func IncNotification(statusCode int) {
	if !metricsEnabled {
		return
	}
	NotificationRequestsTotal.WithLabelValues(statusLabel(statusCode)).Inc()
}

// IncReconcileStage counts a pipeline stage outcome.
func IncReconcileStage(stage string, err error) {
	if !metricsEnabled {
		return
	}
	result := "success"
	if err != nil {
		result = SanitizeErrorType(err.Error())
	}
	ReconcileStageTotal.WithLabelValues(stage, result).Inc()
}

// IncReconcileTasksSubmitted increments the counter for jobs handed to the pool.
func IncReconcileTasksSubmitted(source string) {
	if metricsEnabled {
		reconcileTasksSubmittedTotal.WithLabelValues(source).Inc()
	}
}

// IncReconcileTasksProcessed increments the counter for finished jobs by status.
func IncReconcileTasksProcessed(leadStatus string) {
	if metricsEnabled {
		reconcileTasksProcessedTotal.WithLabelValues(leadStatus).Inc()
	}
}

// ObserveReconcileDuration records the processing time of one job.
func ObserveReconcileDuration(duration time.Duration) {
	if metricsEnabled {
		reconcileProcessingDurationSeconds.Observe(duration.Seconds())
	}
}

// SetReconcileQueueLength sets the number of jobs waiting for a worker.
func SetReconcileQueueLength(length int) {
	if metricsEnabled {
		reconcileQueueLength.Set(float64(length))
	}
}

// SetReconcileWorkersActive sets the number of running workers.
func SetReconcileWorkersActive(count int) {
	if metricsEnabled {
		reconcileWorkersActive.Set(float64(count))
	}
}

// IncQueueFetchRequest increments the stream fetch counter.
func IncQueueFetchRequest() {
	if metricsEnabled {
		queueFetchRequestsTotal.Inc()
	}
}

// IncQueueFetchError increments the stream fetch error counter.
func IncQueueFetchError() {
	if metricsEnabled {
		queueFetchErrorsTotal.Inc()
	}
}

// IncQueueMessage counts a queue message action (published, ack, nak, term).
func IncQueueMessage(action string) {
	if metricsEnabled {
		queueMessagesTotal.WithLabelValues(action).Inc()
	}
}

// ObserveDbOperationDuration records the duration for a database operation.
func ObserveDbOperationDuration(operation, entity string, duration time.Duration, err error) {
	if !metricsEnabled {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	DatabaseOperationDurationSeconds.WithLabelValues(operation, entity, status).Observe(duration.Seconds())
}

func statusLabel(code int) string {
	if code <= 0 {
		return "network_error"
	}
	return strconv.Itoa(code)
}

// SanitizeErrorType maps specific errors to a small set of categories.
// Keep this simple to avoid high cardinality.
func SanitizeErrorType(errStr string) string {
	if errStr == "" || errStr == "none" {
		return "none"
	}

	lower := strings.ToLower(errStr)
	switch {
	case strings.Contains(lower, "contract mismatch"), strings.Contains(lower, "method not allowed"):
		return "contract_mismatch"
	case strings.Contains(lower, "database"), strings.Contains(lower, "sql"), strings.Contains(lower, "constraint"):
		return "database"
	case strings.Contains(lower, "validation failed"), strings.Contains(lower, "bad request"), strings.Contains(lower, "invalid"):
		return "validation"
	case strings.Contains(lower, "not found"), strings.Contains(lower, "no rows"):
		return "not_found"
	case strings.Contains(lower, "timeout"), strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "remote service error"), strings.Contains(lower, "status"):
		return "remote"
	case strings.Contains(lower, "unmarshal"), strings.Contains(lower, "json"):
		return "unmarshal"
	case strings.Contains(lower, "panic"):
		return "panic"
	default:
		return "unknown"
	}
}

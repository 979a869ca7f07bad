package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Job metrics
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provenance_jobs_total",
			Help: "Total number of jobs created by priority",
		},
		[]string{"priority"},
	)

	JobsByStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provenance_jobs_by_status",
			Help: "Current number of jobs in each status",
		},
		[]string{"status"},
	)

	JobProgressLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provenance_job_completion_seconds",
			Help:    "Wall-clock time from job creation to terminal status",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	// Task metrics
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provenance_tasks_total",
			Help: "Total number of worker tasks by task_type and outcome",
		},
		[]string{"task_type", "outcome"},
	)

	TaskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provenance_task_duration_seconds",
			Help:    "Connector call duration in seconds by task_type",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"task_type"},
	)

	QueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provenance_queue_depth",
			Help: "Current number of pending tasks per task_type queue",
		},
		[]string{"task_type"},
	)

	WorkerPoolUtilization = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provenance_worker_pool_utilization",
			Help: "Fraction of worker pool capacity in use per task_type",
		},
		[]string{"task_type"},
	)

	// Rate limiter metrics
	RateLimiterRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provenance_rate_limiter_rejections_total",
			Help: "Total number of rate-limiter admission rejections by source",
		},
		[]string{"source"},
	)

	// Retry controller metrics
	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provenance_retry_attempts_total",
			Help: "Total number of retry attempts by source and category",
		},
		[]string{"source", "category"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "provenance_circuit_breaker_state",
			Help: "Circuit breaker state per source (0=closed, 1=half-open, 2=open)",
		},
		[]string{"source"},
	)

	// Validation / aggregation metrics
	ValidationResultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provenance_validation_results_total",
			Help: "Total number of rule-level validation results by field and status",
		},
		[]string{"field", "status"},
	)

	ReportConfidence = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provenance_report_overall_confidence",
			Help:    "Distribution of overall_confidence across generated reports",
			Buckets: []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)

	ReportsByStatus = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provenance_reports_total",
			Help: "Total number of provider reports generated by validation_status",
		},
		[]string{"validation_status"},
	)

	// Idempotency metrics
	IdempotencyHitsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "provenance_idempotency_hits_total",
			Help: "Total idempotency store outcomes (created, replay, conflict)",
		},
		[]string{"outcome"},
	)

	// Scheduler metrics
	SchedulerCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provenance_scheduler_cycles_total",
			Help: "Total number of progress-recompute cycles completed",
		},
	)

	SchedulerCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provenance_scheduler_cycle_duration_seconds",
			Help:    "Time taken for one scheduler progress-recompute cycle",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Reconciler metrics
	ReconciliationCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "provenance_reconciliation_cycles_total",
			Help: "Total number of stranded-task reconciliation sweeps completed",
		},
	)

	ReconciliationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "provenance_reconciliation_duration_seconds",
			Help:    "Time taken for one stranded-task reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobsByStatus)
	prometheus.MustRegister(JobProgressLatency)
	prometheus.MustRegister(TasksTotal)
	prometheus.MustRegister(TaskDuration)
	prometheus.MustRegister(QueueDepth)
	prometheus.MustRegister(WorkerPoolUtilization)
	prometheus.MustRegister(RateLimiterRejectionsTotal)
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(ValidationResultsTotal)
	prometheus.MustRegister(ReportConfidence)
	prometheus.MustRegister(ReportsByStatus)
	prometheus.MustRegister(IdempotencyHitsTotal)
	prometheus.MustRegister(SchedulerCyclesTotal)
	prometheus.MustRegister(SchedulerCycleDuration)
	prometheus.MustRegister(ReconciliationCyclesTotal)
	prometheus.MustRegister(ReconciliationDuration)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since timer started
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

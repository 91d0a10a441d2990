package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP metrics
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codigo",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codigo",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// Registration intake metrics
	RegistrationSubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codigo",
			Subsystem: "registration",
			Name:      "submissions_total",
			Help:      "Total number of registration attempts by terminal outcome",
		},
		[]string{"path", "outcome"},
	)

	RateLimitDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codigo",
			Subsystem: "registration",
			Name:      "rate_limit_decisions_total",
			Help:      "Total number of per-email rate limit decisions",
		},
		[]string{"decision"},
	)

	// Storage metrics
	StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codigo",
			Subsystem: "storage",
			Name:      "operation_duration_seconds",
			Help:      "Object storage operation duration in seconds",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 20},
		},
		[]string{"operation", "status"},
	)

	OrphanObjectsDeletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codigo",
			Subsystem: "storage",
			Name:      "orphans_deleted_total",
			Help:      "Total number of unreferenced proof objects deleted",
		},
		[]string{"source"},
	)

	// Notification metrics
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codigo",
			Subsystem: "notification",
			Name:      "emails_total",
			Help:      "Total number of confirmation emails by result",
		},
		[]string{"result"},
	)

	// Scheduler metrics
	SchedulerJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codigo",
			Subsystem: "scheduler",
			Name:      "jobs_total",
			Help:      "Total number of scheduled jobs executed",
		},
		[]string{"job_name", "status"},
	)

	SchedulerJobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "codigo",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduled job execution duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"job_name"},
	)

	LastSchedulerJobTime = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "codigo",
			Subsystem: "scheduler",
			Name:      "last_job_timestamp",
			Help:      "Unix timestamp of last job execution",
		},
		[]string{"job_name"},
	)

	// Throttle metrics
	ThrottledRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "codigo",
			Subsystem: "throttle",
			Name:      "requests_total",
			Help:      "Total number of requests seen by the per-client throttle",
		},
		[]string{"allowed"},
	)
)

// Metrics provides convenience methods for recording metrics
type Metrics struct{}

// NewMetrics creates a new Metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordHTTPRequest records an HTTP request metric
func (m *Metrics) RecordHTTPRequest(method, endpoint string, statusCode int, duration time.Duration) {
	HttpRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	HttpRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordSubmission records the terminal outcome of a registration attempt
func (m *Metrics) RecordSubmission(path, outcome string) {
	RegistrationSubmissionsTotal.WithLabelValues(path, outcome).Inc()
}

// RecordRateLimitDecision records an allow or deny from the per-email limiter
func (m *Metrics) RecordRateLimitDecision(allowed bool) {
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	RateLimitDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordStorageOperation records an object storage call
func (m *Metrics) RecordStorageOperation(operation string, success bool, duration time.Duration) {
	StorageOperationDuration.WithLabelValues(operation, status(success)).Observe(duration.Seconds())
}

// RecordOrphansDeleted records deleted orphan objects; source is "compensation" or "sweep"
func (m *Metrics) RecordOrphansDeleted(source string, count int) {
	OrphanObjectsDeletedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordNotification records a confirmation email attempt
func (m *Metrics) RecordNotification(success bool) {
	NotificationsTotal.WithLabelValues(status(success)).Inc()
}

// RecordSchedulerJob records a scheduler job execution
func (m *Metrics) RecordSchedulerJob(jobName string, success bool, duration time.Duration) {
	SchedulerJobsTotal.WithLabelValues(jobName, status(success)).Inc()
	SchedulerJobDuration.WithLabelValues(jobName).Observe(duration.Seconds())
	LastSchedulerJobTime.WithLabelValues(jobName).SetToCurrentTime()
}

// RecordThrottle records a per-client throttle decision
func (m *Metrics) RecordThrottle(allowed bool) {
	ThrottledRequestsTotal.WithLabelValues(strconv.FormatBool(allowed)).Inc()
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

func status(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/quoteflow/internal/authorization"
	"gorm.io/gorm"
)

// Failure reasons used as the reason label on job failures.
const (
	ReasonTimeout       = "timeout"
	ReasonForbidden     = "forbidden"
	ReasonLockTimeout   = "lock_timeout"
	ReasonSerialization = "serialization"
	ReasonDatabase      = "database"
	ReasonOther         = "other"

	// ReasonStateChanged marks an item another writer moved first.
	ReasonStateChanged = "state_changed"
)

// SchedulerMetrics tracks background job health on the prometheus registry
// served at /metrics. A nil *SchedulerMetrics records nothing.
type SchedulerMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	timeouts    *prometheus.CounterVec
	failures    *prometheus.CounterVec
	processed   *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

var (
	schedulerOnce    sync.Once
	schedulerMetrics *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics, registered on the
// default registerer and labelled from cfg the first time it is called.
func Scheduler(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest drops the singleton so a test can register
// against its own registry.
func ResetSchedulerMetricsForTest() {
	schedulerOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	labels := prometheus.Labels{
		"service": orDefault(cfg.ServiceName, "quoteflow"),
		"env":     orDefault(cfg.Environment, "unknown"),
	}
	counter := func(name, help string, keys ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   "quoteflow",
			Subsystem:   "scheduler",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, keys)
	}

	m := &SchedulerMetrics{
		runs:        counter("job_runs_total", "Scheduler job runs.", "job"),
		timeouts:    counter("job_timeouts_total", "Scheduler jobs stopped by their deadline.", "job"),
		failures:    counter("job_errors_total", "Scheduler job failures by reason.", "job", "reason"),
		processed:   counter("items_processed_total", "Items a job changed.", "job"),
		skipped:     counter("items_skipped_total", "Items a job looked at and left alone, by reason.", "job", "reason"),
		transitions: counter("invoice_transitions_total", "Invoice status moves applied by the scheduler.", "from", "to"),
	}
	m.duration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "quoteflow",
		Subsystem:   "scheduler",
		Name:        "job_duration_seconds",
		Help:        "Scheduler job latency.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30, 60, 300},
		ConstLabels: labels,
	}, []string{"job"})

	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	registerer.MustRegister(m.runs, m.duration, m.timeouts, m.failures, m.processed, m.skipped, m.transitions)
	return m
}

// ObserveRun counts one finished run of job and its latency. A non-nil err
// is also counted under its failure reason.
func (m *SchedulerMetrics) ObserveRun(job string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err == nil {
		return
	}
	reason := FailureReason(err)
	if reason == ReasonTimeout {
		m.timeouts.WithLabelValues(job).Inc()
	}
	m.failures.WithLabelValues(job, reason).Inc()
}

func (m *SchedulerMetrics) AddProcessed(job string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.processed.WithLabelValues(job).Add(float64(n))
}

func (m *SchedulerMetrics) IncSkipped(job, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(job, reason).Inc()
}

func (m *SchedulerMetrics) IncInvoiceTransition(from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(from, to).Inc()
}

// FailureReason maps a job error to a low-cardinality reason.
func FailureReason(err error) string {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return ReasonOther
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return ReasonTimeout
	case errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, authorization.ErrInvalidActor),
		errors.Is(err, authorization.ErrInvalidBusiness):
		return ReasonForbidden
	case errors.As(err, &pgErr):
		switch pgErr.Code {
		case "55P03":
			return ReasonLockTimeout
		case "40001":
			return ReasonSerialization
		}
		return ReasonDatabase
	case errors.Is(err, gorm.ErrInvalidDB), errors.Is(err, gorm.ErrInvalidTransaction):
		return ReasonDatabase
	default:
		return ReasonOther
	}
}

// Retryable reports whether the next tick may succeed where this one failed.
func Retryable(err error) bool {
	switch FailureReason(err) {
	case ReasonTimeout, ReasonLockTimeout, ReasonSerialization, ReasonDatabase:
		return true
	}
	return false
}

func orDefault(value, fallback string) string {
	if value = strings.TrimSpace(value); value != "" {
		return value
	}
	return fallback
}

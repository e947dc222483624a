package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smallbiznis/upkeep/internal/authorization"
	"github.com/smallbiznis/upkeep/internal/ratelimit"
	"gorm.io/gorm"
)

const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonForbidden            = "forbidden"
	SchedulerJobReasonLeaseLost            = "lease_lost"
	SchedulerJobReasonDB                   = "db"
	SchedulerJobReasonUnknown              = "unknown"
)

// pgReasons maps postgres SQLSTATE codes worth alerting on separately.
var pgReasons = map[string]string{
	"55P03": SchedulerJobReasonDBLockTimeout,
	"40001": SchedulerJobReasonSerializationFailure,
	"23505": SchedulerJobReasonUniqueViolation,
}

// SchedulerMetrics are prometheus series for the due-check loop, scraped
// from /metrics on whichever binary runs the scheduler.
type SchedulerMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	batchProcessed *prometheus.CounterVec
	leaseSkips     *prometheus.CounterVec
	lastSuccess    *prometheus.GaugeVec
	runLoopLag     prometheus.Histogram
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the process-wide scheduler metrics.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig registers the scheduler metrics on first use, labelled
// with the service and environment from cfg.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := prometheus.Labels{
		"service": orUnknown(cfg.ServiceName, "upkeep"),
		"env":     orUnknown(cfg.Environment, "unknown"),
	}
	f := promauto.With(registerer)
	counter := func(name, help string, dims ...string) *prometheus.CounterVec {
		return f.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help, ConstLabels: labels}, dims)
	}

	return &SchedulerMetrics{
		jobRuns:        counter("upkeep_scheduler_job_runs_total", "Scheduler job runs by name.", "job"),
		jobTimeouts:    counter("upkeep_scheduler_job_timeouts_total", "Scheduler jobs that hit their deadline.", "job"),
		jobErrors:      counter("upkeep_scheduler_job_errors_total", "Scheduler job errors by reason.", "job", "reason"),
		batchProcessed: counter("upkeep_scheduler_batch_processed_total", "Records changed by scheduler jobs.", "job", "resource"),
		leaseSkips:     counter("upkeep_scheduler_lease_skips_total", "Job passes skipped because another replica held the lease.", "job"),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "upkeep_scheduler_job_duration_seconds",
			Help:        "Scheduler job latency.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 120},
			ConstLabels: labels,
		}, []string{"job"}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "upkeep_scheduler_last_success_timestamp_seconds",
			Help:        "Unix time of the last job pass that finished without error.",
			ConstLabels: labels,
		}, []string{"job"}),
		runLoopLag: f.NewHistogram(prometheus.HistogramOpts{
			Name:        "upkeep_scheduler_runloop_lag_seconds",
			Help:        "How late the run loop woke up.",
			Buckets:     []float64{0.01, 0.1, 0.5, 1, 5, 30, 60, 300},
			ConstLabels: labels,
		}),
	}
}

func orUnknown(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m != nil {
		m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
	}
}

func (m *SchedulerMetrics) IncJobTimeout(job string) {
	if m != nil {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) IncJobError(job string, err error) {
	if m != nil && err != nil {
		m.jobErrors.WithLabelValues(job, ClassifySchedulerJobReason(err)).Inc()
	}
}

func (m *SchedulerMetrics) AddBatchProcessed(job, resource string, count int) {
	if m != nil && count > 0 {
		m.batchProcessed.WithLabelValues(job, resource).Add(float64(count))
	}
}

func (m *SchedulerMetrics) IncLeaseSkipped(job string) {
	if m != nil {
		m.leaseSkips.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) MarkSuccess(job string, at time.Time) {
	if m != nil {
		m.lastSuccess.WithLabelValues(job).Set(float64(at.Unix()))
	}
}

func (m *SchedulerMetrics) ObserveRunLoopLag(d time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(d, 0).Seconds())
	}
}

// ClassifySchedulerJobReason reduces a job error to a bounded label value.
func ClassifySchedulerJobReason(err error) string {
	if err == nil {
		return SchedulerJobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return SchedulerJobReasonDeadlineExceeded
	}
	if errors.Is(err, authorization.ErrForbidden) {
		return SchedulerJobReasonForbidden
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return SchedulerJobReasonUniqueViolation
	}
	if errors.Is(err, ratelimit.ErrLeaseLost) {
		return SchedulerJobReasonLeaseLost
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if reason, ok := pgReasons[pgErr.Code]; ok {
			return reason
		}
		return SchedulerJobReasonDB
	}
	if errors.Is(err, gorm.ErrInvalidDB) || errors.Is(err, gorm.ErrInvalidTransaction) || errors.Is(err, gorm.ErrInvalidData) {
		return SchedulerJobReasonDB
	}
	return SchedulerJobReasonUnknown
}

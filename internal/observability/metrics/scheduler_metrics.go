package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/smallbiznis/meterbill/internal/authorization"
	"github.com/smallbiznis/meterbill/pkg/db"
	"gorm.io/gorm"
)

// Reasons attached to scheduler job errors.
const (
	SchedulerJobReasonDeadlineExceeded     = "deadline_exceeded"
	SchedulerJobReasonDBLockTimeout        = "db_lock_timeout"
	SchedulerJobReasonSerializationFailure = "serialization_failure"
	SchedulerJobReasonUniqueViolation      = "unique_violation"
	SchedulerJobReasonForbidden            = "forbidden"
	SchedulerJobReasonDB                   = "db"
	SchedulerJobReasonUnknown              = "unknown"
)

// Per-subscription outcomes of a batch invoicing run.
const (
	BatchOutcomeGenerated = "generated"
	BatchOutcomeSkipped   = "skipped"
	BatchOutcomeFailed    = "failed"
)

// SchedulerMetrics are the Prometheus series scraped from the scheduler
// binary. A nil *SchedulerMetrics records nothing.
type SchedulerMetrics struct {
	jobRuns     *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobTimeouts *prometheus.CounterVec
	jobErrors   *prometheus.CounterVec
	batchItems  *prometheus.CounterVec
	lockBusy    *prometheus.CounterVec
	lastSuccess *prometheus.GaugeVec
	runLoopLag  prometheus.Histogram
}

var (
	schedulerOnce    sync.Once
	schedulerDefault *SchedulerMetrics
)

// Scheduler returns the process-wide collectors on the default registerer.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig is Scheduler with service and env const labels taken
// from cfg. Only the first call's cfg is used.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerOnce.Do(func() {
		schedulerDefault = NewSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerDefault
}

// NewSchedulerMetrics registers a fresh set of collectors on reg.
func NewSchedulerMetrics(reg prometheus.Registerer, cfg Config) *SchedulerMetrics {
	labels := prometheus.Labels{
		"service": orDefault(cfg.ServiceName, "meterbill"),
		"env":     orDefault(cfg.Environment, "unknown"),
	}
	f := promauto.With(reg)
	durations := []float64{0.05, 0.25, 1, 5, 15, 60, 300, 900, 1800, 3600}

	return &SchedulerMetrics{
		jobRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meterbill_scheduler_job_runs_total", Help: "Scheduler job starts.", ConstLabels: labels,
		}, []string{"job"}),
		jobDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name: "meterbill_scheduler_job_duration_seconds", Help: "Wall time of a scheduler job.", Buckets: durations, ConstLabels: labels,
		}, []string{"job"}),
		jobTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meterbill_scheduler_job_timeouts_total", Help: "Jobs stopped by their timeout.", ConstLabels: labels,
		}, []string{"job"}),
		jobErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meterbill_scheduler_job_errors_total", Help: "Failed jobs by reason.", ConstLabels: labels,
		}, []string{"job", "reason"}),
		batchItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meterbill_scheduler_batch_items_total", Help: "Subscriptions visited by batch invoicing, by outcome.", ConstLabels: labels,
		}, []string{"job", "outcome"}),
		lockBusy: f.NewCounterVec(prometheus.CounterOpts{
			Name: "meterbill_scheduler_lock_busy_total", Help: "Runs refused because the period lock was held.", ConstLabels: labels,
		}, []string{"job"}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "meterbill_scheduler_last_success_timestamp_seconds", Help: "Unix time of the last job that finished without error.", ConstLabels: labels,
		}, []string{"job"}),
		runLoopLag: f.NewHistogram(prometheus.HistogramOpts{
			Name: "meterbill_scheduler_runloop_lag_seconds", Help: "Delay of a trigger past its planned tick.", Buckets: durations, ConstLabels: labels,
		}),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m != nil {
		m.jobRuns.WithLabelValues(job).Inc()
	}
}

// ObserveJob records a finished job: its duration, and either its error
// reason or the success timestamp.
func (m *SchedulerMetrics) ObserveJob(job string, elapsed time.Duration, finishedAt time.Time, err error) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(elapsed.Seconds())
	if err == nil {
		m.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
		return
	}
	reason := ClassifySchedulerJobReason(err)
	if reason == SchedulerJobReasonDeadlineExceeded {
		m.jobTimeouts.WithLabelValues(job).Inc()
	}
	m.jobErrors.WithLabelValues(job, reason).Inc()
}

func (m *SchedulerMetrics) AddBatchOutcome(job, outcome string, count int) {
	if m != nil && count > 0 {
		m.batchItems.WithLabelValues(job, outcome).Add(float64(count))
	}
}

func (m *SchedulerMetrics) IncLockBusy(job string) {
	if m != nil {
		m.lockBusy.WithLabelValues(job).Inc()
	}
}

func (m *SchedulerMetrics) ObserveRunLoopLag(lag time.Duration) {
	if m != nil {
		m.runLoopLag.Observe(max(lag, 0).Seconds())
	}
}

// ClassifySchedulerJobReason maps an error to one of the SchedulerJobReason values.
func ClassifySchedulerJobReason(err error) string {
	switch {
	case err == nil:
		return SchedulerJobReasonUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return SchedulerJobReasonDeadlineExceeded
	case errors.Is(err, authorization.ErrForbidden):
		return SchedulerJobReasonForbidden
	case db.IsLockTimeoutErr(err):
		return SchedulerJobReasonDBLockTimeout
	case db.IsSerializationErr(err):
		return SchedulerJobReasonSerializationFailure
	case db.IsDuplicateKeyErr(err):
		return SchedulerJobReasonUniqueViolation
	case isGormFailure(err):
		return SchedulerJobReasonDB
	default:
		return SchedulerJobReasonUnknown
	}
}

// IsSchedulerErrorRetryable reports whether the next trigger can be expected
// to succeed where this one failed.
func IsSchedulerErrorRetryable(err error) bool {
	switch ClassifySchedulerJobReason(err) {
	case SchedulerJobReasonDeadlineExceeded, SchedulerJobReasonDBLockTimeout, SchedulerJobReasonSerializationFailure:
		return err != nil
	}
	return false
}

var gormFailures = []error{
	gorm.ErrInvalidDB,
	gorm.ErrInvalidTransaction,
	gorm.ErrInvalidField,
	gorm.ErrInvalidData,
	gorm.ErrMissingWhereClause,
	gorm.ErrInvalidValue,
}

func isGormFailure(err error) bool {
	for _, target := range gormFailures {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func orDefault(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}

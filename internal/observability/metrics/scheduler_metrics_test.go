package metrics

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/smallbiznis/meterbill/internal/authorization"
	"gorm.io/gorm"
)

func TestClassifySchedulerJobReason(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "deadline",
			err:  fmt.Errorf("finalize: %w", context.DeadlineExceeded),
			want: SchedulerJobReasonDeadlineExceeded,
		},
		{
			name: "forbidden",
			err:  authorization.ErrForbidden,
			want: SchedulerJobReasonForbidden,
		},
		{
			name: "db_lock_timeout",
			err:  &pgconn.PgError{Code: "55P03"},
			want: SchedulerJobReasonDBLockTimeout,
		},
		{
			name: "serialization_failure",
			err:  &pgconn.PgError{Code: "40001"},
			want: SchedulerJobReasonSerializationFailure,
		},
		{
			name: "unique_violation",
			err:  gorm.ErrDuplicatedKey,
			want: SchedulerJobReasonUniqueViolation,
		},
		{
			name: "db",
			err:  gorm.ErrInvalidTransaction,
			want: SchedulerJobReasonDB,
		},
		{
			name: "unknown",
			err:  errors.New("boom"),
			want: SchedulerJobReasonUnknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySchedulerJobReason(tc.err); got != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAddBatchOutcome(t *testing.T) {
	m := NewSchedulerMetrics(prometheus.NewRegistry(), Config{ServiceName: "meterbill", Environment: "test"})

	m.AddBatchOutcome("batch_invoicing", BatchOutcomeGenerated, 3)
	m.AddBatchOutcome("batch_invoicing", BatchOutcomeSkipped, 0)

	if got := testutil.ToFloat64(m.batchItems.WithLabelValues("batch_invoicing", BatchOutcomeGenerated)); got != 3 {
		t.Fatalf("expected generated count 3, got %v", got)
	}
	if n := testutil.CollectAndCount(m.batchItems); n != 1 {
		t.Fatalf("expected a single outcome series, got %d", n)
	}
}

func TestObserveJob(t *testing.T) {
	m := NewSchedulerMetrics(prometheus.NewRegistry(), Config{})
	finished := time.Date(2024, time.June, 30, 2, 5, 0, 0, time.UTC)

	m.ObserveJob("batch_invoicing", time.Minute, finished, nil)
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("batch_invoicing")); got != float64(finished.Unix()) {
		t.Fatalf("expected last success %d, got %v", finished.Unix(), got)
	}

	m.ObserveJob("batch_invoicing", time.Hour, finished.Add(time.Hour), fmt.Errorf("page 3: %w", context.DeadlineExceeded))
	if got := testutil.ToFloat64(m.jobTimeouts.WithLabelValues("batch_invoicing")); got != 1 {
		t.Fatalf("expected one timeout, got %v", got)
	}
	if got := testutil.ToFloat64(m.jobErrors.WithLabelValues("batch_invoicing", SchedulerJobReasonDeadlineExceeded)); got != 1 {
		t.Fatalf("expected one deadline error, got %v", got)
	}
	if got := testutil.ToFloat64(m.lastSuccess.WithLabelValues("batch_invoicing")); got != float64(finished.Unix()) {
		t.Fatalf("failed run must not move last success, got %v", got)
	}
}

func TestIsSchedulerErrorRetryable(t *testing.T) {
	if !IsSchedulerErrorRetryable(&pgconn.PgError{Code: "40001"}) {
		t.Fatalf("expected serialization failure to be retryable")
	}
	if IsSchedulerErrorRetryable(errors.New("plan missing")) {
		t.Fatalf("expected business errors to be final")
	}
}

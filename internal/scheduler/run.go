package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	obslogger "github.com/smallbiznis/meterbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	"go.uber.org/zap"
)

// batchRun is one invoicing pass over a period. It owns the BatchResult
// and the run-scoped logger.
type batchRun struct {
	id        string
	period    string
	startedAt time.Time
	visited   int
	result    *BatchResult
	log       *zap.Logger
}

// startRun tags ctx with a system actor and uses the run id as the request id
// when the caller (an HTTP trigger) has not set one already.
func (s *Scheduler) startRun(ctx context.Context, period string, result *BatchResult) (context.Context, *batchRun) {
	run := &batchRun{
		id:        s.genID.Generate().String(),
		period:    period,
		startedAt: s.clock.Now(),
		result:    result,
	}
	if _, actor := obscontext.ActorFromContext(ctx); actor == "" {
		ctx = obscontext.WithActor(ctx, "system", "scheduler")
	}
	if obscontext.RequestIDFromContext(ctx) == "" {
		ctx = obscontext.WithRequestID(ctx, run.id)
	}
	run.log = obslogger.WithContext(ctx, s.log).With(
		zap.String("run_id", run.id),
		zap.String("period", period),
	)
	run.log.Info("scheduler.batch.started", zap.Int("batch_size", s.cfg.BatchSize))
	return ctx, run
}

func (r *batchRun) generated(sub subscriptiondomain.Subscription, invoiceID snowflake.ID) {
	r.result.Generated = append(r.result.Generated, invoiceID)
	r.log.Info("scheduler.invoice.generated",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("user_id", sub.UserID.String()),
		zap.String("invoice_id", invoiceID.String()),
	)
}

func (r *batchRun) skipped(sub subscriptiondomain.Subscription, reason string) {
	r.result.Skipped = append(r.result.Skipped, sub.UserID)
	r.log.Debug("scheduler.invoice.skipped",
		zap.String("user_id", sub.UserID.String()),
		zap.String("reason", reason),
	)
}

func (r *batchRun) failed(sub subscriptiondomain.Subscription, err error) {
	r.result.Failed = append(r.result.Failed, Failure{TenantID: sub.TenantID, UserID: sub.UserID, Reason: err.Error()})
	r.log.Error("scheduler.invoice.failed",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.String("user_id", sub.UserID.String()),
		zap.String("error_type", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
}

// finish writes the run summary. A run with failures or a run-level error
// is logged at warn.
func (r *batchRun) finish(now time.Time, err error) {
	fields := []zap.Field{
		zap.Int64("duration_ms", now.Sub(r.startedAt).Milliseconds()),
		zap.Int("visited", r.visited),
		zap.Int("generated", len(r.result.Generated)),
		zap.Int("skipped", len(r.result.Skipped)),
		zap.Int("failed", len(r.result.Failed)),
	}
	if err != nil || len(r.result.Failed) > 0 {
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		r.log.Warn("scheduler.batch.finished", fields...)
		return
	}
	r.log.Info("scheduler.batch.finished", fields...)
}

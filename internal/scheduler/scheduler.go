package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/robfig/cron/v3"
	"github.com/smallbiznis/meterbill/internal/clock"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	obslogger "github.com/smallbiznis/meterbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	"github.com/smallbiznis/meterbill/internal/ratelimit"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const jobBatchInvoicing = "batch_invoicing"

var (
	ErrInvalidConfig   = errors.New("invalid_scheduler_config")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrPeriodNotOpen   = errors.New("period_not_open")
	ErrBatchInProgress = errors.New("batch_in_progress")
)

type Params struct {
	fx.In

	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	InvoiceSvc      invoicedomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Locker          *ratelimit.Locker            `optional:"true"`
	Metrics         *obsmetrics.SchedulerMetrics `optional:"true"`
	Config          Config                       `optional:"true"`
}

type Scheduler struct {
	log             *zap.Logger
	cfg             Config
	genID           *snowflake.Node
	clock           clock.Clock
	invoiceSvc      invoicedomain.Service
	subscriptionSvc subscriptiondomain.Service
	locker          *ratelimit.Locker
	metrics         *obsmetrics.SchedulerMetrics

	// sleep waits between retries; tests swap it to move a fake clock.
	sleep func(ctx context.Context, d time.Duration) error
}

// BatchResult lists invoice ids created by the run, users that already had
// an invoice for the period, and users whose finalize failed.
type BatchResult struct {
	Period    string         `json:"period"`
	Generated []snowflake.ID `json:"generated"`
	Skipped   []snowflake.ID `json:"skipped"`
	Failed    []Failure      `json:"failed"`
}

type Failure struct {
	TenantID snowflake.ID `json:"tenant_id"`
	UserID   snowflake.ID `json:"user_id"`
	Reason   string       `json:"reason"`
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.InvoiceSvc == nil || p.SubscriptionSvc == nil {
		return nil, ErrInvalidConfig
	}
	schedMetrics := p.Metrics
	if schedMetrics == nil {
		schedMetrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:             p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:             p.Config.withDefaults(),
		genID:           p.GenID,
		clock:           p.Clock,
		invoiceSvc:      p.InvoiceSvc,
		subscriptionSvc: p.SubscriptionSvc,
		locker:          p.Locker,
		metrics:         schedMetrics,
		sleep:           sleepContext,
	}, nil
}

// RunBatchInvoicing finalizes the open period for every active subscription.
// Re-running for the same period only skips users that were already billed.
func (s *Scheduler) RunBatchInvoicing(ctx context.Context, period string) (BatchResult, error) {
	result := BatchResult{
		Period:    period,
		Generated: []snowflake.ID{},
		Skipped:   []snowflake.ID{},
		Failed:    []Failure{},
	}
	if _, err := time.Parse("2006-01", period); err != nil {
		return result, ErrInvalidPeriod
	}
	if period != clock.PeriodLabel(s.clock.Now()) {
		return result, ErrPeriodNotOpen
	}

	lease, err := s.acquirePeriodLock(ctx, period)
	if err != nil {
		return result, err
	}
	defer s.releasePeriodLock(ctx, lease)

	ctx, run := s.startRun(ctx, period, &result)
	err = s.runJob(ctx, jobBatchInvoicing, s.cfg.JobTimeout, func(ctx context.Context) error {
		return s.invoicePeriod(ctx, run, lease)
	})
	run.finish(s.clock.Now(), err)

	s.metrics.AddBatchOutcome(jobBatchInvoicing, obsmetrics.BatchOutcomeGenerated, len(result.Generated))
	s.metrics.AddBatchOutcome(jobBatchInvoicing, obsmetrics.BatchOutcomeSkipped, len(result.Skipped))
	s.metrics.AddBatchOutcome(jobBatchInvoicing, obsmetrics.BatchOutcomeFailed, len(result.Failed))
	return result, err
}

func (s *Scheduler) invoicePeriod(ctx context.Context, run *batchRun, lease *ratelimit.Lease) error {
	var afterID snowflake.ID
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		subs, err := s.subscriptionSvc.ListActive(ctx, afterID, s.cfg.BatchSize)
		if err != nil {
			return fmt.Errorf("list active subscriptions after %d: %w", afterID, err)
		}
		for _, sub := range subs {
			s.invoiceSubscription(ctx, run, sub)
		}
		run.visited += len(subs)
		if len(subs) < s.cfg.BatchSize {
			return nil
		}
		afterID = subs[len(subs)-1].ID

		// Long periods outlive the initial TTL; keep the lease while pages remain.
		if err := lease.Extend(ctx, s.cfg.LockTTL); err != nil {
			run.log.Warn("scheduler.lock.extend.failed", zap.Error(err))
		}
	}
}

func (s *Scheduler) invoiceSubscription(ctx context.Context, run *batchRun, sub subscriptiondomain.Subscription) {
	existing, err := s.invoiceSvc.InvoiceForPeriod(ctx, sub.UserID, run.period)
	if err != nil {
		run.failed(sub, err)
		return
	}
	if existing != nil {
		run.skipped(sub, "already_invoiced")
		return
	}

	invoiceID, err := s.invoiceSvc.FinalizeInvoice(ctx, sub.TenantID, sub.UserID)
	switch {
	case err == nil:
		run.generated(sub, invoiceID)
	case errors.Is(err, invoicedomain.ErrAlreadyInvoiced):
		run.skipped(sub, "already_invoiced")
	case errors.Is(err, invoicedomain.ErrNoBillableItems):
		run.skipped(sub, "no_billable_items")
	default:
		run.failed(sub, err)
	}
}

// acquirePeriodLock keeps duplicate triggers from running the same period
// side by side. Redis being unavailable does not block billing, so a nil
// lease with a nil error means "run unlocked".
func (s *Scheduler) acquirePeriodLock(ctx context.Context, period string) (*ratelimit.Lease, error) {
	if !s.cfg.UseBatchLock || s.locker == nil {
		return nil, nil
	}
	name := fmt.Sprintf("scheduler:%s:%s", jobBatchInvoicing, period)
	lease, err := s.locker.Acquire(ctx, name, s.cfg.LockTTL)
	switch {
	case errors.Is(err, ratelimit.ErrLockHeld):
		s.metrics.IncLockBusy(jobBatchInvoicing)
		return nil, ErrBatchInProgress
	case err != nil:
		s.log.Warn("scheduler.lock.unavailable", zap.String("lock", name), zap.Error(err))
		return nil, nil
	}
	return lease, nil
}

func (s *Scheduler) releasePeriodLock(ctx context.Context, lease *ratelimit.Lease) {
	if lease == nil {
		return
	}
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := lease.Release(releaseCtx); err != nil {
		s.log.Warn("scheduler.lock.release.failed", zap.Error(err))
	}
}

// runJob bounds fn by timeout and records its run, duration and outcome.
func (s *Scheduler) runJob(parent context.Context, name string, timeout time.Duration, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	start := s.clock.Now()
	s.metrics.IncJobRun(name)
	err := fn(ctx)
	end := s.clock.Now()
	s.metrics.ObserveJob(name, end.Sub(start), end, err)

	if errors.Is(err, context.DeadlineExceeded) {
		obslogger.WithContext(ctx, s.log).Warn("scheduler.job.timeout",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
		)
	}
	return err
}

// RunOnce is a single trigger: it bills the current month when the
// configuration allows billing today.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now()
	if s.cfg.LastDayOnly && !clock.IsMonthEnd(now) {
		s.log.Debug("scheduler.trigger.skipped", zap.String("reason", "not_last_day"), zap.Time("now", now))
		return nil
	}
	period := clock.PeriodLabel(now)
	result, err := s.RunBatchInvoicing(ctx, period)
	switch {
	case errors.Is(err, ErrBatchInProgress):
		s.log.Info("scheduler.trigger.skipped", zap.String("reason", "batch_in_progress"))
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		// partial runs are resumed by the next trigger
		return nil
	case err != nil:
		return err
	}
	return s.retryFailures(ctx, period, len(result.Failed))
}

// retryFailures re-runs the period every RetryInterval while failures remain
// and the period is still open. Billed users are skipped by the batch, so an
// attempt only finalizes the users that failed.
func (s *Scheduler) retryFailures(ctx context.Context, period string, failed int) error {
	for attempt := 1; failed > 0 && attempt <= s.cfg.RetryAttempts; attempt++ {
		if err := s.sleep(ctx, s.cfg.RetryInterval); err != nil {
			return nil
		}
		if clock.PeriodLabel(s.clock.Now()) != period {
			s.log.Warn("scheduler.retry.period_closed",
				zap.String("period", period),
				zap.Int("failed", failed),
			)
			return nil
		}
		result, err := s.RunBatchInvoicing(ctx, period)
		switch {
		case errors.Is(err, ErrBatchInProgress):
			continue
		case errors.Is(err, context.DeadlineExceeded):
			return nil
		case err != nil:
			return err
		}
		s.log.Info("scheduler.retry.completed",
			zap.String("period", period),
			zap.Int("attempt", attempt),
			zap.Int("generated", len(result.Generated)),
			zap.Int("failed", len(result.Failed)),
		)
		failed = len(result.Failed)
	}
	if failed > 0 {
		s.log.Warn("scheduler.retry.exhausted", zap.String("period", period), zap.Int("failed", failed))
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RunForever triggers RunOnce on the cron schedule, or on RunInterval when no
// cron expression is configured, until ctx is done.
func (s *Scheduler) RunForever(ctx context.Context) error {
	if s.cfg.CronSpec != "" {
		return s.runCron(ctx)
	}
	s.runTicker(ctx)
	return nil
}

func (s *Scheduler) runCron(ctx context.Context) error {
	c := cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(s.cfg.CronSpec, func() {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.trigger.failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("scheduler cron %q: %w", s.cfg.CronSpec, err)
	}
	c.Start()
	s.log.Info("scheduler.started", zap.String("cron", s.cfg.CronSpec))
	<-ctx.Done()
	<-c.Stop().Done()
	return nil
}

func (s *Scheduler) runTicker(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(s.cfg.RunInterval)
	s.log.Info("scheduler.started", zap.Duration("interval", s.cfg.RunInterval))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if lag := s.clock.Now().Sub(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler.trigger.failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)
	}
}

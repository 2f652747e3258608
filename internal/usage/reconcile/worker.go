// Package reconcile rebuilds usage_aggregates from raw usage events so the
// rollup cache converges on the ledger after partial failures.
package reconcile

import (
	"context"
	"math"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const tolerance = 1e-9

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	Clock  clock.Clock
	Repo   usagedomain.Repository
	Config Config `optional:"true"`
}

type Worker struct {
	db    *gorm.DB
	log   *zap.Logger
	clock clock.Clock
	repo  usagedomain.Repository
	cfg   Config
}

// Result counts the rollup rows touched for one period.
type Result struct {
	Period    string
	Checked   int
	Corrected int
}

func NewWorker(p Params) *Worker {
	return &Worker{
		db:    p.DB,
		log:   p.Log.Named("usage.reconcile"),
		clock: p.Clock,
		repo:  p.Repo,
		cfg:   p.Config.withDefaults(),
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := w.RunOnce(ctx); err != nil {
			w.log.Warn("usage reconcile run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (w *Worker) RunOnce(parentCtx context.Context) error {
	ctx, cancel := context.WithTimeout(parentCtx, w.cfg.RunTimeout)
	defer cancel()

	month := clock.MonthStart(w.clock.Now())
	for i := 0; i <= w.cfg.Lookback; i++ {
		res, err := w.ReconcilePeriod(ctx, month.AddDate(0, -i, 0))
		if err != nil {
			return err
		}
		if res.Corrected > 0 {
			w.log.Info("usage.reconcile.corrected",
				zap.String("period", res.Period),
				zap.Int("checked", res.Checked),
				zap.Int("corrected", res.Corrected),
			)
		}
	}
	return nil
}

// ReconcilePeriod makes every rollup row of the month containing t equal the
// sum of its raw events.
func (w *Worker) ReconcilePeriod(ctx context.Context, t time.Time) (Result, error) {
	start := clock.MonthStart(t)
	end := clock.MonthEnd(start)
	res := Result{Period: clock.PeriodLabel(start)}
	now := w.clock.Now().UTC()

	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		totals, err := w.repo.SumEventsByKey(ctx, tx, start, end)
		if err != nil {
			return err
		}
		existing, err := w.repo.ListAggregates(ctx, tx, res.Period)
		if err != nil {
			return err
		}

		cached := make(map[usagedomain.AggregateKey]float64, len(existing))
		for _, row := range existing {
			cached[usagedomain.AggregateKey{
				TenantID: row.TenantID,
				UserID:   row.UserID,
				Metric:   row.Metric,
				Period:   row.Period,
			}] = row.TotalQuantity
		}

		for _, total := range totals {
			res.Checked++
			current, ok := cached[total.AggregateKey]
			delete(cached, total.AggregateKey)
			if ok && math.Abs(current-total.TotalQuantity) <= tolerance {
				continue
			}
			if err := w.repo.ReplaceAggregate(ctx, tx, total.AggregateKey, total.TotalQuantity, now); err != nil {
				return err
			}
			res.Corrected++
		}

		// Rollups with no backing events.
		for key, current := range cached {
			res.Checked++
			if current == 0 {
				continue
			}
			if err := w.repo.ReplaceAggregate(ctx, tx, key, 0, now); err != nil {
				return err
			}
			res.Corrected++
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

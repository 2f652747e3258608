package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/plan/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertPlan(ctx context.Context, db *gorm.DB, plan *domain.Plan) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plans (id, tenant_id, name, monthly_fee, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		plan.ID,
		plan.TenantID,
		plan.Name,
		plan.MonthlyFee,
		plan.IsActive,
		plan.CreatedAt,
	).Error
}

func (r *repo) FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Plan, error) {
	var plan domain.Plan
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, monthly_fee, is_active, created_at
		 FROM plans WHERE id = ?`,
		id,
	).Scan(&plan).Error
	if err != nil {
		return nil, err
	}
	if plan.ID == 0 {
		return nil, nil
	}
	return &plan, nil
}

func (r *repo) ListPlans(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.Plan, error) {
	var plans []domain.Plan
	err := db.WithContext(ctx).
		Model(&domain.Plan{}).
		Where("tenant_id = ?", tenantID).
		Order("name asc, id asc").
		Find(&plans).Error
	if err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *repo) UpsertMetricLimit(ctx context.Context, db *gorm.DB, limit *domain.MetricLimit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO plan_metric_limits (id, plan_id, metric, included_units, overage_rate, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (plan_id, metric) DO UPDATE
		 SET included_units = excluded.included_units,
		     overage_rate = excluded.overage_rate,
		     updated_at = excluded.updated_at`,
		limit.ID,
		limit.PlanID,
		limit.Metric,
		limit.IncludedUnits,
		limit.OverageRate,
		limit.CreatedAt,
		limit.UpdatedAt,
	).Error
}

func (r *repo) ListMetricLimits(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]domain.MetricLimit, error) {
	var limits []domain.MetricLimit
	err := db.WithContext(ctx).Raw(
		`SELECT id, plan_id, metric, included_units, overage_rate, created_at, updated_at
		 FROM plan_metric_limits
		 WHERE plan_id = ?
		 ORDER BY metric ASC`,
		planID,
	).Scan(&limits).Error
	if err != nil {
		return nil, err
	}
	return limits, nil
}

func (r *repo) MetricDefined(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, metric string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(*)
		 FROM plan_metric_limits l
		 JOIN plans p ON p.id = l.plan_id
		 WHERE p.tenant_id = ? AND l.metric = ?`,
		tenantID,
		metric,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

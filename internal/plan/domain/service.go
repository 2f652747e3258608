package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreatePlanRequest struct {
	TenantID   snowflake.ID    `json:"tenant_id"`
	Name       string          `json:"name"`
	MonthlyFee decimal.Decimal `json:"monthly_fee"`
}

type SetMetricLimitRequest struct {
	PlanID        snowflake.ID    `json:"plan_id"`
	Metric        string          `json:"metric"`
	IncludedUnits float64         `json:"included_units"`
	OverageRate   decimal.Decimal `json:"overage_rate"`
}

type Service interface {
	CreatePlan(context.Context, CreatePlanRequest) (Plan, error)
	GetPlan(ctx context.Context, id snowflake.ID) (Plan, error)
	ListPlans(ctx context.Context, tenantID snowflake.ID) ([]Plan, error)
	SetMetricLimit(context.Context, SetMetricLimitRequest) (MetricLimit, error)
	// ResolveLimits serves from cache when possible.
	ResolveLimits(ctx context.Context, planID snowflake.ID) (Limits, error)
	// ResolveLimitsTx always reads through db, typically an open transaction.
	ResolveLimitsTx(ctx context.Context, db *gorm.DB, planID snowflake.ID) (Limits, error)
	// HasMetric reports whether the metric is priced by any plan of the tenant.
	HasMetric(ctx context.Context, tenantID snowflake.ID, metric string) (bool, error)
}

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidName          = errors.New("invalid_name")
	ErrInvalidFee           = errors.New("invalid_fee")
	ErrInvalidMetric        = errors.New("invalid_metric")
	ErrInvalidIncludedUnits = errors.New("invalid_included_units")
	ErrInvalidOverageRate   = errors.New("invalid_overage_rate")
	ErrPlanNotFound         = errors.New("plan_not_found")
)

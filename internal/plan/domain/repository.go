package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertPlan(ctx context.Context, db *gorm.DB, plan *Plan) error
	FindPlan(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Plan, error)
	ListPlans(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]Plan, error)
	UpsertMetricLimit(ctx context.Context, db *gorm.DB, limit *MetricLimit) error
	ListMetricLimits(ctx context.Context, db *gorm.DB, planID snowflake.ID) ([]MetricLimit, error)
	// MetricDefined reports whether any plan of the tenant prices the metric.
	MetricDefined(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, metric string) (bool, error)
}

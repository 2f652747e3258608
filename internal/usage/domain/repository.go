package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// AggregateTotal is a rollup key with its recomputed total.
type AggregateTotal struct {
	AggregateKey
	TotalQuantity float64
}

type Repository interface {
	// InsertEvent reports false when an event with the same idempotency key exists.
	InsertEvent(ctx context.Context, db *gorm.DB, event *UsageEvent) (bool, error)
	FindByIdempotencyKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*UsageEvent, error)
	IncrementAggregate(ctx context.Context, db *gorm.DB, key AggregateKey, quantity float64, at time.Time) error
	FindAggregate(ctx context.Context, db *gorm.DB, key AggregateKey) (*UsageAggregate, error)
	SumEvents(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID, metric string, start, end time.Time) (float64, error)
	ListEvents(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID, metric string, since time.Time) ([]UsageEvent, error)
	// SumEventsByKey groups raw events in [start, end] by tenant, user and metric.
	SumEventsByKey(ctx context.Context, db *gorm.DB, start, end time.Time) ([]AggregateTotal, error)
	ListAggregates(ctx context.Context, db *gorm.DB, period string) ([]UsageAggregate, error)
	ReplaceAggregate(ctx context.Context, db *gorm.DB, key AggregateKey, total float64, at time.Time) error
}

package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type RecordUsageRequest struct {
	TenantID       snowflake.ID   `json:"tenant_id"`
	UserID         snowflake.ID   `json:"user_id"`
	Metric         string         `json:"metric"`
	Quantity       float64        `json:"quantity"`
	OccurredOn     time.Time      `json:"occurred_on"`
	Source         Source         `json:"source"`
	IdempotencyKey string         `json:"idempotency_key"`
	Metadata       map[string]any `json:"metadata"`
}

// Observer is notified after a usage event commits. Implementations must not block.
type Observer interface {
	Observe(ctx context.Context, event UsageEvent)
}

// MetricCatalog tells which metrics a tenant bills for.
type MetricCatalog interface {
	HasMetric(ctx context.Context, tenantID snowflake.ID, metric string) (bool, error)
}

type Service interface {
	RecordUsage(context.Context, RecordUsageRequest) (*UsageEvent, error)
	// AggregateUsage sums raw events with usage_date in [start, end], both inclusive.
	AggregateUsage(ctx context.Context, tenantID, userID snowflake.ID, metric string, start, end time.Time) (float64, error)
	AggregateUsageTx(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID, metric string, start, end time.Time) (float64, error)
	GetAggregate(ctx context.Context, tenantID, userID snowflake.ID, metric, period string) (UsageAggregate, error)
	// ListObservations returns raw events since the given date ordered oldest first.
	ListObservations(ctx context.Context, tenantID, userID snowflake.ID, metric string, since time.Time) ([]UsageEvent, error)
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidMetric   = errors.New("invalid_metric")
	ErrUnknownMetric   = errors.New("unknown_metric")
	ErrInvalidQuantity = errors.New("invalid_quantity")
	ErrInvalidDate     = errors.New("invalid_date")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrInvalidRange    = errors.New("invalid_range")
	ErrInvalidSource   = errors.New("invalid_source")
)

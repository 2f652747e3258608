// Package domain contains persistence models for raw usage and its monthly rollups.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Source string

const (
	SourceAPI Source = "api"
	SourceCSV Source = "csv"
)

// UsageEvent stores a single unit of metered activity. Rows are never updated.
type UsageEvent struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID      `gorm:"not null;index:ix_usage_events_lookup,priority:1;uniqueIndex:ux_usage_events_idempotency,priority:1,where:idempotency_key IS NOT NULL" json:"tenant_id"`
	UserID         snowflake.ID      `gorm:"not null;index:ix_usage_events_lookup,priority:2" json:"user_id"`
	Metric         string            `gorm:"type:text;not null;index:ix_usage_events_lookup,priority:3" json:"metric"`
	Quantity       float64           `gorm:"not null" json:"quantity"`
	UsageDate      time.Time         `gorm:"not null;index:ix_usage_events_lookup,priority:4" json:"usage_date"`
	RecordedAt     time.Time         `gorm:"not null" json:"recorded_at"`
	Source         Source            `gorm:"type:text;not null" json:"source"`
	IdempotencyKey *string           `gorm:"type:text;uniqueIndex:ux_usage_events_idempotency,priority:2,where:idempotency_key IS NOT NULL" json:"idempotency_key,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
}

// TableName sets the database table name.
func (UsageEvent) TableName() string { return "usage_events" }

// UsageAggregate is the incrementally maintained monthly total for one metric.
// It is a cache; invoices always re-sum raw events.
type UsageAggregate struct {
	TenantID      snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"tenant_id"`
	UserID        snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	Metric        string       `gorm:"primaryKey;type:text" json:"metric"`
	Period        string       `gorm:"primaryKey;type:text" json:"period"`
	TotalQuantity float64      `gorm:"not null" json:"total_quantity"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (UsageAggregate) TableName() string { return "usage_aggregates" }

// AggregateKey identifies one rollup row.
type AggregateKey struct {
	TenantID snowflake.ID
	UserID   snowflake.ID
	Metric   string
	Period   string
}

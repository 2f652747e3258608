package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/pkg/db/pagination"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const ActorTypeSystem = "system"

// AuditLog records a billing-relevant action such as an invoice being
// finalized or a payment being verified.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID   *snowflake.ID     `gorm:"index:ix_audit_logs_tenant_created,priority:1" json:"tenant_id,omitempty"`
	ActorType  string            `gorm:"type:text;not null" json:"actor_type"`
	ActorID    *string           `gorm:"type:text" json:"actor_id,omitempty"`
	Action     string            `gorm:"type:text;not null" json:"action"`
	TargetType string            `gorm:"type:text;not null" json:"target_type"`
	TargetID   *string           `gorm:"type:text" json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt  time.Time         `gorm:"not null;index:ix_audit_logs_tenant_created,priority:2" json:"created_at"`
}

func (AuditLog) TableName() string { return "audit_logs" }

type ListFilter struct {
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	StartAt    *time.Time
	EndAt      *time.Time
	After      *pagination.Cursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	// List returns up to Limit+1 rows newest first so callers can detect more pages.
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

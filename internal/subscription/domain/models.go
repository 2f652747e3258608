// Package domain contains persistence models for plan subscriptions.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Subscription links a user to a plan. At most one row per user is active.
type Subscription struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_subscriptions_active_user,where:is_active = true" json:"user_id"`
	PlanID    snowflake.ID `gorm:"not null;index" json:"plan_id"`
	StartDate time.Time    `gorm:"not null" json:"start_date"`
	EndDate   *time.Time   `json:"end_date,omitempty"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

type AuditAction string

const (
	AuditSubscribed AuditAction = "subscribed"
	AuditSwitched   AuditAction = "switched"
	AuditCancelled  AuditAction = "cancelled"
)

// Audit records every subscription change for a user.
type Audit struct {
	ID         snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	UserID     snowflake.ID  `gorm:"not null;index" json:"user_id"`
	Action     AuditAction   `gorm:"type:text;not null" json:"action"`
	OldPlanID  *snowflake.ID `json:"old_plan_id,omitempty"`
	NewPlanID  *snowflake.ID `json:"new_plan_id,omitempty"`
	OccurredAt time.Time     `gorm:"not null" json:"occurred_at"`
}

func (Audit) TableName() string { return "subscription_audits" }

// Package domain holds plans and their per-metric allowances.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Plan struct {
	ID         snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID   snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	Name       string          `gorm:"not null" json:"name"`
	MonthlyFee decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"monthly_fee"`
	IsActive   bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedAt  time.Time       `gorm:"not null" json:"created_at"`
}

func (Plan) TableName() string { return "plans" }

// MetricLimit is the included allowance and overage price for one metric of a plan.
type MetricLimit struct {
	ID            snowflake.ID    `gorm:"primaryKey" json:"id"`
	PlanID        snowflake.ID    `gorm:"not null;uniqueIndex:ux_plan_metric_limit" json:"plan_id"`
	Metric        string          `gorm:"type:text;not null;uniqueIndex:ux_plan_metric_limit" json:"metric"`
	IncludedUnits float64         `gorm:"not null" json:"included_units"`
	OverageRate   decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"overage_rate"`
	CreatedAt     time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"not null" json:"updated_at"`
}

func (MetricLimit) TableName() string { return "plan_metric_limits" }

// Limits is the resolved billing shape of a plan. Metrics are ordered by name.
type Limits struct {
	PlanID   snowflake.ID    `json:"plan_id"`
	PlanName string          `json:"plan_name"`
	FlatFee  decimal.Decimal `json:"flat_fee"`
	Metrics  []MetricLimit   `json:"metrics"`
}

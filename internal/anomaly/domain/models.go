package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Anomaly is a usage spike relative to the trailing baseline.
type Anomaly struct {
	Average      float64 `json:"average"`
	Latest       float64 `json:"latest"`
	Threshold    float64 `json:"threshold"`
	Observations int     `json:"observations"`
}

// Alert records that an anomaly was raised so it is notified at most once per
// user, metric and usage date.
type Alert struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index;uniqueIndex:ux_usage_alerts_day,priority:1" json:"tenant_id"`
	UserID    snowflake.ID `gorm:"not null;uniqueIndex:ux_usage_alerts_day,priority:2" json:"user_id"`
	Metric    string       `gorm:"type:text;not null;uniqueIndex:ux_usage_alerts_day,priority:3" json:"metric"`
	UsageDate time.Time    `gorm:"not null;uniqueIndex:ux_usage_alerts_day,priority:4" json:"usage_date"`
	Latest    float64      `gorm:"not null" json:"latest"`
	Average   float64      `gorm:"not null" json:"average"`
	Threshold float64      `gorm:"not null" json:"threshold"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (Alert) TableName() string { return "usage_alerts" }

// Package domain contains persistence models for invoicing.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Invoice is immutable once created except for IsPaid and PaidAt.
type Invoice struct {
	ID             snowflake.ID      `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID      `gorm:"not null;index;uniqueIndex:ux_invoices_tenant_seq,priority:1" json:"tenant_id"`
	UserID         snowflake.ID      `gorm:"not null;uniqueIndex:ux_invoices_user_month,priority:1" json:"user_id"`
	SubscriptionID snowflake.ID      `gorm:"not null" json:"subscription_id"`
	PlanID         snowflake.ID      `gorm:"not null" json:"plan_id"`
	InvoiceNumber  string            `gorm:"type:text;not null" json:"invoice_number"`
	InvoiceSeq     int64             `gorm:"not null;uniqueIndex:ux_invoices_tenant_seq,priority:2" json:"invoice_seq"`
	PeriodStart    time.Time         `gorm:"not null" json:"period_start"`
	PeriodEnd      time.Time         `gorm:"not null" json:"period_end"`
	InvoiceDate    time.Time         `gorm:"not null" json:"invoice_date"`
	InvoiceMonth   string            `gorm:"type:text;not null;uniqueIndex:ux_invoices_user_month,priority:2" json:"invoice_month"`
	DueDate        time.Time         `gorm:"not null" json:"due_date"`
	TotalAmount    decimal.Decimal   `gorm:"type:numeric(12,2);not null" json:"total_amount"`
	IsPaid         bool              `gorm:"not null" json:"is_paid"`
	PaidAt         *time.Time        `json:"paid_at,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	CreatedAt      time.Time         `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceItem represents a line on an invoice.
type InvoiceItem struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	Position    int             `gorm:"not null" json:"position"`
	Description string          `gorm:"type:text;not null" json:"description"`
	Metric      string          `gorm:"type:text" json:"metric,omitempty"`
	Quantity    float64         `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:numeric(12,4);not null" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"total_price"`
}

// TableName sets the database table name.
func (InvoiceItem) TableName() string { return "invoice_items" }

// LineItem is an unrounded proposed invoice line.
type LineItem struct {
	Description string          `json:"description"`
	Metric      string          `json:"metric,omitempty"`
	Quantity    float64         `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Total       decimal.Decimal `json:"total"`
}

// Estimate is a read-only preview of the open period.
type Estimate struct {
	TenantID       snowflake.ID    `json:"tenant_id"`
	UserID         snowflake.ID    `json:"user_id"`
	SubscriptionID snowflake.ID    `json:"subscription_id"`
	PlanID         snowflake.ID    `json:"plan_id"`
	PlanName       string          `json:"plan_name"`
	PeriodStart    time.Time       `json:"period_start"`
	PeriodEnd      time.Time       `json:"period_end"`
	Items          []LineItem      `json:"items"`
	Total          decimal.Decimal `json:"total"`
}

// Summary is the rendering contract for PDF, email and portal views.
type Summary struct {
	Invoice Invoice       `json:"invoice"`
	Items   []InvoiceItem `json:"items"`
}

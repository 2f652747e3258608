package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Service interface {
	// TenantBillingSummary covers invoices dated within [From, To], both days inclusive.
	TenantBillingSummary(ctx context.Context, req SummaryRequest) (BillingSummary, error)
	MonthlyRevenue(ctx context.Context, req SummaryRequest) ([]SeriesPoint, error)
}

type SummaryRequest struct {
	TenantID snowflake.ID
	From     time.Time
	To       time.Time
}

type BillingSummary struct {
	TenantID     snowflake.ID    `json:"tenant_id"`
	TenantName   string          `json:"tenant_name"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	InvoiceCount int64           `json:"invoice_count"`
	Billed       decimal.Decimal `json:"billed"`
	Paid         decimal.Decimal `json:"paid"`
	Outstanding  decimal.Decimal `json:"outstanding"`
	ActiveUsers  int64           `json:"active_users"`
	// ARPU is billed divided by active users, zero without activity.
	ARPU decimal.Decimal `json:"arpu"`
	// ChurnedUsers had usage in the preceding window of equal length but none in this one.
	ChurnedUsers int64 `json:"churned_users"`
}

type SeriesPoint struct {
	Period   string          `json:"period"`
	Invoices int64           `json:"invoices"`
	Billed   decimal.Decimal `json:"billed"`
	Paid     decimal.Decimal `json:"paid"`
}

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidRange   = errors.New("invalid_range")
	ErrTenantNotFound = errors.New("tenant_not_found")
)

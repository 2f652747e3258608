// Package domain contains persistence models for the payment ledger.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	// StatusPending payments were submitted by the client and do not count yet.
	StatusPending  Status = "pending"
	StatusVerified Status = "verified"
)

type Method string

const (
	MethodEFT   Method = "eft"
	MethodCash  Method = "cash"
	MethodCard  Method = "card"
	MethodOther Method = "other"
)

func (m Method) Valid() bool {
	switch m {
	case MethodEFT, MethodCash, MethodCard, MethodOther:
		return true
	default:
		return false
	}
}

// Payment is a single amount applied to an invoice. Only verified payments
// count toward the invoice being paid.
type Payment struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID    `gorm:"not null;index:ix_payments_tenant_status,priority:1" json:"tenant_id"`
	InvoiceID   snowflake.ID    `gorm:"not null;index" json:"invoice_id"`
	UserID      snowflake.ID    `gorm:"not null;index" json:"user_id"`
	Amount      decimal.Decimal `gorm:"type:numeric(12,2);not null" json:"amount"`
	Method      Method          `gorm:"type:text;not null" json:"method"`
	Notes       string          `gorm:"type:text" json:"notes,omitempty"`
	ReceiptRef  *string         `gorm:"type:text" json:"receipt_ref,omitempty"`
	Status      Status          `gorm:"type:text;not null;index:ix_payments_tenant_status,priority:2" json:"status"`
	PaymentDate time.Time       `gorm:"not null" json:"payment_date"`
	VerifiedAt  *time.Time      `json:"verified_at,omitempty"`
	VerifiedBy  *snowflake.ID   `json:"verified_by,omitempty"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
}

func (Payment) TableName() string { return "payments" }

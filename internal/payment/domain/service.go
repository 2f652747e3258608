package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type RecordPaymentRequest struct {
	TenantID    snowflake.ID    `json:"tenant_id"`
	InvoiceID   snowflake.ID    `json:"invoice_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      Method          `json:"method"`
	Notes       string          `json:"notes"`
	ReceiptRef  string          `json:"receipt_ref"`
	PaymentDate time.Time       `json:"payment_date"`
	ActorID     snowflake.ID    `json:"actor_id"`
}

type SubmitReceiptRequest struct {
	TenantID    snowflake.ID    `json:"tenant_id"`
	InvoiceID   snowflake.ID    `json:"invoice_id"`
	UserID      snowflake.ID    `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Method      Method          `json:"method"`
	ReceiptRef  string          `json:"receipt_ref"`
	Notes       string          `json:"notes"`
	PaymentDate time.Time       `json:"payment_date"`
}

// Settlement is the invoice state after a payment was applied.
type Settlement struct {
	Payment     Payment         `json:"payment"`
	TotalPaid   decimal.Decimal `json:"total_paid"`
	Outstanding decimal.Decimal `json:"outstanding"`
	IsPaid      bool            `json:"is_paid"`
}

type Service interface {
	// RecordPayment stores an admin-entered payment as verified.
	RecordPayment(context.Context, RecordPaymentRequest) (Settlement, error)
	// SubmitReceipt stores a client-uploaded receipt as pending.
	SubmitReceipt(context.Context, SubmitReceiptRequest) (Payment, error)
	VerifyPayment(ctx context.Context, tenantID, paymentID, verifierID snowflake.ID) (Settlement, error)
	ListPending(ctx context.Context, tenantID snowflake.ID) ([]Payment, error)
	ListForInvoice(ctx context.Context, tenantID, invoiceID snowflake.ID) ([]Payment, error)
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidInvoice  = errors.New("invalid_invoice")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidAmount   = errors.New("invalid_amount")
	ErrInvalidMethod   = errors.New("invalid_method")
	ErrInvalidReceipt  = errors.New("invalid_receipt")
	ErrInvalidPayment  = errors.New("invalid_payment")
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrAlreadyVerified = errors.New("already_verified")
	ErrInvalidVerifier = errors.New("invalid_verifier")
)

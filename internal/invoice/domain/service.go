package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Service interface {
	// EstimateInvoice previews the open period (first of month through today).
	EstimateInvoice(ctx context.Context, tenantID, userID snowflake.ID) (Estimate, error)
	// FinalizeInvoice commits the open period as an invoice exactly once per user and month.
	FinalizeInvoice(ctx context.Context, tenantID, userID snowflake.ID) (snowflake.ID, error)
	InvoiceForPeriod(ctx context.Context, userID snowflake.ID, month string) (*Invoice, error)
	GetSummary(ctx context.Context, invoiceID snowflake.ID) (Summary, error)
	GetSummaryTx(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (Summary, error)
	ListInvoices(ctx context.Context, tenantID, userID snowflake.ID) ([]Invoice, error)
	RenderPDF(ctx context.Context, invoiceID snowflake.ID) ([]byte, error)
	RenderHTML(ctx context.Context, invoiceID snowflake.ID) (string, error)
}

var (
	ErrInvalidTenant   = errors.New("invalid_tenant")
	ErrInvalidUser     = errors.New("invalid_user")
	ErrInvalidInvoice  = errors.New("invalid_invoice")
	ErrInvalidPeriod   = errors.New("invalid_period")
	ErrInvoiceNotFound = errors.New("invoice_not_found")
	ErrAlreadyInvoiced = errors.New("already_invoiced")
	ErrNoBillableItems = errors.New("no_billable_items")
	ErrRendererMissing = errors.New("renderer_not_configured")
)

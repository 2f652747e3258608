package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// Insert reports false when the user already has an invoice for the month.
	Insert(ctx context.Context, db *gorm.DB, invoice *Invoice) (bool, error)
	InsertItems(ctx context.Context, db *gorm.DB, items []InvoiceItem) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Invoice, error)
	FindByUserMonth(ctx context.Context, db *gorm.DB, userID snowflake.ID, month string) (*Invoice, error)
	ListItems(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]InvoiceItem, error)
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]Invoice, error)
	// LockTenant serializes invoice numbering per tenant.
	LockTenant(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) error
	MaxSeq(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) (int64, error)
	// MarkPaid only flips unpaid invoices and reports whether it did.
	MarkPaid(ctx context.Context, db *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error)
}

type ListFilter struct {
	TenantID snowflake.ID
	UserID   snowflake.ID
	Month    string
	IsPaid   *bool
	Limit    int
}

package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, payment *Payment) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Payment, error)
	// MarkVerified only transitions pending rows and reports whether it did.
	MarkVerified(ctx context.Context, db *gorm.DB, id, verifierID snowflake.ID, at time.Time) (bool, error)
	SumVerified(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error)
	ListByInvoice(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) ([]Payment, error)
	ListByStatus(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, status Status) ([]Payment, error)
}

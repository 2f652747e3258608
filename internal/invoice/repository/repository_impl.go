package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/smallbiznis/meterbill/pkg/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice) (bool, error) {
	result := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "invoice_month"}},
		DoNothing: true,
	}).Create(invoice)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) InsertItems(ctx context.Context, tx *gorm.DB, items []domain.InvoiceItem) error {
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Create(&items).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, tx, `SELECT * FROM invoices WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Invoice, error) {
	return r.findOne(ctx, tx, `SELECT * FROM invoices WHERE id = ?`+db.ForUpdate(tx), id)
}

func (r *repo) FindByUserMonth(ctx context.Context, tx *gorm.DB, userID snowflake.ID, month string) (*domain.Invoice, error) {
	return r.findOne(ctx, tx,
		`SELECT * FROM invoices WHERE user_id = ? AND invoice_month = ? LIMIT 1`,
		userID, month,
	)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*domain.Invoice, error) {
	var invoice domain.Invoice
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&invoice).Error; err != nil {
		return nil, err
	}
	if invoice.ID == 0 {
		return nil, nil
	}
	return &invoice, nil
}

func (r *repo) ListItems(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.InvoiceItem, error) {
	var items []domain.InvoiceItem
	err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("position ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) List(ctx context.Context, tx *gorm.DB, filter domain.ListFilter) ([]domain.Invoice, error) {
	q := tx.WithContext(ctx).Model(&domain.Invoice{})
	if filter.TenantID != 0 {
		q = q.Where("tenant_id = ?", filter.TenantID)
	}
	if filter.UserID != 0 {
		q = q.Where("user_id = ?", filter.UserID)
	}
	if filter.Month != "" {
		q = q.Where("invoice_month = ?", filter.Month)
	}
	if filter.IsPaid != nil {
		q = q.Where("is_paid = ?", *filter.IsPaid)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var invoices []domain.Invoice
	if err := q.Order("invoice_date DESC, id DESC").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

func (r *repo) LockTenant(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) error {
	var id snowflake.ID
	return tx.WithContext(ctx).
		Raw(`SELECT id FROM tenants WHERE id = ?`+db.ForUpdate(tx), tenantID).
		Scan(&id).Error
}

func (r *repo) MaxSeq(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID) (int64, error) {
	var seq int64
	err := tx.WithContext(ctx).
		Raw(`SELECT COALESCE(MAX(invoice_seq), 0) FROM invoices WHERE tenant_id = ?`, tenantID).
		Row().Scan(&seq)
	return seq, err
}

func (r *repo) MarkPaid(ctx context.Context, tx *gorm.DB, id snowflake.ID, paidAt time.Time) (bool, error) {
	result := tx.WithContext(ctx).Exec(
		`UPDATE invoices SET is_paid = ?, paid_at = ? WHERE id = ? AND is_paid = ?`,
		true, paidAt, id, false,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

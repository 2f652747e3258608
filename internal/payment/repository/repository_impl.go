package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meterbill/internal/payment/domain"
	"github.com/smallbiznis/meterbill/pkg/db"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, tx *gorm.DB, payment *domain.Payment) error {
	return tx.WithContext(ctx).Create(payment).Error
}

func (r *repo) FindByID(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, tx, `SELECT * FROM payments WHERE id = ?`, id)
}

func (r *repo) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*domain.Payment, error) {
	return r.findOne(ctx, tx, `SELECT * FROM payments WHERE id = ?`+db.ForUpdate(tx), id)
}

func (r *repo) findOne(ctx context.Context, tx *gorm.DB, query string, args ...any) (*domain.Payment, error) {
	var item domain.Payment
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&item).Error; err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) MarkVerified(ctx context.Context, tx *gorm.DB, id, verifierID snowflake.ID, at time.Time) (bool, error) {
	res := tx.WithContext(ctx).Exec(
		`UPDATE payments
		 SET status = ?, verified_at = ?, verified_by = ?
		 WHERE id = ? AND status = ?`,
		domain.StatusVerified,
		at,
		verifierID,
		id,
		domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// SumVerified adds the verified amounts in decimal. SQL SUM is not used:
// sqlite returns it as a float and loses cents.
func (r *repo) SumVerified(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := tx.WithContext(ctx).
		Model(&domain.Payment{}).
		Where("invoice_id = ? AND status = ?", invoiceID, domain.StatusVerified).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, amounts...).Round(2), nil
}

func (r *repo) ListByInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) ([]domain.Payment, error) {
	var items []domain.Payment
	err := tx.WithContext(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("payment_date ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) ListByStatus(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, status domain.Status) ([]domain.Payment, error) {
	var items []domain.Payment
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND status = ?", tenantID, status).
		Order("created_at ASC, id ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

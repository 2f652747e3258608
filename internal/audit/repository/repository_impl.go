package repository

import (
	"context"
	"strings"

	"github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, entry *domain.AuditLog) error {
	if entry == nil {
		return nil
	}
	return db.WithContext(ctx).Create(entry).Error
}

func (r *repo) List(ctx context.Context, db *gorm.DB, filter domain.ListFilter) ([]domain.AuditLog, error) {
	var logs []domain.AuditLog
	err := db.WithContext(ctx).
		Where("tenant_id = ?", filter.TenantID).
		Scopes(
			byAction(filter.Action),
			byTarget(filter.TargetType, filter.TargetID),
			createdBetween(filter),
			olderThan(filter.After),
		).
		Order("created_at desc, id desc").
		Scopes(peekLimit(filter.Limit)).
		Find(&logs).Error
	return logs, err
}

// byAction matches "invoice.finalized" exactly, or every invoice action for "invoice.*".
func byAction(action string) func(*gorm.DB) *gorm.DB {
	action = strings.TrimSpace(action)
	return func(tx *gorm.DB) *gorm.DB {
		if prefix, ok := strings.CutSuffix(action, "*"); ok && strings.HasSuffix(prefix, ".") {
			return tx.Where("action LIKE ?", prefix+"%")
		}
		if action == "" {
			return tx
		}
		return tx.Where("action = ?", action)
	}
}

func byTarget(targetType, targetID string) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if v := strings.TrimSpace(targetType); v != "" {
			tx = tx.Where("target_type = ?", v)
		}
		if v := strings.TrimSpace(targetID); v != "" {
			tx = tx.Where("target_id = ?", v)
		}
		return tx
	}
}

func createdBetween(filter domain.ListFilter) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if filter.StartAt != nil {
			tx = tx.Where("created_at >= ?", filter.StartAt.UTC())
		}
		if filter.EndAt != nil {
			tx = tx.Where("created_at <= ?", filter.EndAt.UTC())
		}
		return tx
	}
}

// olderThan continues a newest-first listing after the cursor row.
func olderThan(c *pagination.Cursor) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if c == nil {
			return tx
		}
		return tx.Where("created_at < ? OR (created_at = ? AND id < ?)", c.CreatedAt, c.CreatedAt, c.ID)
	}
}

func peekLimit(limit int) func(*gorm.DB) *gorm.DB {
	return func(tx *gorm.DB) *gorm.DB {
		if limit <= 0 {
			return tx
		}
		return tx.Limit(limit + 1)
	}
}

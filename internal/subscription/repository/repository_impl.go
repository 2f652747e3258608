package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/subscription/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, subscription *domain.Subscription) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscriptions (id, tenant_id, user_id, plan_id, start_date, end_date, is_active, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		subscription.ID,
		subscription.TenantID,
		subscription.UserID,
		subscription.PlanID,
		subscription.StartDate,
		subscription.EndDate,
		subscription.IsActive,
		subscription.CreatedAt,
	).Error
}

func (r *repo) FindActive(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) (*domain.Subscription, error) {
	var subscription domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, user_id, plan_id, start_date, end_date, is_active, created_at
		 FROM subscriptions
		 WHERE tenant_id = ? AND user_id = ? AND is_active = ?
		 ORDER BY start_date DESC, id DESC
		 LIMIT 1`,
		tenantID,
		userID,
		true,
	).Scan(&subscription).Error
	if err != nil {
		return nil, err
	}
	if subscription.ID == 0 {
		return nil, nil
	}
	return &subscription, nil
}

func (r *repo) End(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate time.Time) (bool, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE subscriptions
		 SET is_active = ?, end_date = ?
		 WHERE id = ? AND is_active = ?`,
		false,
		endDate,
		id,
		true,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]domain.Subscription, error) {
	var subscriptions []domain.Subscription
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, user_id, plan_id, start_date, end_date, is_active, created_at
		 FROM subscriptions
		 WHERE is_active = ? AND id > ?
		 ORDER BY id ASC
		 LIMIT ?`,
		true,
		afterID,
		limit,
	).Scan(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	return subscriptions, nil
}

func (r *repo) InsertAudit(ctx context.Context, db *gorm.DB, audit *domain.Audit) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO subscription_audits (id, tenant_id, user_id, action, old_plan_id, new_plan_id, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		audit.ID,
		audit.TenantID,
		audit.UserID,
		audit.Action,
		audit.OldPlanID,
		audit.NewPlanID,
		audit.OccurredAt,
	).Error
}

func (r *repo) ListAudits(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) ([]domain.Audit, error) {
	var audits []domain.Audit
	err := db.WithContext(ctx).
		Model(&domain.Audit{}).
		Where("tenant_id = ? AND user_id = ?", tenantID, userID).
		Order("occurred_at asc, id asc").
		Find(&audits).Error
	if err != nil {
		return nil, err
	}
	return audits, nil
}

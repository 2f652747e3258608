package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/anomaly/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertAlert(ctx context.Context, db *gorm.DB, alert *domain.Alert) (bool, error) {
	result := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "tenant_id"}, {Name: "user_id"}, {Name: "metric"}, {Name: "usage_date"},
		},
		DoNothing: true,
	}).Create(alert)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) ListAlerts(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, since time.Time) ([]domain.Alert, error) {
	var alerts []domain.Alert
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND usage_date >= ?", tenantID, since).
		Order("usage_date DESC, id DESC").
		Find(&alerts).Error
	if err != nil {
		return nil, err
	}
	return alerts, nil
}

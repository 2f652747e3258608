package repository

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/usage/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertEvent(ctx context.Context, db *gorm.DB, event *domain.UsageEvent) (bool, error) {
	tx := db.WithContext(ctx)
	if event.IdempotencyKey != nil {
		tx = tx.Clauses(idempotencyConflict(db))
	}
	result := tx.Create(event)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) FindByIdempotencyKey(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, key string) (*domain.UsageEvent, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}
	var event domain.UsageEvent
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND idempotency_key = ?", tenantID, key).
		Limit(1).
		Find(&event).Error
	if err != nil {
		return nil, err
	}
	if event.ID == 0 {
		return nil, nil
	}
	return &event, nil
}

func (r *repo) IncrementAggregate(ctx context.Context, db *gorm.DB, key domain.AggregateKey, quantity float64, at time.Time) error {
	row := domain.UsageAggregate{
		TenantID:      key.TenantID,
		UserID:        key.UserID,
		Metric:        key.Metric,
		Period:        key.Period,
		TotalQuantity: quantity,
		UpdatedAt:     at,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: aggregateColumns(),
		DoUpdates: clause.Assignments(map[string]any{
			"total_quantity": gorm.Expr("usage_aggregates.total_quantity + ?", quantity),
			"updated_at":     at,
		}),
	}).Create(&row).Error
}

func (r *repo) FindAggregate(ctx context.Context, db *gorm.DB, key domain.AggregateKey) (*domain.UsageAggregate, error) {
	var row domain.UsageAggregate
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, user_id, metric, period, total_quantity, updated_at
		 FROM usage_aggregates
		 WHERE tenant_id = ? AND user_id = ? AND metric = ? AND period = ?`,
		key.TenantID, key.UserID, key.Metric, key.Period,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.TenantID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (r *repo) SumEvents(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID, metric string, start, end time.Time) (float64, error) {
	var total float64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(quantity), 0)
		 FROM usage_events
		 WHERE tenant_id = ? AND user_id = ? AND metric = ?
		   AND usage_date >= ? AND usage_date <= ?`,
		tenantID, userID, metric, start, end,
	).Row().Scan(&total)
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) ListEvents(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID, metric string, since time.Time) ([]domain.UsageEvent, error) {
	var events []domain.UsageEvent
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND user_id = ? AND metric = ? AND usage_date >= ?", tenantID, userID, metric, since).
		Order("usage_date ASC").
		Order("recorded_at ASC").
		Order("id ASC").
		Find(&events).Error
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *repo) SumEventsByKey(ctx context.Context, db *gorm.DB, start, end time.Time) ([]domain.AggregateTotal, error) {
	var rows []struct {
		TenantID      snowflake.ID
		UserID        snowflake.ID
		Metric        string
		TotalQuantity float64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT tenant_id, user_id, metric, SUM(quantity) AS total_quantity
		 FROM usage_events
		 WHERE usage_date >= ? AND usage_date <= ?
		 GROUP BY tenant_id, user_id, metric
		 ORDER BY tenant_id, user_id, metric`,
		start, end,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	period := start.UTC().Format("2006-01")
	totals := make([]domain.AggregateTotal, 0, len(rows))
	for _, row := range rows {
		totals = append(totals, domain.AggregateTotal{
			AggregateKey: domain.AggregateKey{
				TenantID: row.TenantID,
				UserID:   row.UserID,
				Metric:   row.Metric,
				Period:   period,
			},
			TotalQuantity: row.TotalQuantity,
		})
	}
	return totals, nil
}

func (r *repo) ListAggregates(ctx context.Context, db *gorm.DB, period string) ([]domain.UsageAggregate, error) {
	var rows []domain.UsageAggregate
	err := db.WithContext(ctx).
		Where("period = ?", period).
		Order("tenant_id, user_id, metric").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repo) ReplaceAggregate(ctx context.Context, db *gorm.DB, key domain.AggregateKey, total float64, at time.Time) error {
	row := domain.UsageAggregate{
		TenantID:      key.TenantID,
		UserID:        key.UserID,
		Metric:        key.Metric,
		Period:        key.Period,
		TotalQuantity: total,
		UpdatedAt:     at,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   aggregateColumns(),
		DoUpdates: clause.AssignmentColumns([]string{"total_quantity", "updated_at"}),
	}).Create(&row).Error
}

func aggregateColumns() []clause.Column {
	return []clause.Column{{Name: "tenant_id"}, {Name: "user_id"}, {Name: "metric"}, {Name: "period"}}
}

func idempotencyConflict(db *gorm.DB) clause.OnConflict {
	conflict := clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "idempotency_key"}},
		DoNothing: true,
	}
	if db != nil && db.Dialector != nil && db.Dialector.Name() != "mysql" {
		conflict.TargetWhere = clause.Where{Exprs: []clause.Expression{
			clause.Expr{SQL: "idempotency_key IS NOT NULL"},
		}}
	}
	return conflict
}

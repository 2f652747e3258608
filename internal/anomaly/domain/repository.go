package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	// InsertAlert reports false when the alert was already raised.
	InsertAlert(ctx context.Context, db *gorm.DB, alert *Alert) (bool, error)
	ListAlerts(ctx context.Context, db *gorm.DB, tenantID snowflake.ID, since time.Time) ([]Alert, error)
}

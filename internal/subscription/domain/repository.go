package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, subscription *Subscription) error
	FindActive(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) (*Subscription, error)
	End(ctx context.Context, db *gorm.DB, id snowflake.ID, endDate time.Time) (bool, error)
	ListActive(ctx context.Context, db *gorm.DB, afterID snowflake.ID, limit int) ([]Subscription, error)
	InsertAudit(ctx context.Context, db *gorm.DB, audit *Audit) error
	ListAudits(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) ([]Audit, error)
}

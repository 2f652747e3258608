package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertTenant(ctx context.Context, db *gorm.DB, tenant *Tenant) error
	FindTenant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Tenant, error)
	InsertUser(ctx context.Context, db *gorm.DB, user *User) error
	FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*User, error)
	ListUsers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]User, error)
}

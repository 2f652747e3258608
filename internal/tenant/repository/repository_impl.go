package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/tenant/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertTenant(ctx context.Context, db *gorm.DB, tenant *domain.Tenant) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tenants (id, name, email, address, phone, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		tenant.ID,
		tenant.Name,
		tenant.Email,
		tenant.Address,
		tenant.Phone,
		tenant.CreatedAt,
	).Error
}

func (r *repo) FindTenant(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, email, address, phone, created_at
		 FROM tenants WHERE id = ?`,
		id,
	).Scan(&tenant).Error
	if err != nil {
		return nil, err
	}
	if tenant.ID == 0 {
		return nil, nil
	}
	return &tenant, nil
}

func (r *repo) InsertUser(ctx context.Context, db *gorm.DB, user *domain.User) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO users (id, tenant_id, name, email, role, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.TenantID,
		user.Name,
		user.Email,
		user.Role,
		user.CreatedAt,
	).Error
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.User, error) {
	var user domain.User
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, name, email, role, created_at
		 FROM users WHERE id = ?`,
		id,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.ID == 0 {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) ListUsers(ctx context.Context, db *gorm.DB, tenantID snowflake.ID) ([]domain.User, error) {
	var users []domain.User
	err := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("tenant_id = ?", tenantID).
		Order("id asc").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// Package seed bootstraps the operator tenant and its superadmin so a fresh
// install has someone able to create the remaining tenants and users.
package seed

import (
	"context"

	"github.com/smallbiznis/meterbill/internal/config"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("seed",
	fx.Invoke(Run),
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Cfg       config.Config
	TenantSvc tenantdomain.Service
}

func Run(p Params) error {
	if !p.Cfg.Seed.Enabled {
		return nil
	}
	_, created, err := EnsureOperator(context.Background(), p.DB, p.TenantSvc, p.Cfg.Seed)
	if err != nil {
		return err
	}
	if created {
		p.Log.Info("seed.operator.created", zap.String("email", p.Cfg.Seed.AdminEmail))
	}
	return nil
}

// EnsureOperator creates the operator tenant and superadmin unless some
// superadmin already exists. It reports whether anything was created.
func EnsureOperator(ctx context.Context, db *gorm.DB, tenantSvc tenantdomain.Service, cfg config.SeedConfig) (tenantdomain.User, bool, error) {
	var existing tenantdomain.User
	err := db.WithContext(ctx).
		Where("role = ?", tenantdomain.RoleSuperAdmin).
		Order("created_at ASC").
		Limit(1).
		Find(&existing).Error
	if err != nil {
		return tenantdomain.User{}, false, err
	}
	if existing.ID != 0 {
		return existing, false, nil
	}

	tenant, err := tenantSvc.CreateTenant(ctx, tenantdomain.CreateTenantRequest{
		Name:  cfg.TenantName,
		Email: cfg.AdminEmail,
	})
	if err != nil {
		return tenantdomain.User{}, false, err
	}
	admin, err := tenantSvc.CreateUser(ctx, tenantdomain.CreateUserRequest{
		TenantID: tenant.ID,
		Name:     cfg.AdminName,
		Email:    cfg.AdminEmail,
		Role:     tenantdomain.RoleSuperAdmin,
	})
	if err != nil {
		return tenantdomain.User{}, false, err
	}
	return admin, true, nil
}

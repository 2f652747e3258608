package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type CreateTenantRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Address string `json:"address"`
	Phone   string `json:"phone"`
}

type CreateUserRequest struct {
	TenantID snowflake.ID `json:"tenant_id"`
	Name     string       `json:"name"`
	Email    string       `json:"email"`
	Role     Role         `json:"role"`
}

type Service interface {
	CreateTenant(context.Context, CreateTenantRequest) (Tenant, error)
	GetTenant(ctx context.Context, id snowflake.ID) (Tenant, error)
	CreateUser(context.Context, CreateUserRequest) (User, error)
	GetUser(ctx context.Context, id snowflake.ID) (User, error)
	// GetTenantUser returns the user only when it belongs to tenantID.
	GetTenantUser(ctx context.Context, tenantID, userID snowflake.ID) (User, error)
	ListUsers(ctx context.Context, tenantID snowflake.ID) ([]User, error)
}

var (
	ErrInvalidTenant  = errors.New("invalid_tenant")
	ErrInvalidName    = errors.New("invalid_name")
	ErrInvalidEmail   = errors.New("invalid_email")
	ErrInvalidRole    = errors.New("invalid_role")
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrUserNotFound   = errors.New("user_not_found")
)

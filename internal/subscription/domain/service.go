package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type SubscribeRequest struct {
	TenantID snowflake.ID `json:"tenant_id"`
	UserID   snowflake.ID `json:"user_id"`
	PlanID   snowflake.ID `json:"plan_id"`
}

type Service interface {
	ActiveSubscription(ctx context.Context, tenantID, userID snowflake.ID) (Subscription, error)
	ActiveSubscriptionTx(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) (Subscription, error)
	// Subscribe ends any active subscription for the user and starts a new one.
	// Nothing is prorated.
	Subscribe(context.Context, SubscribeRequest) (Subscription, error)
	Cancel(ctx context.Context, tenantID, userID snowflake.ID) error
	ListActive(ctx context.Context, afterID snowflake.ID, limit int) ([]Subscription, error)
	ListAudits(ctx context.Context, tenantID, userID snowflake.ID) ([]Audit, error)
}

var (
	ErrInvalidTenant        = errors.New("invalid_tenant")
	ErrInvalidUser          = errors.New("invalid_user")
	ErrInvalidPlan          = errors.New("invalid_plan")
	ErrPlanInactive         = errors.New("plan_inactive")
	ErrNoActiveSubscription = errors.New("no_active_subscription")
)

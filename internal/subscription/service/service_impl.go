package service

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/clock"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxListLimit = 500

type ServiceParam struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Repo      subscriptiondomain.Repository
	PlanSvc   plandomain.Service
	TenantSvc tenantdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	repo      subscriptiondomain.Repository
	planSvc   plandomain.Service
	tenantSvc tenantdomain.Service
}

func NewService(p ServiceParam) subscriptiondomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("subscription.service"),
		genID:     p.GenID,
		clock:     p.Clock,
		repo:      p.Repo,
		planSvc:   p.PlanSvc,
		tenantSvc: p.TenantSvc,
	}
}

func (s *Service) ActiveSubscription(ctx context.Context, tenantID, userID snowflake.ID) (subscriptiondomain.Subscription, error) {
	return s.ActiveSubscriptionTx(ctx, s.db, tenantID, userID)
}

func (s *Service) ActiveSubscriptionTx(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID) (subscriptiondomain.Subscription, error) {
	if tenantID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}
	if userID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidUser
	}
	subscription, err := s.repo.FindActive(ctx, db, tenantID, userID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if subscription == nil {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrNoActiveSubscription
	}
	return *subscription, nil
}

func (s *Service) Subscribe(ctx context.Context, req subscriptiondomain.SubscribeRequest) (subscriptiondomain.Subscription, error) {
	if req.TenantID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidTenant
	}
	if req.UserID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidUser
	}
	if req.PlanID == 0 {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrInvalidPlan
	}

	if _, err := s.tenantSvc.GetTenantUser(ctx, req.TenantID, req.UserID); err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	plan, err := s.planSvc.GetPlan(ctx, req.PlanID)
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}
	if plan.TenantID != req.TenantID {
		return subscriptiondomain.Subscription{}, plandomain.ErrPlanNotFound
	}
	if !plan.IsActive {
		return subscriptiondomain.Subscription{}, subscriptiondomain.ErrPlanInactive
	}

	var created subscriptiondomain.Subscription
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := s.clock.Now().UTC()
		today := clock.DateOf(now)

		current, err := s.repo.FindActive(ctx, tx, req.TenantID, req.UserID)
		if err != nil {
			return err
		}

		action := subscriptiondomain.AuditSubscribed
		var oldPlanID *snowflake.ID
		if current != nil {
			if current.PlanID == req.PlanID {
				created = *current
				return nil
			}
			if _, err := s.repo.End(ctx, tx, current.ID, today); err != nil {
				return err
			}
			action = subscriptiondomain.AuditSwitched
			previous := current.PlanID
			oldPlanID = &previous
		}

		created = subscriptiondomain.Subscription{
			ID:        s.genID.Generate(),
			TenantID:  req.TenantID,
			UserID:    req.UserID,
			PlanID:    req.PlanID,
			StartDate: today,
			IsActive:  true,
			CreatedAt: now,
		}
		if err := s.repo.Insert(ctx, tx, &created); err != nil {
			return err
		}

		newPlanID := req.PlanID
		return s.repo.InsertAudit(ctx, tx, &subscriptiondomain.Audit{
			ID:         s.genID.Generate(),
			TenantID:   req.TenantID,
			UserID:     req.UserID,
			Action:     action,
			OldPlanID:  oldPlanID,
			NewPlanID:  &newPlanID,
			OccurredAt: now,
		})
	})
	if err != nil {
		return subscriptiondomain.Subscription{}, err
	}

	s.log.Info("subscription.changed",
		zap.String("tenant_id", req.TenantID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.String("plan_id", req.PlanID.String()),
		zap.String("subscription_id", created.ID.String()),
	)
	return created, nil
}

func (s *Service) Cancel(ctx context.Context, tenantID, userID snowflake.ID) error {
	if tenantID == 0 {
		return subscriptiondomain.ErrInvalidTenant
	}
	if userID == 0 {
		return subscriptiondomain.ErrInvalidUser
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		current, err := s.repo.FindActive(ctx, tx, tenantID, userID)
		if err != nil {
			return err
		}
		if current == nil {
			return subscriptiondomain.ErrNoActiveSubscription
		}

		now := s.clock.Now().UTC()
		ended, err := s.repo.End(ctx, tx, current.ID, clock.DateOf(now))
		if err != nil {
			return err
		}
		if !ended {
			return subscriptiondomain.ErrNoActiveSubscription
		}

		oldPlanID := current.PlanID
		return s.repo.InsertAudit(ctx, tx, &subscriptiondomain.Audit{
			ID:         s.genID.Generate(),
			TenantID:   tenantID,
			UserID:     userID,
			Action:     subscriptiondomain.AuditCancelled,
			OldPlanID:  &oldPlanID,
			OccurredAt: now,
		})
	})
	if err != nil {
		if !errors.Is(err, subscriptiondomain.ErrNoActiveSubscription) {
			s.log.Error("subscription.cancel.failed", zap.Error(err))
		}
		return err
	}

	s.log.Info("subscription.cancelled",
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
	)
	return nil
}

func (s *Service) ListActive(ctx context.Context, afterID snowflake.ID, limit int) ([]subscriptiondomain.Subscription, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.repo.ListActive(ctx, s.db, afterID, limit)
}

func (s *Service) ListAudits(ctx context.Context, tenantID, userID snowflake.ID) ([]subscriptiondomain.Audit, error) {
	if tenantID == 0 {
		return nil, subscriptiondomain.ErrInvalidTenant
	}
	return s.repo.ListAudits(ctx, s.db, tenantID, userID)
}

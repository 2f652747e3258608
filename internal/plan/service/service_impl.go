package service

import (
	"context"
	"math"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/cache"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/plan/domain"
	"github.com/smallbiznis/meterbill/pkg/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Clock  clock.Clock
	Repo   domain.Repository
	Limits cache.PlanLimitsCache `optional:"true"`
	Audit  auditdomain.Service   `optional:"true"`
}

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	clock  clock.Clock
	repo   domain.Repository
	limits cache.PlanLimitsCache
	audit  auditdomain.Service
}

func New(p Params) domain.Service {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("plan.service"),
		genID:  p.GenID,
		clock:  p.Clock,
		repo:   p.Repo,
		limits: p.Limits,
		audit:  p.Audit,
	}
}

func (s *Service) CreatePlan(ctx context.Context, req domain.CreatePlanRequest) (domain.Plan, error) {
	if req.TenantID == 0 {
		return domain.Plan{}, domain.ErrInvalidTenant
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Plan{}, domain.ErrInvalidName
	}
	if req.MonthlyFee.IsNegative() {
		return domain.Plan{}, domain.ErrInvalidFee
	}

	plan := domain.Plan{
		ID:         s.genID.Generate(),
		TenantID:   req.TenantID,
		Name:       name,
		MonthlyFee: req.MonthlyFee.Round(2),
		IsActive:   true,
		CreatedAt:  s.clock.Now().UTC(),
	}
	if err := s.repo.InsertPlan(ctx, s.db, &plan); err != nil {
		return domain.Plan{}, err
	}

	s.log.Info("plan.created",
		zap.String("plan_id", plan.ID.String()),
		zap.String("tenant_id", plan.TenantID.String()),
	)
	return plan, nil
}

func (s *Service) GetPlan(ctx context.Context, id snowflake.ID) (domain.Plan, error) {
	plan, err := s.repo.FindPlan(ctx, s.db, id)
	if err != nil {
		return domain.Plan{}, err
	}
	if plan == nil {
		return domain.Plan{}, domain.ErrPlanNotFound
	}
	return *plan, nil
}

func (s *Service) ListPlans(ctx context.Context, tenantID snowflake.ID) ([]domain.Plan, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListPlans(ctx, s.db, tenantID)
}

func (s *Service) SetMetricLimit(ctx context.Context, req domain.SetMetricLimitRequest) (domain.MetricLimit, error) {
	name := metric.Normalize(req.Metric)
	if name == "" {
		return domain.MetricLimit{}, domain.ErrInvalidMetric
	}
	if math.IsNaN(req.IncludedUnits) || math.IsInf(req.IncludedUnits, 0) || req.IncludedUnits < 0 {
		return domain.MetricLimit{}, domain.ErrInvalidIncludedUnits
	}
	if req.OverageRate.IsNegative() {
		return domain.MetricLimit{}, domain.ErrInvalidOverageRate
	}

	var (
		saved    domain.MetricLimit
		tenantID snowflake.ID
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		plan, err := s.repo.FindPlan(ctx, tx, req.PlanID)
		if err != nil {
			return err
		}
		if plan == nil {
			return domain.ErrPlanNotFound
		}
		tenantID = plan.TenantID

		now := s.clock.Now().UTC()
		limit := domain.MetricLimit{
			ID:            s.genID.Generate(),
			PlanID:        plan.ID,
			Metric:        name,
			IncludedUnits: req.IncludedUnits,
			OverageRate:   req.OverageRate,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := s.repo.UpsertMetricLimit(ctx, tx, &limit); err != nil {
			return err
		}

		limits, err := s.repo.ListMetricLimits(ctx, tx, plan.ID)
		if err != nil {
			return err
		}
		for _, item := range limits {
			if item.Metric == name {
				saved = item
				break
			}
		}
		return nil
	})
	if err != nil {
		return domain.MetricLimit{}, err
	}

	if s.limits != nil {
		s.limits.Invalidate(req.PlanID)
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, auditdomain.Entry{
			TenantID:   tenantID,
			Action:     "plan.limit_set",
			TargetType: auditdomain.TargetPlan,
			TargetID:   req.PlanID.String(),
			Metadata: map[string]any{
				"metric":         saved.Metric,
				"included_units": saved.IncludedUnits,
				"overage_rate":   saved.OverageRate.String(),
			},
		})
	}
	return saved, nil
}

func (s *Service) ResolveLimits(ctx context.Context, planID snowflake.ID) (domain.Limits, error) {
	if s.limits != nil {
		if limits, ok := s.limits.Get(planID); ok {
			return limits, nil
		}
	}

	limits, err := s.ResolveLimitsTx(ctx, s.db, planID)
	if err != nil {
		return domain.Limits{}, err
	}
	if s.limits != nil {
		s.limits.Set(planID, limits)
	}
	return limits, nil
}

func (s *Service) ResolveLimitsTx(ctx context.Context, db *gorm.DB, planID snowflake.ID) (domain.Limits, error) {
	if planID == 0 {
		return domain.Limits{}, domain.ErrPlanNotFound
	}
	plan, err := s.repo.FindPlan(ctx, db, planID)
	if err != nil {
		return domain.Limits{}, err
	}
	if plan == nil {
		return domain.Limits{}, domain.ErrPlanNotFound
	}

	metrics, err := s.repo.ListMetricLimits(ctx, db, planID)
	if err != nil {
		return domain.Limits{}, err
	}
	if metrics == nil {
		metrics = []domain.MetricLimit{}
	}

	return domain.Limits{
		PlanID:   plan.ID,
		PlanName: plan.Name,
		FlatFee:  plan.MonthlyFee,
		Metrics:  metrics,
	}, nil
}

func (s *Service) HasMetric(ctx context.Context, tenantID snowflake.ID, metricName string) (bool, error) {
	if tenantID == 0 {
		return false, domain.ErrInvalidTenant
	}
	metricName = metric.Normalize(metricName)
	if metricName == "" {
		return false, domain.ErrInvalidMetric
	}
	return s.repo.MetricDefined(ctx, s.db, tenantID, metricName)
}

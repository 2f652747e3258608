package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/clock"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/smallbiznis/meterbill/pkg/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Clock      clock.Clock
	Repo       domain.Repository
	TenantSvc  tenantdomain.Service
	Catalog    domain.MetricCatalog
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
	Observer   domain.Observer     `optional:"true"`
}

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	genID      *snowflake.Node
	clock      clock.Clock
	repo       domain.Repository
	tenantSvc  tenantdomain.Service
	catalog    domain.MetricCatalog
	obsMetrics *obsmetrics.Metrics
	observer   domain.Observer
}

func NewService(p ServiceParam) domain.Service {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("usage.service"),

		genID:      p.GenID,
		clock:      p.Clock,
		repo:       p.Repo,
		tenantSvc:  p.TenantSvc,
		catalog:    p.Catalog,
		obsMetrics: p.ObsMetrics,
		observer:   p.Observer,
	}
}

func (s *Service) RecordUsage(ctx context.Context, req domain.RecordUsageRequest) (*domain.UsageEvent, error) {
	if req.TenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if req.UserID == 0 {
		return nil, domain.ErrInvalidUser
	}
	metricName := metric.Normalize(req.Metric)
	if metricName == "" {
		return nil, domain.ErrInvalidMetric
	}
	if err := validateQuantity(req.Quantity); err != nil {
		return nil, err
	}

	source := req.Source
	switch source {
	case "":
		source = domain.SourceAPI
	case domain.SourceAPI, domain.SourceCSV:
	default:
		return nil, domain.ErrInvalidSource
	}

	now := s.clock.Now().UTC()
	usageDate := clock.DateOf(now)
	if !req.OccurredOn.IsZero() {
		usageDate = clock.DateOf(req.OccurredOn)
	}

	if _, err := s.tenantSvc.GetTenantUser(ctx, req.TenantID, req.UserID); err != nil {
		if errors.Is(err, tenantdomain.ErrUserNotFound) {
			return nil, domain.ErrInvalidUser
		}
		return nil, err
	}
	known, err := s.catalog.HasMetric(ctx, req.TenantID, metricName)
	if err != nil {
		return nil, err
	}
	if !known {
		return nil, domain.ErrUnknownMetric
	}

	key := normalizeIdempotencyKey(req.IdempotencyKey)
	if key != nil {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, req.TenantID, *key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
	}

	event := &domain.UsageEvent{
		ID:             s.genID.Generate(),
		TenantID:       req.TenantID,
		UserID:         req.UserID,
		Metric:         metricName,
		Quantity:       req.Quantity,
		UsageDate:      usageDate,
		RecordedAt:     now,
		Source:         source,
		IdempotencyKey: key,
	}
	if req.Metadata != nil {
		event.Metadata = datatypes.JSONMap(req.Metadata)
	}

	inserted := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		inserted, err = s.repo.InsertEvent(ctx, tx, event)
		if err != nil || !inserted {
			return err
		}
		return s.repo.IncrementAggregate(ctx, tx, domain.AggregateKey{
			TenantID: event.TenantID,
			UserID:   event.UserID,
			Metric:   event.Metric,
			Period:   clock.PeriodLabel(event.UsageDate),
		}, event.Quantity, now)
	})
	if err != nil {
		return nil, err
	}

	// Lost the race against a concurrent retry with the same key.
	if !inserted {
		existing, err := s.repo.FindByIdempotencyKey(ctx, s.db, req.TenantID, *key)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return nil, errors.New("usage_event_conflict")
	}

	s.log.Debug("usage.recorded",
		zap.String("tenant_id", event.TenantID.String()),
		zap.String("user_id", event.UserID.String()),
		zap.String("metric", event.Metric),
		zap.Float64("quantity", event.Quantity),
		zap.String("source", string(event.Source)),
	)
	if s.obsMetrics != nil {
		s.obsMetrics.RecordUsage(ctx, event.Metric, string(event.Source), event.Quantity)
	}
	if s.observer != nil {
		s.observer.Observe(context.WithoutCancel(ctx), *event)
	}

	return event, nil
}

func (s *Service) AggregateUsage(ctx context.Context, tenantID, userID snowflake.ID, metricName string, start, end time.Time) (float64, error) {
	return s.AggregateUsageTx(ctx, s.db, tenantID, userID, metricName, start, end)
}

func (s *Service) AggregateUsageTx(ctx context.Context, db *gorm.DB, tenantID, userID snowflake.ID, metricName string, start, end time.Time) (float64, error) {
	if tenantID == 0 {
		return 0, domain.ErrInvalidTenant
	}
	if userID == 0 {
		return 0, domain.ErrInvalidUser
	}
	metricName = metric.Normalize(metricName)
	if metricName == "" {
		return 0, domain.ErrInvalidMetric
	}
	start, end = clock.DateOf(start), clock.DateOf(end)
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return 0, domain.ErrInvalidRange
	}
	return s.repo.SumEvents(ctx, db, tenantID, userID, metricName, start, end)
}

func (s *Service) GetAggregate(ctx context.Context, tenantID, userID snowflake.ID, metricName, period string) (domain.UsageAggregate, error) {
	if tenantID == 0 {
		return domain.UsageAggregate{}, domain.ErrInvalidTenant
	}
	if userID == 0 {
		return domain.UsageAggregate{}, domain.ErrInvalidUser
	}
	metricName = metric.Normalize(metricName)
	if metricName == "" {
		return domain.UsageAggregate{}, domain.ErrInvalidMetric
	}
	period = strings.TrimSpace(period)
	if _, err := time.Parse("2006-01", period); err != nil {
		return domain.UsageAggregate{}, domain.ErrInvalidPeriod
	}

	key := domain.AggregateKey{TenantID: tenantID, UserID: userID, Metric: metricName, Period: period}
	row, err := s.repo.FindAggregate(ctx, s.db, key)
	if err != nil {
		return domain.UsageAggregate{}, err
	}
	if row == nil {
		return domain.UsageAggregate{TenantID: tenantID, UserID: userID, Metric: metricName, Period: period}, nil
	}
	return *row, nil
}

func (s *Service) ListObservations(ctx context.Context, tenantID, userID snowflake.ID, metricName string, since time.Time) ([]domain.UsageEvent, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	if userID == 0 {
		return nil, domain.ErrInvalidUser
	}
	metricName = metric.Normalize(metricName)
	if metricName == "" {
		return nil, domain.ErrInvalidMetric
	}
	return s.repo.ListEvents(ctx, s.db, tenantID, userID, metricName, clock.DateOf(since))
}

func validateQuantity(quantity float64) error {
	if math.IsNaN(quantity) || math.IsInf(quantity, 0) || quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	return nil
}

func normalizeIdempotencyKey(key string) *string {
	value := strings.TrimSpace(key)
	if value == "" {
		return nil
	}
	return &value
}

package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/audit/masking"
	"github.com/smallbiznis/meterbill/internal/clock"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"github.com/smallbiznis/meterbill/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  auditdomain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  auditdomain.Repository
}

func NewService(p Params) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) Record(ctx context.Context, e auditdomain.Entry) error {
	action := strings.TrimSpace(e.Action)
	if action == "" || strings.HasSuffix(action, "*") {
		return auditdomain.ErrInvalidAction
	}
	targetType := strings.TrimSpace(e.TargetType)
	if targetType == "" {
		targetType = "unknown"
	}
	actorType, actorID := resolveActor(ctx, strings.TrimSpace(e.ActorType), strings.TrimSpace(e.ActorID))

	payload := masking.MaskKeys(e.Metadata, masking.SensitiveKeys...)
	if payload == nil {
		payload = map[string]any{}
	}
	if requestID := obscontext.RequestIDFromContext(ctx); requestID != "" {
		payload["request_id"] = requestID
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		ActorType:  actorType,
		ActorID:    optional(actorID),
		Action:     action,
		TargetType: targetType,
		TargetID:   optional(strings.TrimSpace(e.TargetID)),
		Metadata:   datatypes.JSONMap(payload),
		CreatedAt:  s.clock.Now().UTC(),
	}
	if e.TenantID != 0 {
		tenantID := e.TenantID
		entry.TenantID = &tenantID
	}

	if err := s.repo.Insert(ctx, s.db, &entry); err != nil {
		s.log.Warn("audit.write.failed", zap.String("action", action), zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, req auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	if req.TenantID == 0 {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTenant
	}
	if req.StartAt != nil && req.EndAt != nil && req.StartAt.After(*req.EndAt) {
		return auditdomain.ListAuditLogResponse{}, auditdomain.ErrInvalidTimeRange
	}

	after, err := req.Cursor()
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	pageSize := req.Size()
	items, err := s.repo.List(ctx, s.db, auditdomain.ListFilter{
		TenantID:   req.TenantID,
		Action:     req.Action,
		TargetType: req.TargetType,
		TargetID:   req.TargetID,
		StartAt:    req.StartAt,
		EndAt:      req.EndAt,
		After:      after,
		Limit:      pageSize,
	})
	if err != nil {
		return auditdomain.ListAuditLogResponse{}, err
	}

	logs, pageInfo := pagination.Trim(items, pageSize, func(l auditdomain.AuditLog) pagination.Cursor {
		return pagination.Cursor{ID: l.ID, CreatedAt: l.CreatedAt}
	})

	return auditdomain.ListAuditLogResponse{PageInfo: pageInfo, AuditLogs: logs}, nil
}

func resolveActor(ctx context.Context, actorType, actorID string) (string, string) {
	if actorType == "" {
		if ctxType, ctxID := obscontext.ActorFromContext(ctx); ctxType != "" {
			actorType = ctxType
			if actorID == "" {
				actorID = ctxID
			}
		}
	}
	if actorType == "" {
		actorType = auditdomain.ActorTypeSystem
	}
	return actorType, actorID
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}

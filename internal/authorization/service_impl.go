package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/session"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

// NewEnforcer loads stored policies through the gorm adapter and tops them
// up with the built-in role grants.
func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, sess session.Session, object string, action string) error {
	if err := sess.Validate(); err != nil {
		return ErrInvalidActor
	}
	object, action = strings.TrimSpace(object), strings.TrimSpace(action)
	switch {
	case object == "":
		return ErrInvalidObject
	case action == "":
		return ErrInvalidAction
	}

	subject := userSubject(sess.UserID)
	domain := tenantDomain(sess.TenantID)
	if err := s.syncRole(subject, roleSubject(sess.Role), domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if allowed {
		return nil
	}

	s.log.Debug("authorization.denied",
		zap.String("subject", subject),
		zap.String("domain", domain),
		zap.String("object", object),
		zap.String("action", action),
	)
	s.auditDenied(ctx, sess, object, action)
	return ErrForbidden
}

// syncRole makes the session role the only one the user holds in the
// tenant. Roles live on the user row, so a demotion must drop the old link.
func (s *ServiceImpl) syncRole(subject, role, domain string) error {
	current := s.enforcer.GetRolesForUserInDomain(subject, domain)
	if len(current) == 1 && current[0] == role {
		return nil
	}
	if len(current) > 0 {
		if _, err := s.enforcer.DeleteRolesForUserInDomain(subject, domain); err != nil {
			return err
		}
	}
	_, err := s.enforcer.AddRoleForUserInDomain(subject, role, domain)
	return err
}

func (s *ServiceImpl) auditDenied(ctx context.Context, sess session.Session, object, action string) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.Record(ctx, auditdomain.Entry{
		TenantID:   sess.TenantID,
		ActorType:  string(sess.Role),
		ActorID:    sess.UserID.String(),
		Action:     "authorization.denied",
		TargetType: object,
		Metadata:   map[string]any{"action": action},
	})
	if err != nil {
		s.log.Warn("authorization.audit.failed", zap.Error(err))
	}
}

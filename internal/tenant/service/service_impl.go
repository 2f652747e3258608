package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
	Clock clock.Clock
	Repo  domain.Repository
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock
	repo  domain.Repository
}

func New(p Params) domain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("tenant.service"),
		genID: p.GenID,
		clock: p.Clock,
		repo:  p.Repo,
	}
}

func (s *Service) CreateTenant(ctx context.Context, req domain.CreateTenantRequest) (domain.Tenant, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Tenant{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if !validEmail(email) {
		return domain.Tenant{}, domain.ErrInvalidEmail
	}

	tenant := domain.Tenant{
		ID:        s.genID.Generate(),
		Name:      name,
		Email:     email,
		Address:   strings.TrimSpace(req.Address),
		Phone:     strings.TrimSpace(req.Phone),
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.InsertTenant(ctx, s.db, &tenant); err != nil {
		return domain.Tenant{}, err
	}

	s.log.Info("tenant.created", zap.String("tenant_id", tenant.ID.String()))
	return tenant, nil
}

func (s *Service) GetTenant(ctx context.Context, id snowflake.ID) (domain.Tenant, error) {
	if id == 0 {
		return domain.Tenant{}, domain.ErrInvalidTenant
	}
	tenant, err := s.repo.FindTenant(ctx, s.db, id)
	if err != nil {
		return domain.Tenant{}, err
	}
	if tenant == nil {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return *tenant, nil
}

func (s *Service) CreateUser(ctx context.Context, req domain.CreateUserRequest) (domain.User, error) {
	if req.TenantID == 0 {
		return domain.User{}, domain.ErrInvalidTenant
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.User{}, domain.ErrInvalidName
	}
	email := strings.TrimSpace(req.Email)
	if !validEmail(email) {
		return domain.User{}, domain.ErrInvalidEmail
	}
	role := domain.Role(strings.ToLower(strings.TrimSpace(string(req.Role))))
	if role == "" {
		role = domain.RoleClient
	}
	if !role.Valid() {
		return domain.User{}, domain.ErrInvalidRole
	}

	if _, err := s.GetTenant(ctx, req.TenantID); err != nil {
		return domain.User{}, err
	}

	user := domain.User{
		ID:        s.genID.Generate(),
		TenantID:  req.TenantID,
		Name:      name,
		Email:     email,
		Role:      role,
		CreatedAt: s.clock.Now().UTC(),
	}
	if err := s.repo.InsertUser(ctx, s.db, &user); err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (s *Service) GetUser(ctx context.Context, id snowflake.ID) (domain.User, error) {
	if id == 0 {
		return domain.User{}, domain.ErrUserNotFound
	}
	user, err := s.repo.FindUser(ctx, s.db, id)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, domain.ErrUserNotFound
	}
	return *user, nil
}

func (s *Service) GetTenantUser(ctx context.Context, tenantID, userID snowflake.ID) (domain.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user.TenantID != tenantID {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context, tenantID snowflake.ID) ([]domain.User, error) {
	if tenantID == 0 {
		return nil, domain.ErrInvalidTenant
	}
	return s.repo.ListUsers(ctx, s.db, tenantID)
}

func validEmail(email string) bool {
	at := strings.Index(email, "@")
	return at > 0 && at < len(email)-1
}

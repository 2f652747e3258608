package testutil

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"gorm.io/gorm"
)

// Fixtures inserts rows directly so service tests do not depend on each other.
type Fixtures struct {
	t    testing.TB
	db   *gorm.DB
	node *snowflake.Node
	now  time.Time
}

func NewFixtures(t testing.TB, db *gorm.DB, node *snowflake.Node, now time.Time) *Fixtures {
	return &Fixtures{t: t, db: db, node: node, now: now.UTC()}
}

func (f *Fixtures) create(value any) {
	f.t.Helper()
	if err := f.db.Create(value).Error; err != nil {
		f.t.Fatalf("insert fixture %T: %v", value, err)
	}
}

func (f *Fixtures) Tenant(name string) tenantdomain.Tenant {
	f.t.Helper()
	tenant := tenantdomain.Tenant{
		ID:        f.node.Generate(),
		Name:      name,
		Email:     "billing@" + name + ".test",
		CreatedAt: f.now,
	}
	f.create(&tenant)
	return tenant
}

func (f *Fixtures) User(tenantID snowflake.ID, name string, role tenantdomain.Role) tenantdomain.User {
	f.t.Helper()
	user := tenantdomain.User{
		ID:        f.node.Generate(),
		TenantID:  tenantID,
		Name:      name,
		Email:     name + "@example.test",
		Role:      role,
		CreatedAt: f.now,
	}
	f.create(&user)
	return user
}

// MetricLimit is a compact limit definition for Plan.
type MetricLimit struct {
	Metric   string
	Included float64
	Rate     string
}

func (f *Fixtures) Plan(tenantID snowflake.ID, name, fee string, limits ...MetricLimit) plandomain.Plan {
	f.t.Helper()
	plan := plandomain.Plan{
		ID:         f.node.Generate(),
		TenantID:   tenantID,
		Name:       name,
		MonthlyFee: decimal.RequireFromString(fee),
		IsActive:   true,
		CreatedAt:  f.now,
	}
	f.create(&plan)
	for _, l := range limits {
		f.create(&plandomain.MetricLimit{
			ID:            f.node.Generate(),
			PlanID:        plan.ID,
			Metric:        l.Metric,
			IncludedUnits: l.Included,
			OverageRate:   decimal.RequireFromString(l.Rate),
			CreatedAt:     f.now,
			UpdatedAt:     f.now,
		})
	}
	return plan
}

func (f *Fixtures) Subscribe(tenantID, userID, planID snowflake.ID, start time.Time) subscriptiondomain.Subscription {
	f.t.Helper()
	sub := subscriptiondomain.Subscription{
		ID:        f.node.Generate(),
		TenantID:  tenantID,
		UserID:    userID,
		PlanID:    planID,
		StartDate: start.UTC(),
		IsActive:  true,
		CreatedAt: f.now,
	}
	f.create(&sub)
	return sub
}

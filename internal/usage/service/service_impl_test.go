package service

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	planrepo "github.com/smallbiznis/meterbill/internal/plan/repository"
	planservice "github.com/smallbiznis/meterbill/internal/plan/service"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/meterbill/internal/tenant/repository"
	tenantservice "github.com/smallbiznis/meterbill/internal/tenant/service"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/smallbiznis/meterbill/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []domain.UsageEvent
}

func (o *recordingObserver) Observe(_ context.Context, event domain.UsageEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

type fixture struct {
	db       *gorm.DB
	svc      domain.Service
	clock    *clock.FakeClock
	observer *recordingObserver
	tenant   tenantdomain.Tenant
	user     tenantdomain.User
	fx       *testutil.Fixtures
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, time.March, 20, 9, 30, 0, 0, time.UTC))
	log := zap.NewNop()

	tenantSvc := tenantservice.New(tenantservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: tenantrepo.Provide()})
	planSvc := planservice.New(planservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: planrepo.Provide()})
	observer := &recordingObserver{}
	svc := NewService(ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      repository.Provide(),
		TenantSvc: tenantSvc,
		Catalog:   planSvc,
		Observer:  observer,
	})

	fixtures := testutil.NewFixtures(t, db, node, clk.Now())
	tenant := fixtures.Tenant("acme")
	user := fixtures.User(tenant.ID, "alice", tenantdomain.RoleClient)
	fixtures.Plan(tenant.ID, "Metered", "100",
		testutil.MetricLimit{Metric: "api-calls", Included: 1000, Rate: "0.01"},
		testutil.MetricLimit{Metric: "storage", Included: 10, Rate: "2"},
	)
	return fixture{db: db, svc: svc, clock: clk, observer: observer, tenant: tenant, user: user, fx: fixtures}
}

func TestRecordUsageMaintainsAggregate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, q := range []float64{100, 250.5, 0} {
		_, err := f.svc.RecordUsage(ctx, domain.RecordUsageRequest{
			TenantID: f.tenant.ID,
			UserID:   f.user.ID,
			Metric:   "API Calls",
			Quantity: q,
		})
		require.NoError(t, err)
	}

	agg, err := f.svc.GetAggregate(ctx, f.tenant.ID, f.user.ID, "api_calls", "2024-03")
	require.NoError(t, err)
	assert.Equal(t, "api-calls", agg.Metric)
	assert.InDelta(t, 350.5, agg.TotalQuantity, 1e-9)

	sum, err := f.svc.AggregateUsage(ctx, f.tenant.ID, f.user.ID, "api-calls",
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), clock.Today(f.clock))
	require.NoError(t, err)
	assert.InDelta(t, agg.TotalQuantity, sum, 1e-9)

	assert.Len(t, f.observer.events, 3)
}

func TestRecordUsageDefaultsDateToToday(t *testing.T) {
	f := newFixture(t)

	event, err := f.svc.RecordUsage(context.Background(), domain.RecordUsageRequest{
		TenantID: f.tenant.ID,
		UserID:   f.user.ID,
		Metric:   "storage",
		Quantity: 1,
	})
	require.NoError(t, err)
	assert.True(t, event.UsageDate.Equal(time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, domain.SourceAPI, event.Source)
}

func TestRecordUsageValidation(t *testing.T) {
	f := newFixture(t)
	other := f.fx.Tenant("globex")
	outsider := f.fx.User(other.ID, "bob", tenantdomain.RoleClient)
	f.fx.Plan(other.ID, "Messaging", "50", testutil.MetricLimit{Metric: "sms", Included: 10, Rate: "0.5"})

	cases := []struct {
		name string
		req  domain.RecordUsageRequest
		want error
	}{
		{"missing tenant", domain.RecordUsageRequest{UserID: f.user.ID, Metric: "x", Quantity: 1}, domain.ErrInvalidTenant},
		{"missing user", domain.RecordUsageRequest{TenantID: f.tenant.ID, Metric: "x", Quantity: 1}, domain.ErrInvalidUser},
		{"blank metric", domain.RecordUsageRequest{TenantID: f.tenant.ID, UserID: f.user.ID, Metric: "  ", Quantity: 1}, domain.ErrInvalidMetric},
		{"negative", domain.RecordUsageRequest{TenantID: f.tenant.ID, UserID: f.user.ID, Metric: "x", Quantity: -1}, domain.ErrInvalidQuantity},
		{"nan", domain.RecordUsageRequest{TenantID: f.tenant.ID, UserID: f.user.ID, Metric: "x", Quantity: math.NaN()}, domain.ErrInvalidQuantity},
		{"inf", domain.RecordUsageRequest{TenantID: f.tenant.ID, UserID: f.user.ID, Metric: "x", Quantity: math.Inf(1)}, domain.ErrInvalidQuantity},
		{"bad source", domain.RecordUsageRequest{TenantID: f.tenant.ID, UserID: f.user.ID, Metric: "x", Quantity: 1, Source: "ftp"}, domain.ErrInvalidSource},
		{"user of another tenant", domain.RecordUsageRequest{TenantID: f.tenant.ID, UserID: outsider.ID, Metric: "x", Quantity: 1}, domain.ErrInvalidUser},
		{"metric without a plan", domain.RecordUsageRequest{TenantID: f.tenant.ID, UserID: f.user.ID, Metric: "x", Quantity: 1}, domain.ErrUnknownMetric},
		{"metric priced by another tenant", domain.RecordUsageRequest{TenantID: f.tenant.ID, UserID: f.user.ID, Metric: "SMS", Quantity: 1}, domain.ErrUnknownMetric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.RecordUsage(context.Background(), tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	var count int64
	require.NoError(t, f.db.Model(&domain.UsageEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestRecordUsageIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := domain.RecordUsageRequest{
		TenantID:       f.tenant.ID,
		UserID:         f.user.ID,
		Metric:         "api-calls",
		Quantity:       40,
		IdempotencyKey: " evt-1 ",
	}

	first, err := f.svc.RecordUsage(ctx, req)
	require.NoError(t, err)
	second, err := f.svc.RecordUsage(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	agg, err := f.svc.GetAggregate(ctx, f.tenant.ID, f.user.ID, "api-calls", "2024-03")
	require.NoError(t, err)
	assert.InDelta(t, 40, agg.TotalQuantity, 1e-9)
	assert.Len(t, f.observer.events, 1)
}

func TestAggregateUsageRangeIsInclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	days := []int{1, 10, 20}
	for _, d := range days {
		_, err := f.svc.RecordUsage(ctx, domain.RecordUsageRequest{
			TenantID:   f.tenant.ID,
			UserID:     f.user.ID,
			Metric:     "api-calls",
			Quantity:   10,
			OccurredOn: time.Date(2024, time.March, d, 15, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	_, err := f.svc.RecordUsage(ctx, domain.RecordUsageRequest{
		TenantID:   f.tenant.ID,
		UserID:     f.user.ID,
		Metric:     "api-calls",
		Quantity:   99,
		OccurredOn: time.Date(2024, time.February, 29, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	sum, err := f.svc.AggregateUsage(ctx, f.tenant.ID, f.user.ID, "api-calls",
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.InDelta(t, 30, sum, 1e-9)

	feb, err := f.svc.GetAggregate(ctx, f.tenant.ID, f.user.ID, "api-calls", "2024-02")
	require.NoError(t, err)
	assert.InDelta(t, 99, feb.TotalQuantity, 1e-9)

	_, err = f.svc.AggregateUsage(ctx, f.tenant.ID, f.user.ID, "api-calls",
		time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC),
		time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC))
	assert.ErrorIs(t, err, domain.ErrInvalidRange)
}

func TestListObservationsOrdered(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, d := range []int{18, 12, 15} {
		_, err := f.svc.RecordUsage(ctx, domain.RecordUsageRequest{
			TenantID:   f.tenant.ID,
			UserID:     f.user.ID,
			Metric:     "api-calls",
			Quantity:   float64(d),
			OccurredOn: time.Date(2024, time.March, d, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	events, err := f.svc.ListObservations(ctx, f.tenant.ID, f.user.ID, "api-calls", time.Date(2024, time.March, 13, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 15.0, events[0].Quantity)
	assert.Equal(t, 18.0, events[1].Quantity)
}

func TestGetAggregateMissingRowIsZero(t *testing.T) {
	f := newFixture(t)

	agg, err := f.svc.GetAggregate(context.Background(), f.tenant.ID, f.user.ID, "api-calls", "2023-01")
	require.NoError(t, err)
	assert.Zero(t, agg.TotalQuantity)

	_, err = f.svc.GetAggregate(context.Background(), f.tenant.ID, f.user.ID, "api-calls", "2023-13")
	assert.ErrorIs(t, err, domain.ErrInvalidPeriod)
}

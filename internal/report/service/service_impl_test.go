package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	reportdomain "github.com/smallbiznis/meterbill/internal/report/domain"
	"github.com/smallbiznis/meterbill/internal/report/service"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/smallbiznis/meterbill/internal/testutil/billingstack"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var june30 = time.Date(2024, time.June, 30, 10, 0, 0, 0, time.UTC)

func usage(t *testing.T, s *billingstack.Stack, tenant tenantdomain.Tenant, user tenantdomain.User, qty float64, on time.Time) {
	t.Helper()
	require.NoError(t, s.DB.Create(&usagedomain.UsageEvent{
		ID:         s.Node.Generate(),
		TenantID:   tenant.ID,
		UserID:     user.ID,
		Metric:     "calls",
		Quantity:   qty,
		UsageDate:  on,
		RecordedAt: on,
		Source:     usagedomain.SourceAPI,
	}).Error)
}

func TestTenantBillingSummary(t *testing.T) {
	s := billingstack.New(t, june30)
	svc := service.NewService(service.Params{DB: s.DB, Log: s.Log, TenantSvc: s.Tenants})
	ctx := context.Background()

	tenant := s.Fixtures.Tenant("mzansi")
	plan := s.Fixtures.Plan(tenant.ID, "Pro", "500", testutil.MetricLimit{Metric: "calls", Included: 1000, Rate: "0.5"})
	start := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	paying := s.Fixtures.User(tenant.ID, "paying", tenantdomain.RoleClient)
	owing := s.Fixtures.User(tenant.ID, "owing", tenantdomain.RoleClient)
	gone := s.Fixtures.User(tenant.ID, "gone", tenantdomain.RoleClient)
	s.Fixtures.Subscribe(tenant.ID, paying.ID, plan.ID, start)
	s.Fixtures.Subscribe(tenant.ID, owing.ID, plan.ID, start)

	usage(t, s, tenant, paying, 1200, june30.AddDate(0, 0, -3))
	usage(t, s, tenant, owing, 10, june30.AddDate(0, 0, -1))
	usage(t, s, tenant, gone, 50, time.Date(2024, time.May, 20, 0, 0, 0, 0, time.UTC))

	paidID, err := s.Invoices.FinalizeInvoice(ctx, tenant.ID, paying.ID)
	require.NoError(t, err)
	_, err = s.Invoices.FinalizeInvoice(ctx, tenant.ID, owing.ID)
	require.NoError(t, err)
	ok, err := s.InvoiceRepo.MarkPaid(ctx, s.DB, paidID, june30)
	require.NoError(t, err)
	require.True(t, ok)

	other := s.Fixtures.Tenant("karoo")
	otherUser := s.Fixtures.User(other.ID, "elsewhere", tenantdomain.RoleClient)
	otherPlan := s.Fixtures.Plan(other.ID, "Pro", "999")
	s.Fixtures.Subscribe(other.ID, otherUser.ID, otherPlan.ID, start)
	_, err = s.Invoices.FinalizeInvoice(ctx, other.ID, otherUser.ID)
	require.NoError(t, err)

	summary, err := svc.TenantBillingSummary(ctx, reportdomain.SummaryRequest{
		TenantID: tenant.ID,
		From:     time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, time.June, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	assert.Equal(t, "mzansi", summary.TenantName)
	assert.EqualValues(t, 2, summary.InvoiceCount)
	assert.True(t, decimal.RequireFromString("1100").Equal(summary.Billed), summary.Billed.String())
	assert.True(t, decimal.RequireFromString("600").Equal(summary.Paid), summary.Paid.String())
	assert.True(t, decimal.RequireFromString("500").Equal(summary.Outstanding), summary.Outstanding.String())
	assert.EqualValues(t, 2, summary.ActiveUsers)
	assert.True(t, decimal.RequireFromString("550").Equal(summary.ARPU), summary.ARPU.String())
	assert.EqualValues(t, 1, summary.ChurnedUsers)

	series, err := svc.MonthlyRevenue(ctx, reportdomain.SummaryRequest{
		TenantID: tenant.ID,
		From:     time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		To:       june30,
	})
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Equal(t, "2024-06", series[0].Period)
	assert.EqualValues(t, 2, series[0].Invoices)
}

func TestTenantBillingSummaryOutsideRangeIsEmpty(t *testing.T) {
	s := billingstack.New(t, june30)
	svc := service.NewService(service.Params{DB: s.DB, Log: s.Log, TenantSvc: s.Tenants})
	tenant := s.Fixtures.Tenant("mzansi")

	summary, err := svc.TenantBillingSummary(context.Background(), reportdomain.SummaryRequest{
		TenantID: tenant.ID,
		From:     time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC),
		To:       time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Zero(t, summary.InvoiceCount)
	assert.True(t, summary.Billed.IsZero())
	assert.True(t, summary.ARPU.IsZero())
}

func TestTenantBillingSummaryValidation(t *testing.T) {
	s := billingstack.New(t, june30)
	svc := service.NewService(service.Params{DB: s.DB, Log: s.Log, TenantSvc: s.Tenants})
	ctx := context.Background()
	june := time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.TenantBillingSummary(ctx, reportdomain.SummaryRequest{From: june, To: june30})
	assert.ErrorIs(t, err, reportdomain.ErrInvalidTenant)

	_, err = svc.TenantBillingSummary(ctx, reportdomain.SummaryRequest{TenantID: 42, From: june30, To: june})
	assert.ErrorIs(t, err, reportdomain.ErrInvalidRange)

	_, err = svc.TenantBillingSummary(ctx, reportdomain.SummaryRequest{TenantID: 42, From: june, To: june30})
	assert.ErrorIs(t, err, reportdomain.ErrTenantNotFound)
}

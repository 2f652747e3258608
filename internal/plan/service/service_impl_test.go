package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/plan/domain"
	"github.com/smallbiznis/meterbill/internal/plan/repository"
	"github.com/smallbiznis/meterbill/internal/plan/service"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHasMetricIsTenantScoped(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC))
	svc := service.New(service.Params{DB: db, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: repository.Provide()})

	fixtures := testutil.NewFixtures(t, db, node, clk.Now())
	acme := fixtures.Tenant("acme")
	globex := fixtures.Tenant("globex")
	fixtures.Plan(acme.ID, "Starter", "99", testutil.MetricLimit{Metric: "api-calls", Included: 1000, Rate: "0.01"})
	fixtures.Plan(globex.ID, "Messaging", "50", testutil.MetricLimit{Metric: "sms", Included: 10, Rate: "0.5"})
	ctx := context.Background()

	known, err := svc.HasMetric(ctx, acme.ID, "API Calls")
	require.NoError(t, err)
	assert.True(t, known)

	known, err = svc.HasMetric(ctx, acme.ID, "sms")
	require.NoError(t, err)
	assert.False(t, known)

	_, err = svc.HasMetric(ctx, acme.ID, " ")
	assert.ErrorIs(t, err, domain.ErrInvalidMetric)

	_, err = svc.HasMetric(ctx, 0, "sms")
	assert.ErrorIs(t, err, domain.ErrInvalidTenant)
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/testutil"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	usagerepo "github.com/smallbiznis/meterbill/internal/usage/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name    string
		obs     []float64
		want    bool
		average float64
	}{
		{"insufficient data", []float64{10, 100}, false, 0},
		{"steady", []float64{10, 12, 11, 13}, false, 0},
		{"exactly at threshold", []float64{10, 10, 20}, false, 0},
		{"spike", []float64{10, 20, 61}, true, 15},
		{"spike over zero baseline", []float64{0, 0, 1}, true, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Evaluate(tc.obs, 2.0, 3)
			if !tc.want {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.InDelta(t, tc.average, got.Average, 1e-9)
			assert.Equal(t, tc.obs[len(tc.obs)-1], got.Latest)
			assert.Equal(t, len(tc.obs), got.Observations)
		})
	}
}

func TestDetectAnomalyUsesTrailingWindow(t *testing.T) {
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC))

	day := func(d int) time.Time { return time.Date(2024, time.June, d, 0, 0, 0, 0, time.UTC) }
	events := []usagedomain.UsageEvent{
		{ID: node.Generate(), TenantID: 1, UserID: 2, Metric: "api-calls", Quantity: 500, UsageDate: day(1), RecordedAt: clk.Now(), Source: usagedomain.SourceAPI},
		{ID: node.Generate(), TenantID: 1, UserID: 2, Metric: "api-calls", Quantity: 10, UsageDate: day(10), RecordedAt: clk.Now(), Source: usagedomain.SourceAPI},
		{ID: node.Generate(), TenantID: 1, UserID: 2, Metric: "api-calls", Quantity: 14, UsageDate: day(12), RecordedAt: clk.Now(), Source: usagedomain.SourceAPI},
		{ID: node.Generate(), TenantID: 1, UserID: 2, Metric: "api-calls", Quantity: 30, UsageDate: day(15), RecordedAt: clk.Now(), Source: usagedomain.SourceAPI},
	}
	require.NoError(t, db.Create(&events).Error)

	d := NewDetector(DetectorParams{
		DB:      db,
		Clock:   clk,
		Usage:   usagerepo.Provide(),
		Billing: config.NewStaticBillingConfig(config.DefaultBillingConfig()),
	})

	got, err := d.DetectAnomaly(context.Background(), 1, 2, "API Calls")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.InDelta(t, 12, got.Average, 1e-9)
	assert.Equal(t, 30.0, got.Latest)

	strict := config.DefaultBillingConfig()
	strict.Anomaly.Threshold = 3
	d = NewDetector(DetectorParams{DB: db, Clock: clk, Usage: usagerepo.Provide(), Billing: config.NewStaticBillingConfig(strict)})
	got, err = d.DetectAnomaly(context.Background(), 1, 2, "api-calls")
	require.NoError(t, err)
	assert.Nil(t, got)
}

package service

import (
	"testing"

	"github.com/shopspring/decimal"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func limitsFixture() plandomain.Limits {
	return plandomain.Limits{
		PlanName: "Pro",
		FlatFee:  decimal.RequireFromString("500"),
		Metrics: []plandomain.MetricLimit{
			{Metric: "calls", IncludedUnits: 1000, OverageRate: decimal.RequireFromString("0.5")},
			{Metric: "sms", IncludedUnits: 100, OverageRate: decimal.RequireFromString("0.333")},
		},
	}
}

func TestBuildLineItems(t *testing.T) {
	cases := []struct {
		name   string
		limits plandomain.Limits
		usage  map[string]float64
		descs  []string
		total  string
	}{
		{
			name:   "overage on one metric",
			limits: limitsFixture(),
			usage:  map[string]float64{"calls": 1500},
			descs:  []string{"Base Plan: Pro", "Overage: calls"},
			total:  "750",
		},
		{
			name:   "usage within allowance",
			limits: limitsFixture(),
			usage:  map[string]float64{"calls": 1000, "sms": 0},
			descs:  []string{"Base Plan: Pro"},
			total:  "500",
		},
		{
			name:   "fractional rate stays unrounded",
			limits: limitsFixture(),
			usage:  map[string]float64{"sms": 101},
			descs:  []string{"Base Plan: Pro", "Overage: sms"},
			total:  "500.333",
		},
		{
			name:   "free plan without usage keeps the base line",
			limits: plandomain.Limits{PlanName: "Free", FlatFee: decimal.Zero},
			usage:  nil,
			descs:  []string{"Base Plan: Free"},
			total:  "0",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			items, total := buildLineItems(tc.limits, tc.usage)
			descs := make([]string, 0, len(items))
			for _, item := range items {
				descs = append(descs, item.Description)
			}
			assert.Equal(t, tc.descs, descs)
			assert.True(t, decimal.RequireFromString(tc.total).Equal(total), "total %s", total)
		})
	}
}

func TestRoundItemsTotalIsSumOfRoundedLines(t *testing.T) {
	lines, _ := buildLineItems(limitsFixture(), map[string]float64{"calls": 1001, "sms": 101})
	items, total := roundItems(lines)
	require.Len(t, items, 3)

	sum := decimal.Zero
	for i, item := range items {
		assert.Equal(t, i+1, item.Position)
		assert.True(t, item.TotalPrice.Equal(item.TotalPrice.Round(2)))
		sum = sum.Add(item.TotalPrice)
	}
	assert.True(t, sum.Round(2).Equal(total))
	assert.Equal(t, "500.83", total.StringFixed(2))
}

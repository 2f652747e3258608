package service

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/anomaly/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/smallbiznis/meterbill/pkg/metric"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

type DetectorParams struct {
	fx.In

	DB      *gorm.DB
	Clock   clock.Clock
	Usage   usagedomain.Repository
	Billing *config.BillingConfigHolder `optional:"true"`
}

type detector struct {
	db      *gorm.DB
	clock   clock.Clock
	usage   usagedomain.Repository
	billing *config.BillingConfigHolder
}

func NewDetector(p DetectorParams) domain.Detector {
	return &detector{
		db:      p.DB,
		clock:   p.Clock,
		usage:   p.Usage,
		billing: p.Billing,
	}
}

func (d *detector) DetectAnomaly(ctx context.Context, tenantID, userID snowflake.ID, metricName string) (*domain.Anomaly, error) {
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

	cfg := d.billing.Get().Anomaly
	since := clock.Today(d.clock).AddDate(0, 0, -cfg.WindowDays)
	events, err := d.usage.ListEvents(ctx, d.db, tenantID, userID, metricName, since)
	if err != nil {
		return nil, err
	}

	observations := make([]float64, 0, len(events))
	for _, ev := range events {
		observations = append(observations, ev.Quantity)
	}
	return Evaluate(observations, cfg.Threshold, cfg.MinObservations), nil
}

// Evaluate compares the last observation against threshold times the mean of
// the ones before it. Observations must be ordered oldest first.
func Evaluate(observations []float64, threshold float64, minObservations int) *domain.Anomaly {
	if minObservations < 2 {
		minObservations = 2
	}
	if len(observations) < minObservations {
		return nil
	}

	baseline := observations[:len(observations)-1]
	var sum float64
	for _, v := range baseline {
		sum += v
	}
	average := sum / float64(len(baseline))
	latest := observations[len(observations)-1]

	if latest <= threshold*average {
		return nil
	}
	return &domain.Anomaly{
		Average:      average,
		Latest:       latest,
		Threshold:    threshold,
		Observations: len(observations),
	}
}

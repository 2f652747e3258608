package service

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meterbill/internal/clock"
	reportdomain "github.com/smallbiznis/meterbill/internal/report/domain"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	TenantSvc tenantdomain.Service
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	tenantSvc tenantdomain.Service
}

func NewService(p Params) reportdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("report.service"),
		tenantSvc: p.TenantSvc,
	}
}

type invoiceTotals struct {
	Invoices int64
	Billed   decimal.NullDecimal
	Paid     decimal.NullDecimal
}

func (s *Service) TenantBillingSummary(ctx context.Context, req reportdomain.SummaryRequest) (reportdomain.BillingSummary, error) {
	from, until, err := normalizeRange(req)
	if err != nil {
		return reportdomain.BillingSummary{}, err
	}
	tenant, err := s.tenantSvc.GetTenant(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrTenantNotFound) {
			return reportdomain.BillingSummary{}, reportdomain.ErrTenantNotFound
		}
		return reportdomain.BillingSummary{}, err
	}

	var totals invoiceTotals
	err = s.db.WithContext(ctx).Raw(
		`SELECT COUNT(id) AS invoices,
			COALESCE(SUM(total_amount), 0) AS billed,
			COALESCE(SUM(CASE WHEN is_paid THEN total_amount ELSE 0 END), 0) AS paid
		FROM invoices
		WHERE tenant_id = ? AND invoice_date >= ? AND invoice_date < ?`,
		req.TenantID, from, until,
	).Scan(&totals).Error
	if err != nil {
		return reportdomain.BillingSummary{}, err
	}

	active, err := s.activeUsers(ctx, req, from, until)
	if err != nil {
		return reportdomain.BillingSummary{}, err
	}
	window := until.Sub(from)
	churned, err := s.churnedUsers(ctx, req, from.Add(-window), from, until)
	if err != nil {
		return reportdomain.BillingSummary{}, err
	}

	billed := totals.Billed.Decimal.Round(2)
	paid := totals.Paid.Decimal.Round(2)
	arpu := decimal.Zero
	if active > 0 {
		arpu = billed.Div(decimal.NewFromInt(active)).Round(2)
	}

	return reportdomain.BillingSummary{
		TenantID:     tenant.ID,
		TenantName:   tenant.Name,
		From:         from,
		To:           clock.DateOf(req.To),
		InvoiceCount: totals.Invoices,
		Billed:       billed,
		Paid:         paid,
		Outstanding:  billed.Sub(paid),
		ActiveUsers:  active,
		ARPU:         arpu,
		ChurnedUsers: churned,
	}, nil
}

func (s *Service) MonthlyRevenue(ctx context.Context, req reportdomain.SummaryRequest) ([]reportdomain.SeriesPoint, error) {
	from, until, err := normalizeRange(req)
	if err != nil {
		return nil, err
	}

	var rows []struct {
		InvoiceMonth string
		Invoices     int64
		Billed       decimal.NullDecimal
		Paid         decimal.NullDecimal
	}
	err = s.db.WithContext(ctx).Raw(
		`SELECT invoice_month,
			COUNT(id) AS invoices,
			COALESCE(SUM(total_amount), 0) AS billed,
			COALESCE(SUM(CASE WHEN is_paid THEN total_amount ELSE 0 END), 0) AS paid
		FROM invoices
		WHERE tenant_id = ? AND invoice_date >= ? AND invoice_date < ?
		GROUP BY invoice_month
		ORDER BY invoice_month`,
		req.TenantID, from, until,
	).Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	series := make([]reportdomain.SeriesPoint, 0, len(rows))
	for _, row := range rows {
		series = append(series, reportdomain.SeriesPoint{
			Period:   row.InvoiceMonth,
			Invoices: row.Invoices,
			Billed:   row.Billed.Decimal.Round(2),
			Paid:     row.Paid.Decimal.Round(2),
		})
	}
	return series, nil
}

func (s *Service) activeUsers(ctx context.Context, req reportdomain.SummaryRequest, from, until time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(DISTINCT user_id) FROM usage_events
		WHERE tenant_id = ? AND usage_date >= ? AND usage_date < ?`,
		req.TenantID, from, until,
	).Scan(&count).Error
	return count, err
}

func (s *Service) churnedUsers(ctx context.Context, req reportdomain.SummaryRequest, prevFrom, from, until time.Time) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(DISTINCT prev.user_id) FROM usage_events prev
		WHERE prev.tenant_id = ? AND prev.usage_date >= ? AND prev.usage_date < ?
		AND NOT EXISTS (
			SELECT 1 FROM usage_events curr
			WHERE curr.tenant_id = prev.tenant_id AND curr.user_id = prev.user_id
			AND curr.usage_date >= ? AND curr.usage_date < ?
		)`,
		req.TenantID, prevFrom, from, from, until,
	).Scan(&count).Error
	return count, err
}

// normalizeRange turns inclusive calendar days into a half-open instant range.
func normalizeRange(req reportdomain.SummaryRequest) (time.Time, time.Time, error) {
	if req.TenantID == 0 {
		return time.Time{}, time.Time{}, reportdomain.ErrInvalidTenant
	}
	if req.From.IsZero() || req.To.IsZero() {
		return time.Time{}, time.Time{}, reportdomain.ErrInvalidRange
	}
	from := clock.DateOf(req.From)
	to := clock.DateOf(req.To)
	if to.Before(from) {
		return time.Time{}, time.Time{}, reportdomain.ErrInvalidRange
	}
	return from, to.AddDate(0, 0, 1), nil
}

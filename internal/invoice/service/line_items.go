package service

import (
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meterbill/internal/invoice/domain"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
)

// buildLineItems prices a period. Every invoice opens with the base plan
// line, even at a zero fee; metrics within their allowance yield no overage
// line. Totals stay unrounded.
func buildLineItems(limits plandomain.Limits, usage map[string]float64) ([]domain.LineItem, decimal.Decimal) {
	items := make([]domain.LineItem, 0, len(limits.Metrics)+1)
	total := decimal.Zero

	items = append(items, domain.LineItem{
		Description: "Base Plan: " + limits.PlanName,
		Quantity:    1,
		UnitPrice:   limits.FlatFee,
		Total:       limits.FlatFee,
	})
	total = total.Add(limits.FlatFee)

	for _, limit := range limits.Metrics {
		overage := usage[limit.Metric] - limit.IncludedUnits
		if overage <= 0 {
			continue
		}
		cost := decimal.NewFromFloat(overage).Mul(limit.OverageRate)
		items = append(items, domain.LineItem{
			Description: "Overage: " + limit.Metric,
			Metric:      limit.Metric,
			Quantity:    overage,
			UnitPrice:   limit.OverageRate,
			Total:       cost,
		})
		total = total.Add(cost)
	}

	return items, total
}

// roundItems converts proposed lines into persisted items rounded to cents and
// returns the header total as the rounded sum of the rounded lines.
func roundItems(lines []domain.LineItem) ([]domain.InvoiceItem, decimal.Decimal) {
	items := make([]domain.InvoiceItem, 0, len(lines))
	total := decimal.Zero
	for i, line := range lines {
		rounded := line.Total.Round(2)
		items = append(items, domain.InvoiceItem{
			Position:    i + 1,
			Description: line.Description,
			Metric:      line.Metric,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
			TotalPrice:  rounded,
		})
		total = total.Add(rounded)
	}
	return items, total.Round(2)
}

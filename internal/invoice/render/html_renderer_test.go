package render

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderHTML(t *testing.T) {
	day := time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC)
	html, err := NewRenderer().RenderHTML(RenderInput{
		Issuer:         Party{Name: "Acme <Billing>", Email: "billing@acme.test"},
		BillTo:         Party{Name: "Jane", Email: "jane@acme.test"},
		CurrencySymbol: "R",
		Summary: domain.Summary{
			Invoice: domain.Invoice{
				InvoiceNumber: "INV-20240630-000001",
				PeriodStart:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				PeriodEnd:     day,
				InvoiceDate:   day,
				DueDate:       day.AddDate(0, 0, 30),
				TotalAmount:   decimal.RequireFromString("750"),
			},
			Items: []domain.InvoiceItem{
				{Description: "Base Plan: Pro", Quantity: 1, UnitPrice: decimal.RequireFromString("500"), TotalPrice: decimal.RequireFromString("500")},
				{Description: "Overage: calls", Metric: "calls", Quantity: 500, UnitPrice: decimal.RequireFromString("0.5"), TotalPrice: decimal.RequireFromString("250")},
			},
		},
	})
	require.NoError(t, err)

	assert.Contains(t, html, "INV-20240630-000001")
	assert.Contains(t, html, "R 750.00")
	assert.Contains(t, html, "Overage: calls")
	assert.Contains(t, html, "2024-07-30")
	assert.Contains(t, html, "UNPAID")
	assert.Contains(t, html, "Acme &lt;Billing&gt;")
	assert.Contains(t, html, "Plan fees")
	assert.Contains(t, html, "Metered usage")
}

func TestDocumentSplitsFeesFromUsage(t *testing.T) {
	doc := NewDocument(RenderInput{
		Issuer:         Party{Name: "Acme", Phone: "021 555 0100"},
		BillTo:         Party{Name: "Jane"},
		CurrencySymbol: "R",
		Summary: domain.Summary{
			Invoice: domain.Invoice{InvoiceNumber: "INV-1", IsPaid: true, TotalAmount: decimal.RequireFromString("1250.5")},
			Items: []domain.InvoiceItem{
				{Description: "Overage: calls", Metric: "calls", Quantity: 12.5, UnitPrice: decimal.RequireFromString("0.0125"), TotalPrice: decimal.RequireFromString("0.16")},
				{Description: "Base Plan: Pro", Quantity: 1, UnitPrice: decimal.RequireFromString("1250.34"), TotalPrice: decimal.RequireFromString("1250.34")},
			},
		},
	})
	assert.Equal(t, "PAID", doc.Status)
	require.Len(t, doc.Fixed, 1)
	require.Len(t, doc.Metered, 1)
	assert.Equal(t, Line{Description: "Overage: calls", Metric: "calls", Qty: "12.5", UnitPrice: "R 0.0125", Amount: "R 0.16"}, doc.Metered[0])

	data := doc.PDF("Billing Team")
	assert.Equal(t, "Billing Team", data.IssuerName)
	assert.Equal(t, "021 555 0100", data.TenantPhone)
	assert.Equal(t, "R 1,250.50", data.AmountDue)
	require.Len(t, data.Items, 2)
	assert.Equal(t, "Base Plan: Pro", data.Items[0].Description, "plan fees print first")
}

package pdf

import (
	"context"
)

// InvoiceData is an invoice already formatted for print: amounts carry the
// currency symbol and dates are strings.
type InvoiceData struct {
	IssuerName    string
	TenantName    string
	TenantAddress string
	TenantEmail   string
	TenantPhone   string

	InvoiceNumber string
	IssueDate     string
	DueDate       string
	ServicePeriod string

	BillToName  string
	BillToEmail string

	Items []InvoiceItem

	Total     string
	AmountDue string
	Status    string
}

// InvoiceItem is one printed line. Lines with a Metric are usage charges
// and print under their own heading after the fixed fees.
type InvoiceItem struct {
	Description string
	Metric      string
	Qty         string
	UnitPrice   string
	Amount      string
}

func (p *MarotoProvider) GenerateInvoice(ctx context.Context, invoice InvoiceData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := newSheet()
	s.title("Invoice", invoice.Status)
	s.facts(
		"Invoice number", invoice.InvoiceNumber,
		"Date of issue", invoice.IssueDate,
		"Date due", invoice.DueDate,
		"Service period", invoice.ServicePeriod,
	)
	s.parties(invoice)
	s.banner(invoice.AmountDue + " due " + invoice.DueDate)
	s.lines(invoice.Items)
	s.total("Total", invoice.Total)
	s.total("Amount due", invoice.AmountDue)
	return s.bytes()
}

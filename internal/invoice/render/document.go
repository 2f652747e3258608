package render

import (
	"github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/smallbiznis/meterbill/internal/invoice/format"
	"github.com/smallbiznis/meterbill/internal/providers/pdf"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
)

// Party is a name block printed on the invoice.
type Party struct {
	Name    string
	Email   string
	Address string
	Phone   string
}

func TenantParty(tenant tenantdomain.Tenant) Party {
	return Party{Name: tenant.Name, Email: tenant.Email, Address: tenant.Address, Phone: tenant.Phone}
}

func UserParty(user tenantdomain.User) Party {
	return Party{Name: user.Name, Email: user.Email}
}

type RenderInput struct {
	Issuer         Party
	BillTo         Party
	CurrencySymbol string
	Summary        domain.Summary
}

// Line is an invoice item with every value already formatted.
type Line struct {
	Description string
	Metric      string
	Qty         string
	UnitPrice   string
	Amount      string
}

// Document is the printable form of an invoice shared by the HTML and PDF
// outputs. Items with a metric are usage charges; the rest are plan fees.
type Document struct {
	Number    string
	Status    string
	Paid      bool
	IssueDate string
	DueDate   string
	Period    string
	Issuer    Party
	BillTo    Party
	Fixed     []Line
	Metered   []Line
	Total     string
}

func NewDocument(in RenderInput) Document {
	inv := in.Summary.Invoice
	doc := Document{
		Number:    inv.InvoiceNumber,
		Status:    "UNPAID",
		Paid:      inv.IsPaid,
		IssueDate: format.FormatDate(inv.InvoiceDate),
		DueDate:   format.FormatDate(inv.DueDate),
		Period:    format.FormatDate(inv.PeriodStart) + " to " + format.FormatDate(inv.PeriodEnd),
		Issuer:    in.Issuer,
		BillTo:    in.BillTo,
		Total:     format.FormatMoney(in.CurrencySymbol, inv.TotalAmount),
	}
	if inv.IsPaid {
		doc.Status = "PAID"
	}
	for _, item := range in.Summary.Items {
		line := Line{
			Description: item.Description,
			Metric:      item.Metric,
			Qty:         format.FormatQuantity(item.Quantity),
			UnitPrice:   format.FormatUnitPrice(in.CurrencySymbol, item.UnitPrice),
			Amount:      format.FormatMoney(in.CurrencySymbol, item.TotalPrice),
		}
		if item.Metric == "" {
			doc.Fixed = append(doc.Fixed, line)
		} else {
			doc.Metered = append(doc.Metered, line)
		}
	}
	return doc
}

// PDF maps the document onto the pdf provider's input. issuerName is the
// billing team printed above the tenant block.
func (d Document) PDF(issuerName string) pdf.InvoiceData {
	items := make([]pdf.InvoiceItem, 0, len(d.Fixed)+len(d.Metered))
	for _, group := range [][]Line{d.Fixed, d.Metered} {
		for _, l := range group {
			items = append(items, pdf.InvoiceItem(l))
		}
	}
	return pdf.InvoiceData{
		IssuerName:    issuerName,
		TenantName:    d.Issuer.Name,
		TenantAddress: d.Issuer.Address,
		TenantEmail:   d.Issuer.Email,
		TenantPhone:   d.Issuer.Phone,
		InvoiceNumber: d.Number,
		IssueDate:     d.IssueDate,
		DueDate:       d.DueDate,
		ServicePeriod: d.Period,
		BillToName:    d.BillTo.Name,
		BillToEmail:   d.BillTo.Email,
		Items:         items,
		Total:         d.Total,
		AmountDue:     d.Total,
		Status:        d.Status,
	}
}

package pdf

import (
	"context"

	"github.com/smallbiznis/meterbill/internal/audit/masking"
)

// ReceiptData is printed after a payment is verified. AmountDue on the
// embedded invoice is the balance left after this payment.
type ReceiptData struct {
	InvoiceData
	DatePaid   string
	AmountPaid string
	Method     string
	Reference  string
}

func (p *MarotoProvider) GenerateReceipt(ctx context.Context, receipt ReceiptData) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	status := "PARTIALLY PAID"
	if receipt.Status == "PAID" {
		status = "PAID"
	}

	s := newSheet()
	s.title("Receipt", status)
	s.facts(
		"Invoice number", receipt.InvoiceNumber,
		"Date paid", receipt.DatePaid,
		"Payment method", receipt.Method,
		"Reference", masking.MaskSecret(receipt.Reference),
	)
	s.parties(receipt.InvoiceData)
	s.banner(receipt.AmountPaid + " received on " + receipt.DatePaid)
	s.lines(receipt.Items)
	s.total("Invoice total", receipt.Total)
	s.total("Paid", receipt.AmountPaid)
	s.total("Balance", receipt.AmountDue)
	return s.bytes()
}

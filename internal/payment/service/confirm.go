package service

import (
	"context"
	"time"

	"github.com/smallbiznis/meterbill/internal/invoice/format"
	"github.com/smallbiznis/meterbill/internal/invoice/render"
	"github.com/smallbiznis/meterbill/internal/notification"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	"github.com/smallbiznis/meterbill/internal/providers/pdf"
	"go.uber.org/zap"
)

const confirmTimeout = 30 * time.Second

// confirm emails the payer a receipt. Failures are logged only.
func (s *Service) confirm(ctx context.Context, settlement paymentdomain.Settlement) {
	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()

	payment := settlement.Payment
	log := s.log.With(zap.String("payment_id", payment.ID.String()))

	summary, err := s.invoiceSvc.GetSummary(ctx, payment.InvoiceID)
	if err != nil {
		log.Warn("payment.confirm.invoice_lookup_failed", zap.Error(err))
		return
	}
	tenant, err := s.tenantSvc.GetTenant(ctx, payment.TenantID)
	if err != nil {
		log.Warn("payment.confirm.tenant_lookup_failed", zap.Error(err))
		return
	}
	user, err := s.tenantSvc.GetUser(ctx, payment.UserID)
	if err != nil {
		log.Warn("payment.confirm.user_lookup_failed", zap.Error(err))
		return
	}

	cfg := s.billing.Get().Invoice
	symbol := cfg.CurrencySymbol
	invoiceData := render.NewDocument(render.RenderInput{
		Issuer:         render.TenantParty(tenant),
		BillTo:         render.UserParty(user),
		CurrencySymbol: symbol,
		Summary:        summary,
	}).PDF(cfg.IssuerName)
	invoiceData.AmountDue = format.FormatMoney(symbol, settlement.Outstanding)
	invoiceData.Status = "UNPAID"
	if settlement.IsPaid {
		invoiceData.Status = "PAID"
	}

	reference := ""
	if payment.ReceiptRef != nil {
		reference = *payment.ReceiptRef
	}
	receipt, err := s.pdf.GenerateReceipt(ctx, pdf.ReceiptData{
		InvoiceData: invoiceData,
		DatePaid:    format.FormatDate(payment.PaymentDate),
		AmountPaid:  format.FormatMoney(symbol, payment.Amount),
		Method:      string(payment.Method),
		Reference:   reference,
	})
	if err != nil {
		log.Warn("payment.receipt.pdf_failed", zap.Error(err))
		receipt = nil
	}

	_ = s.notifier.SendPaymentConfirmed(ctx, notification.PaymentConfirmed{
		To:            user.Email,
		UserName:      user.Name,
		IssuerName:    cfg.IssuerName,
		InvoiceNumber: summary.Invoice.InvoiceNumber,
		Amount:        format.FormatMoney(symbol, payment.Amount),
		Outstanding:   format.FormatMoney(symbol, settlement.Outstanding),
		FullyPaid:     settlement.IsPaid,
		Receipt:       receipt,
	})
}

package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/smallbiznis/meterbill/internal/invoice/format"
	"github.com/smallbiznis/meterbill/internal/invoice/render"
	"github.com/smallbiznis/meterbill/internal/notification"
	"github.com/smallbiznis/meterbill/internal/providers/pdf"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"go.uber.org/zap"
)

const deliveryTimeout = 30 * time.Second

// deliver renders and emails a freshly finalized invoice. Failures are logged.
func (s *Service) deliver(ctx context.Context, user tenantdomain.User, summary invoicedomain.Summary) {
	ctx, cancel := context.WithTimeout(ctx, deliveryTimeout)
	defer cancel()

	log := s.log.With(zap.String("invoice_id", summary.Invoice.ID.String()))

	tenant, err := s.tenantSvc.GetTenant(ctx, summary.Invoice.TenantID)
	if err != nil {
		log.Warn("invoice.delivery.tenant_lookup_failed", zap.Error(err))
		return
	}

	data := s.pdfData(tenant, user, summary)
	doc, err := s.pdf.GenerateInvoice(ctx, data)
	if err != nil {
		log.Warn("invoice.pdf.failed", zap.Error(err))
		doc = nil
	}

	if s.notifier == nil {
		return
	}
	_ = s.notifier.SendInvoiceIssued(ctx, notification.InvoiceIssued{
		To:            user.Email,
		UserName:      user.Name,
		TenantName:    tenant.Name,
		IssuerName:    data.IssuerName,
		InvoiceNumber: summary.Invoice.InvoiceNumber,
		PeriodStart:   format.FormatDate(summary.Invoice.PeriodStart),
		PeriodEnd:     format.FormatDate(summary.Invoice.PeriodEnd),
		DueDate:       data.DueDate,
		Total:         data.Total,
		PDF:           doc,
	})
}

func (s *Service) RenderPDF(ctx context.Context, invoiceID snowflake.ID) ([]byte, error) {
	summary, tenant, user, err := s.loadForRender(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	return s.pdf.GenerateInvoice(ctx, s.pdfData(tenant, user, summary))
}

func (s *Service) RenderHTML(ctx context.Context, invoiceID snowflake.ID) (string, error) {
	if s.renderer == nil {
		return "", invoicedomain.ErrRendererMissing
	}
	summary, tenant, user, err := s.loadForRender(ctx, invoiceID)
	if err != nil {
		return "", err
	}
	return s.renderer.RenderHTML(render.RenderInput{
		Issuer:         render.TenantParty(tenant),
		BillTo:         render.UserParty(user),
		CurrencySymbol: s.billing.Get().Invoice.CurrencySymbol,
		Summary:        summary,
	})
}

func (s *Service) loadForRender(ctx context.Context, invoiceID snowflake.ID) (invoicedomain.Summary, tenantdomain.Tenant, tenantdomain.User, error) {
	summary, err := s.GetSummary(ctx, invoiceID)
	if err != nil {
		return invoicedomain.Summary{}, tenantdomain.Tenant{}, tenantdomain.User{}, err
	}
	tenant, err := s.tenantSvc.GetTenant(ctx, summary.Invoice.TenantID)
	if err != nil {
		return invoicedomain.Summary{}, tenantdomain.Tenant{}, tenantdomain.User{}, err
	}
	user, err := s.tenantSvc.GetUser(ctx, summary.Invoice.UserID)
	if err != nil {
		return invoicedomain.Summary{}, tenantdomain.Tenant{}, tenantdomain.User{}, err
	}
	return summary, tenant, user, nil
}

func (s *Service) pdfData(tenant tenantdomain.Tenant, user tenantdomain.User, summary invoicedomain.Summary) pdf.InvoiceData {
	cfg := s.billing.Get().Invoice
	return render.NewDocument(render.RenderInput{
		Issuer:         render.TenantParty(tenant),
		BillTo:         render.UserParty(user),
		CurrencySymbol: cfg.CurrencySymbol,
		Summary:        summary,
	}).PDF(cfg.IssuerName)
}

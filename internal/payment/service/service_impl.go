package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/smallbiznis/meterbill/internal/notification"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	"github.com/smallbiznis/meterbill/internal/providers/pdf"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	Repo        paymentdomain.Repository
	InvoiceRepo invoicedomain.Repository
	InvoiceSvc  invoicedomain.Service
	TenantSvc   tenantdomain.Service
	Billing     *config.BillingConfigHolder `optional:"true"`
	PDF         pdf.Provider                `optional:"true"`
	Notifier    *notification.Notifier      `optional:"true"`
	ObsMetrics  *obsmetrics.Metrics         `optional:"true"`
	AuditSvc    auditdomain.Service         `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	repo        paymentdomain.Repository
	invoiceRepo invoicedomain.Repository
	invoiceSvc  invoicedomain.Service
	tenantSvc   tenantdomain.Service
	billing     *config.BillingConfigHolder
	pdf         pdf.Provider
	notifier    *notification.Notifier
	obsMetrics  *obsmetrics.Metrics
	auditSvc    auditdomain.Service
}

func NewService(p Params) paymentdomain.Service {
	return newService(p)
}

func newService(p Params) *Service {
	pdfProvider := p.PDF
	if pdfProvider == nil {
		pdfProvider = &pdf.NoOpProvider{}
	}
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("payment.service"),
		genID:       p.GenID,
		clock:       p.Clock,
		repo:        p.Repo,
		invoiceRepo: p.InvoiceRepo,
		invoiceSvc:  p.InvoiceSvc,
		tenantSvc:   p.TenantSvc,
		billing:     p.Billing,
		pdf:         pdfProvider,
		notifier:    p.Notifier,
		obsMetrics:  p.ObsMetrics,
		auditSvc:    p.AuditSvc,
	}
}

func (s *Service) RecordPayment(ctx context.Context, req paymentdomain.RecordPaymentRequest) (paymentdomain.Settlement, error) {
	if req.TenantID == 0 {
		return paymentdomain.Settlement{}, paymentdomain.ErrInvalidTenant
	}
	if req.InvoiceID == 0 {
		return paymentdomain.Settlement{}, paymentdomain.ErrInvalidInvoice
	}
	if req.ActorID == 0 {
		return paymentdomain.Settlement{}, paymentdomain.ErrInvalidVerifier
	}
	amount, method, err := normalizeAmountMethod(req.Amount, req.Method)
	if err != nil {
		return paymentdomain.Settlement{}, err
	}

	now := s.clock.Now().UTC()
	paymentDate := paymentDateOrToday(req.PaymentDate, now)

	var settlement paymentdomain.Settlement
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		invoice, err := s.lockInvoice(ctx, tx, req.TenantID, req.InvoiceID)
		if err != nil {
			return err
		}

		verifier := req.ActorID
		payment := paymentdomain.Payment{
			ID:          s.genID.Generate(),
			TenantID:    invoice.TenantID,
			InvoiceID:   invoice.ID,
			UserID:      invoice.UserID,
			Amount:      amount,
			Method:      method,
			Notes:       strings.TrimSpace(req.Notes),
			ReceiptRef:  optionalString(req.ReceiptRef),
			Status:      paymentdomain.StatusVerified,
			PaymentDate: paymentDate,
			VerifiedAt:  &now,
			VerifiedBy:  &verifier,
			CreatedAt:   now,
		}
		if err := s.repo.Insert(ctx, tx, &payment); err != nil {
			return err
		}

		settlement, err = s.settle(ctx, tx, invoice, payment, now)
		return err
	})
	if err != nil {
		return paymentdomain.Settlement{}, err
	}

	s.afterVerified(ctx, settlement, "payment.recorded")
	return settlement, nil
}

func (s *Service) SubmitReceipt(ctx context.Context, req paymentdomain.SubmitReceiptRequest) (paymentdomain.Payment, error) {
	if req.TenantID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidTenant
	}
	if req.InvoiceID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidInvoice
	}
	if req.UserID == 0 {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidUser
	}
	amount, method, err := normalizeAmountMethod(req.Amount, req.Method)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	receiptRef := optionalString(req.ReceiptRef)
	if receiptRef == nil {
		return paymentdomain.Payment{}, paymentdomain.ErrInvalidReceipt
	}

	now := s.clock.Now().UTC()
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, req.InvoiceID)
	if err != nil {
		return paymentdomain.Payment{}, err
	}
	if invoice == nil || invoice.TenantID != req.TenantID || invoice.UserID != req.UserID {
		return paymentdomain.Payment{}, paymentdomain.ErrInvoiceNotFound
	}

	payment := paymentdomain.Payment{
		ID:          s.genID.Generate(),
		TenantID:    invoice.TenantID,
		InvoiceID:   invoice.ID,
		UserID:      invoice.UserID,
		Amount:      amount,
		Method:      method,
		Notes:       strings.TrimSpace(req.Notes),
		ReceiptRef:  receiptRef,
		Status:      paymentdomain.StatusPending,
		PaymentDate: paymentDateOrToday(req.PaymentDate, now),
		CreatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &payment); err != nil {
		return paymentdomain.Payment{}, err
	}

	s.log.Info("payment.receipt.submitted",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", invoice.ID.String()),
		zap.String("amount", amount.StringFixed(2)),
	)
	s.obsMetrics.RecordPayment(ctx, string(method), string(paymentdomain.StatusPending), amount)
	s.writeAuditLog(ctx, "payment.receipt_submitted", payment, nil)
	return payment, nil
}

func (s *Service) VerifyPayment(ctx context.Context, tenantID, paymentID, verifierID snowflake.ID) (paymentdomain.Settlement, error) {
	if tenantID == 0 {
		return paymentdomain.Settlement{}, paymentdomain.ErrInvalidTenant
	}
	if paymentID == 0 {
		return paymentdomain.Settlement{}, paymentdomain.ErrInvalidPayment
	}
	if verifierID == 0 {
		return paymentdomain.Settlement{}, paymentdomain.ErrInvalidVerifier
	}

	now := s.clock.Now().UTC()
	var settlement paymentdomain.Settlement
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		payment, err := s.repo.FindByIDForUpdate(ctx, tx, paymentID)
		if err != nil {
			return err
		}
		if payment == nil || payment.TenantID != tenantID {
			return paymentdomain.ErrPaymentNotFound
		}
		if payment.Status == paymentdomain.StatusVerified {
			return paymentdomain.ErrAlreadyVerified
		}

		invoice, err := s.lockInvoice(ctx, tx, tenantID, payment.InvoiceID)
		if err != nil {
			return err
		}

		updated, err := s.repo.MarkVerified(ctx, tx, payment.ID, verifierID, now)
		if err != nil {
			return err
		}
		if !updated {
			return paymentdomain.ErrAlreadyVerified
		}
		payment.Status = paymentdomain.StatusVerified
		payment.VerifiedAt = &now
		payment.VerifiedBy = &verifierID

		settlement, err = s.settle(ctx, tx, invoice, *payment, now)
		return err
	})
	if err != nil {
		return paymentdomain.Settlement{}, err
	}

	s.afterVerified(ctx, settlement, "payment.verified")
	return settlement, nil
}

func (s *Service) ListPending(ctx context.Context, tenantID snowflake.ID) ([]paymentdomain.Payment, error) {
	if tenantID == 0 {
		return nil, paymentdomain.ErrInvalidTenant
	}
	return s.repo.ListByStatus(ctx, s.db, tenantID, paymentdomain.StatusPending)
}

func (s *Service) ListForInvoice(ctx context.Context, tenantID, invoiceID snowflake.ID) ([]paymentdomain.Payment, error) {
	if tenantID == 0 {
		return nil, paymentdomain.ErrInvalidTenant
	}
	invoice, err := s.invoiceRepo.FindByID(ctx, s.db, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.TenantID != tenantID {
		return nil, paymentdomain.ErrInvoiceNotFound
	}
	return s.repo.ListByInvoice(ctx, s.db, invoiceID)
}

func (s *Service) lockInvoice(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	invoice, err := s.invoiceRepo.FindByIDForUpdate(ctx, tx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice == nil || invoice.TenantID != tenantID {
		return nil, paymentdomain.ErrInvoiceNotFound
	}
	return invoice, nil
}

// settle recomputes the verified total for a locked invoice and marks it paid
// once covered. A paid invoice is never reverted.
func (s *Service) settle(ctx context.Context, tx *gorm.DB, invoice *invoicedomain.Invoice, payment paymentdomain.Payment, now time.Time) (paymentdomain.Settlement, error) {
	paid, err := s.repo.SumVerified(ctx, tx, invoice.ID)
	if err != nil {
		return paymentdomain.Settlement{}, err
	}

	isPaid := invoice.IsPaid
	if !isPaid && paid.GreaterThanOrEqual(invoice.TotalAmount) {
		if _, err := s.invoiceRepo.MarkPaid(ctx, tx, invoice.ID, now); err != nil {
			return paymentdomain.Settlement{}, err
		}
		isPaid = true
	}

	outstanding := invoice.TotalAmount.Sub(paid)
	if outstanding.IsNegative() {
		outstanding = decimal.Zero
	}
	return paymentdomain.Settlement{
		Payment:     payment,
		TotalPaid:   paid,
		Outstanding: outstanding,
		IsPaid:      isPaid,
	}, nil
}

func (s *Service) afterVerified(ctx context.Context, settlement paymentdomain.Settlement, action string) {
	payment := settlement.Payment
	s.log.Info(action,
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("outstanding", settlement.Outstanding.StringFixed(2)),
		zap.Bool("is_paid", settlement.IsPaid),
	)
	s.obsMetrics.RecordPayment(ctx, string(payment.Method), string(paymentdomain.StatusVerified), payment.Amount)
	s.writeAuditLog(ctx, action, payment, map[string]any{
		"is_paid":     settlement.IsPaid,
		"outstanding": settlement.Outstanding.StringFixed(2),
	})
	s.confirm(context.WithoutCancel(ctx), settlement)
}

func (s *Service) writeAuditLog(ctx context.Context, action string, payment paymentdomain.Payment, extra map[string]any) {
	if s.auditSvc == nil {
		return
	}
	metadata := map[string]any{
		"invoice_id": payment.InvoiceID.String(),
		"user_id":    payment.UserID.String(),
		"amount":     payment.Amount.StringFixed(2),
		"method":     string(payment.Method),
		"status":     string(payment.Status),
	}
	if payment.ReceiptRef != nil {
		metadata["receipt_ref"] = *payment.ReceiptRef
	}
	for key, value := range extra {
		metadata[key] = value
	}

	entry := auditdomain.Entry{
		TenantID:   payment.TenantID,
		Action:     action,
		TargetType: auditdomain.TargetPayment,
		TargetID:   payment.ID.String(),
		Metadata:   metadata,
	}
	if payment.VerifiedBy != nil {
		entry.ActorID = payment.VerifiedBy.String()
	}
	_ = s.auditSvc.Record(ctx, entry)
}

func normalizeAmountMethod(amount decimal.Decimal, method paymentdomain.Method) (decimal.Decimal, paymentdomain.Method, error) {
	if !amount.IsPositive() {
		return decimal.Zero, "", paymentdomain.ErrInvalidAmount
	}
	if !amount.Equal(amount.Round(2)) {
		return decimal.Zero, "", paymentdomain.ErrInvalidAmount
	}
	method = paymentdomain.Method(strings.ToLower(strings.TrimSpace(string(method))))
	if method == "" {
		method = paymentdomain.MethodEFT
	}
	if !method.Valid() {
		return decimal.Zero, "", paymentdomain.ErrInvalidMethod
	}
	return amount, method, nil
}

func paymentDateOrToday(value, now time.Time) time.Time {
	if value.IsZero() {
		return clock.DateOf(now)
	}
	return clock.DateOf(value)
}

func optionalString(value string) *string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

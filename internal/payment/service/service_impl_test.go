package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	auditrepo "github.com/smallbiznis/meterbill/internal/audit/repository"
	auditservice "github.com/smallbiznis/meterbill/internal/audit/service"
	"github.com/smallbiznis/meterbill/internal/payment/domain"
	"github.com/smallbiznis/meterbill/internal/payment/repository"
	"github.com/smallbiznis/meterbill/internal/payment/service"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"github.com/smallbiznis/meterbill/internal/testutil/billingstack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var june30 = time.Date(2024, time.June, 30, 10, 0, 0, 0, time.UTC)

type harness struct {
	stack     *billingstack.Stack
	svc       domain.Service
	audit     auditdomain.Service
	tenant    tenantdomain.Tenant
	user      tenantdomain.User
	admin     tenantdomain.User
	invoiceID snowflake.ID
}

// newHarness finalizes a 650.00 invoice for a client.
func newHarness(t *testing.T) harness {
	t.Helper()
	return newHarnessWithFee(t, "650")
}

func newHarnessWithFee(t *testing.T, fee string) harness {
	t.Helper()
	s := billingstack.New(t, june30)
	ctx := context.Background()

	tenant := s.Fixtures.Tenant("mzansi")
	user := s.Fixtures.User(tenant.ID, "thandi", tenantdomain.RoleClient)
	admin := s.Fixtures.User(tenant.ID, "admin", tenantdomain.RoleAdmin)
	plan := s.Fixtures.Plan(tenant.ID, "Business", fee)
	s.Fixtures.Subscribe(tenant.ID, user.ID, plan.ID, june30.AddDate(0, -2, 0))

	invoiceID, err := s.Invoices.FinalizeInvoice(ctx, tenant.ID, user.ID)
	require.NoError(t, err)

	audit := auditservice.NewService(auditservice.Params{
		DB:    s.DB,
		Log:   s.Log,
		GenID: s.Node,
		Clock: s.Clock,
		Repo:  auditrepo.Provide(),
	})
	svc := service.NewService(service.Params{
		DB:          s.DB,
		Log:         s.Log,
		GenID:       s.Node,
		Clock:       s.Clock,
		Repo:        repository.Provide(),
		InvoiceRepo: s.InvoiceRepo,
		InvoiceSvc:  s.Invoices,
		TenantSvc:   s.Tenants,
		Billing:     s.Billing,
		PDF:         s.PDF,
		Notifier:    s.Notifier,
		AuditSvc:    audit,
	})
	return harness{stack: s, svc: svc, audit: audit, tenant: tenant, user: user, admin: admin, invoiceID: invoiceID}
}

func (h harness) isPaid(t *testing.T) bool {
	t.Helper()
	summary, err := h.stack.Invoices.GetSummary(context.Background(), h.invoiceID)
	require.NoError(t, err)
	return summary.Invoice.IsPaid
}

func (h harness) record(t *testing.T, amount string) domain.Settlement {
	t.Helper()
	settlement, err := h.svc.RecordPayment(context.Background(), domain.RecordPaymentRequest{
		TenantID:  h.tenant.ID,
		InvoiceID: h.invoiceID,
		Amount:    decimal.RequireFromString(amount),
		Method:    domain.MethodEFT,
		ActorID:   h.admin.ID,
	})
	require.NoError(t, err)
	return settlement
}

func TestPartialThenFullPayment(t *testing.T) {
	h := newHarness(t)

	first := h.record(t, "300.00")
	assert.False(t, first.IsPaid)
	assert.Equal(t, "350.00", first.Outstanding.StringFixed(2))
	assert.False(t, h.isPaid(t))

	second := h.record(t, "350.00")
	assert.True(t, second.IsPaid)
	assert.True(t, second.Outstanding.IsZero())
	assert.True(t, h.isPaid(t))

	summary, err := h.stack.Invoices.GetSummary(context.Background(), h.invoiceID)
	require.NoError(t, err)
	require.NotNil(t, summary.Invoice.PaidAt)
}

func TestCentPaymentsSettleExactly(t *testing.T) {
	h := newHarnessWithFee(t, "0.80")

	first := h.record(t, "0.10")
	assert.False(t, first.IsPaid)

	second := h.record(t, "0.70")
	assert.Equal(t, "0.80", second.TotalPaid.StringFixed(2))
	assert.True(t, second.Outstanding.IsZero(), "outstanding %s", second.Outstanding)
	assert.True(t, second.IsPaid)
	assert.True(t, h.isPaid(t))
}

func TestOverpaymentIsAcceptedAndNeverUnpays(t *testing.T) {
	h := newHarness(t)

	settlement := h.record(t, "700.00")
	assert.True(t, settlement.IsPaid)
	assert.True(t, settlement.Outstanding.IsZero())
	assert.Equal(t, "700.00", settlement.TotalPaid.StringFixed(2))

	again := h.record(t, "10.00")
	assert.True(t, again.IsPaid)
	assert.True(t, h.isPaid(t))
}

func TestReceiptCountsOnlyAfterVerification(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending, err := h.svc.SubmitReceipt(ctx, domain.SubmitReceiptRequest{
		TenantID:   h.tenant.ID,
		InvoiceID:  h.invoiceID,
		UserID:     h.user.ID,
		Amount:     decimal.RequireFromString("650.00"),
		ReceiptRef: "BANK-REF-00012345",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, pending.Status)
	assert.Equal(t, domain.MethodEFT, pending.Method)
	assert.False(t, h.isPaid(t))

	queue, err := h.svc.ListPending(ctx, h.tenant.ID)
	require.NoError(t, err)
	require.Len(t, queue, 1)
	assert.Equal(t, pending.ID, queue[0].ID)

	settlement, err := h.svc.VerifyPayment(ctx, h.tenant.ID, pending.ID, h.admin.ID)
	require.NoError(t, err)
	assert.True(t, settlement.IsPaid)
	assert.True(t, h.isPaid(t))

	_, err = h.svc.VerifyPayment(ctx, h.tenant.ID, pending.ID, h.admin.ID)
	assert.ErrorIs(t, err, domain.ErrAlreadyVerified)

	queue, err = h.svc.ListPending(ctx, h.tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, queue)

	payments, err := h.svc.ListForInvoice(ctx, h.tenant.ID, h.invoiceID)
	require.NoError(t, err)
	require.Len(t, payments, 1)
	require.NotNil(t, payments[0].VerifiedBy)
	assert.Equal(t, h.admin.ID, *payments[0].VerifiedBy)
}

func TestVerificationSendsReceipt(t *testing.T) {
	h := newHarness(t)
	before := len(h.stack.Outbox.Messages())

	h.record(t, "650.00")

	messages := h.stack.Outbox.Messages()
	require.Len(t, messages, before+1)
	last := messages[len(messages)-1]
	assert.Equal(t, []string{h.user.Email}, last.To)
	assert.Contains(t, last.Subject, "Payment received")
	require.Len(t, last.Attachments, 1)

	require.NotEmpty(t, h.stack.PDF.Receipts)
	receipt := h.stack.PDF.Receipts[len(h.stack.PDF.Receipts)-1]
	assert.Equal(t, "R 650.00", receipt.AmountPaid)
	assert.Equal(t, "PAID", receipt.Status)
}

func TestAuditTrailMasksReceiptReference(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	pending, err := h.svc.SubmitReceipt(ctx, domain.SubmitReceiptRequest{
		TenantID:   h.tenant.ID,
		InvoiceID:  h.invoiceID,
		UserID:     h.user.ID,
		Amount:     decimal.RequireFromString("100"),
		ReceiptRef: "BANK-REF-00012345",
	})
	require.NoError(t, err)

	resp, err := h.audit.List(ctx, auditdomain.ListAuditLogRequest{TenantID: h.tenant.ID, TargetType: "payment"})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)
	entry := resp.AuditLogs[0]
	assert.Equal(t, "payment.receipt_submitted", entry.Action)
	require.NotNil(t, entry.TargetID)
	assert.Equal(t, pending.ID.String(), *entry.TargetID)
	assert.Equal(t, "****2345", entry.Metadata["receipt_ref"])
}

func TestPaymentValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	otherTenant := h.stack.Fixtures.Tenant("other")
	stranger := h.stack.Fixtures.User(h.tenant.ID, "stranger", tenantdomain.RoleClient)

	cases := []struct {
		name string
		req  domain.RecordPaymentRequest
		want error
	}{
		{
			name: "zero amount",
			req:  domain.RecordPaymentRequest{TenantID: h.tenant.ID, InvoiceID: h.invoiceID, Amount: decimal.Zero, ActorID: h.admin.ID},
			want: domain.ErrInvalidAmount,
		},
		{
			name: "negative amount",
			req:  domain.RecordPaymentRequest{TenantID: h.tenant.ID, InvoiceID: h.invoiceID, Amount: decimal.RequireFromString("-1"), ActorID: h.admin.ID},
			want: domain.ErrInvalidAmount,
		},
		{
			name: "sub-cent amount",
			req:  domain.RecordPaymentRequest{TenantID: h.tenant.ID, InvoiceID: h.invoiceID, Amount: decimal.RequireFromString("1.005"), ActorID: h.admin.ID},
			want: domain.ErrInvalidAmount,
		},
		{
			name: "unknown method",
			req:  domain.RecordPaymentRequest{TenantID: h.tenant.ID, InvoiceID: h.invoiceID, Amount: decimal.RequireFromString("1"), Method: "bitcoin", ActorID: h.admin.ID},
			want: domain.ErrInvalidMethod,
		},
		{
			name: "missing invoice",
			req:  domain.RecordPaymentRequest{TenantID: h.tenant.ID, InvoiceID: h.stack.Node.Generate(), Amount: decimal.RequireFromString("1"), ActorID: h.admin.ID},
			want: domain.ErrInvoiceNotFound,
		},
		{
			name: "invoice of another tenant",
			req:  domain.RecordPaymentRequest{TenantID: otherTenant.ID, InvoiceID: h.invoiceID, Amount: decimal.RequireFromString("1"), ActorID: h.admin.ID},
			want: domain.ErrInvoiceNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.RecordPayment(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	_, err := h.svc.SubmitReceipt(ctx, domain.SubmitReceiptRequest{
		TenantID:   h.tenant.ID,
		InvoiceID:  h.invoiceID,
		UserID:     stranger.ID,
		Amount:     decimal.RequireFromString("1"),
		ReceiptRef: "ref",
	})
	assert.ErrorIs(t, err, domain.ErrInvoiceNotFound)

	_, err = h.svc.SubmitReceipt(ctx, domain.SubmitReceiptRequest{
		TenantID:  h.tenant.ID,
		InvoiceID: h.invoiceID,
		UserID:    h.user.ID,
		Amount:    decimal.RequireFromString("1"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidReceipt)

	_, err = h.svc.VerifyPayment(ctx, h.tenant.ID, h.stack.Node.Generate(), h.admin.ID)
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)
}

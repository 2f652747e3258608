// Package billingstack wires the billing services over an in-memory database
// for tests that span several packages.
package billingstack

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/smallbiznis/meterbill/internal/invoice/render"
	invoicerepo "github.com/smallbiznis/meterbill/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/meterbill/internal/invoice/service"
	"github.com/smallbiznis/meterbill/internal/notification"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	planrepo "github.com/smallbiznis/meterbill/internal/plan/repository"
	planservice "github.com/smallbiznis/meterbill/internal/plan/service"
	"github.com/smallbiznis/meterbill/internal/providers/email"
	"github.com/smallbiznis/meterbill/internal/providers/pdf"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/meterbill/internal/subscription/repository"
	subscriptionservice "github.com/smallbiznis/meterbill/internal/subscription/service"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/meterbill/internal/tenant/repository"
	tenantservice "github.com/smallbiznis/meterbill/internal/tenant/service"
	"github.com/smallbiznis/meterbill/internal/testutil"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	usagerepo "github.com/smallbiznis/meterbill/internal/usage/repository"
	usageservice "github.com/smallbiznis/meterbill/internal/usage/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Stack struct {
	DB       *gorm.DB
	Node     *snowflake.Node
	Clock    *clock.FakeClock
	Log      *zap.Logger
	Billing  *config.BillingConfigHolder
	Fixtures *testutil.Fixtures

	Tenants       tenantdomain.Service
	Plans         plandomain.Service
	Subscriptions subscriptiondomain.Service
	Usage         usagedomain.Service
	InvoiceRepo   invoicedomain.Repository
	Invoices      invoicedomain.Service

	Outbox   *Outbox
	PDF      *FakePDF
	Notifier *notification.Notifier
}

// New builds the stack with the clock pinned at now.
func New(t testing.TB, now time.Time) *Stack {
	t.Helper()

	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(now)
	log := zap.NewNop()
	billing := config.NewStaticBillingConfig(config.DefaultBillingConfig())

	outbox := &Outbox{}
	notifier, err := notification.New(notification.Params{Log: log, Email: outbox})
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	fakePDF := &FakePDF{}

	tenants := tenantservice.New(tenantservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: tenantrepo.Provide()})
	plans := planservice.New(planservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: planrepo.Provide()})
	subscriptions := subscriptionservice.NewService(subscriptionservice.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      subscriptionrepo.Provide(),
		PlanSvc:   plans,
		TenantSvc: tenants,
	})
	usage := usageservice.NewService(usageservice.ServiceParam{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Repo:      usagerepo.Provide(),
		TenantSvc: tenants,
		Catalog:   plans,
	})
	invoiceRepo := invoicerepo.Provide()
	invoices := invoiceservice.NewService(invoiceservice.ServiceParam{
		DB:              db,
		Log:             log,
		GenID:           node,
		Clock:           clk,
		Repo:            invoiceRepo,
		TenantSvc:       tenants,
		PlanSvc:         plans,
		SubscriptionSvc: subscriptions,
		UsageSvc:        usage,
		Renderer:        render.NewRenderer(),
		Billing:         billing,
		PDF:             fakePDF,
		Notifier:        notifier,
	})

	return &Stack{
		DB:            db,
		Node:          node,
		Clock:         clk,
		Log:           log,
		Billing:       billing,
		Fixtures:      testutil.NewFixtures(t, db, node, now),
		Tenants:       tenants,
		Plans:         plans,
		Subscriptions: subscriptions,
		Usage:         usage,
		InvoiceRepo:   invoiceRepo,
		Invoices:      invoices,
		Outbox:        outbox,
		PDF:           fakePDF,
		Notifier:      notifier,
	}
}

// Outbox records every email instead of sending it.
type Outbox struct {
	mu       sync.Mutex
	messages []email.Message
	Err      error
}

func (o *Outbox) Send(_ context.Context, msg email.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.messages = append(o.messages, msg)
	return nil
}

func (o *Outbox) Messages() []email.Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]email.Message(nil), o.messages...)
}

// FakePDF returns a fixed document and remembers what it was asked to render.
type FakePDF struct {
	mu       sync.Mutex
	Invoices []pdf.InvoiceData
	Receipts []pdf.ReceiptData
}

var fakeDocument = []byte("%PDF-1.4 fake")

func (p *FakePDF) GenerateInvoice(_ context.Context, data pdf.InvoiceData) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Invoices = append(p.Invoices, data)
	return fakeDocument, nil
}

func (p *FakePDF) GenerateReceipt(_ context.Context, data pdf.ReceiptData) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Receipts = append(p.Receipts, data)
	return fakeDocument, nil
}

package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/smallbiznis/meterbill/internal/invoice/format"
	"github.com/smallbiznis/meterbill/internal/invoice/render"
	"github.com/smallbiznis/meterbill/internal/notification"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	"github.com/smallbiznis/meterbill/internal/providers/pdf"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB              *gorm.DB
	Log             *zap.Logger
	GenID           *snowflake.Node
	Clock           clock.Clock
	Repo            invoicedomain.Repository
	TenantSvc       tenantdomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
	Renderer        render.Renderer
	Billing         *config.BillingConfigHolder `optional:"true"`
	PDF             pdf.Provider                `optional:"true"`
	Notifier        *notification.Notifier      `optional:"true"`
	Metrics         *obsmetrics.Metrics         `optional:"true"`
	AuditSvc        auditdomain.Service         `optional:"true"`
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
	clock clock.Clock

	repo            invoicedomain.Repository
	tenantSvc       tenantdomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	usageSvc        usagedomain.Service
	renderer        render.Renderer
	billing         *config.BillingConfigHolder
	pdf             pdf.Provider
	notifier        *notification.Notifier
	metrics         *obsmetrics.Metrics
	auditSvc        auditdomain.Service
}

func NewService(p ServiceParam) invoicedomain.Service {
	return newService(p)
}

func newService(p ServiceParam) *Service {
	pdfProvider := p.PDF
	if pdfProvider == nil {
		pdfProvider = &pdf.NoOpProvider{}
	}
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("invoice.service"),
		genID: p.GenID,
		clock: p.Clock,

		repo:            p.Repo,
		tenantSvc:       p.TenantSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usageSvc:        p.UsageSvc,
		renderer:        p.Renderer,
		billing:         p.Billing,
		pdf:             pdfProvider,
		notifier:        p.Notifier,
		metrics:         p.Metrics,
		auditSvc:        p.AuditSvc,
	}
}

func (s *Service) EstimateInvoice(ctx context.Context, tenantID, userID snowflake.ID) (invoicedomain.Estimate, error) {
	if _, err := s.tenantUser(ctx, tenantID, userID); err != nil {
		return invoicedomain.Estimate{}, err
	}
	return s.estimateTx(ctx, s.db, tenantID, userID, clock.Today(s.clock))
}

func (s *Service) estimateTx(ctx context.Context, tx *gorm.DB, tenantID, userID snowflake.ID, today time.Time) (invoicedomain.Estimate, error) {
	sub, err := s.subscriptionSvc.ActiveSubscriptionTx(ctx, tx, tenantID, userID)
	if err != nil {
		return invoicedomain.Estimate{}, err
	}
	limits, err := s.planSvc.ResolveLimitsTx(ctx, tx, sub.PlanID)
	if err != nil {
		return invoicedomain.Estimate{}, err
	}

	start := clock.MonthStart(today)
	usage := make(map[string]float64, len(limits.Metrics))
	for _, limit := range limits.Metrics {
		used, err := s.usageSvc.AggregateUsageTx(ctx, tx, tenantID, userID, limit.Metric, start, today)
		if err != nil {
			return invoicedomain.Estimate{}, err
		}
		usage[limit.Metric] = used
	}

	items, total := buildLineItems(limits, usage)
	return invoicedomain.Estimate{
		TenantID:       tenantID,
		UserID:         userID,
		SubscriptionID: sub.ID,
		PlanID:         limits.PlanID,
		PlanName:       limits.PlanName,
		PeriodStart:    start,
		PeriodEnd:      today,
		Items:          items,
		Total:          total,
	}, nil
}

func (s *Service) FinalizeInvoice(ctx context.Context, tenantID, userID snowflake.ID) (snowflake.ID, error) {
	user, err := s.tenantUser(ctx, tenantID, userID)
	if err != nil {
		return 0, err
	}

	cfg := s.billing.Get().Invoice
	now := s.clock.Now().UTC()
	today := clock.DateOf(now)
	month := clock.PeriodLabel(today)

	var created *invoicedomain.Invoice
	var createdItems []invoicedomain.InvoiceItem
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		estimate, err := s.estimateTx(ctx, tx, tenantID, userID, today)
		if err != nil {
			return err
		}

		existing, err := s.repo.FindByUserMonth(ctx, tx, userID, month)
		if err != nil {
			return err
		}
		if existing != nil {
			return invoicedomain.ErrAlreadyInvoiced
		}
		if len(estimate.Items) == 0 {
			return invoicedomain.ErrNoBillableItems
		}

		if err := s.repo.LockTenant(ctx, tx, tenantID); err != nil {
			return err
		}
		seq, err := s.repo.MaxSeq(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		seq++
		number, err := format.FormatInvoiceNumber(cfg.NumberTemplate, today, seq)
		if err != nil {
			return err
		}

		items, total := roundItems(estimate.Items)
		invoice := invoicedomain.Invoice{
			ID:             s.genID.Generate(),
			TenantID:       tenantID,
			UserID:         userID,
			SubscriptionID: estimate.SubscriptionID,
			PlanID:         estimate.PlanID,
			InvoiceNumber:  number,
			InvoiceSeq:     seq,
			PeriodStart:    estimate.PeriodStart,
			PeriodEnd:      estimate.PeriodEnd,
			InvoiceDate:    today,
			InvoiceMonth:   month,
			DueDate:        today.AddDate(0, 0, cfg.DueDays),
			TotalAmount:    total,
			Metadata: map[string]any{
				"plan_name": estimate.PlanName,
			},
			CreatedAt: now,
		}
		inserted, err := s.repo.Insert(ctx, tx, &invoice)
		if err != nil {
			return err
		}
		if !inserted {
			return invoicedomain.ErrAlreadyInvoiced
		}

		for i := range items {
			items[i].ID = s.genID.Generate()
			items[i].InvoiceID = invoice.ID
		}
		if err := s.repo.InsertItems(ctx, tx, items); err != nil {
			return err
		}

		created = &invoice
		createdItems = items
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.Info("invoice.finalized",
		zap.String("invoice_id", created.ID.String()),
		zap.String("invoice_number", created.InvoiceNumber),
		zap.String("tenant_id", tenantID.String()),
		zap.String("user_id", userID.String()),
		zap.String("total", created.TotalAmount.StringFixed(2)),
	)
	s.metrics.RecordInvoiceFinalized(ctx, tenantID.String(), created.TotalAmount)
	s.emitAudit(ctx, "invoice.finalized", created)
	s.deliver(context.WithoutCancel(ctx), user, invoicedomain.Summary{Invoice: *created, Items: createdItems})

	return created.ID, nil
}

func (s *Service) InvoiceForPeriod(ctx context.Context, userID snowflake.ID, month string) (*invoicedomain.Invoice, error) {
	if userID == 0 {
		return nil, invoicedomain.ErrInvalidUser
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, invoicedomain.ErrInvalidPeriod
	}
	return s.repo.FindByUserMonth(ctx, s.db, userID, month)
}

func (s *Service) GetSummary(ctx context.Context, invoiceID snowflake.ID) (invoicedomain.Summary, error) {
	return s.GetSummaryTx(ctx, s.db, invoiceID)
}

func (s *Service) GetSummaryTx(ctx context.Context, db *gorm.DB, invoiceID snowflake.ID) (invoicedomain.Summary, error) {
	if invoiceID == 0 {
		return invoicedomain.Summary{}, invoicedomain.ErrInvalidInvoice
	}
	invoice, err := s.repo.FindByID(ctx, db, invoiceID)
	if err != nil {
		return invoicedomain.Summary{}, err
	}
	if invoice == nil {
		return invoicedomain.Summary{}, invoicedomain.ErrInvoiceNotFound
	}
	items, err := s.repo.ListItems(ctx, db, invoiceID)
	if err != nil {
		return invoicedomain.Summary{}, err
	}
	return invoicedomain.Summary{Invoice: *invoice, Items: items}, nil
}

func (s *Service) ListInvoices(ctx context.Context, tenantID, userID snowflake.ID) ([]invoicedomain.Invoice, error) {
	if tenantID == 0 {
		return nil, invoicedomain.ErrInvalidTenant
	}
	return s.repo.List(ctx, s.db, invoicedomain.ListFilter{TenantID: tenantID, UserID: userID})
}

func (s *Service) tenantUser(ctx context.Context, tenantID, userID snowflake.ID) (tenantdomain.User, error) {
	if tenantID == 0 {
		return tenantdomain.User{}, invoicedomain.ErrInvalidTenant
	}
	if userID == 0 {
		return tenantdomain.User{}, invoicedomain.ErrInvalidUser
	}
	// A user outside the tenant surfaces as tenantdomain.ErrUserNotFound.
	return s.tenantSvc.GetTenantUser(ctx, tenantID, userID)
}

func (s *Service) emitAudit(ctx context.Context, action string, invoice *invoicedomain.Invoice) {
	if s.auditSvc == nil || invoice == nil {
		return
	}
	metadata := map[string]any{
		"invoice_number": invoice.InvoiceNumber,
		"user_id":        invoice.UserID.String(),
		"invoice_month":  invoice.InvoiceMonth,
		"total_amount":   invoice.TotalAmount.StringFixed(2),
	}
	_ = s.auditSvc.Record(ctx, auditdomain.Entry{
		TenantID:   invoice.TenantID,
		ActorType:  auditdomain.ActorTypeSystem,
		Action:     action,
		TargetType: auditdomain.TargetInvoice,
		TargetID:   invoice.ID.String(),
		Metadata:   metadata,
	})
}

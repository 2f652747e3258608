package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/meterbill/internal/anomaly"
	"github.com/smallbiznis/meterbill/internal/audit"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/authorization"
	"github.com/smallbiznis/meterbill/internal/cache"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/invoice"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	"github.com/smallbiznis/meterbill/internal/notification"
	"github.com/smallbiznis/meterbill/internal/observability"
	obslogger "github.com/smallbiznis/meterbill/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	obstracing "github.com/smallbiznis/meterbill/internal/observability/tracing"
	"github.com/smallbiznis/meterbill/internal/payment"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	"github.com/smallbiznis/meterbill/internal/plan"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	"github.com/smallbiznis/meterbill/internal/providers"
	"github.com/smallbiznis/meterbill/internal/ratelimit"
	"github.com/smallbiznis/meterbill/internal/report"
	reportdomain "github.com/smallbiznis/meterbill/internal/report/domain"
	"github.com/smallbiznis/meterbill/internal/scheduler"
	"github.com/smallbiznis/meterbill/internal/subscription"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	"github.com/smallbiznis/meterbill/internal/tenant"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"github.com/smallbiznis/meterbill/internal/usage"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/smallbiznis/meterbill/internal/usage/importer"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Domain bundles every service the HTTP API depends on.
var Domain = fx.Options(
	authorization.Module,
	audit.Module,
	tenant.Module,
	cache.Module,
	plan.Module,
	subscription.Module,
	usage.Module,
	anomaly.Module,
	providers.Module,
	notification.Module,
	invoice.Module,
	payment.Module,
	report.Module,
	ratelimit.Module,
)

var Module = fx.Module("http.server",
	Domain,
	scheduler.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(RegisterRoutes),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http.server.failed", zap.Error(err))
				}
			}()
			log.Info("http.server.started", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	log             *zap.Logger
	authzSvc        authorization.Service
	auditSvc        auditdomain.Service
	tenantSvc       tenantdomain.Service
	planSvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	usageSvc        usagedomain.Service
	importer        *importer.Importer
	invoiceSvc      invoicedomain.Service
	paymentSvc      paymentdomain.Service
	reportSvc       reportdomain.Service
	scheduler       *scheduler.Scheduler
	usageLimiter    *ratelimit.UsageIngestLimiter
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	Log             *zap.Logger
	AuthzSvc        authorization.Service
	AuditSvc        auditdomain.Service
	TenantSvc       tenantdomain.Service
	PlanSvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	UsageSvc        usagedomain.Service
	Importer        *importer.Importer
	InvoiceSvc      invoicedomain.Service
	PaymentSvc      paymentdomain.Service
	ReportSvc       reportdomain.Service
	Scheduler       *scheduler.Scheduler          `optional:"true"`
	UsageLimiter    *ratelimit.UsageIngestLimiter `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		log:             p.Log.Named("http.server"),
		authzSvc:        p.AuthzSvc,
		auditSvc:        p.AuditSvc,
		tenantSvc:       p.TenantSvc,
		planSvc:         p.PlanSvc,
		subscriptionSvc: p.SubscriptionSvc,
		usageSvc:        p.UsageSvc,
		importer:        p.Importer,
		invoiceSvc:      p.InvoiceSvc,
		paymentSvc:      p.PaymentSvc,
		reportSvc:       p.ReportSvc,
		scheduler:       p.Scheduler,
		usageLimiter:    p.UsageLimiter,
		obsMetrics:      p.ObsMetrics,
	}
}

func RegisterRoutes(s *Server) {
	s.RegisterAPIRoutes()
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) RegisterAPIRoutes() {
	api := s.engine.Group("/api/v1", s.SessionRequired())

	// -------- Tenants --------
	api.POST("/tenants", s.authorize(authorization.ObjectTenant, authorization.ActionTenantManage), s.CreateTenant)
	api.GET("/users", s.authorize(authorization.ObjectTenant, authorization.ActionUserManage), s.ListUsers)
	api.POST("/users", s.authorize(authorization.ObjectTenant, authorization.ActionUserManage), s.CreateUser)

	// -------- Usage --------
	api.POST("/usage", s.authorize(authorization.ObjectUsage, authorization.ActionUsageRecord), s.UsageIngestRateLimit(), s.RecordUsage)
	api.POST("/usage/import", s.authorize(authorization.ObjectUsage, authorization.ActionUsageImport), s.ImportUsage)
	api.GET("/usage/aggregate", s.authorize(authorization.ObjectUsage, authorization.ActionUsageView), s.GetUsageAggregate)

	// -------- Plans --------
	api.GET("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionPlanView), s.ListPlans)
	api.POST("/plans", s.authorize(authorization.ObjectPlan, authorization.ActionPlanManage), s.CreatePlan)
	api.PUT("/plans/:id/limits", s.authorize(authorization.ObjectPlan, authorization.ActionPlanManage), s.SetPlanLimit)
	api.GET("/plans/:id/limits", s.authorize(authorization.ObjectPlan, authorization.ActionPlanView), s.GetPlanLimits)

	// -------- Subscriptions --------
	api.POST("/subscriptions", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionManage), s.Subscribe)
	api.GET("/subscriptions/:user_id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionView), s.GetSubscription)
	api.DELETE("/subscriptions/:user_id", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionManage), s.CancelSubscription)
	api.GET("/subscriptions/:user_id/history", s.authorize(authorization.ObjectSubscription, authorization.ActionSubscriptionManage), s.ListSubscriptionHistory)

	// -------- Invoices --------
	api.GET("/invoices", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.ListInvoices)
	api.GET("/invoices/estimate", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceEstimate), s.EstimateInvoice)
	api.POST("/invoices/finalize", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceFinalize), s.FinalizeInvoice)
	api.GET("/invoices/:id", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoice)
	api.GET("/invoices/:id/pdf", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoicePDF)
	api.GET("/invoices/:id/html", s.authorize(authorization.ObjectInvoice, authorization.ActionInvoiceView), s.GetInvoiceHTML)
	api.GET("/invoices/:id/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListInvoicePayments)

	// -------- Payments --------
	api.POST("/payments", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentRecord), s.RecordPayment)
	api.POST("/payments/receipts", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentSubmitReceipt), s.SubmitReceipt)
	api.POST("/payments/:id/verify", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentVerify), s.VerifyPayment)
	api.GET("/payments/pending", s.authorize(authorization.ObjectPayment, authorization.ActionPaymentView), s.ListPendingPayments)

	// -------- Operations --------
	api.POST("/batch/invoices", s.authorize(authorization.ObjectBatch, authorization.ActionBatchRun), s.RunBatchInvoicing)
	api.GET("/reports/billing", s.authorize(authorization.ObjectReport, authorization.ActionReportView), s.GetBillingReport)
	api.GET("/reports/revenue", s.authorize(authorization.ObjectReport, authorization.ActionReportView), s.GetMonthlyRevenue)
	api.GET("/audit-logs", s.authorize(authorization.ObjectAudit, authorization.ActionAuditView), s.ListAuditLogs)
}

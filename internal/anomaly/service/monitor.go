package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/anomaly/domain"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/notification"
	obsmetrics "github.com/smallbiznis/meterbill/internal/observability/metrics"
	"github.com/smallbiznis/meterbill/internal/providers/slack"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var ErrMonitorStopped = errors.New("monitor_stopped")

type MonitorConfig struct {
	Workers        int
	QueueSize      int
	ProcessTimeout time.Duration
	SlackChannel   string
}

func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Workers:        2,
		QueueSize:      256,
		ProcessTimeout: 10 * time.Second,
	}
}

func MonitorConfigFromApp(cfg config.Config) MonitorConfig {
	out := DefaultMonitorConfig()
	out.SlackChannel = cfg.Slack.AlertChannel
	return out
}

func (c MonitorConfig) withDefaults() MonitorConfig {
	defaults := DefaultMonitorConfig()
	if c.Workers <= 0 {
		c.Workers = defaults.Workers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaults.QueueSize
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = defaults.ProcessTimeout
	}
	return c
}

type MonitorParams struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Clock     clock.Clock
	Detector  domain.Detector
	Repo      domain.Repository
	TenantSvc tenantdomain.Service
	Notifier  *notification.Notifier `optional:"true"`
	Slack     slack.Provider         `optional:"true"`
	Metrics   *obsmetrics.Metrics    `optional:"true"`
	Config    MonitorConfig          `optional:"true"`
}

// Monitor checks new usage for spikes on a pool of background workers.
// Usage recording never waits on it.
type Monitor struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	clock     clock.Clock
	detector  domain.Detector
	repo      domain.Repository
	tenantSvc tenantdomain.Service
	notifier  *notification.Notifier
	slack     slack.Provider
	metrics   *obsmetrics.Metrics
	cfg       MonitorConfig

	queue chan domain.Observation
	mu    sync.RWMutex
	open  bool
	wg    sync.WaitGroup
}

func NewMonitor(p MonitorParams) *Monitor {
	cfg := p.Config.withDefaults()
	return &Monitor{
		db:        p.DB,
		log:       p.Log.Named("anomaly.monitor"),
		genID:     p.GenID,
		clock:     p.Clock,
		detector:  p.Detector,
		repo:      p.Repo,
		tenantSvc: p.TenantSvc,
		notifier:  p.Notifier,
		slack:     p.Slack,
		metrics:   p.Metrics,
		cfg:       cfg,
		queue:     make(chan domain.Observation, cfg.QueueSize),
	}
}

func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return
	}
	m.open = true
	for i := 0; i < m.cfg.Workers; i++ {
		m.wg.Add(1)
		go m.work()
	}
}

// Stop closes the queue and waits for in-flight observations to drain.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	if !m.open {
		m.mu.Unlock()
		return nil
	}
	m.open = false
	close(m.queue)
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Observe implements the usage observer hook.
func (m *Monitor) Observe(_ context.Context, event usagedomain.UsageEvent) {
	_ = m.Dispatch(domain.Observation{
		TenantID:  event.TenantID,
		UserID:    event.UserID,
		Metric:    event.Metric,
		UsageDate: event.UsageDate,
	})
}

// Dispatch enqueues obs without blocking. A full queue drops the observation.
func (m *Monitor) Dispatch(obs domain.Observation) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.open {
		return ErrMonitorStopped
	}
	select {
	case m.queue <- obs:
		return nil
	default:
		m.log.Warn("anomaly.queue.full",
			zap.String("user_id", obs.UserID.String()),
			zap.String("metric", obs.Metric),
		)
		return nil
	}
}

func (m *Monitor) work() {
	defer m.wg.Done()
	for obs := range m.queue {
		ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProcessTimeout)
		if _, err := m.Process(ctx, obs); err != nil {
			m.log.Warn("anomaly.check.failed",
				zap.String("user_id", obs.UserID.String()),
				zap.String("metric", obs.Metric),
				zap.Error(err),
			)
		}
		cancel()
	}
}

// Process runs detection for one observation and raises at most one alert
// per user, metric and usage date.
func (m *Monitor) Process(ctx context.Context, obs domain.Observation) (*domain.Anomaly, error) {
	anomaly, err := m.detector.DetectAnomaly(ctx, obs.TenantID, obs.UserID, obs.Metric)
	if err != nil || anomaly == nil {
		return nil, err
	}

	alert := &domain.Alert{
		ID:        m.genID.Generate(),
		TenantID:  obs.TenantID,
		UserID:    obs.UserID,
		Metric:    obs.Metric,
		UsageDate: clock.DateOf(obs.UsageDate),
		Latest:    anomaly.Latest,
		Average:   anomaly.Average,
		Threshold: anomaly.Threshold,
		CreatedAt: m.clock.Now().UTC(),
	}
	inserted, err := m.repo.InsertAlert(ctx, m.db, alert)
	if err != nil {
		return anomaly, err
	}
	if !inserted {
		return anomaly, nil
	}

	m.log.Info("anomaly.detected",
		zap.String("tenant_id", obs.TenantID.String()),
		zap.String("user_id", obs.UserID.String()),
		zap.String("metric", obs.Metric),
		zap.Float64("latest", anomaly.Latest),
		zap.Float64("average", anomaly.Average),
	)
	if m.metrics != nil {
		m.metrics.RecordAnomaly(ctx, obs.Metric)
	}
	m.notify(ctx, obs, anomaly)
	return anomaly, nil
}

func (m *Monitor) notify(ctx context.Context, obs domain.Observation, anomaly *domain.Anomaly) {
	user, err := m.tenantSvc.GetTenantUser(ctx, obs.TenantID, obs.UserID)
	if err != nil {
		m.log.Warn("anomaly.user.lookup.failed", zap.String("user_id", obs.UserID.String()), zap.Error(err))
		return
	}
	tenant, err := m.tenantSvc.GetTenant(ctx, obs.TenantID)
	if err != nil {
		m.log.Warn("anomaly.tenant.lookup.failed", zap.String("tenant_id", obs.TenantID.String()), zap.Error(err))
		return
	}

	date := clock.DateOf(obs.UsageDate).Format("2006-01-02")
	if m.notifier != nil {
		_ = m.notifier.SendUsageAnomaly(ctx, notification.UsageAnomaly{
			To:         user.Email,
			UserName:   user.Name,
			TenantName: tenant.Name,
			Metric:     obs.Metric,
			Date:       date,
			Latest:     formatQuantity(anomaly.Latest),
			Average:    formatQuantity(anomaly.Average),
			Threshold:  formatQuantity(anomaly.Threshold),
		})
	}

	if m.slack != nil {
		text := slack.UsageSpike{
			Tenant:  tenant.Name,
			User:    user.Name,
			Metric:  obs.Metric,
			Date:    date,
			Latest:  formatQuantity(anomaly.Latest),
			Average: formatQuantity(anomaly.Average),
		}.Text()
		if err := m.slack.PostMessage(ctx, m.cfg.SlackChannel, text); err != nil {
			m.log.Warn("notification.delivery.failed", zap.String("channel", "slack"), zap.Error(err))
			if m.metrics != nil {
				m.metrics.RecordDeliveryFailure(ctx, "slack")
			}
		}
	}
}

func formatQuantity(v float64) string {
	return fmt.Sprintf("%.2f", v)
}

package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/meterbill/internal/anomaly/domain"
	"github.com/smallbiznis/meterbill/internal/anomaly/repository"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/notification"
	"github.com/smallbiznis/meterbill/internal/providers/email"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/meterbill/internal/tenant/repository"
	tenantservice "github.com/smallbiznis/meterbill/internal/tenant/service"
	"github.com/smallbiznis/meterbill/internal/testutil"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDetector struct {
	anomaly *domain.Anomaly
}

func (s stubDetector) DetectAnomaly(context.Context, snowflake.ID, snowflake.ID, string) (*domain.Anomaly, error) {
	return s.anomaly, nil
}

type mailbox struct {
	mu   sync.Mutex
	sent []email.Message
}

func (m *mailbox) Send(_ context.Context, msg email.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailbox) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type slackRecorder struct {
	mu       sync.Mutex
	messages []string
}

func (s *slackRecorder) PostMessage(_ context.Context, _ string, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, message)
	return nil
}

func newTestMonitor(t *testing.T, anomaly *domain.Anomaly) (*Monitor, *mailbox, *slackRecorder, tenantdomain.User) {
	t.Helper()
	db := testutil.OpenDB(t)
	node := testutil.NewNode(t)
	clk := clock.NewFakeClock(time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	fixtures := testutil.NewFixtures(t, db, node, clk.Now())
	tenant := fixtures.Tenant("acme")
	user := fixtures.User(tenant.ID, "alice", tenantdomain.RoleClient)

	box := &mailbox{}
	notifier, err := notification.New(notification.Params{Log: log, Email: box})
	require.NoError(t, err)
	rec := &slackRecorder{}

	m := NewMonitor(MonitorParams{
		DB:        db,
		Log:       log,
		GenID:     node,
		Clock:     clk,
		Detector:  stubDetector{anomaly: anomaly},
		Repo:      repository.Provide(),
		TenantSvc: tenantservice.New(tenantservice.Params{DB: db, Log: log, GenID: node, Clock: clk, Repo: tenantrepo.Provide()}),
		Notifier:  notifier,
		Slack:     rec,
		Config:    MonitorConfig{Workers: 1, QueueSize: 4},
	})
	return m, box, rec, user
}

func TestProcessNotifiesOncePerDay(t *testing.T) {
	m, box, rec, user := newTestMonitor(t, &domain.Anomaly{Average: 12, Latest: 30, Threshold: 2, Observations: 4})
	obs := domain.Observation{
		TenantID:  user.TenantID,
		UserID:    user.ID,
		Metric:    "api-calls",
		UsageDate: time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
	}

	got, err := m.Process(context.Background(), obs)
	require.NoError(t, err)
	require.NotNil(t, got)
	_, err = m.Process(context.Background(), obs)
	require.NoError(t, err)

	assert.Equal(t, 1, box.count())
	assert.Equal(t, []string{user.Email}, box.sent[0].To)
	assert.Len(t, rec.messages, 1)
}

func TestProcessWithoutAnomalyIsSilent(t *testing.T) {
	m, box, rec, user := newTestMonitor(t, nil)

	got, err := m.Process(context.Background(), domain.Observation{TenantID: user.TenantID, UserID: user.ID, Metric: "api-calls"})
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Zero(t, box.count())
	assert.Empty(t, rec.messages)
}

func TestObserveRunsOnWorkers(t *testing.T) {
	m, box, _, user := newTestMonitor(t, &domain.Anomaly{Average: 1, Latest: 5, Threshold: 2, Observations: 3})
	m.Start()

	m.Observe(context.Background(), usagedomain.UsageEvent{
		TenantID:  user.TenantID,
		UserID:    user.ID,
		Metric:    "storage",
		UsageDate: time.Date(2024, time.June, 15, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, m.Stop(context.Background()))

	assert.Equal(t, 1, box.count())
	assert.ErrorIs(t, m.Dispatch(domain.Observation{}), ErrMonitorStopped)
}

func TestDispatchDropsWhenQueueFull(t *testing.T) {
	m, _, _, user := newTestMonitor(t, nil)
	m.mu.Lock()
	m.open = true
	m.mu.Unlock()

	for i := 0; i < 10; i++ {
		require.NoError(t, m.Dispatch(domain.Observation{TenantID: user.TenantID, UserID: user.ID, Metric: "x"}))
	}
	assert.Len(t, m.queue, 4)
}

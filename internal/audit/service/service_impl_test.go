package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/audit/repository"
	"github.com/smallbiznis/meterbill/internal/audit/service"
	"github.com/smallbiznis/meterbill/internal/clock"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"github.com/smallbiznis/meterbill/internal/testutil"
	"github.com/smallbiznis/meterbill/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2024, time.July, 1, 9, 0, 0, 0, time.UTC))
	svc := service.NewService(service.Params{
		DB:    testutil.OpenDB(t),
		Log:   zap.NewNop(),
		GenID: testutil.NewNode(t),
		Clock: clk,
		Repo:  repository.Provide(),
	})
	return svc, clk
}

func TestRecordMasksSecretsAndTakesActorFromContext(t *testing.T) {
	svc, _ := newService(t)
	tenantID := snowflake.ID(42)

	ctx := obscontext.WithActor(context.Background(), "admin", "7")
	ctx = obscontext.WithRequestID(ctx, "req-1")
	require.NoError(t, svc.Record(ctx, auditdomain.Entry{
		TenantID:   tenantID,
		Action:     "payment.verified",
		TargetType: auditdomain.TargetPayment,
		TargetID:   "99",
		Metadata:   map[string]any{"amount": "10.00", "account_number": "62001234567"},
	}))

	resp, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{TenantID: tenantID})
	require.NoError(t, err)
	require.Len(t, resp.AuditLogs, 1)

	entry := resp.AuditLogs[0]
	assert.Equal(t, "admin", entry.ActorType)
	require.NotNil(t, entry.ActorID)
	assert.Equal(t, "7", *entry.ActorID)
	assert.Equal(t, "req-1", entry.Metadata["request_id"])
	assert.Equal(t, "****4567", entry.Metadata["account_number"])
	assert.Equal(t, "10.00", entry.Metadata["amount"])
}

func TestRecordRejectsEmptyOrWildcardAction(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Record(ctx, auditdomain.Entry{TenantID: 1}), auditdomain.ErrInvalidAction)
	assert.ErrorIs(t, svc.Record(ctx, auditdomain.Entry{TenantID: 1, Action: "payment.*"}), auditdomain.ErrInvalidAction)
}

func TestListFiltersByActionPrefixAndPages(t *testing.T) {
	svc, clk := newService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(5)

	for _, action := range []string{"payment.recorded", "invoice.finalized", "payment.verified", "payment.receipt_submitted"} {
		clk.Advance(time.Minute)
		require.NoError(t, svc.Record(ctx, auditdomain.Entry{TenantID: tenantID, Action: action, TargetType: "x"}))
	}
	require.NoError(t, svc.Record(ctx, auditdomain.Entry{TenantID: 6, Action: "payment.recorded"}))

	first, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		TenantID:   tenantID,
		Action:     "payment.*",
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, first.AuditLogs, 2)
	assert.Equal(t, "payment.receipt_submitted", first.AuditLogs[0].Action)
	assert.True(t, first.HasMore)

	second, err := svc.List(ctx, auditdomain.ListAuditLogRequest{
		TenantID:   tenantID,
		Action:     "payment.*",
		Pagination: pagination.Pagination{PageSize: 2, PageToken: first.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, second.AuditLogs, 1)
	assert.Equal(t, "payment.recorded", second.AuditLogs[0].Action)
	assert.False(t, second.HasMore)
}

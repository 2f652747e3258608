package authorization

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	"github.com/smallbiznis/meterbill/internal/session"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	enforcer, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestAuthorizeByRole(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	client := session.Session{TenantID: 1, UserID: 10, Role: tenantdomain.RoleClient}
	admin := session.Session{TenantID: 1, UserID: 11, Role: tenantdomain.RoleAdmin}
	root := session.Session{TenantID: 1, UserID: 12, Role: tenantdomain.RoleSuperAdmin}

	cases := []struct {
		name   string
		sess   session.Session
		object string
		action string
		want   error
	}{
		{"client records usage", client, ObjectUsage, ActionUsageRecord, nil},
		{"client submits receipt", client, ObjectPayment, ActionPaymentSubmitReceipt, nil},
		{"client cannot verify", client, ObjectPayment, ActionPaymentVerify, ErrForbidden},
		{"client cannot finalize", client, ObjectInvoice, ActionInvoiceFinalize, ErrForbidden},
		{"admin finalizes", admin, ObjectInvoice, ActionInvoiceFinalize, nil},
		{"admin cannot run batch", admin, ObjectBatch, ActionBatchRun, ErrForbidden},
		{"superadmin runs batch", root, ObjectBatch, ActionBatchRun, nil},
		{"superadmin records payments", root, ObjectPayment, ActionPaymentRecord, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := svc.Authorize(ctx, tc.sess, tc.object, tc.action); err != tc.want {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestAuthorizeRoleChangeReplacesGrouping(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	admin := session.Session{TenantID: 1, UserID: 20, Role: tenantdomain.RoleAdmin}
	if err := svc.Authorize(ctx, admin, ObjectPayment, ActionPaymentVerify); err != nil {
		t.Fatalf("expected admin to verify payments, got %v", err)
	}

	demoted := admin
	demoted.Role = tenantdomain.RoleClient
	if err := svc.Authorize(ctx, demoted, ObjectPayment, ActionPaymentVerify); err != ErrForbidden {
		t.Fatalf("expected forbidden after demotion, got %v", err)
	}
}

func TestAuthorizeValidatesInput(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	if err := svc.Authorize(ctx, session.Session{}, ObjectUsage, ActionUsageRecord); err != ErrInvalidActor {
		t.Fatalf("expected invalid actor, got %v", err)
	}
	sess := session.Session{TenantID: 1, UserID: 1, Role: tenantdomain.RoleAdmin}
	if err := svc.Authorize(ctx, sess, " ", ActionUsageRecord); err != ErrInvalidObject {
		t.Fatalf("expected invalid object, got %v", err)
	}
	if err := svc.Authorize(ctx, sess, ObjectUsage, ""); err != ErrInvalidAction {
		t.Fatalf("expected invalid action, got %v", err)
	}
}

type recordingAudit struct {
	auditdomain.Service
	entries []auditdomain.Entry
}

func (r *recordingAudit) Record(_ context.Context, e auditdomain.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestAuthorizeAuditsDenials(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	enforcer, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	audits := &recordingAudit{}
	svc := NewService(Params{Log: zap.NewNop(), Enforcer: enforcer, AuditSvc: audits})

	client := session.Session{TenantID: 3, UserID: 30, Role: tenantdomain.RoleClient}
	if err := svc.Authorize(context.Background(), client, ObjectSubscription, ActionSubscriptionView); err != nil {
		t.Fatalf("expected client to view subscriptions, got %v", err)
	}
	if err := svc.Authorize(context.Background(), client, ObjectReport, ActionReportView); err != ErrForbidden {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(audits.entries) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(audits.entries))
	}
	entry := audits.entries[0]
	if entry.Action != "authorization.denied" || entry.TargetType != ObjectReport || entry.Metadata["action"] != ActionReportView {
		t.Fatalf("unexpected audit entry %+v", entry)
	}
}

func TestSeedPoliciesIsIdempotent(t *testing.T) {
	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	first, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("new enforcer: %v", err)
	}
	before, _ := first.GetPolicy()
	second, err := NewEnforcer(db)
	if err != nil {
		t.Fatalf("reload enforcer: %v", err)
	}
	after, _ := second.GetPolicy()
	if len(before) == 0 || len(before) != len(after) {
		t.Fatalf("expected stable policy count, got %d then %d", len(before), len(after))
	}
}

package authorization

import (
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
)

const (
	ObjectUsage        = "usage"
	ObjectPlan         = "plan"
	ObjectSubscription = "subscription"
	ObjectInvoice      = "invoice"
	ObjectPayment      = "payment"
	ObjectBatch        = "batch"
	ObjectReport       = "report"
	ObjectTenant       = "tenant"
	ObjectAudit        = "audit"
)

const (
	ActionUsageRecord = "usage.record"
	ActionUsageImport = "usage.import"
	ActionUsageView   = "usage.view"

	ActionPlanView   = "plan.view"
	ActionPlanManage = "plan.manage"

	ActionSubscriptionView   = "subscription.view"
	ActionSubscriptionManage = "subscription.manage"

	ActionInvoiceView     = "invoice.view"
	ActionInvoiceEstimate = "invoice.estimate"
	ActionInvoiceFinalize = "invoice.finalize"

	ActionPaymentRecord        = "payment.record"
	ActionPaymentSubmitReceipt = "payment.submit_receipt"
	ActionPaymentVerify        = "payment.verify"
	ActionPaymentView          = "payment.view"

	ActionBatchRun = "batch.run"

	ActionReportView = "report.view"

	ActionTenantManage = "tenant.manage"
	ActionUserManage   = "user.manage"

	ActionAuditView = "audit.view"
)

type permission struct{ object, action string }

// Each role inherits everything granted to the roles listed before it.
var roleLadder = []struct {
	role  tenantdomain.Role
	grant []permission
}{
	{tenantdomain.RoleClient, []permission{
		{ObjectUsage, ActionUsageRecord},
		{ObjectUsage, ActionUsageView},
		{ObjectPlan, ActionPlanView},
		{ObjectSubscription, ActionSubscriptionView},
		{ObjectInvoice, ActionInvoiceView},
		{ObjectInvoice, ActionInvoiceEstimate},
		{ObjectPayment, ActionPaymentSubmitReceipt},
	}},
	{tenantdomain.RoleAdmin, []permission{
		{ObjectUsage, ActionUsageImport},
		{ObjectPlan, ActionPlanManage},
		{ObjectSubscription, ActionSubscriptionManage},
		{ObjectInvoice, ActionInvoiceFinalize},
		{ObjectPayment, ActionPaymentRecord},
		{ObjectPayment, ActionPaymentVerify},
		{ObjectPayment, ActionPaymentView},
		{ObjectReport, ActionReportView},
		{ObjectAudit, ActionAuditView},
		{ObjectTenant, ActionUserManage},
	}},
	{tenantdomain.RoleSuperAdmin, []permission{
		{ObjectBatch, ActionBatchRun},
		{ObjectTenant, ActionTenantManage},
	}},
}

// seedPolicies adds the missing role grants. Policies already stored are
// left alone so operators can extend them in the casbin_rule table.
func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	var inherited []permission
	for _, step := range roleLadder {
		inherited = append(inherited, step.grant...)
		subject := roleSubject(step.role)

		rules := make([][]string, 0, len(inherited))
		for _, p := range inherited {
			has, err := enforcer.HasPolicy(subject, p.object, p.action)
			if err != nil {
				return err
			}
			if !has {
				rules = append(rules, []string{subject, p.object, p.action})
			}
		}
		if len(rules) == 0 {
			continue
		}
		if _, err := enforcer.AddPolicies(rules); err != nil {
			return fmt.Errorf("seed %s policies: %w", step.role, err)
		}
	}
	return nil
}

func roleSubject(role tenantdomain.Role) string {
	return "role:" + strings.ToLower(string(role))
}

func userSubject(id fmt.Stringer) string  { return "user:" + id.String() }
func tenantDomain(id fmt.Stringer) string { return "tenant:" + id.String() }

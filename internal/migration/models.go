package migration

import (
	anomalydomain "github.com/smallbiznis/meterbill/internal/anomaly/domain"
	auditdomain "github.com/smallbiznis/meterbill/internal/audit/domain"
	invoicedomain "github.com/smallbiznis/meterbill/internal/invoice/domain"
	paymentdomain "github.com/smallbiznis/meterbill/internal/payment/domain"
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	subscriptiondomain "github.com/smallbiznis/meterbill/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/meterbill/internal/tenant/domain"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
)

// Models lists every persisted model in dependency order.
func Models() []any {
	return []any{
		&tenantdomain.Tenant{},
		&tenantdomain.User{},
		&plandomain.Plan{},
		&plandomain.MetricLimit{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.Audit{},
		&usagedomain.UsageEvent{},
		&usagedomain.UsageAggregate{},
		&anomalydomain.Alert{},
		&invoicedomain.Invoice{},
		&invoicedomain.InvoiceItem{},
		&paymentdomain.Payment{},
		&auditdomain.AuditLog{},
	}
}

package main

import (
	"github.com/smallbiznis/meterbill/internal/audit"
	"github.com/smallbiznis/meterbill/internal/cache"
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/idgen"
	"github.com/smallbiznis/meterbill/internal/invoice"
	"github.com/smallbiznis/meterbill/internal/notification"
	"github.com/smallbiznis/meterbill/internal/observability"
	"github.com/smallbiznis/meterbill/internal/plan"
	"github.com/smallbiznis/meterbill/internal/providers"
	"github.com/smallbiznis/meterbill/internal/ratelimit"
	"github.com/smallbiznis/meterbill/internal/scheduler"
	"github.com/smallbiznis/meterbill/internal/subscription"
	"github.com/smallbiznis/meterbill/internal/tenant"
	"github.com/smallbiznis/meterbill/internal/usage"
	"github.com/smallbiznis/meterbill/internal/usage/reconcile"
	"github.com/smallbiznis/meterbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		idgen.Module(2),
		db.Module,
		clock.Module,

		// Domain services required by batch invoicing
		tenant.Module,
		cache.Module,
		plan.Module,
		subscription.Module,
		usage.Module,
		audit.Module,
		providers.Module,
		notification.Module,
		invoice.Module,
		ratelimit.Module,

		// No server module
		scheduler.Module,
		scheduler.Runner,
		reconcile.Module,
	)
	app.Run()
}

package main

import (
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/idgen"
	"github.com/smallbiznis/meterbill/internal/migration"
	"github.com/smallbiznis/meterbill/internal/observability"
	"github.com/smallbiznis/meterbill/internal/scheduler"
	"github.com/smallbiznis/meterbill/internal/seed"
	"github.com/smallbiznis/meterbill/internal/server"
	"github.com/smallbiznis/meterbill/internal/usage/reconcile"
	"github.com/smallbiznis/meterbill/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		idgen.Module(1),
		db.Module,
		clock.Module,

		// Schema first so every later invoke sees the tables.
		migration.Module,
		server.Module,
		seed.Module,
		scheduler.Runner,
		reconcile.Module,
	)
	app.Run()
}

package main

import (
	"github.com/smallbiznis/meterbill/internal/clock"
	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/idgen"
	"github.com/smallbiznis/meterbill/internal/observability"
	"github.com/smallbiznis/meterbill/internal/server"
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

		server.Module,
	)
	app.Run()
}

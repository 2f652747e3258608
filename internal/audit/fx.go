package audit

import (
	"github.com/smallbiznis/meterbill/internal/audit/repository"
	"github.com/smallbiznis/meterbill/internal/audit/service"
	"go.uber.org/fx"
)

// Module records invoice, payment, plan and subscription changes.
var Module = fx.Module("audit",
	fx.Provide(repository.Provide, service.NewService),
)

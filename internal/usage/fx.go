package usage

import (
	plandomain "github.com/smallbiznis/meterbill/internal/plan/domain"
	"github.com/smallbiznis/meterbill/internal/usage/domain"
	"github.com/smallbiznis/meterbill/internal/usage/importer"
	"github.com/smallbiznis/meterbill/internal/usage/repository"
	"github.com/smallbiznis/meterbill/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(func(plans plandomain.Service) domain.MetricCatalog { return plans }),
	fx.Provide(service.NewService),
	fx.Provide(importer.New),
)

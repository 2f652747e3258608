package anomaly

import (
	"context"

	"github.com/smallbiznis/meterbill/internal/anomaly/repository"
	"github.com/smallbiznis/meterbill/internal/anomaly/service"
	usagedomain "github.com/smallbiznis/meterbill/internal/usage/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("anomaly.monitor",
	fx.Provide(repository.Provide),
	fx.Provide(service.MonitorConfigFromApp),
	fx.Provide(service.NewDetector),
	fx.Provide(service.NewMonitor),
	fx.Provide(asObserver),
	fx.Invoke(runMonitor),
)

func asObserver(m *service.Monitor) usagedomain.Observer {
	return m
}

func runMonitor(lc fx.Lifecycle, m *service.Monitor) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			m.Start()
			return nil
		},
		OnStop: m.Stop,
	})
}

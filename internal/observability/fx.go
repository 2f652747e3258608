package observability

import (
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	"github.com/smallbiznis/meterbill/internal/observability/metrics"
	"github.com/smallbiznis/meterbill/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		Config.Logger,
		Config.Tracing,
		Config.Metrics,
		logger.New,
		tracing.NewProvider,
		metrics.NewProvider,
		metrics.New,
		metrics.SchedulerWithConfig,
	),
	// The tracer provider has no consumers that ask for it by type.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)

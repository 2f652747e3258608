package observability

import (
	"strings"

	"github.com/smallbiznis/meterbill/internal/config"
	"github.com/smallbiznis/meterbill/internal/observability/logger"
	"github.com/smallbiznis/meterbill/internal/observability/metrics"
	"github.com/smallbiznis/meterbill/internal/observability/tracing"
)

// Config is the slice of application config the telemetry stack needs.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	Telemetry    config.TelemetryConfig
	OTLPEndpoint string
}

func LoadConfig(cfg config.Config) Config {
	name := strings.TrimSpace(cfg.AppName)
	if name == "" {
		name = "meterbill"
	}
	return Config{
		ServiceName:  name,
		Environment:  strings.TrimSpace(cfg.Environment),
		Version:      strings.TrimSpace(cfg.AppVersion),
		Telemetry:    cfg.Telemetry,
		OTLPEndpoint: strings.TrimSpace(cfg.OTLPEndpoint),
	}
}

// Debug turns on verbose request logs and stack traces outside production.
func (c Config) Debug() bool {
	if c.Telemetry.LogLevel == "debug" {
		return true
	}
	switch strings.ToLower(c.Environment) {
	case "dev", "development", "local", "test":
		return true
	}
	return false
}

func (c Config) Logger() logger.Config {
	return logger.Config{
		ServiceName:         c.ServiceName,
		Environment:         c.Environment,
		Version:             c.Version,
		Level:               c.Telemetry.LogLevel,
		Format:              c.Telemetry.LogFormat,
		Debug:               c.Debug(),
		IncludeCaller:       true,
		IncludeStackOnError: c.Debug(),
	}
}

func (c Config) Tracing() tracing.Config {
	return tracing.Config{
		Enabled:          c.Telemetry.OtelEnabled,
		ServiceName:      c.ServiceName,
		ServiceVersion:   c.Version,
		Environment:      c.Environment,
		ExporterEndpoint: c.OTLPEndpoint,
		ExporterProtocol: c.Telemetry.OtelProtocol,
		SamplingRatio:    c.Telemetry.SamplingRatio,
	}
}

func (c Config) Metrics() metrics.Config {
	return metrics.Config{
		Enabled:          c.Telemetry.OtelEnabled,
		ExporterEndpoint: c.OTLPEndpoint,
		ExporterProtocol: c.Telemetry.OtelProtocol,
		ServiceName:      c.ServiceName,
		Environment:      c.Environment,
	}
}

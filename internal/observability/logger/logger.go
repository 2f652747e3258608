package logger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/meterbill/internal/audit/masking"
	obscontext "github.com/smallbiznis/meterbill/internal/observability/context"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Messages with these prefixes record money or billing state changes and
// bypass sampling.
var unsampledPrefixes = []string{"invoice.", "payment.", "scheduler.batch.", "db.ledger."}

type Config struct {
	ServiceName string
	Environment string
	Version     string
	Level       string
	Format      string
	Debug       bool

	// Per second: the first SampleFirst entries of a message are kept, then one in SampleEvery.
	SampleFirst         int
	SampleEvery         int
	IncludeCaller       bool
	IncludeStackOnError bool
}

// New builds the process logger, installs it as the zap global and flushes
// it when the app stops.
func New(lc fx.Lifecycle, cfg Config) (*zap.Logger, error) {
	level := zap.NewAtomicLevel()
	name := strings.TrimSpace(cfg.Level)
	if name == "" {
		name = "info"
	}
	if err := level.UnmarshalText([]byte(name)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", name, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	var enc zapcore.Encoder
	if normalizeFormat(cfg.Format) == "console" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		enc = zapcore.NewConsoleEncoder(encCfg)
	} else {
		enc = zapcore.NewJSONEncoder(encCfg)
	}

	sink, closeSink, err := zap.Open("stdout")
	if err != nil {
		return nil, err
	}
	errSink, _, err := zap.Open("stderr")
	if err != nil {
		closeSink()
		return nil, err
	}

	core := newBillingCore(zapcore.NewCore(enc, sink, level), cfg.SampleFirst, cfg.SampleEvery)

	opts := []zap.Option{zap.ErrorOutput(errSink)}
	if cfg.IncludeCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.IncludeStackOnError {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	service := strings.TrimSpace(cfg.ServiceName)
	if service == "" {
		service = "meterbill"
	}
	log := zap.New(core, opts...).With(
		zap.String("service", service),
		zap.String("env", strings.TrimSpace(cfg.Environment)),
		zap.String("version", strings.TrimSpace(cfg.Version)),
	)
	zap.ReplaceGlobals(log)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(context.Context) error {
				_ = log.Sync()
				closeSink()
				return nil
			},
		})
	}
	return log, nil
}

// newBillingCore masks sensitive fields and samples chatty messages while
// passing ledger events through untouched.
func newBillingCore(core zapcore.Core, first, every int) zapcore.Core {
	if first <= 0 {
		first = 100
	}
	if every <= 0 {
		every = 100
	}
	return &billingCore{
		full:    redactingCore{core},
		sampled: zapcore.NewSamplerWithOptions(redactingCore{core}, time.Second, first, every),
	}
}

type billingCore struct {
	full    zapcore.Core
	sampled zapcore.Core
}

func (c *billingCore) Enabled(l zapcore.Level) bool { return c.full.Enabled(l) }

func (c *billingCore) With(fields []zapcore.Field) zapcore.Core {
	return &billingCore{full: c.full.With(fields), sampled: c.sampled.With(fields)}
}

func (c *billingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if e.Level >= zapcore.WarnLevel || isLedgerMessage(e.Message) {
		return c.full.Check(e, ce)
	}
	return c.sampled.Check(e, ce)
}

func (c *billingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.full.Write(e, fields)
}

func (c *billingCore) Sync() error { return c.full.Sync() }

func isLedgerMessage(msg string) bool {
	for _, prefix := range unsampledPrefixes {
		if strings.HasPrefix(msg, prefix) {
			return true
		}
	}
	return false
}

// redactingCore masks string fields whose key is a known secret, the same
// keys the audit trail masks.
type redactingCore struct {
	zapcore.Core
}

func (c redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return redactingCore{c.Core.With(redactFields(fields))}
}

func (c redactingCore) Check(e zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(e.Level) {
		return ce.AddCore(e, c)
	}
	return ce
}

func (c redactingCore) Write(e zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(e, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if f.Type != zapcore.StringType || !masking.IsSensitive(f.Key) {
			continue
		}
		if out == nil {
			out = append([]zapcore.Field(nil), fields...)
		}
		out[i] = zap.String(f.Key, masking.Mask(f.Key, f.String))
	}
	if out == nil {
		return fields
	}
	return out
}

func normalizeFormat(format string) string {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		return "console"
	}
	return "json"
}

// FromContext is the global logger carrying the request's correlation fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext adds request, tenant, actor and trace ids found in ctx.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if ctx == nil {
		return base
	}
	var fields []zap.Field
	if id := obscontext.RequestIDFromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if tenantID := obscontext.TenantIDFromContext(ctx); tenantID != "" {
		fields = append(fields, zap.String("tenant_id", tenantID))
	}
	if role, actorID := obscontext.ActorFromContext(ctx); actorID != "" {
		fields = append(fields, zap.String("actor_role", role), zap.String("actor_id", actorID))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

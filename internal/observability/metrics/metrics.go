package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics holds the billing counters exported over OTLP. A nil *Metrics is
// valid and records nothing, so services take it as an optional dependency.
type Metrics struct {
	usageEvents      metric.Int64Counter
	usageQuantity    metric.Float64Counter
	invoices         metric.Int64Counter
	invoicedAmount   metric.Float64Counter
	payments         metric.Int64Counter
	settledAmount    metric.Float64Counter
	anomalies        metric.Int64Counter
	deliveryFailures metric.Int64Counter
	rateLimited      metric.Int64Counter
}

// NewProvider installs the global meter provider. With telemetry disabled it
// installs a no-op provider so instruments stay cheap.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(15*time.Second))),
	)
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{OnStop: provider.Shutdown})
	}
	if log != nil {
		log.Info("metrics.exporter.ready",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}
	return provider, nil
}

func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	scope := strings.TrimSpace(cfg.ServiceName)
	if scope == "" {
		scope = "meterbill"
	}
	b := builder{meter: provider.Meter(scope)}

	m := &Metrics{
		usageEvents:      b.count("meterbill_usage_recorded_total", "Usage events accepted into the ledger."),
		usageQuantity:    b.sum("meterbill_usage_quantity_total", "Sum of recorded usage quantities.", "{unit}"),
		invoices:         b.count("meterbill_invoices_finalized_total", "Invoices finalized."),
		invoicedAmount:   b.sum("meterbill_invoiced_amount_total", "Invoice totals at finalization.", "{currency}"),
		payments:         b.count("meterbill_payments_recorded_total", "Payments by method and status."),
		settledAmount:    b.sum("meterbill_settled_amount_total", "Verified payment amounts.", "{currency}"),
		anomalies:        b.count("meterbill_usage_anomalies_total", "Usage spikes flagged by the monitor."),
		deliveryFailures: b.count("meterbill_notification_failures_total", "Notifications that could not be delivered."),
		rateLimited:      b.count("meterbill_rate_limit_denied_total", "Requests rejected by the ingest rate limit."),
	}
	if b.err != nil {
		return nil, b.err
	}
	return m, nil
}

// builder collects the first instrument error so New reads as a table.
type builder struct {
	meter metric.Meter
	err   error
}

func (b *builder) count(name, desc string) metric.Int64Counter {
	c, err := b.meter.Int64Counter(name, metric.WithDescription(desc))
	b.err = errors.Join(b.err, err)
	return c
}

func (b *builder) sum(name, desc, unit string) metric.Float64Counter {
	c, err := b.meter.Float64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	b.err = errors.Join(b.err, err)
	return c
}

func (m *Metrics) RecordUsage(ctx context.Context, metricName, source string, quantity float64) {
	if m == nil {
		return
	}
	opt := withLabels("metric", metricName, "source", source)
	m.usageEvents.Add(ctx, 1, opt)
	m.usageQuantity.Add(ctx, quantity, opt)
}

func (m *Metrics) RecordInvoiceFinalized(ctx context.Context, tenantID string, total decimal.Decimal) {
	if m == nil {
		return
	}
	opt := withLabels("tenant_id", tenantID)
	m.invoices.Add(ctx, 1, opt)
	m.invoicedAmount.Add(ctx, total.InexactFloat64(), opt)
}

// RecordPayment counts a payment; only verified amounts add to the settled sum.
func (m *Metrics) RecordPayment(ctx context.Context, method, status string, amount decimal.Decimal) {
	if m == nil {
		return
	}
	opt := withLabels("method", method, "status", status)
	m.payments.Add(ctx, 1, opt)
	if status == "verified" {
		m.settledAmount.Add(ctx, amount.InexactFloat64(), withLabels("method", method))
	}
}

func (m *Metrics) RecordAnomaly(ctx context.Context, metricName string) {
	if m == nil {
		return
	}
	m.anomalies.Add(ctx, 1, withLabels("metric", metricName))
}

func (m *Metrics) RecordDeliveryFailure(ctx context.Context, channel string) {
	if m == nil {
		return
	}
	m.deliveryFailures.Add(ctx, 1, withLabels("channel", channel))
}

func (m *Metrics) RecordRateLimitDenied(ctx context.Context, tenantID, endpoint string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, withLabels("tenant_id", tenantID, "endpoint", endpoint))
}

// withLabels takes key/value pairs and keeps only allowed keys.
func withLabels(kv ...string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], strings.TrimSpace(kv[i+1])))
	}
	return metric.WithAttributes(FilterAttributes(attrs...)...)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	ctx := context.Background()
	switch p := strings.ToLower(strings.TrimSpace(protocol)); p {
	case "http", "http/protobuf":
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	case "", "grpc", "grpc/protobuf":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", p)
	}
}

// User, invoice and payment ids never become labels.
var allowedLabelKeys = map[attribute.Key]struct{}{
	"tenant_id": {},
	"endpoint":  {},
	"metric":    {},
	"source":    {},
	"method":    {},
	"status":    {},
	"channel":   {},
}

func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; ok && attr.Value.AsString() != "" {
			filtered = append(filtered, attr)
		}
	}
	return filtered
}

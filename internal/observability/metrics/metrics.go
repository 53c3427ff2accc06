package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

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

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	paymentIntents  metric.Int64Counter
	webhookOutcomes metric.Int64Counter
	fulfillments    metric.Int64Counter
	quotaDecisions  metric.Int64Counter
	rateLimitDenied metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
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

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "listingboost"
	}
	meter := provider.Meter(name)

	paymentIntents, err := meter.Int64Counter("listingboost_payment_intents_total")
	if err != nil {
		return nil, err
	}
	webhookOutcomes, err := meter.Int64Counter("listingboost_webhook_callbacks_total")
	if err != nil {
		return nil, err
	}
	fulfillments, err := meter.Int64Counter("listingboost_fulfillments_total")
	if err != nil {
		return nil, err
	}
	quotaDecisions, err := meter.Int64Counter("listingboost_quota_decisions_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("listingboost_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		paymentIntents:  paymentIntents,
		webhookOutcomes: webhookOutcomes,
		fulfillments:    fulfillments,
		quotaDecisions:  quotaDecisions,
		rateLimitDenied: rateLimitDenied,
	}, nil
}

// RecordPaymentIntent counts intent creation attempts by package type and outcome.
func (m *Metrics) RecordPaymentIntent(ctx context.Context, packageType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("package_type", strings.TrimSpace(packageType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.paymentIntents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordWebhook counts gateway callbacks by provider and outcome.
func (m *Metrics) RecordWebhook(ctx context.Context, provider, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("provider", strings.TrimSpace(provider)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.webhookOutcomes.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *Metrics) RecordFulfillment(ctx context.Context, packageType, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("package_type", strings.TrimSpace(packageType)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.fulfillments.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQuotaDecision counts checkAndConsume results.
func (m *Metrics) RecordQuotaDecision(ctx context.Context, quotaType string, allowed bool) {
	if m == nil {
		return
	}
	outcome := "denied"
	if allowed {
		outcome = "allowed"
	}
	attrs := FilterAttributes(
		attribute.String("quota_type", strings.TrimSpace(quotaType)),
		attribute.String("outcome", outcome),
	)
	m.quotaDecisions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"provider":     {},
	"package_type": {},
	"quota_type":   {},
	"outcome":      {},
	"endpoint":     {},
	"status_code":  {},
	"reason":       {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}

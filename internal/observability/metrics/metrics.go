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

// Metrics exposes application-level instruments for the coupon ledger.
type Metrics struct {
	minted         metric.Int64Counter
	uses           metric.Int64Counter
	recycled       metric.Int64Counter
	authorizations metric.Int64Counter
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
		name = "couponvault"
	}
	meter := provider.Meter(name)

	minted, err := meter.Int64Counter("coupons_minted_total",
		metric.WithDescription("Coupons issued by the ledger."))
	if err != nil {
		return nil, err
	}
	uses, err := meter.Int64Counter("coupon_uses_total",
		metric.WithDescription("Successful coupon redemptions."))
	if err != nil {
		return nil, err
	}
	recycled, err := meter.Int64Counter("coupons_recycled_total",
		metric.WithDescription("Coupons retired to the retirement holder."))
	if err != nil {
		return nil, err
	}
	authorizations, err := meter.Int64Counter("merchant_authorizations_total",
		metric.WithDescription("Merchant principal authorizations."))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		minted:         minted,
		uses:           uses,
		recycled:       recycled,
		authorizations: authorizations,
	}, nil
}

func (m *Metrics) RecordMint(ctx context.Context, couponType string) {
	if m == nil || m.minted == nil {
		return
	}
	m.minted.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon_type", couponType)))
}

func (m *Metrics) RecordUse(ctx context.Context, couponType string) {
	if m == nil || m.uses == nil {
		return
	}
	m.uses.Add(ctx, 1, metric.WithAttributes(attribute.String("coupon_type", couponType)))
}

func (m *Metrics) RecordRecycle(ctx context.Context) {
	if m == nil || m.recycled == nil {
		return
	}
	m.recycled.Add(ctx, 1)
}

func (m *Metrics) RecordAuthorization(ctx context.Context) {
	if m == nil || m.authorizations == nil {
		return
	}
	m.authorizations.Add(ctx, 1)
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter protocol %q", protocol)
	}
}

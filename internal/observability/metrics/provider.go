package metrics

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/quoteflow/internal/observability/otlp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const pushInterval = 15 * time.Second

// Config configures OTLP metric export and the labels every instrument
// carries.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// NewProvider installs the global meter provider: a periodic OTLP push when
// export is enabled, a no-op provider otherwise.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	protocol, err := otlp.ParseProtocol(cfg.ExporterProtocol)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	endpoint := strings.TrimSpace(cfg.ExporterEndpoint)

	exporter, err := dialExporter(ctx, protocol, endpoint)
	if err != nil {
		return nil, err
	}
	res, err := otlp.Resource(ctx, otlp.Service{Name: cfg.ServiceName, Environment: cfg.Environment})
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(pushInterval))),
	)
	otel.SetMeterProvider(provider)
	if lc != nil {
		lc.Append(fx.StopHook(provider.Shutdown))
	}

	log.Info("otel.metrics.enabled",
		zap.String("endpoint", endpoint),
		zap.String("protocol", string(protocol)),
		zap.Duration("interval", pushInterval),
	)
	return provider, nil
}

func dialExporter(ctx context.Context, protocol otlp.Protocol, endpoint string) (sdkmetric.Exporter, error) {
	if protocol == otlp.HTTP {
		var opts []otlpmetrichttp.Option
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(ctx, opts...)
	}
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
	if endpoint != "" {
		opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

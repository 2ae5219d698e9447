package otelcol

import (
	"context"

	"edgegate/pkg/config"
	"edgegate/pkg/otelcol/exporters"

	"go.opentelemetry.io/otel"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module installs a global OTLP trace pipeline when a collector address is
// configured. Without one the default no-op provider stays in place and
// span lookups in the services remain cheap no-ops.
var Module = fx.Module("otelcol", fx.Invoke(setupTracing))

func setupTracing(lc fx.Lifecycle, cfg *config.Config) error {
	if cfg.Otel.Addr == "" {
		return nil
	}

	provide := exporters.ProvideGrpc
	if cfg.Otel.Protocol == "http" {
		provide = exporters.ProvideHttp
	}
	exporter, err := provide(cfg)
	if err != nil {
		return err
	}

	provider := ProvideTrace(exporter)
	otel.SetTracerProvider(provider)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := provider.Shutdown(ctx); err != nil {
				zap.L().Warn("trace provider shutdown", zap.Error(err))
			}
			return nil
		},
	})

	return nil
}

package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"edgegate/pkg/config"
	"edgegate/pkg/db"
	"edgegate/pkg/dns"
	"edgegate/pkg/health"
	"edgegate/pkg/logger"
	"edgegate/pkg/otelcol"
	"edgegate/pkg/profiling"
	"edgegate/pkg/redis"
	"edgegate/pkg/server"
	"edgegate/services/apikey"
	"edgegate/services/bootstrap"
	"edgegate/services/domain"
	"edgegate/services/edge"
	"edgegate/services/resolver"
	"edgegate/services/session"
	"edgegate/services/tenant"
)

func main() {
	opts := []fx.Option{
		config.Module,
		logger.Module,
		profiling.Module,
		otelcol.Module,
		db.Module,
		redis.Module,
		dns.Module,
		fx.Provide(
			provideTracerProvider,
			provideMeterProvider,
			provideSnowflakeNode,
		),
		server.ProvideHTTPServer,
		session.Module,
		tenant.Module,
		resolver.Module,
		// edge installs the middleware chain and must precede the modules
		// that register routes.
		edge.Module,
		domain.Module,
		apikey.Module,
		health.Module,
		bootstrap.Module,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})

func provideTracerProvider() trace.TracerProvider {
	return otel.GetTracerProvider()
}

func provideMeterProvider() metric.MeterProvider {
	return otel.GetMeterProvider()
}

func provideSnowflakeNode() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

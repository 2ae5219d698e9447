package domain

import (
	"go.uber.org/fx"
)

var Module = fx.Module("domain.module",
	fx.Provide(
		NewService,
		NewHandler,
	),
	fx.Invoke(registerRoutes),
)

package edge

import (
	"edgegate/pkg/middleware"
	"edgegate/services/apikey"
	"edgegate/services/resolver"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
)

// Module installs the gateway's middleware chain. It must be wired before
// the route-owning modules: gin routes capture the handler chain at
// registration time, so anything Use()d afterwards never runs for them.
var Module = fx.Module("edge.module",
	fx.Provide(
		provideResolver,
		NewRouter,
		NewAdminGuard,
	),
	fx.Invoke(installMiddleware),
)

type middlewareParams struct {
	fx.In
	Engine *gin.Engine
	Router *Router
	Admin  *AdminGuard
	Keys   *apikey.Middleware
}

// installMiddleware wires the request pipeline. Error rendering sits
// outermost so it sees errors from everything inside; host rewriting runs
// before the admin guard so custom-domain requests are already on their
// canonical paths when guarded.
func installMiddleware(p middlewareParams) {
	p.Engine.Use(middleware.Error())
	p.Engine.Use(p.Router.Handler())
	p.Engine.Use(p.Admin.Handler())
	p.Engine.Use(p.Keys.Handler())
}

// provideResolver adapts the concrete cache to the router's dependency.
func provideResolver(cache *resolver.Cache) BindingResolver {
	return cache
}

package edge

import (
	"context"
	"net"
	"strings"

	"edgegate/pkg/config"
	"edgegate/services/domain"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	// ContextTenantHost and ContextTenantSlug expose the routing decision to
	// downstream handlers.
	ContextTenantHost = "tenant_host"
	ContextTenantSlug = "tenant_slug"

	// HeaderTenantHost and HeaderTenantSlug mirror the decision onto the
	// request so upstream tenant apps can see which custom domain was hit.
	// They are set only by the router itself; inbound values are stripped.
	HeaderTenantHost = "X-Tenant-Host"
	HeaderTenantSlug = "X-Tenant-Slug"
)

// rewriteKey marks a re-dispatched request on its context. gin's
// HandleContext resets c.Keys, so the marker rides on the request context,
// which clients cannot supply.
type rewriteKey struct{}

type rewriteState struct {
	host string
	slug string
}

// BindingResolver answers whether a hostname maps to a verified tenant.
type BindingResolver interface {
	Resolve(ctx context.Context, hostname string) (*domain.Binding, error)
}

// Router rewrites requests that arrive on verified custom domains onto the
// tenant's canonical path space.
type Router struct {
	cfg      *config.Config
	resolver BindingResolver
	engine   *gin.Engine
}

func NewRouter(cfg *config.Config, resolver BindingResolver, engine *gin.Engine) *Router {
	return &Router{cfg: cfg, resolver: resolver, engine: engine}
}

// Handler resolves the request host and, when it belongs to a tenant,
// rewrites the URL path under the tenant base path and re-dispatches the
// request so route matching sees the rewritten path. Primary hosts and
// unresolved hosts pass through untouched, so a misconfigured or expired
// domain degrades to the platform's default routing instead of an error.
func (r *Router) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Second pass after a rewrite: surface the identity and move on.
		if state, ok := c.Request.Context().Value(rewriteKey{}).(rewriteState); ok {
			c.Set(ContextTenantHost, state.host)
			c.Set(ContextTenantSlug, state.slug)
			c.Next()
			return
		}

		// Tenant identity headers are gateway-owned; never trust inbound ones.
		c.Request.Header.Del(HeaderTenantHost)
		c.Request.Header.Del(HeaderTenantSlug)

		host := requestHostname(c.Request.Host)
		if host == "" || r.cfg.Gateway.IsPrimaryHost(host) {
			c.Next()
			return
		}

		binding, err := r.resolver.Resolve(c.Request.Context(), host)
		if err != nil {
			zap.L().Warn("custom domain lookup failed",
				zap.String("hostname", host),
				zap.Error(err),
			)
			c.Next()
			return
		}

		if binding == nil {
			c.Next()
			return
		}

		c.Request.URL.Path = r.rewritePath(binding.TenantSlug, c.Request.URL.Path)
		c.Request.Header.Set(HeaderTenantHost, binding.Hostname)
		c.Request.Header.Set(HeaderTenantSlug, binding.TenantSlug)
		c.Request = c.Request.WithContext(context.WithValue(
			c.Request.Context(),
			rewriteKey{},
			rewriteState{host: binding.Hostname, slug: binding.TenantSlug},
		))

		r.engine.HandleContext(c)
		c.Abort()
	}
}

func (r *Router) rewritePath(slug, path string) string {
	base := strings.TrimSuffix(r.cfg.Gateway.TenantBasePath, "/")
	if path == "" || path == "/" {
		return base + "/" + slug
	}
	return base + "/" + slug + path
}

// requestHostname strips an optional port from the Host header.
func requestHostname(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSuffix(host, "."))
}

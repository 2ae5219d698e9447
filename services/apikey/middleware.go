package apikey

import (
	"net/http"
	"strings"

	"edgegate/pkg/errutil"
	"edgegate/services/session"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderAPIKey is the dedicated key header, preferred over bearer auth.
	HeaderAPIKey = "x-api-key"

	// ContextKeyID and ContextTenantID are the request-scoped identity
	// fields business routes read after authentication.
	ContextKeyID    = "api_key_id"
	ContextTenantID = "api_tenant_id"
)

// bypassPaths are served without touching the authenticator at all.
var bypassPaths = map[string]struct{}{
	"/healthz": {},
	"/readyz":  {},
	"/docs":    {},
	"/openapi": {},
}

// Middleware attaches tenant identity to requests presenting an opaque API
// key. Requests without a recognizable key pass through unauthenticated;
// structured session tokens are left for session auth downstream.
type Middleware struct {
	svc *Service
}

func NewMiddleware(svc *Service) *Middleware {
	return &Middleware{svc: svc}
}

func (m *Middleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		if _, ok := bypassPaths[c.Request.URL.Path]; ok {
			c.Next()
			return
		}

		presented := extractKey(c)
		if presented == "" {
			c.Next()
			return
		}

		record, err := m.svc.Authenticate(c.Request.Context(), presented)
		if err != nil {
			c.Error(errutil.Unauthorized("invalid api key", err))
			c.Abort()
			return
		}

		c.Set(ContextKeyID, record.ID)
		c.Set(ContextTenantID, record.TenantID)
		c.Next()
	}
}

// extractKey prefers the dedicated header; a bearer value is only treated
// as an API key when it does not look like a three-segment session token.
func extractKey(c *gin.Context) string {
	if key := c.GetHeader(HeaderAPIKey); key != "" {
		return key
	}

	auth := c.GetHeader("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}

	token := strings.TrimPrefix(auth, "Bearer ")
	if session.LooksLikeSessionToken(token) {
		return ""
	}

	return token
}

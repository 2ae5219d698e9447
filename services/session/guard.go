package session

import (
	"strings"

	"edgegate/pkg/config"
	"edgegate/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// FallbackCookieName is used when the backend does not configure a session
// cookie name.
const FallbackCookieName = "session"

// Guard authorizes API requests from a session token. The admin-portal
// redirect flow lives in services/edge; this type only answers questions.
type Guard struct {
	validator Validator
	cfg       *config.Config
}

func NewGuard(validator Validator, cfg *config.Config) *Guard {
	return &Guard{validator: validator, cfg: cfg}
}

// CookieName returns the configured session cookie name, or the fallback.
func (g *Guard) CookieName() string {
	if g.cfg.Session.Name != "" {
		return g.cfg.Session.Name
	}
	return FallbackCookieName
}

// TokenFromRequest extracts a session token from the session cookie, or
// from a bearer header when the value is a structured session token.
// Opaque bearer values belong to the API key authenticator, not to us.
func (g *Guard) TokenFromRequest(c *gin.Context) string {
	if cookie, err := c.Cookie(g.CookieName()); err == nil && cookie != "" {
		return cookie
	}

	auth := c.GetHeader("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		token := strings.TrimPrefix(auth, "Bearer ")
		if LooksLikeSessionToken(token) {
			return token
		}
	}

	return ""
}

// AuthorizeAccount validates the request's session and checks that the
// caller may act on accountID: either a platform admin, or a session bound
// to that same account.
func (g *Guard) AuthorizeAccount(c *gin.Context, accountID string) (*Claims, error) {
	token := g.TokenFromRequest(c)
	if token == "" {
		return nil, errutil.Unauthorized("session required", nil)
	}

	claims, err := g.validator.ValidateSession(c.Request.Context(), token)
	if err != nil {
		return nil, errutil.Unauthorized("invalid session", err)
	}

	if IsPlatformAdmin(claims, g.cfg.Gateway.BootstrapAdminEmails) {
		return claims, nil
	}

	if owned, ok := claims.Claims["account_id"].(string); ok && owned != "" && owned == accountID {
		return claims, nil
	}

	return nil, errutil.Forbidden("not authorized for this account", nil)
}

package edge

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"edgegate/pkg/config"
	"edgegate/services/session"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// AdminErrorParam carries the failure reason on the login redirect.
const AdminErrorParam = "adminError"

const (
	adminErrNoSession      = "no_session"
	adminErrInvalidSession = "invalid_session"
	adminErrForbidden      = "forbidden"
	adminErrInternal       = "internal_error"
)

// AdminGuard fences the admin portal path space behind a platform-admin
// session. Failures never render an error page; they bounce the browser to
// the login path with a machine-readable reason and the originally
// requested path preserved in `next`.
type AdminGuard struct {
	cfg       *config.Config
	validator session.Validator
	guard     *session.Guard
}

func NewAdminGuard(cfg *config.Config, validator session.Validator, guard *session.Guard) *AdminGuard {
	return &AdminGuard{cfg: cfg, validator: validator, guard: guard}
}

func (a *AdminGuard) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.guards(c.Request.URL.Path) {
			c.Next()
			return
		}

		token := a.guard.TokenFromRequest(c)
		if token == "" {
			a.redirect(c, adminErrNoSession)
			return
		}

		claims, err := a.validator.ValidateSession(c.Request.Context(), token)
		if err != nil {
			reason := adminErrInvalidSession
			if !errors.Is(err, session.ErrInvalidSession) {
				zap.L().Error("admin session validation failed", zap.Error(err))
				reason = adminErrInternal
			}
			a.redirect(c, reason)
			return
		}

		if !session.IsPlatformAdmin(claims, a.cfg.Gateway.BootstrapAdminEmails) {
			a.redirect(c, adminErrForbidden)
			return
		}

		c.Next()
	}
}

// guards reports whether the path belongs to the protected admin surface.
// The login path itself stays open or nobody could sign in.
func (a *AdminGuard) guards(path string) bool {
	gw := a.cfg.Gateway
	if !gw.AdminEnabled {
		return false
	}
	if path == gw.AdminLoginPath || strings.HasPrefix(path, gw.AdminLoginPath+"/") {
		return false
	}
	return path == gw.AdminBasePath || strings.HasPrefix(path, gw.AdminBasePath+"/")
}

func (a *AdminGuard) redirect(c *gin.Context, reason string) {
	target := a.cfg.Gateway.AdminLoginPath +
		"?" + AdminErrorParam + "=" + reason +
		"&next=" + url.QueryEscape(c.Request.URL.RequestURI())
	c.Redirect(http.StatusFound, target)
	c.Abort()
}

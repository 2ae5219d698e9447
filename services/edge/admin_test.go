package edge

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"edgegate/pkg/config"
	"edgegate/services/session"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminTestSecret = "admin-test-secret"

func adminConfig(enabled bool) *config.Config {
	cfg := &config.Config{}
	cfg.Session.Secret = adminTestSecret
	cfg.Gateway.AdminEnabled = enabled
	cfg.Gateway.BootstrapAdminEmails = []string{"root@example.com"}
	cfg.Gateway.Normalize()
	return cfg
}

func newAdminEngine(cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()

	validator := session.NewValidator(cfg)
	guard := session.NewGuard(validator, cfg)
	engine.Use(NewAdminGuard(cfg, validator, guard).Handler())

	engine.GET("/admin/dashboard", func(c *gin.Context) { c.String(http.StatusOK, "dashboard") })
	engine.GET("/admin/login", func(c *gin.Context) { c.String(http.StatusOK, "login") })
	engine.GET("/public", func(c *gin.Context) { c.String(http.StatusOK, "public") })

	return engine
}

func adminToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	claims["exp"] = time.Now().Add(time.Hour).Unix()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(adminTestSecret))
	require.NoError(t, err)
	return token
}

func adminGet(engine *gin.Engine, path, cookie string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if cookie != "" {
		req.AddCookie(&http.Cookie{Name: session.FallbackCookieName, Value: cookie})
	}
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestAdminRedirectsWithoutSession(t *testing.T) {
	engine := newAdminEngine(adminConfig(true))

	rec := adminGet(engine, "/admin/dashboard", "")
	assert.Equal(t, http.StatusFound, rec.Code)

	location := rec.Header().Get("Location")
	assert.Contains(t, location, "/admin/login?")
	assert.Contains(t, location, "adminError=no_session")
	assert.Contains(t, location, "next=%2Fadmin%2Fdashboard")
}

func TestAdminRedirectsOnInvalidSession(t *testing.T) {
	engine := newAdminEngine(adminConfig(true))

	rec := adminGet(engine, "/admin/dashboard", "not-a-real-token")
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "adminError=invalid_session")
}

func TestAdminRedirectsNonAdmins(t *testing.T) {
	engine := newAdminEngine(adminConfig(true))

	token := adminToken(t, jwt.MapClaims{"sub": "usr_1", "email": "user@example.com"})

	rec := adminGet(engine, "/admin/dashboard", token)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Location"), "adminError=forbidden")
}

func TestAdminAllowsPlatformAdmin(t *testing.T) {
	engine := newAdminEngine(adminConfig(true))

	token := adminToken(t, jwt.MapClaims{"sub": "usr_root", "email": "root@example.com"})

	rec := adminGet(engine, "/admin/dashboard", token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "dashboard", rec.Body.String())
}

func TestAdminLoginPathStaysOpen(t *testing.T) {
	engine := newAdminEngine(adminConfig(true))

	rec := adminGet(engine, "/admin/login", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "login", rec.Body.String())
}

func TestAdminGuardIgnoresOtherPaths(t *testing.T) {
	engine := newAdminEngine(adminConfig(true))

	rec := adminGet(engine, "/public", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminGuardDisabled(t *testing.T) {
	engine := newAdminEngine(adminConfig(false))

	rec := adminGet(engine, "/admin/dashboard", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

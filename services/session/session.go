package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"edgegate/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
)

// ErrInvalidSession is returned for tokens that fail signature, structure or
// expiry checks.
var ErrInvalidSession = errors.New("invalid session")

// Claims is the identity resolved from a validated session token.
type Claims struct {
	UserID string
	Email  string
	Claims map[string]any
}

// Validator resolves a session token into account claims. Backed by the
// account store's signing secret; swapped for a stub in tests.
type Validator interface {
	ValidateSession(ctx context.Context, token string) (*Claims, error)
}

var Module = fx.Module("session", fx.Provide(NewValidator, NewGuard))

type jwtValidator struct {
	secret []byte
}

func NewValidator(cfg *config.Config) Validator {
	return &jwtValidator{secret: []byte(cfg.Session.Secret)}
}

func (v *jwtValidator) ValidateSession(_ context.Context, token string) (*Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidSession
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidSession
	}

	claims := &Claims{Claims: map[string]any(mapClaims)}
	if sub, err := mapClaims.GetSubject(); err == nil {
		claims.UserID = sub
	}
	if email, ok := mapClaims["email"].(string); ok {
		claims.Email = email
	}

	return claims, nil
}

// AdminFlag normalizes the legacy platform-admin encodings (boolean, string
// "true"/"1", numeric 1) into a strict boolean.
func AdminFlag(value any) bool {
	switch v := value.(type) {
	case bool:
		return v
	case string:
		return v == "true" || v == "1"
	case float64:
		return v == 1
	case int:
		return v == 1
	case int64:
		return v == 1
	default:
		return false
	}
}

// IsPlatformAdmin checks the admin claim, a structured role list, and the
// bootstrap email allow-list, in that order.
func IsPlatformAdmin(claims *Claims, bootstrapEmails []string) bool {
	if claims == nil {
		return false
	}

	if v, ok := claims.Claims["platform_admin"]; ok && AdminFlag(v) {
		return true
	}

	if roles, ok := claims.Claims["roles"].([]any); ok {
		for _, role := range roles {
			if s, ok := role.(string); ok && s == "platform_admin" {
				return true
			}
		}
	}

	for _, email := range bootstrapEmails {
		if claims.Email != "" && strings.EqualFold(claims.Email, email) {
			return true
		}
	}

	return false
}

// LooksLikeSessionToken reports whether a bearer value is a structured
// three-segment token rather than an opaque API key.
func LooksLikeSessionToken(token string) bool {
	return strings.Count(token, ".") == 2
}

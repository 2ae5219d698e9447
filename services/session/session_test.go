package session

import (
	"context"
	"testing"
	"time"

	"edgegate/pkg/config"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-session-secret"

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

func testValidator() Validator {
	cfg := &config.Config{}
	cfg.Session.Secret = testSecret
	return NewValidator(cfg)
}

func TestValidateSessionRoundTrip(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub":   "usr_1",
		"email": "owner@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	})

	claims, err := testValidator().ValidateSession(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "usr_1", claims.UserID)
	assert.Equal(t, "owner@example.com", claims.Email)
}

func TestValidateSessionRejectsBadSignature(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "usr_1"}).
		SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	_, err = testValidator().ValidateSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestValidateSessionRejectsExpired(t *testing.T) {
	token := signToken(t, jwt.MapClaims{
		"sub": "usr_1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	_, err := testValidator().ValidateSession(context.Background(), token)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAdminFlagEncodings(t *testing.T) {
	cases := []struct {
		in   any
		want bool
	}{
		{true, true},
		{false, false},
		{"true", true},
		{"1", true},
		{"yes", false},
		{float64(1), true},
		{float64(0), false},
		{int(1), true},
		{int64(1), true},
		{nil, false},
		{[]string{"true"}, false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, AdminFlag(tc.in), "%v", tc.in)
	}
}

func TestIsPlatformAdmin(t *testing.T) {
	assert.False(t, IsPlatformAdmin(nil, nil))

	assert.True(t, IsPlatformAdmin(&Claims{
		Claims: map[string]any{"platform_admin": "1"},
	}, nil))

	assert.True(t, IsPlatformAdmin(&Claims{
		Claims: map[string]any{"roles": []any{"viewer", "platform_admin"}},
	}, nil))

	assert.True(t, IsPlatformAdmin(&Claims{
		Email:  "Root@Example.com",
		Claims: map[string]any{},
	}, []string{"root@example.com"}))

	assert.False(t, IsPlatformAdmin(&Claims{
		Email:  "user@example.com",
		Claims: map[string]any{"roles": []any{"viewer"}},
	}, []string{"root@example.com"}))
}

func TestLooksLikeSessionToken(t *testing.T) {
	assert.True(t, LooksLikeSessionToken("aaa.bbb.ccc"))
	assert.False(t, LooksLikeSessionToken("sk_live_abcdef"))
	assert.False(t, LooksLikeSessionToken("aaa.bbb"))
	assert.False(t, LooksLikeSessionToken("a.b.c.d"))
}

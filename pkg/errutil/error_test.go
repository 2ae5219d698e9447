package errutil

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromErrorPassesThroughBaseError(t *testing.T) {
	err := NotFound("domain not found", nil)

	base := FromError(err)
	assert.Equal(t, StatusNotFound, base.Code)
	assert.Equal(t, "domain not found", base.Message)
}

func TestFromErrorWrapsUnknownErrors(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	base := FromError(cause)
	assert.Equal(t, StatusInternal, base.Code)
	assert.ErrorIs(t, base, cause)
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusUnauthorized: http.StatusUnauthorized,
		StatusForbidden:    http.StatusForbidden,
		StatusNotFound:     http.StatusNotFound,
		StatusBadRequest:   http.StatusBadRequest,
		StatusConflict:     http.StatusConflict,
		StatusBadGateway:   http.StatusBadGateway,
		StatusInternal:     http.StatusInternalServerError,
		StatusUnknown:      http.StatusInternalServerError,
	}

	for code, want := range cases {
		assert.Equal(t, want, code.HTTPStatus(), string(code))
	}
}

func TestErrorCarriesCause(t *testing.T) {
	cause := errors.New("record is gone")
	err := Internal("failed to load domain", cause, WithErr(cause))

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "INTERNAL")
	assert.Contains(t, err.Error(), "record is gone")
}

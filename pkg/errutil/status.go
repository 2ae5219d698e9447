package errutil

import (
	"errors"
	"net/http"
)

// CoreStatus is a transport-agnostic error class carried by BaseError.
type CoreStatus string

const (
	StatusUnknown      CoreStatus = "UNKNOWN"
	StatusUnauthorized CoreStatus = "UNAUTHORIZED"
	StatusForbidden    CoreStatus = "FORBIDDEN"
	StatusNotFound     CoreStatus = "NOT_FOUND"
	StatusBadRequest   CoreStatus = "BAD_REQUEST"
	StatusConflict     CoreStatus = "CONFLICT"
	StatusBadGateway   CoreStatus = "BAD_GATEWAY"
	StatusInternal     CoreStatus = "INTERNAL"
)

// HTTPStatus converts the CoreStatus to its closest HTTP status code equivalent.
func (s CoreStatus) HTTPStatus() int {
	switch s {
	case StatusUnauthorized:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound:
		return http.StatusNotFound
	case StatusBadRequest:
		return http.StatusBadRequest
	case StatusConflict:
		return http.StatusConflict
	case StatusBadGateway:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// FromError normalises any error into a BaseError so transports can render it
// without leaking internal detail.
func FromError(err error) BaseError {
	if err == nil {
		return BaseError{Code: StatusUnknown}
	}

	var base BaseError
	if errors.As(err, &base) {
		return base
	}

	return BaseError{Code: StatusInternal, Message: "internal error", Err: err}
}

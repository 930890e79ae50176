package api

import (
	"errors"
	"net/http"

	"github.com/okian/scoutsync/internal/app"
)

// Sentinel kinds for API errors.
var (
	ErrServe      = errors.New("admin api serve failed")
	ErrBadRequest = errors.New("bad request")
)

// statusFor maps service errors onto HTTP status codes and error codes.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, app.ErrInvalidRecord):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, app.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, app.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, app.ErrNoProvider):
		return http.StatusServiceUnavailable, "no_provider"
	}
	return http.StatusInternalServerError, "internal_error"
}

package remote

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for common HTTP error classes.
var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
	ErrInvalidRow   = errors.New("invalid row")
	ErrUnavailable  = errors.New("remote unavailable")
)

// Error describes a failed remote call. Status is 0 for transport failures.
type Error struct {
	Op         string
	Collection string
	Status     int
	Err        error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("remote %s %s: HTTP %d: %v", e.Op, e.Collection, e.Status, e.Err)
	}
	return fmt.Sprintf("remote %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRetryable reports whether err is worth retrying: transport failures,
// request timeouts, rate limiting and server errors. Context cancellation
// is not retryable; a per-request deadline is.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var re *Error
	if !errors.As(err, &re) {
		return true
	}
	switch {
	case re.Status == 0:
		return !errors.Is(re.Err, ErrInvalidRow)
	case re.Status == http.StatusRequestTimeout, re.Status == http.StatusTooManyRequests:
		return true
	case re.Status >= http.StatusInternalServerError:
		return true
	}
	return false
}

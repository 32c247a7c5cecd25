package reasoning

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
)

// ErrInvalidRequest is returned before any backend call when the request
// parameters are malformed.
var ErrInvalidRequest = errors.New("invalid reasoning request")

// UnavailableError reports that the backend could not serve the request:
// either every attempt failed transiently or its circuit breaker is open.
type UnavailableError struct {
	Backend  string
	Attempts int
	Cause    error // Last failure observed
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("reasoning backend %s unavailable after %d attempt(s): %v", e.Backend, e.Attempts, e.Cause)
}

func (e *UnavailableError) Unwrap() error { return e.Cause }

// StatusError carries the HTTP status of a failed API call.
type StatusError struct {
	Code int
	Err  error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.Code, e.Err)
}

func (e *StatusError) Unwrap() error { return e.Err }

type transientError struct{ err error }

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// MarkTransient flags err as worth retrying.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient classifies a backend failure. Attempt timeouts, rate limits,
// server errors and dropped connections are transient; everything else,
// including malformed requests and authentication failures, is not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	var te *transientError
	if errors.As(err, &te) {
		return true
	}
	if errors.Is(err, ErrInvalidRequest) || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return transientStatus(se.Code)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE)
}

func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooManyRequests:
		return true
	case code >= 500:
		return true
	}
	return false
}

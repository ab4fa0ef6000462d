package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrServiceUnavailable covers transport failures and 5xx responses.
	ErrServiceUnavailable = errors.New("backend service unavailable")

	// ErrRateLimited is returned for 429 responses.
	ErrRateLimited = errors.New("rate limited by backend")

	// ErrUnauthorized is returned for 401 responses. The HTTP client's
	// interceptor has already cleared the session when this is seen.
	ErrUnauthorized = errors.New("unauthorized")

	ErrDecode            = errors.New("failed to decode backend response")
	ErrInvalidConfigType = errors.New("api: invalid config type")
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Method  string
	URL     string
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Code)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, msg)
}

// Unwrap maps the status onto the sentinel errors so callers can use
// errors.Is for the class and errors.As for the details.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Code == http.StatusUnauthorized:
		return ErrUnauthorized
	case e.Code == http.StatusTooManyRequests:
		return ErrRateLimited
	case e.Code >= 500:
		return ErrServiceUnavailable
	default:
		return nil
	}
}

package httpclient

import (
	"context"
	"net/http"
	"time"
)

// ClientService defines the interface for the HTTP client service.
// Backend wrappers issue every request through Do.
type ClientService interface {
	// Client returns the configured *http.Client. Requests sent through
	// it still pass the modifier and interceptor chains.
	Client() *http.Client

	// Do sends req after applying the per-call modifiers.
	Do(req *http.Request, modifiers ...RequestModifierFunc) (*http.Response, error)

	// WithTimeout returns a client sharing the transport with a different
	// overall timeout.
	WithTimeout(timeout time.Duration) *http.Client

	// AddRequestModifier appends a modifier applied to every request.
	AddRequestModifier(modifier RequestModifierFunc)

	// AddResponseInterceptor appends an interceptor run on every response.
	AddResponseInterceptor(interceptor ResponseInterceptorFunc)

	// SetUnauthorizedHandler installs the handler invoked on a 401 from
	// any request except login.
	SetUnauthorizedHandler(handler UnauthorizedHandler)
}

// RequestModifierFunc is a function type that can be used to modify an HTTP request
// before it is sent by the client.
type RequestModifierFunc func(*http.Request) *http.Request

// ResponseInterceptorFunc observes a response before it is returned to
// the caller. Interceptors must not consume the body.
type ResponseInterceptorFunc func(req *http.Request, resp *http.Response)

// UnauthorizedHandler reacts to an expired or rejected session.
type UnauthorizedHandler interface {
	HandleUnauthorized(ctx context.Context, req *http.Request, redirect string)
}

// UnauthorizedHandlerFunc adapts a function to UnauthorizedHandler.
type UnauthorizedHandlerFunc func(ctx context.Context, req *http.Request, redirect string)

func (f UnauthorizedHandlerFunc) HandleUnauthorized(ctx context.Context, req *http.Request, redirect string) {
	f(ctx, req, redirect)
}

// WithBearer sets the Authorization header for one call. An empty token
// leaves the request unauthenticated.
func WithBearer(token string) RequestModifierFunc {
	return func(r *http.Request) *http.Request {
		if token != "" {
			r.Header.Set("Authorization", "Bearer "+token)
		}
		return r
	}
}

// WithHeader sets a header for one call.
func WithHeader(key, value string) RequestModifierFunc {
	return func(r *http.Request) *http.Request {
		r.Header.Set(key, value)
		return r
	}
}

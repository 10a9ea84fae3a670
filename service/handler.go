package service

import "context"

// Handler is one routable backend service. Implementations may block
// until ctx is done, return an error, or panic; callers are expected to
// bound and absorb all three. A non-nil error means the backend could
// not be reached or answered garbage, not that it answered with an
// error status: handler-level failures come back as a payload with a
// 4xx/5xx status and a nil error.
type Handler interface {
	Invoke(ctx context.Context, headers map[string]string, body any) (payload any, status int, err error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, headers map[string]string, body any) (any, int, error)

// Invoke calls fn.
func (fn HandlerFunc) Invoke(ctx context.Context, headers map[string]string, body any) (any, int, error) {
	return fn(ctx, headers, body)
}

// contextKey is used for context values in this package.
type contextKey string

const contextKeyRoute contextKey = "service-route"

// Route carries the inbound path and method for handlers that forward
// requests to a remote backend.
type Route struct {
	Path   string
	Method string
}

// WithRoute attaches route information to a dispatch context.
func WithRoute(ctx context.Context, route Route) context.Context {
	return context.WithValue(ctx, contextKeyRoute, route)
}

// RouteFromContext extracts route information attached with WithRoute.
func RouteFromContext(ctx context.Context) (Route, bool) {
	route, ok := ctx.Value(contextKeyRoute).(Route)
	return route, ok
}

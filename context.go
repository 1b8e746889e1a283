package authcore

import "context"

type clientIPContextKey struct{}
type requestContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The pipeline falls
// back to it as the rate-limit key when no user is resolved yet.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

// NewContext attaches an authorized request's context for downstream
// handlers.
func NewContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// FromContext returns the RequestContext attached by [NewContext], if any.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}

	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	return rc, ok
}

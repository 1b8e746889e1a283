package middleware

import (
	"errors"
	"net"
	"net/http"

	authcore "github.com/arkline-systems/authcore"
)

// Guard wraps a handler with the full security pipeline. The request only
// reaches next when it is authorized for perm (use the zero Permission for
// endpoints that merely require authentication); the populated
// RequestContext is attached to the request context for downstream
// handlers.
//
// Rejections map to 401/403/429/500 with a generic body plus the opaque
// correlation ID; internal detail never reaches the client.
func Guard(auth *authcore.Authenticator, perm authcore.Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if auth == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := authcore.WithClientIP(r.Context(), clientIP(r))

			rc, err := auth.Authenticate(ctx, r.Header, r.Host, perm)
			if err != nil {
				writeDenied(w, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(authcore.NewContext(ctx, rc)))
		})
	}
}

func writeDenied(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	body := "unauthorized"

	switch {
	case errors.Is(err, authcore.ErrPermissionDenied), errors.Is(err, authcore.ErrTenantMismatch):
		status = http.StatusForbidden
		body = "forbidden"
	case errors.Is(err, authcore.ErrRateLimited):
		status = http.StatusTooManyRequests
		body = "rate limit exceeded"
	case errors.Is(err, authcore.ErrInternal):
		status = http.StatusInternalServerError
		body = "internal error"
	}

	var authErr *authcore.AuthError
	if errors.As(err, &authErr) && authErr.RequestID != "" {
		w.Header().Set("X-Request-ID", authErr.RequestID)
	}
	http.Error(w, body, status)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

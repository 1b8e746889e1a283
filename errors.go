package authcore

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationRequired is returned when no bearer token accompanies
	// a request that needs one.
	ErrAuthenticationRequired = errors.New("authentication required")
	// ErrAuthenticationFailed is returned when presented credentials do not
	// match the stored ones.
	ErrAuthenticationFailed = errors.New("authentication failed")
	// ErrTokenInvalid is returned for malformed tokens, bad signatures, and
	// tokens of the wrong type for the operation.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired is returned for tokens past their expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenRevoked is returned when the token's ID is present in the
	// revocation store.
	ErrTokenRevoked = errors.New("token revoked")
	// ErrPermissionDenied is returned when the caller's permission set does
	// not contain the pair an endpoint requires.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrTenantMismatch is returned when the request addresses a different
	// tenant than the one the token was issued for.
	ErrTenantMismatch = errors.New("tenant mismatch")
	// ErrRateLimited is returned when the caller exhausted its request
	// budget for the current window.
	ErrRateLimited = errors.New("rate limit exceeded")
	// ErrInternal is returned for server-side faults: tenant lookup
	// failures, data inconsistency, unexpected infrastructure errors. The
	// underlying cause is audited, never returned to the caller.
	ErrInternal = errors.New("internal security error")
)

// AuthError is the error shape returned by [Authenticator.Authenticate]. It
// pairs one of the package sentinels with an opaque correlation ID; the ID is
// safe to return to clients and links the response to the audit record.
type AuthError struct {
	RequestID string
	Err       error
}

func (e *AuthError) Error() string {
	if e.RequestID == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (request %s)", e.Err, e.RequestID)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

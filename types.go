package authcore

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arkline-systems/authcore/tenant"
)

// Permission is an exact (resource, action) pair. There are no wildcards or
// hierarchies: authorization is string equality on both fields.
type Permission struct {
	Resource string
	Action   string
}

// ParsePermission parses the "resource:action" wire form.
func ParsePermission(s string) (Permission, error) {
	resource, action, ok := strings.Cut(s, ":")
	if !ok || resource == "" || action == "" {
		return Permission{}, fmt.Errorf("malformed permission %q", s)
	}
	return Permission{Resource: resource, Action: action}, nil
}

// String returns the "resource:action" wire form.
func (p Permission) String() string {
	return p.Resource + ":" + p.Action
}

// IsZero reports whether no permission is required.
func (p Permission) IsZero() bool {
	return p.Resource == "" && p.Action == ""
}

// Principal is the authenticated identity extracted from a verified access
// token.
type Principal struct {
	UserID         string
	TenantID       string
	Roles          []string
	Permissions    []string
	ImpersonatorID string
}

// HasPermission reports whether the principal's permission set contains the
// exact pair.
func (p Principal) HasPermission(perm Permission) bool {
	want := perm.String()
	for _, have := range p.Permissions {
		if have == want {
			return true
		}
	}
	return false
}

// RequestContext is the fully populated result of an authorized request. It
// is built fresh per request and never reused.
type RequestContext struct {
	RequestID string
	Principal Principal
	Tenant    tenant.Context
	// TokenID is the jti of the access token that authenticated the
	// request; it is the key used to revoke that token.
	TokenID string
}

// HasPermission reports whether the authenticated principal holds the pair.
func (rc *RequestContext) HasPermission(perm Permission) bool {
	return rc.Principal.HasPermission(perm)
}

// Clock supplies the current time. Injectable for deterministic tests; nil
// means time.Now.
type Clock func() time.Time

// TOTPEnrollment is the material produced when a user enrolls a second
// factor. EncryptedSecret is what gets persisted; Secret and BackupCodes are
// shown to the user exactly once.
type TOTPEnrollment struct {
	Secret          string
	EncryptedSecret string
	ProvisionURI    string
	BackupCodes     []string
}

var errNoBearer = errors.New("no bearer token")

// bearerToken extracts the raw token from an Authorization header value.
func bearerToken(authorization string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorization, prefix) {
		return "", errNoBearer
	}
	raw := strings.TrimSpace(authorization[len(prefix):])
	if raw == "" {
		return "", errNoBearer
	}
	return raw, nil
}

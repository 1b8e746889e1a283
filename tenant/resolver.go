package tenant

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// DefaultHeader is the explicit tenant selection header.
const DefaultHeader = "X-Tenant-ID"

// ErrNotFound is returned by [Source] implementations when no active tenant
// exists for the requested ID.
var ErrNotFound = errors.New("tenant not found")

// Context identifies the active tenant for one request. Resolved once and
// immutable for the request's lifetime.
type Context struct {
	ID uuid.UUID
	// Schema is the tenant's storage namespace (schema name or key
	// prefix), owned by the data layer.
	Schema string
}

// Source is the tenant lookup the pipeline consumes. Implementations return
// [ErrNotFound] when the tenant does not exist or is not active; any other
// error is an infrastructure failure.
type Source interface {
	LookupActiveTenant(ctx context.Context, id uuid.UUID) (*Context, error)
}

// Origin records which resolution rule produced a tenant ID.
type Origin string

const (
	OriginHeader    Origin = "header"
	OriginSubdomain Origin = "subdomain"
	// OriginClaim marks an ID read from an unverified bearer token payload.
	// It is a routing hint only and never an authenticated assertion.
	OriginClaim Origin = "claim"
	OriginNone   Origin = ""
)

// Resolution is the outcome of one [Resolver.Resolve] call.
type Resolution struct {
	TenantID uuid.UUID
	Origin   Origin
	// MalformedHeader reports that an explicit tenant header was present
	// but unparseable. The header is skipped, not fatal; callers log it.
	MalformedHeader bool
}

// Config tunes the resolver.
type Config struct {
	// Header overrides [DefaultHeader].
	Header string
	// Aliases maps well-known subdomain labels to tenant IDs, for tenants
	// addressed by name rather than raw UUID.
	Aliases map[string]uuid.UUID
}

// Resolver determines the active tenant for an inbound request. Precedence,
// first match wins: explicit header, subdomain, bearer-token claim.
type Resolver struct {
	header  string
	aliases map[string]uuid.UUID
}

// NewResolver applies defaults and returns a [Resolver].
func NewResolver(cfg Config) *Resolver {
	header := cfg.Header
	if header == "" {
		header = DefaultHeader
	}
	return &Resolver{header: header, aliases: cfg.Aliases}
}

// Resolve inspects headers and host in precedence order. A Resolution with
// Origin [OriginNone] means no tenant could be determined; whether that is
// acceptable is the endpoint's decision.
func (r *Resolver) Resolve(headers http.Header, host string) Resolution {
	res := Resolution{}

	if raw := strings.TrimSpace(headers.Get(r.header)); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			res.TenantID = id
			res.Origin = OriginHeader
			return res
		}
		// Present but malformed: fall through to the next rule.
		res.MalformedHeader = true
	}

	if id, ok := r.fromSubdomain(host); ok {
		res.TenantID = id
		res.Origin = OriginSubdomain
		return res
	}

	if id, ok := tenantFromBearerClaim(headers.Get("Authorization")); ok {
		res.TenantID = id
		res.Origin = OriginClaim
		return res
	}

	return res
}

// fromSubdomain extracts the first host label when the host has at least
// three dot-separated labels ("tenant.erp.example.com"). The label must be
// a tenant UUID or a configured alias.
func (r *Resolver) fromSubdomain(host string) (uuid.UUID, bool) {
	host = strings.TrimSpace(host)
	if host == "" {
		return uuid.Nil, false
	}
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	labels := strings.Split(host, ".")
	if len(labels) < 3 {
		return uuid.Nil, false
	}

	first := strings.ToLower(labels[0])
	if id, err := uuid.Parse(first); err == nil {
		return id, true
	}
	if id, ok := r.aliases[first]; ok {
		return id, true
	}

	return uuid.Nil, false
}

// tenantFromBearerClaim decodes the payload of a bearer token without
// verifying its signature, solely to read the tenant claim for routing.
// Signature verification happens later in the pipeline; this value must
// never be treated as an authenticated tenant assertion on its own.
func tenantFromBearerClaim(authorization string) (uuid.UUID, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(authorization, bearer) {
		return uuid.Nil, false
	}

	parts := strings.Split(authorization[len(bearer):], ".")
	if len(parts) != 3 {
		return uuid.Nil, false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return uuid.Nil, false
	}

	var claims struct {
		TenantID string `json:"tenant_id"`
	}
	if err := json.Unmarshal(payload, &claims); err != nil {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(claims.TenantID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

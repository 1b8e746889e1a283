package authcore

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arkline-systems/authcore/audit"
	"github.com/arkline-systems/authcore/crypt"
	"github.com/arkline-systems/authcore/password"
	"github.com/arkline-systems/authcore/rate"
	"github.com/arkline-systems/authcore/revoke"
	"github.com/arkline-systems/authcore/tenant"
	"github.com/arkline-systems/authcore/token"
	"github.com/arkline-systems/authcore/totp"
)

// Deps are the external collaborators the pipeline consumes. Redis backs
// both the revocation store and the rate limiter; Tenants is the tenant
// data source; Sink receives audit events.
type Deps struct {
	Redis   redis.UniversalClient
	Tenants tenant.Source
	Sink    audit.Sink
}

// Authenticator runs the per-request security pipeline and owns the
// credential primitives around it: token issuance and revocation, password
// verification, TOTP enrollment and checks, audit delivery, metrics.
//
// All methods are safe for concurrent use. State shared across requests
// lives only in the external store and the tenant source.
type Authenticator struct {
	config Config

	tokens      *token.Manager
	passwords   *password.Hasher
	codes       *totp.Service
	cipher      *crypt.Cipher
	resolver    *tenant.Resolver
	revocations *revoke.Store
	limiter     *rate.Limiter
	tenants     tenant.Source

	dispatcher *audit.Dispatcher
	metrics    *Metrics
	now        func() time.Time
}

// New validates cfg, wires every subsystem and starts the audit dispatcher.
// Call Close when done to drain it.
func New(cfg Config, deps Deps) (*Authenticator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Redis == nil {
		return nil, errors.New("authcore: redis client is required")
	}
	if deps.Tenants == nil {
		return nil, errors.New("authcore: tenant source is required")
	}

	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}
	if cfg.Token.Now == nil {
		cfg.Token.Now = now
	}
	if cfg.TOTP.Now == nil {
		cfg.TOTP.Now = now
	}

	tokens, err := token.NewManager(cfg.Token)
	if err != nil {
		return nil, err
	}
	passwords, err := password.New(cfg.Password)
	if err != nil {
		return nil, err
	}
	cipher, err := crypt.New(cfg.CipherKey)
	if err != nil {
		return nil, err
	}
	limiter, err := rate.New(deps.Redis, cfg.RateLimit)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		config:      cfg,
		tokens:      tokens,
		passwords:   passwords,
		codes:       totp.New(cfg.TOTP),
		cipher:      cipher,
		resolver:    tenant.NewResolver(cfg.Tenant),
		revocations: revoke.NewStore(deps.Redis),
		limiter:     limiter,
		tenants:     deps.Tenants,
		metrics:     NewMetrics(cfg.Metrics),
		now:         now,
	}

	if cfg.Audit.Enabled {
		a.dispatcher = audit.NewDispatcher(audit.DispatcherConfig{
			BufferSize: cfg.Audit.BufferSize,
			DropIfFull: cfg.Audit.DropIfFull,
		}, deps.Sink)
	}

	return a, nil
}

// Close drains and stops the audit dispatcher.
func (a *Authenticator) Close() {
	a.dispatcher.Close()
}

// AuditDropped reports how many audit events were discarded because the
// dispatcher buffer was full.
func (a *Authenticator) AuditDropped() uint64 {
	return a.dispatcher.Dropped()
}

// MetricsSnapshot copies the current operational counters.
func (a *Authenticator) MetricsSnapshot() MetricsSnapshot {
	return a.metrics.Snapshot()
}

// RecordAuditEvent delivers an externally built event through the
// dispatcher and counts it against the alerting metric when it qualifies.
func (a *Authenticator) RecordAuditEvent(ctx context.Context, event audit.Event) {
	if event.ShouldAlert() {
		a.metrics.Inc(MetricAuditAlerts)
	}
	a.dispatcher.Emit(ctx, event)
}

// Authenticate runs the whole pipeline for one request: tenant resolution,
// token verification, revocation check, tenant lookup, permission check and
// rate limiting, strictly in that order. required may be the zero
// Permission for endpoints that only need authentication.
//
// On success the returned RequestContext is fully populated and unique to
// this request. On failure the error is an *AuthError wrapping one of the
// package sentinels; the wrapped RequestID also appears on the audit record
// for the rejection. If ctx is canceled mid-pipeline, no audit record is
// written for the incomplete decision.
func (a *Authenticator) Authenticate(ctx context.Context, headers http.Header, host string, required Permission) (*RequestContext, error) {
	start := a.now()
	requestID := uuid.NewString()

	resolution := a.resolver.Resolve(headers, host)

	raw, err := bearerToken(headers.Get("Authorization"))
	if err != nil {
		return nil, a.reject(ctx, requestID, ErrAuthenticationRequired, MetricUnauthorized,
			a.failureEvent(audit.EventAuthenticationFailure, resolution).
				WithMetadata("reason", "missing bearer token"))
	}

	claims, err := a.tokens.VerifyAccess(raw)
	if err != nil {
		sentinel := ErrTokenInvalid
		if errors.Is(err, token.ErrExpired) {
			sentinel = ErrTokenExpired
		}
		return nil, a.reject(ctx, requestID, sentinel, MetricUnauthorized,
			a.failureEvent(audit.EventAuthenticationFailure, resolution).
				WithMetadata("reason", sentinel.Error()))
	}

	actor := claims.Subject
	tenantID := claims.TenantID

	revoked, err := a.checkRevocation(ctx, claims.ID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AuthError{RequestID: requestID, Err: fmt.Errorf("%w: %v", ErrInternal, ctx.Err())}
		}
		// Store unreachable: fail open, but leave an operational trail.
		a.metrics.Inc(MetricRevocationFailOpen)
		a.emit(ctx, a.failureEvent(audit.EventStoreDegraded, resolution).
			WithActor(actor).
			WithTenant(tenantID).
			WithMetadata("check", "revocation").
			WithMetadata("request_id", requestID).
			Build())
	} else if revoked {
		return nil, a.reject(ctx, requestID, ErrTokenRevoked, MetricUnauthorized,
			a.failureEvent(audit.EventAuthenticationFailure, resolution).
				WithActor(actor).
				WithTenant(tenantID).
				WithResource("token", claims.ID).
				WithMetadata("reason", "token revoked"))
	}

	// An explicitly addressed tenant must be the one the token was issued
	// for. The claim-peek origin is the token itself, so it cannot disagree.
	if (resolution.Origin == tenant.OriginHeader || resolution.Origin == tenant.OriginSubdomain) &&
		resolution.TenantID.String() != tenantID {
		return nil, a.reject(ctx, requestID, ErrTenantMismatch, MetricForbidden,
			a.failureEvent(audit.EventSecurityPolicyViolation, resolution).
				WithActor(actor).
				WithTenant(tenantID).
				WithMetadata("addressed_tenant", resolution.TenantID.String()))
	}

	tenantCtx, err := a.lookupTenant(ctx, tenantID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &AuthError{RequestID: requestID, Err: fmt.Errorf("%w: %v", ErrInternal, ctx.Err())}
		}
		eventType := audit.EventStoreDegraded
		reason := "tenant lookup failed"
		if errors.Is(err, tenant.ErrNotFound) {
			// A verified token naming an unknown or inactive tenant is a
			// data-consistency fault, not a normal auth rejection.
			eventType = audit.EventSuspiciousActivity
			reason = "token references unknown or inactive tenant"
		}
		return nil, a.reject(ctx, requestID, ErrInternal, MetricInternalError,
			a.failureEvent(eventType, resolution).
				WithActor(actor).
				WithTenant(tenantID).
				WithMetadata("reason", reason))
	}

	principal := Principal{
		UserID:         actor,
		TenantID:       tenantID,
		Roles:          claims.Roles,
		Permissions:    claims.Permissions,
		ImpersonatorID: claims.ImpersonatorID,
	}

	if !required.IsZero() && !principal.HasPermission(required) {
		return nil, a.reject(ctx, requestID, ErrPermissionDenied, MetricForbidden,
			a.failureEvent(audit.EventAuthorizationDenied, resolution).
				WithActor(actor).
				WithImpersonator(claims.ImpersonatorID).
				WithTenant(tenantID).
				WithResource(required.Resource, "").
				WithMetadata("required", required.String()))
	}

	limitKey := actor
	if limitKey == "" {
		limitKey = clientIPFromContext(ctx)
	}
	if limitKey != "" {
		allowed, err := a.checkRateLimit(ctx, limitKey)
		if err != nil {
			if ctx.Err() != nil {
				return nil, &AuthError{RequestID: requestID, Err: fmt.Errorf("%w: %v", ErrInternal, ctx.Err())}
			}
			a.metrics.Inc(MetricRateLimitFailOpen)
			a.emit(ctx, a.failureEvent(audit.EventStoreDegraded, resolution).
				WithActor(actor).
				WithTenant(tenantID).
				WithMetadata("check", "rate limit").
				WithMetadata("request_id", requestID).
				Build())
		} else if !allowed {
			return nil, a.reject(ctx, requestID, ErrRateLimited, MetricRateLimited,
				a.failureEvent(audit.EventRateLimitExceeded, resolution).
					WithActor(actor).
					WithTenant(tenantID).
					WithMetadata("key", limitKey))
		}
	}

	rc := &RequestContext{
		RequestID: requestID,
		Principal: principal,
		Tenant:    *tenantCtx,
		TokenID:   claims.ID,
	}

	a.metrics.Inc(MetricAuthorized)
	a.metrics.Observe(a.now().Sub(start))
	a.emit(ctx, audit.NewBuilder(audit.EventAuthenticationSuccess, audit.SeverityInfo).
		WithClock(a.now).
		WithActor(actor).
		WithImpersonator(claims.ImpersonatorID).
		WithTenant(tenantID).
		WithMetadata("request_id", requestID).
		Build())

	return rc, nil
}

// IssueTokens mints an access+refresh pair for the principal. tokenVersion
// is embedded in the refresh token so a later credential rotation can
// invalidate all outstanding refresh tokens at once.
func (a *Authenticator) IssueTokens(ctx context.Context, principal Principal, tokenVersion uint32) (token.Pair, error) {
	pair, err := a.tokens.IssuePair(principal.UserID, principal.TenantID,
		principal.Roles, principal.Permissions, principal.ImpersonatorID, tokenVersion)
	if err != nil {
		return token.Pair{}, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	a.metrics.Inc(MetricTokenIssued)
	a.emit(ctx, audit.NewBuilder(audit.EventTokenIssued, audit.SeverityInfo).
		WithClock(a.now).
		WithActor(principal.UserID).
		WithImpersonator(principal.ImpersonatorID).
		WithTenant(principal.TenantID).
		Build())

	return pair, nil
}

// IssuePurposeToken mints a short-lived token bound to a single named flow.
func (a *Authenticator) IssuePurposeToken(ctx context.Context, subject, tenantID, purpose string) (string, error) {
	raw, err := a.tokens.IssuePurpose(subject, tenantID, purpose)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}

	a.metrics.Inc(MetricTokenIssued)
	a.emit(ctx, audit.NewBuilder(audit.EventTokenIssued, audit.SeverityInfo).
		WithClock(a.now).
		WithActor(subject).
		WithTenant(tenantID).
		WithMetadata("purpose", purpose).
		Build())

	return raw, nil
}

// VerifyPurposeToken checks a purpose token for the named flow.
func (a *Authenticator) VerifyPurposeToken(raw, purpose string) (*token.PurposeClaims, error) {
	claims, err := a.tokens.VerifyPurpose(raw, purpose)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Revoke marks a token ID revoked for ttl. Every instance sharing the store
// sees the revocation immediately; there is no local caching.
func (a *Authenticator) Revoke(ctx context.Context, tokenID string, ttl time.Duration) error {
	storeCtx, cancel := context.WithTimeout(ctx, a.config.StoreTimeout)
	defer cancel()

	if err := a.revocations.MarkRevoked(storeCtx, tokenID, ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	a.metrics.Inc(MetricTokenRevoked)
	a.emit(ctx, audit.NewBuilder(audit.EventTokenRevoked, audit.SeverityInfo).
		WithClock(a.now).
		WithResource("token", tokenID).
		Build())

	return nil
}

// RevokeToken revokes a raw access or refresh token for the remainder of
// its lifetime. Already-expired tokens need no store entry.
func (a *Authenticator) RevokeToken(ctx context.Context, raw string) error {
	tokenID, expiresAt, err := a.tokenIdentity(raw)
	if err != nil {
		return err
	}

	remaining := expiresAt.Sub(a.now())
	if remaining <= 0 {
		return nil
	}
	return a.Revoke(ctx, tokenID, remaining)
}

// HashPassword hashes a plaintext password for storage.
func (a *Authenticator) HashPassword(plaintext string) (string, error) {
	return a.passwords.Hash(plaintext)
}

// VerifyPassword checks a plaintext password against a stored hash. A
// mismatch returns ErrAuthenticationFailed and leaves an audit record; a
// matched hash that predates the current parameters is reported via rehash
// so the caller can upgrade it.
func (a *Authenticator) VerifyPassword(ctx context.Context, userID, tenantID, encodedHash, plaintext string) (rehash bool, err error) {
	ok, err := a.passwords.Verify(plaintext, encodedHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		a.emit(ctx, a.newFailure(audit.EventAuthenticationFailure).
			WithActor(userID).
			WithTenant(tenantID).
			WithMetadata("reason", "password mismatch").
			Build())
		return false, ErrAuthenticationFailed
	}

	rehash, err = a.passwords.NeedsRehash(encodedHash)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return rehash, nil
}

// EnrollTOTP provisions a second factor for the user: a fresh secret, its
// encrypted form for persistence, the otpauth URI and one-time backup
// codes. Secret and backup codes are shown to the user once and not stored
// in the clear.
func (a *Authenticator) EnrollTOTP(ctx context.Context, userID, tenantID string) (*TOTPEnrollment, error) {
	secret, err := a.codes.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	encrypted, err := a.cipher.EncryptString(secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	backupCodes, err := a.codes.BackupCodes(10)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	a.emit(ctx, audit.NewBuilder(audit.EventMFAEnrolled, audit.SeverityInfo).
		WithClock(a.now).
		WithActor(userID).
		WithTenant(tenantID).
		Build())

	return &TOTPEnrollment{
		Secret:          secret,
		EncryptedSecret: encrypted,
		ProvisionURI:    a.codes.ProvisionURI(secret, userID),
		BackupCodes:     backupCodes,
	}, nil
}

// VerifyTOTP decrypts the stored secret and checks the submitted code.
func (a *Authenticator) VerifyTOTP(ctx context.Context, userID, tenantID, encryptedSecret, code string) error {
	secret, err := a.cipher.DecryptString(encryptedSecret)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}

	ok, err := a.codes.Verify(secret, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		a.emit(ctx, a.newFailure(audit.EventAuthenticationFailure).
			WithActor(userID).
			WithTenant(tenantID).
			WithMetadata("reason", "totp mismatch").
			Build())
		return ErrAuthenticationFailed
	}

	a.emit(ctx, audit.NewBuilder(audit.EventMFAVerified, audit.SeverityInfo).
		WithClock(a.now).
		WithActor(userID).
		WithTenant(tenantID).
		Build())
	return nil
}

// tokenIdentity extracts the jti and expiry from a raw access or refresh
// token, verifying the signature first.
func (a *Authenticator) tokenIdentity(raw string) (string, time.Time, error) {
	if claims, err := a.tokens.VerifyAccess(raw); err == nil {
		return claims.ID, claims.ExpiresAt.Time, nil
	}

	claims, err := a.tokens.VerifyRefresh(raw)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			return "", time.Time{}, ErrTokenExpired
		}
		return "", time.Time{}, ErrTokenInvalid
	}
	return claims.ID, claims.ExpiresAt.Time, nil
}

func (a *Authenticator) checkRevocation(ctx context.Context, tokenID string) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, a.config.StoreTimeout)
	defer cancel()
	return a.revocations.IsRevoked(storeCtx, tokenID)
}

func (a *Authenticator) checkRateLimit(ctx context.Context, key string) (bool, error) {
	storeCtx, cancel := context.WithTimeout(ctx, a.config.StoreTimeout)
	defer cancel()
	return a.limiter.Allow(storeCtx, key)
}

func (a *Authenticator) lookupTenant(ctx context.Context, tenantID string) (*tenant.Context, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, tenant.ErrNotFound
	}

	lookupCtx, cancel := context.WithTimeout(ctx, a.config.TenantTimeout)
	defer cancel()
	return a.tenants.LookupActiveTenant(lookupCtx, id)
}

// reject finalizes a terminal rejection: counts it, audits it with the
// correlation ID attached, and wraps the sentinel.
func (a *Authenticator) reject(ctx context.Context, requestID string, sentinel error, metric MetricID, builder *audit.Builder) error {
	a.metrics.Inc(metric)
	a.emit(ctx, builder.WithMetadata("request_id", requestID).Build())
	return &AuthError{RequestID: requestID, Err: sentinel}
}

func (a *Authenticator) newFailure(eventType audit.EventType) *audit.Builder {
	severity := audit.SeverityWarning
	if eventType == audit.EventStoreDegraded {
		severity = audit.SeverityHigh
	}
	return audit.NewBuilder(eventType, severity).
		WithClock(a.now).
		WithOutcome(audit.OutcomeFailure)
}

func (a *Authenticator) failureEvent(eventType audit.EventType, resolution tenant.Resolution) *audit.Builder {
	builder := a.newFailure(eventType)
	if resolution.MalformedHeader {
		builder.WithMetadata("malformed_tenant_header", "true")
	}
	return builder
}

func (a *Authenticator) emit(ctx context.Context, event audit.Event) {
	if event.ShouldAlert() {
		a.metrics.Inc(MetricAuditAlerts)
	}
	a.dispatcher.Emit(ctx, event)
}

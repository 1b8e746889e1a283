package authcore

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/arkline-systems/authcore/audit"
	"github.com/arkline-systems/authcore/tenant"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type mapTenantSource struct {
	tenants map[uuid.UUID]*tenant.Context
}

func (s *mapTenantSource) LookupActiveTenant(ctx context.Context, id uuid.UUID) (*tenant.Context, error) {
	tc, ok := s.tenants[id]
	if !ok {
		return nil, tenant.ErrNotFound
	}
	return tc, nil
}

var testTenantID = uuid.MustParse("550e8400-e29b-41d4-a716-446655440000")

func testConfig(clock *testClock) Config {
	cfg := DefaultConfig()
	cfg.Token.Secret = bytes.Repeat([]byte{0xA7}, 32)
	cfg.CipherKey = bytes.Repeat([]byte{0x3C}, 32)
	cfg.Clock = clock.Now
	// Cheap hashing params keep the suite fast.
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	return cfg
}

func newTestAuthenticator(t *testing.T, mutate func(*Config)) (*Authenticator, *miniredis.Miniredis, *audit.ChannelSink, *testClock) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := newTestClock()
	cfg := testConfig(clock)
	if mutate != nil {
		mutate(&cfg)
	}

	sink := audit.NewChannelSink(128)
	source := &mapTenantSource{tenants: map[uuid.UUID]*tenant.Context{
		testTenantID: {ID: testTenantID, Schema: "tenant_acme"},
	}}

	a, err := New(cfg, Deps{Redis: rdb, Tenants: source, Sink: sink})
	if err != nil {
		t.Fatalf("New error: %v", err)
	}
	t.Cleanup(a.Close)

	return a, mr, sink, clock
}

func authHeaders(accessToken string) http.Header {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+accessToken)
	return headers
}

func drainEventTypes(a *Authenticator, sink *audit.ChannelSink) []audit.EventType {
	a.Close()
	var types []audit.EventType
	for {
		select {
		case event := <-sink.Events():
			types = append(types, event.Type)
		default:
			return types
		}
	}
}

func TestEndToEndAuthorization(t *testing.T) {
	a, _, _, _ := newTestAuthenticator(t, nil)
	ctx := context.Background()

	principal := Principal{
		UserID:      "user-1",
		TenantID:    testTenantID.String(),
		Roles:       []string{"clerk"},
		Permissions: []string{"customer:read"},
	}
	pair, err := a.IssueTokens(ctx, principal, 1)
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}
	headers := authHeaders(pair.AccessToken)

	rc, err := a.Authenticate(ctx, headers, "", Permission{Resource: "customer", Action: "read"})
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if rc.Principal.UserID != "user-1" || rc.Principal.TenantID != testTenantID.String() {
		t.Fatalf("unexpected principal: %+v", rc.Principal)
	}
	if rc.Tenant.Schema != "tenant_acme" {
		t.Fatalf("unexpected tenant context: %+v", rc.Tenant)
	}
	if rc.RequestID == "" || rc.TokenID == "" {
		t.Fatalf("request context missing identifiers: %+v", rc)
	}

	// Same token, a permission the principal does not hold.
	_, err = a.Authenticate(ctx, headers, "", Permission{Resource: "customer", Action: "write"})
	if !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	var authErr *AuthError
	if !errors.As(err, &authErr) || authErr.RequestID == "" {
		t.Fatalf("expected AuthError with correlation id, got %v", err)
	}

	// Distinct requests must never share a RequestContext.
	rc2, err := a.Authenticate(ctx, headers, "", Permission{Resource: "customer", Action: "read"})
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}
	if rc2.RequestID == rc.RequestID {
		t.Fatal("request IDs must be unique per request")
	}

	snapshot := a.MetricsSnapshot()
	if snapshot.Counters[MetricAuthorized] != 2 {
		t.Fatalf("expected 2 authorized, got %d", snapshot.Counters[MetricAuthorized])
	}
	if snapshot.Counters[MetricForbidden] != 1 {
		t.Fatalf("expected 1 forbidden, got %d", snapshot.Counters[MetricForbidden])
	}
	if snapshot.Counters[MetricTokenIssued] != 1 {
		t.Fatalf("expected 1 issued, got %d", snapshot.Counters[MetricTokenIssued])
	}
}

func TestRevokedTokenFailsEverySubsequentCheck(t *testing.T) {
	a, _, _, _ := newTestAuthenticator(t, nil)
	ctx := context.Background()

	pair, err := a.IssueTokens(ctx, Principal{UserID: "user-1", TenantID: testTenantID.String()}, 1)
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}
	headers := authHeaders(pair.AccessToken)

	if _, err := a.Authenticate(ctx, headers, "", Permission{}); err != nil {
		t.Fatalf("Authenticate before revocation: %v", err)
	}

	if err := a.RevokeToken(ctx, pair.AccessToken); err != nil {
		t.Fatalf("RevokeToken error: %v", err)
	}

	for i := 0; i < 3; i++ {
		_, err := a.Authenticate(ctx, headers, "", Permission{})
		if !errors.Is(err, ErrTokenRevoked) {
			t.Fatalf("check %d: expected ErrTokenRevoked, got %v", i, err)
		}
	}
}

func TestUnauthorizedTerminals(t *testing.T) {
	a, _, _, clock := newTestAuthenticator(t, nil)
	ctx := context.Background()

	if _, err := a.Authenticate(ctx, http.Header{}, "", Permission{}); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("expected ErrAuthenticationRequired, got %v", err)
	}

	if _, err := a.Authenticate(ctx, authHeaders("not.a.token"), "", Permission{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}

	pair, err := a.IssueTokens(ctx, Principal{UserID: "user-1", TenantID: testTenantID.String()}, 1)
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}
	clock.Advance(16 * time.Minute)
	if _, err := a.Authenticate(ctx, authHeaders(pair.AccessToken), "", Permission{}); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}

	snapshot := a.MetricsSnapshot()
	if snapshot.Counters[MetricUnauthorized] != 3 {
		t.Fatalf("expected 3 unauthorized, got %d", snapshot.Counters[MetricUnauthorized])
	}
}

func TestTenantMismatchIsForbidden(t *testing.T) {
	a, _, sink, _ := newTestAuthenticator(t, nil)
	ctx := context.Background()

	pair, err := a.IssueTokens(ctx, Principal{UserID: "user-1", TenantID: testTenantID.String()}, 1)
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}

	headers := authHeaders(pair.AccessToken)
	headers.Set(tenant.DefaultHeader, uuid.NewString())

	_, err = a.Authenticate(ctx, headers, "", Permission{})
	if !errors.Is(err, ErrTenantMismatch) {
		t.Fatalf("expected ErrTenantMismatch, got %v", err)
	}

	types := drainEventTypes(a, sink)
	found := false
	for _, et := range types {
		if et == audit.EventSecurityPolicyViolation {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a policy violation audit event, got %v", types)
	}
}

func TestUnknownTenantIsInternalError(t *testing.T) {
	a, _, _, _ := newTestAuthenticator(t, nil)
	ctx := context.Background()

	// Token names a tenant the source does not know: data inconsistency,
	// not an auth rejection.
	pair, err := a.IssueTokens(ctx, Principal{UserID: "user-1", TenantID: uuid.NewString()}, 1)
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}

	_, err = a.Authenticate(ctx, authHeaders(pair.AccessToken), "", Permission{})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal, got %v", err)
	}

	if got := a.MetricsSnapshot().Counters[MetricInternalError]; got != 1 {
		t.Fatalf("expected 1 internal error, got %d", got)
	}
}

func TestRateLimitTerminal(t *testing.T) {
	a, _, _, _ := newTestAuthenticator(t, func(cfg *Config) {
		cfg.RateLimit.MaxRequests = 3
	})
	ctx := context.Background()

	pair, err := a.IssueTokens(ctx, Principal{UserID: "user-1", TenantID: testTenantID.String()}, 1)
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}
	headers := authHeaders(pair.AccessToken)

	for i := 0; i < 3; i++ {
		if _, err := a.Authenticate(ctx, headers, "", Permission{}); err != nil {
			t.Fatalf("request %d: %v", i+1, err)
		}
	}

	_, err = a.Authenticate(ctx, headers, "", Permission{})
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestStoreOutageFailsOpen(t *testing.T) {
	a, mr, sink, _ := newTestAuthenticator(t, nil)
	ctx := context.Background()

	pair, err := a.IssueTokens(ctx, Principal{UserID: "user-1", TenantID: testTenantID.String()}, 1)
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}

	mr.Close()

	rc, err := a.Authenticate(ctx, authHeaders(pair.AccessToken), "", Permission{})
	if err != nil {
		t.Fatalf("store outage must fail open, got %v", err)
	}
	if rc.Principal.UserID != "user-1" {
		t.Fatalf("unexpected principal: %+v", rc.Principal)
	}

	snapshot := a.MetricsSnapshot()
	if snapshot.Counters[MetricRevocationFailOpen] != 1 {
		t.Fatalf("expected 1 revocation fail-open, got %d", snapshot.Counters[MetricRevocationFailOpen])
	}
	if snapshot.Counters[MetricRateLimitFailOpen] != 1 {
		t.Fatalf("expected 1 rate-limit fail-open, got %d", snapshot.Counters[MetricRateLimitFailOpen])
	}

	degraded := 0
	for _, et := range drainEventTypes(a, sink) {
		if et == audit.EventStoreDegraded {
			degraded++
		}
	}
	if degraded != 2 {
		t.Fatalf("expected 2 store-degraded audit events, got %d", degraded)
	}
}

func TestCanceledContextLeavesNoAuditRecord(t *testing.T) {
	a, _, sink, _ := newTestAuthenticator(t, nil)

	pair, err := a.IssueTokens(context.Background(), Principal{UserID: "user-1", TenantID: testTenantID.String()}, 1)
	if err != nil {
		t.Fatalf("IssueTokens error: %v", err)
	}

	canceled, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = a.Authenticate(canceled, authHeaders(pair.AccessToken), "", Permission{})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal for canceled context, got %v", err)
	}

	// Only the issuance event may exist; the incomplete pipeline decision
	// must not be audited.
	types := drainEventTypes(a, sink)
	if len(types) != 1 || types[0] != audit.EventTokenIssued {
		t.Fatalf("expected only the issuance event, got %v", types)
	}
}

func TestPasswordVerification(t *testing.T) {
	a, _, sink, _ := newTestAuthenticator(t, nil)
	ctx := context.Background()

	hash, err := a.HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("HashPassword error: %v", err)
	}

	rehash, err := a.VerifyPassword(ctx, "user-1", testTenantID.String(), hash, "correct horse battery staple")
	if err != nil {
		t.Fatalf("VerifyPassword error: %v", err)
	}
	if rehash {
		t.Fatal("fresh hash should not need rehash")
	}

	_, err = a.VerifyPassword(ctx, "user-1", testTenantID.String(), hash, "wrong password")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed, got %v", err)
	}

	failures := 0
	for _, et := range drainEventTypes(a, sink) {
		if et == audit.EventAuthenticationFailure {
			failures++
		}
	}
	if failures != 1 {
		t.Fatalf("expected 1 authentication failure event, got %d", failures)
	}
}

func TestTOTPEnrollAndVerify(t *testing.T) {
	a, _, _, _ := newTestAuthenticator(t, nil)
	ctx := context.Background()

	enrollment, err := a.EnrollTOTP(ctx, "user-1", testTenantID.String())
	if err != nil {
		t.Fatalf("EnrollTOTP error: %v", err)
	}
	if enrollment.Secret == "" || enrollment.EncryptedSecret == "" || enrollment.ProvisionURI == "" {
		t.Fatalf("incomplete enrollment: %+v", enrollment)
	}
	if len(enrollment.BackupCodes) != 10 {
		t.Fatalf("expected 10 backup codes, got %d", len(enrollment.BackupCodes))
	}
	if enrollment.EncryptedSecret == enrollment.Secret {
		t.Fatal("persisted secret must be encrypted")
	}

	code, err := a.codes.Code(enrollment.Secret)
	if err != nil {
		t.Fatalf("Code error: %v", err)
	}
	if err := a.VerifyTOTP(ctx, "user-1", testTenantID.String(), enrollment.EncryptedSecret, code); err != nil {
		t.Fatalf("VerifyTOTP error: %v", err)
	}

	err = a.VerifyTOTP(ctx, "user-1", testTenantID.String(), enrollment.EncryptedSecret, "000000")
	if !errors.Is(err, ErrAuthenticationFailed) {
		t.Fatalf("expected ErrAuthenticationFailed for wrong code, got %v", err)
	}
}

func TestPurposeTokenFlow(t *testing.T) {
	a, _, _, _ := newTestAuthenticator(t, nil)
	ctx := context.Background()

	raw, err := a.IssuePurposeToken(ctx, "user-1", testTenantID.String(), "password_reset")
	if err != nil {
		t.Fatalf("IssuePurposeToken error: %v", err)
	}

	claims, err := a.VerifyPurposeToken(raw, "password_reset")
	if err != nil {
		t.Fatalf("VerifyPurposeToken error: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Fatalf("unexpected subject %q", claims.Subject)
	}

	if _, err := a.VerifyPurposeToken(raw, "email_verification"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for purpose mismatch, got %v", err)
	}

	// Purpose tokens must never authenticate a request.
	if _, err := a.Authenticate(ctx, authHeaders(raw), "", Permission{}); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for purpose token on pipeline, got %v", err)
	}
}

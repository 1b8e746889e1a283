package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token type discriminator carried in the "typ" claim. Access, refresh and
// purpose tokens are signed with the same secret but are never
// interchangeable: each verifier rejects the other shapes.
const (
	typeAccess  = "access"
	typeRefresh = "refresh"
	typePurpose = "purpose"
)

var (
	// ErrInvalid is returned when a token is malformed, carries a bad
	// signature, or has the wrong type for the verifier used.
	ErrInvalid = errors.New("invalid token")
	// ErrExpired is returned when the token's signature is valid but its
	// expiry has passed. Expiry is strict; no leeway beyond Config.Leeway.
	ErrExpired = errors.New("token expired")
)

// Config holds the signing material and lifetimes for all token shapes.
type Config struct {
	// Secret is the shared HMAC-SHA-512 signing secret, at least 32 bytes.
	Secret []byte
	Issuer string

	AccessTTL  time.Duration
	RefreshTTL time.Duration
	// PurposeTTL bounds short-lived flow tokens (pending second factor and
	// similar multi-step flows). Defaults to 5 minutes.
	PurposeTTL time.Duration

	// Leeway is the clock tolerance applied during verification. Zero means
	// strict expiry.
	Leeway time.Duration

	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// Manager mints and verifies signed tokens. Every issuance carries a fresh
// unique token ID (jti), which is the sole revocation key.
type Manager struct {
	config Config
}

// AccessClaims is the claim shape of short-lived access tokens. Subject is
// the user ID and ID is the unique token identifier.
type AccessClaims struct {
	TenantID       string   `json:"tenant_id"`
	Roles          []string `json:"roles,omitempty"`
	Permissions    []string `json:"permissions,omitempty"`
	ImpersonatorID string   `json:"impersonator_id,omitempty"`
	TokenType      string   `json:"typ"`
	jwt.RegisteredClaims
}

// RefreshClaims is the claim shape of long-lived refresh tokens.
// TokenVersion exists so a future credential rotation can invalidate all
// outstanding refresh tokens at once.
type RefreshClaims struct {
	TenantID     string `json:"tenant_id"`
	TokenVersion uint32 `json:"token_version"`
	TokenType    string `json:"typ"`
	jwt.RegisteredClaims
}

// PurposeClaims is the claim shape of narrowly scoped flow tokens. Purpose
// names the single flow the token is valid for.
type PurposeClaims struct {
	TenantID  string `json:"tenant_id"`
	Purpose   string `json:"purpose"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// Pair bundles the access and refresh tokens returned by a single issuance.
type Pair struct {
	AccessToken  string
	RefreshToken string
}

// NewManager validates the configuration and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.Secret) < 32 {
		return nil, errors.New("token secret must be at least 32 bytes")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if cfg.AccessTTL >= cfg.RefreshTTL {
		return nil, errors.New("access TTL must be shorter than refresh TTL")
	}
	if cfg.PurposeTTL <= 0 {
		cfg.PurposeTTL = 5 * time.Minute
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Manager{config: cfg}, nil
}

// IssuePair mints an access+refresh token pair for the subject. Both tokens
// get independent fresh token IDs.
func (m *Manager) IssuePair(subject, tenantID string, roles, permissions []string, impersonatorID string, tokenVersion uint32) (Pair, error) {
	now := m.config.Now()

	access := AccessClaims{
		TenantID:       tenantID,
		Roles:          roles,
		Permissions:    permissions,
		ImpersonatorID: impersonatorID,
		TokenType:      typeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.AccessTTL)),
		},
	}

	refresh := RefreshClaims{
		TenantID:     tenantID,
		TokenVersion: tokenVersion,
		TokenType:    typeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.RefreshTTL)),
		},
	}

	accessToken, err := jwt.NewWithClaims(jwt.SigningMethodHS512, access).SignedString(m.config.Secret)
	if err != nil {
		return Pair{}, err
	}
	refreshToken, err := jwt.NewWithClaims(jwt.SigningMethodHS512, refresh).SignedString(m.config.Secret)
	if err != nil {
		return Pair{}, err
	}

	return Pair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}

// IssuePurpose mints a short-lived token scoped to a single named flow.
// Purpose tokens are rejected by [Manager.VerifyAccess].
func (m *Manager) IssuePurpose(subject, tenantID, purpose string) (string, error) {
	if purpose == "" {
		return "", errors.New("empty token purpose")
	}

	now := m.config.Now()
	claims := PurposeClaims{
		TenantID:  tenantID,
		Purpose:   purpose,
		TokenType: typePurpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    m.config.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.config.PurposeTTL)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(m.config.Secret)
}

// VerifyAccess parses and verifies an access token.
func (m *Manager) VerifyAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := m.parse(raw, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != typeAccess || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyRefresh parses and verifies a refresh token.
func (m *Manager) VerifyRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := m.parse(raw, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != typeRefresh || claims.ID == "" || claims.Subject == "" {
		return nil, ErrInvalid
	}
	return claims, nil
}

// VerifyPurpose parses a purpose token and checks it was issued for the
// expected flow.
func (m *Manager) VerifyPurpose(raw, purpose string) (*PurposeClaims, error) {
	claims := &PurposeClaims{}
	if err := m.parse(raw, claims); err != nil {
		return nil, err
	}
	if claims.TokenType != typePurpose || claims.ID == "" || claims.Purpose != purpose {
		return nil, ErrInvalid
	}
	return claims, nil
}

func (m *Manager) parse(raw string, claims jwt.Claims) error {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.config.Secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrExpired
		}
		return ErrInvalid
	}
	if !token.Valid {
		return ErrInvalid
	}
	return nil
}

package authcore

import (
	"errors"
	"time"

	"github.com/arkline-systems/authcore/crypt"
	"github.com/arkline-systems/authcore/password"
	"github.com/arkline-systems/authcore/rate"
	"github.com/arkline-systems/authcore/tenant"
	"github.com/arkline-systems/authcore/token"
	"github.com/arkline-systems/authcore/totp"
)

// AuditConfig tunes the async audit pipeline.
type AuditConfig struct {
	Enabled bool
	// BufferSize is the dispatcher queue capacity.
	BufferSize int
	// DropIfFull drops events instead of blocking producers when the
	// queue is full.
	DropIfFull bool
}

// Config assembles every subsystem's configuration. Construct one
// explicitly (start from [DefaultConfig]), fill in the secrets, and hand it
// to [New]; there is no ambient package-level configuration.
type Config struct {
	Token    token.Config
	Password password.Params
	TOTP     totp.Config
	// CipherKey is the 32-byte key protecting stored TOTP secrets at rest.
	CipherKey []byte
	Tenant    tenant.Config
	RateLimit rate.Config
	Audit     AuditConfig
	Metrics   MetricsConfig

	// StoreTimeout bounds each revocation and rate-limit store round trip.
	StoreTimeout time.Duration
	// TenantTimeout bounds tenant lookups. A lookup that exceeds it fails
	// the request with ErrInternal.
	TenantTimeout time.Duration

	// Clock overrides time.Now for the whole pipeline.
	Clock Clock
}

// DefaultConfig returns the production preset. Token.Secret and CipherKey
// carry no defaults and must be set by the caller.
func DefaultConfig() Config {
	return Config{
		Token: token.Config{
			Issuer:     "authcore",
			AccessTTL:  15 * time.Minute,
			RefreshTTL: 30 * 24 * time.Hour,
			PurposeTTL: 5 * time.Minute,
		},
		Password: password.DefaultParams(),
		TOTP: totp.Config{
			Issuer: "authcore",
		},
		RateLimit: rate.Config{
			Window:      time.Minute,
			MaxRequests: 60,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		StoreTimeout:  2 * time.Second,
		TenantTimeout: 2 * time.Second,
	}
}

// Validate rejects configurations the constructors would refuse, without
// building anything.
func (c *Config) Validate() error {
	if len(c.Token.Secret) < 32 {
		return errors.New("config: token secret must be at least 32 bytes")
	}
	if c.Token.AccessTTL <= 0 || c.Token.RefreshTTL <= 0 {
		return errors.New("config: token TTLs must be positive")
	}
	if c.Token.AccessTTL >= c.Token.RefreshTTL {
		return errors.New("config: access TTL must be shorter than refresh TTL")
	}
	if len(c.CipherKey) != crypt.KeySize {
		return errors.New("config: cipher key must be exactly 32 bytes")
	}
	if c.RateLimit.Window <= 0 || c.RateLimit.MaxRequests <= 0 {
		return errors.New("config: rate limit window and max requests must be positive")
	}
	if c.StoreTimeout <= 0 || c.TenantTimeout <= 0 {
		return errors.New("config: store and tenant timeouts must be positive")
	}
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("config: audit buffer size must be positive")
	}
	return nil
}

package totp

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	secretBytes = 32

	defaultPeriod = 30
	defaultDigits = 6

	backupCodeDigits = 6
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ErrInvalidSecret is returned when a stored secret cannot be decoded or is
// empty.
var ErrInvalidSecret = errors.New("invalid totp secret")

// Config tunes the one-time code service. Zero values fall back to the
// RFC 6238 defaults used here: 30-second step, 6 digits, one step of skew.
type Config struct {
	Issuer string
	Period int
	Digits int
	// Skew is the number of adjacent time steps accepted on either side of
	// the current one. The default of 1 is the algorithm's own single-step
	// tolerance; wider windows are deliberately not supported.
	Skew int
	// Now is injectable for deterministic tests.
	Now func() time.Time
}

// Service generates and verifies time-based one-time codes and issues
// backup codes.
type Service struct {
	config Config
}

// New applies defaults and returns a [Service].
func New(cfg Config) *Service {
	if cfg.Period <= 0 {
		cfg.Period = defaultPeriod
	}
	if cfg.Digits <= 0 {
		cfg.Digits = defaultDigits
	}
	if cfg.Skew < 0 {
		cfg.Skew = 0
	}
	if cfg.Skew == 0 {
		cfg.Skew = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{config: cfg}
}

// GenerateSecret draws a fresh 32-byte random secret and returns it
// base32-encoded for storage and provisioning.
func (s *Service) GenerateSecret() (string, error) {
	raw := make([]byte, secretBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return b32.EncodeToString(raw), nil
}

// Code returns the code for the current time step.
func (s *Service) Code(secretBase32 string) (string, error) {
	secret, err := decodeSecret(secretBase32)
	if err != nil {
		return "", err
	}
	counter := s.config.Now().Unix() / int64(s.config.Period)
	return hotpCode(secret, counter, s.config.Digits), nil
}

// Verify checks code against the current time step, tolerating at most
// Config.Skew adjacent steps. Comparison is constant time. A code of the
// wrong shape fails without error.
func (s *Service) Verify(secretBase32, code string) (bool, error) {
	trimmed := strings.TrimSpace(code)
	if len(trimmed) != s.config.Digits || !allDigits(trimmed) {
		return false, nil
	}

	secret, err := decodeSecret(secretBase32)
	if err != nil {
		return false, err
	}

	base := s.config.Now().Unix() / int64(s.config.Period)
	for step := -s.config.Skew; step <= s.config.Skew; step++ {
		counter := base + int64(step)
		if counter < 0 {
			continue
		}
		expected := hotpCode(secret, counter, s.config.Digits)
		if subtle.ConstantTimeCompare([]byte(expected), []byte(trimmed)) == 1 {
			return true, nil
		}
	}

	return false, nil
}

// BackupCodes draws n independent random 6-digit codes. They are not derived
// from any TOTP secret; single-use consumption is the calling service's
// responsibility.
func (s *Service) BackupCodes(n int) ([]string, error) {
	if n <= 0 {
		return nil, errors.New("backup code count must be positive")
	}

	codes := make([]string, 0, n)
	limit := big.NewInt(10)
	for i := 0; i < n; i++ {
		var b strings.Builder
		b.Grow(backupCodeDigits)
		for j := 0; j < backupCodeDigits; j++ {
			d, err := rand.Int(rand.Reader, limit)
			if err != nil {
				return nil, err
			}
			b.WriteByte(byte('0' + d.Int64()))
		}
		codes = append(codes, b.String())
	}
	return codes, nil
}

// ProvisionURI renders the otpauth:// enrollment URI for authenticator apps.
func (s *Service) ProvisionURI(secretBase32, account string) string {
	label := url.PathEscape(s.config.Issuer + ":" + account)

	v := url.Values{}
	v.Set("secret", secretBase32)
	v.Set("issuer", s.config.Issuer)
	v.Set("period", strconv.Itoa(s.config.Period))
	v.Set("digits", strconv.Itoa(s.config.Digits))
	v.Set("algorithm", "SHA256")

	return "otpauth://totp/" + label + "?" + v.Encode()
}

func decodeSecret(secretBase32 string) ([]byte, error) {
	if secretBase32 == "" {
		return nil, ErrInvalidSecret
	}
	raw, err := b32.DecodeString(strings.ToUpper(strings.TrimSpace(secretBase32)))
	if err != nil || len(raw) == 0 {
		return nil, ErrInvalidSecret
	}
	return raw, nil
}

// hotpCode implements RFC 4226 dynamic truncation over HMAC-SHA-256.
func hotpCode(secret []byte, counter int64, digits int) string {
	var msg [8]byte
	binary.BigEndian.PutUint64(msg[:], uint64(counter))

	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(msg[:])
	sum := mac.Sum(nil)

	offset := sum[len(sum)-1] & 0x0f
	bin := (int(sum[offset])&0x7f)<<24 |
		(int(sum[offset+1])&0xff)<<16 |
		(int(sum[offset+2])&0xff)<<8 |
		(int(sum[offset+3]) & 0xff)

	mod := 1
	for i := 0; i < digits; i++ {
		mod *= 10
	}

	return fmt.Sprintf("%0*d", digits, bin%mod)
}

func allDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

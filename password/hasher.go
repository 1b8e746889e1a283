package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	minMemoryKB    uint32 = 8 * 1024
	minTimeCost    uint32 = 1
	minParallelism uint8  = 1
	minSaltLength  uint32 = 16
	minKeyLength   uint32 = 16

	algorithmID = "argon2id"

	// MaxPasswordBytes caps the input size passed to the key derivation
	// function. Inputs beyond this are rejected before any hashing work.
	MaxPasswordBytes = 1024
)

// ErrMalformedHash is returned when an encoded hash cannot be parsed as a
// PHC argon2id string. It is distinct from a plain verification mismatch,
// which returns (false, nil).
var ErrMalformedHash = errors.New("malformed password hash")

// Params holds the Argon2id cost parameters. Every produced hash embeds its
// own salt and parameters, so changing Params later does not invalidate
// previously stored hashes.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultParams returns the baseline production parameters.
func DefaultParams() Params {
	return Params{
		Memory:      64 * 1024,
		Time:        3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// Hasher performs one-way password hashing and verification using Argon2id.
type Hasher struct {
	params Params
}

// New validates the cost parameters and returns a [Hasher]. Parameters below
// the enforced floors are a configuration error, not a runtime condition.
func New(params Params) (*Hasher, error) {
	if params.Memory < minMemoryKB {
		return nil, errors.New("password memory must be >= 8192 KiB")
	}
	if params.Time < minTimeCost {
		return nil, errors.New("password time cost must be >= 1")
	}
	if params.Parallelism < minParallelism {
		return nil, errors.New("password parallelism must be >= 1")
	}
	if params.SaltLength < minSaltLength {
		return nil, errors.New("password salt length must be >= 16")
	}
	if params.KeyLength < minKeyLength {
		return nil, errors.New("password key length must be >= 16")
	}

	return &Hasher{params: params}, nil
}

// Hash derives a salted Argon2id hash and encodes it in PHC string format:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt>$<hash>
func (h *Hasher) Hash(password string) (string, error) {
	if len(password) == 0 {
		return "", errors.New("empty password")
	}
	if len(password) > MaxPasswordBytes {
		return "", fmt.Errorf("password exceeds %d bytes", MaxPasswordBytes)
	}

	salt := make([]byte, h.params.SaltLength)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", err
	}

	key := argon2.IDKey(
		[]byte(password),
		salt,
		h.params.Time,
		h.params.Memory,
		h.params.Parallelism,
		h.params.KeyLength,
	)

	return fmt.Sprintf(
		"$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.Memory,
		h.params.Time,
		h.params.Parallelism,
		base64.StdEncoding.EncodeToString(salt),
		base64.StdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the hash with the parameters embedded in encodedHash and
// compares in constant time. A wrong password yields (false, nil); a hash
// that cannot be parsed yields an error wrapping [ErrMalformedHash].
func (h *Hasher) Verify(password, encodedHash string) (bool, error) {
	if len(password) > MaxPasswordBytes {
		return false, fmt.Errorf("password exceeds %d bytes", MaxPasswordBytes)
	}

	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey(
		[]byte(password),
		parsed.salt,
		parsed.time,
		parsed.memory,
		parsed.parallelism,
		parsed.keyLength,
	)

	return subtle.ConstantTimeCompare(computed, parsed.key) == 1, nil
}

// NeedsRehash reports whether encodedHash was produced with weaker
// parameters than the hasher is currently configured with. Callers typically
// rehash on the next successful verification.
func (h *Hasher) NeedsRehash(encodedHash string) (bool, error) {
	parsed, err := parsePHC(encodedHash)
	if err != nil {
		return false, err
	}

	switch {
	case h.params.Memory > parsed.memory:
		return true, nil
	case h.params.Time > parsed.time:
		return true, nil
	case h.params.Parallelism > parsed.parallelism:
		return true, nil
	case h.params.KeyLength != parsed.keyLength:
		return true, nil
	}

	return false, nil
}

type phcFields struct {
	memory      uint32
	time        uint32
	parallelism uint8
	salt        []byte
	key         []byte
	keyLength   uint32
}

func parsePHC(encoded string) (*phcFields, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: wrong field count", ErrMalformedHash)
	}
	if parts[1] != algorithmID {
		return nil, fmt.Errorf("%w: unsupported algorithm %q", ErrMalformedHash, parts[1])
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if !strings.HasPrefix(parts[2], "v=") || err != nil {
		return nil, fmt.Errorf("%w: bad version field", ErrMalformedHash)
	}
	if version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported argon2 version %d", ErrMalformedHash, version)
	}

	fields := &phcFields{}
	if err := parseCosts(parts[3], fields); err != nil {
		return nil, err
	}

	salt, err := base64.StdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) < int(minSaltLength) {
		return nil, fmt.Errorf("%w: bad salt", ErrMalformedHash)
	}
	key, err := base64.StdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, fmt.Errorf("%w: bad key", ErrMalformedHash)
	}

	fields.salt = salt
	fields.key = key
	fields.keyLength = uint32(len(key))
	return fields, nil
}

func parseCosts(part string, out *phcFields) error {
	pairs := strings.Split(part, ",")
	if len(pairs) != 3 {
		return fmt.Errorf("%w: bad cost field", ErrMalformedHash)
	}

	var haveM, haveT, haveP bool
	for _, pair := range pairs {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return fmt.Errorf("%w: bad cost entry", ErrMalformedHash)
		}
		switch kv[0] {
		case "m":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minMemoryKB) {
				return fmt.Errorf("%w: bad memory cost", ErrMalformedHash)
			}
			out.memory = uint32(v)
			haveM = true
		case "t":
			v, err := strconv.ParseUint(kv[1], 10, 32)
			if err != nil || v < uint64(minTimeCost) {
				return fmt.Errorf("%w: bad time cost", ErrMalformedHash)
			}
			out.time = uint32(v)
			haveT = true
		case "p":
			v, err := strconv.ParseUint(kv[1], 10, 8)
			if err != nil || v < uint64(minParallelism) {
				return fmt.Errorf("%w: bad parallelism", ErrMalformedHash)
			}
			out.parallelism = uint8(v)
			haveP = true
		default:
			return fmt.Errorf("%w: unknown cost parameter %q", ErrMalformedHash, kv[0])
		}
	}

	if !haveM || !haveT || !haveP {
		return fmt.Errorf("%w: missing cost parameter", ErrMalformedHash)
	}
	return nil
}

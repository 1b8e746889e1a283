package revoke

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix is the shared-store namespace for revocation records. The value
// is presence-only; the TTL keeps the keyspace bounded.
const keyPrefix = "revoked_token:"

const minRecordTTL = time.Second

// ErrStoreUnavailable wraps any Redis transport failure. Callers performing
// revocation checks are expected to fail open on it (treat the token as not
// revoked) and surface the condition operationally rather than lock out all
// users.
var ErrStoreUnavailable = errors.New("revocation store unavailable")

// Store records revoked token IDs in a shared Redis keyspace so revocation
// is effective cluster-wide. No local caching: the store is the single
// source of truth, and a cache would keep a revoked token valid for the
// cache window.
type Store struct {
	redis redis.UniversalClient
}

// NewStore wraps the given Redis client.
func NewStore(client redis.UniversalClient) *Store {
	return &Store{redis: client}
}

// MarkRevoked records the token ID with the given TTL. The TTL should be
// the token's remaining lifetime so the record outlives the token and no
// longer. TTLs below one second are clamped up, never down.
func (s *Store) MarkRevoked(ctx context.Context, tokenID string, ttl time.Duration) error {
	if tokenID == "" {
		return errors.New("empty token id")
	}
	if ttl < minRecordTTL {
		ttl = minRecordTTL
	}

	if err := s.redis.SetNX(ctx, keyPrefix+tokenID, 1, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether the token ID has been revoked. A transport
// failure returns (false, ErrStoreUnavailable); the false is the documented
// fail-open default and the error lets the caller alert on it.
func (s *Store) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	if tokenID == "" {
		return false, errors.New("empty token id")
	}

	n, err := s.redis.Exists(ctx, keyPrefix+tokenID).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

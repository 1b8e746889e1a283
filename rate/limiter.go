package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "ratelimit:"

// ErrStoreUnavailable wraps Redis transport failures. [Limiter.Allow]
// already resolves it to an allow (fail open); the error is returned so the
// caller can alert.
var ErrStoreUnavailable = errors.New("rate limit store unavailable")

// Config holds the fixed-window parameters.
type Config struct {
	// Window is the bucket duration. Requests are counted per key per
	// window; the counter resets when the window's TTL lapses.
	Window time.Duration
	// MaxRequests is the number of requests admitted per window. The
	// request that takes the counter past this value is rejected.
	MaxRequests int
	// Prefix namespaces the counters in the shared store.
	Prefix string
}

// Limiter enforces a fixed 60-second-style window per key using shared
// Redis counters, so the budget is cluster-wide rather than per-process.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New validates the window parameters and returns a [Limiter].
func New(client redis.UniversalClient, cfg Config) (*Limiter, error) {
	if cfg.Window <= 0 {
		return nil, errors.New("rate limit window must be positive")
	}
	if cfg.MaxRequests <= 0 {
		return nil, errors.New("rate limit max requests must be positive")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}

	return &Limiter{redis: client, config: cfg}, nil
}

// Allow counts one request against the key's current window and reports
// whether it is within budget. When the store is unreachable the request is
// allowed and ErrStoreUnavailable is returned alongside, so availability is
// preserved while the degradation stays visible.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errors.New("empty rate limit key")
	}

	count, err := l.redis.Incr(ctx, l.config.Prefix+key).Result()
	if err != nil {
		return true, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// First hit opens the window; the TTL is set once so the window is
	// fixed, not sliding.
	if count == 1 {
		if err := l.redis.Expire(ctx, l.config.Prefix+key, l.config.Window).Err(); err != nil {
			return true, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}

	return count <= int64(l.config.MaxRequests), nil
}

// Remaining reports how many requests the key has left in the current
// window. Missing keys report the full budget.
func (l *Limiter) Remaining(ctx context.Context, key string) (int, error) {
	count, err := l.redis.Get(ctx, l.config.Prefix+key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return l.config.MaxRequests, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	remaining := l.config.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// Reset clears the key's window. Intended for tests and operator tooling.
func (l *Limiter) Reset(ctx context.Context, key string) error {
	if err := l.redis.Del(ctx, l.config.Prefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}

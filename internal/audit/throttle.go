package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"

	"github.com/bredsky212/Logiq212/internal/features"
)

// DefaultDenialCooldown is the window within which repeated denials of the
// same feature for the same actor collapse into one entry.
const DefaultDenialCooldown = 5 * time.Minute

// Throttle decides whether an event identified by key may be recorded now.
// Allow claims the key for the cooldown; Release gives it back when the
// claimed write did not happen.
type Throttle interface {
	Allow(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// DenialKey builds the throttle key for a denied attempt.
func DenialKey(communityID, actorID string, feature features.Key) string {
	return strings.Join([]string{communityID, actorID, string(feature)}, "/")
}

// MemThrottle is an in-process throttle backed by an expiring LRU. Keys are
// forgotten after the cooldown, or earlier if capacity is exceeded.
type MemThrottle struct {
	mu   sync.Mutex
	seen *expirable.LRU[string, struct{}]
}

// NewMemThrottle builds a throttle remembering up to capacity keys for cooldown.
func NewMemThrottle(capacity int, cooldown time.Duration) *MemThrottle {
	if capacity <= 0 {
		capacity = 10_000
	}
	if cooldown <= 0 {
		cooldown = DefaultDenialCooldown
	}
	return &MemThrottle{
		seen: expirable.NewLRU[string, struct{}](capacity, nil, cooldown),
	}
}

func (t *MemThrottle) Allow(ctx context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.seen.Get(key); ok {
		return false, nil
	}
	t.seen.Add(key, struct{}{})
	return true, nil
}

func (t *MemThrottle) Release(ctx context.Context, key string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen.Remove(key)
	return nil
}

var redisThrottlePrefix = "throttle/denial/"

// ErrThrottleUnavailable wraps Redis failures.
var ErrThrottleUnavailable = errors.New("audit: throttle unavailable")

// RedisThrottle shares the cooldown across every bot instance using SET NX.
type RedisThrottle struct {
	Client   redis.UniversalClient
	Cooldown time.Duration
}

// NewRedisThrottle connects to redisURL and verifies the connection.
func NewRedisThrottle(ctx context.Context, redisURL string, cooldown time.Duration) (*RedisThrottle, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	if cooldown <= 0 {
		cooldown = DefaultDenialCooldown
	}
	return &RedisThrottle{Client: rdb, Cooldown: cooldown}, nil
}

func (t *RedisThrottle) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := t.Client.SetNX(ctx, redisThrottlePrefix+key, 1, t.Cooldown).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return ok, nil
}

func (t *RedisThrottle) Release(ctx context.Context, key string) error {
	if err := t.Client.Del(ctx, redisThrottlePrefix+key).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrThrottleUnavailable, err)
	}
	return nil
}

// Close releases the Redis connection.
func (t *RedisThrottle) Close() error {
	if t == nil || t.Client == nil {
		return nil
	}
	return t.Client.Close()
}

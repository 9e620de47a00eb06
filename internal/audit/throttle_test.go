package audit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisThrottle(t *testing.T, mr *miniredis.Miniredis, cooldown time.Duration) *RedisThrottle {
	t.Helper()
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return &RedisThrottle{Client: client, Cooldown: cooldown}
}

func TestRedisThrottleSharedAcrossInstances(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	mr := miniredis.RunT(t)

	a := newRedisThrottle(t, mr, time.Minute)
	b := newRedisThrottle(t, mr, time.Minute)
	key := DenialKey("g1", "u1", "mod.ban")

	ok, err := a.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(ok)

	ok, err = b.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(ok, "second instance must see the shared cooldown")

	mr.FastForward(2 * time.Minute)
	ok, err = b.Allow(ctx, key)
	require.NoError(t, err)
	assert.True(ok, "cooldown expired")
}

func TestRedisThrottleUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer client.Close()
	th := &RedisThrottle{Client: client, Cooldown: time.Minute}

	_, err := th.Allow(context.Background(), "k")
	require.ErrorIs(t, err, ErrThrottleUnavailable)
}

func TestNewRedisThrottlePing(t *testing.T) {
	mr := miniredis.RunT(t)
	th, err := NewRedisThrottle(context.Background(), "redis://"+mr.Addr(), 0)
	require.NoError(t, err)
	defer th.Close()
	assert.Equal(t, DefaultDenialCooldown, th.Cooldown)

	_, err = NewRedisThrottle(context.Background(), "not a url", 0)
	assert.Error(t, err)
}

func TestMemThrottleKeysIndependent(t *testing.T) {
	th := NewMemThrottle(0, time.Hour)
	ctx := context.Background()
	for _, key := range []string{"a", "b", "c"} {
		ok, err := th.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, ok, key)
	}
	ok, _ := th.Allow(ctx, "b")
	assert.False(t, ok)
}

func TestMemThrottleRelease(t *testing.T) {
	th := NewMemThrottle(0, time.Hour)
	ctx := context.Background()
	ok, _ := th.Allow(ctx, "k")
	require.True(t, ok)
	require.NoError(t, th.Release(ctx, "k"))
	ok, _ = th.Allow(ctx, "k")
	assert.True(t, ok, "released key should be claimable again")
}

func TestRedisThrottleRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newRedisThrottle(t, mr, time.Minute)
	b := newRedisThrottle(t, mr, time.Minute)
	ctx := context.Background()

	ok, err := a.Allow(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, a.Release(ctx, "k"))

	ok, err = b.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok, "release must be visible to other instances")
}

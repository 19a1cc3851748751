package authz

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisCache(t *testing.T, size int, ttl time.Duration) (*Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewCache(size, ttl, client), mr
}

func TestCache_LocalOnly(t *testing.T) {
	cache := NewCache(4, time.Minute, nil)
	ctx := context.Background()

	_, _, ok := cache.Get(ctx, 1, 10)
	assert.False(t, ok)

	cache.Set(ctx, 1, 10, []string{"manage_roles"})

	perms, tier, ok := cache.Get(ctx, 1, 10)
	require.True(t, ok)
	assert.Equal(t, "l1", tier)
	assert.Equal(t, []string{"manage_roles"}, perms)
}

func TestCache_RedisFallbackAndPromotion(t *testing.T) {
	cache, _ := newRedisCache(t, 4, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, 1, 10, []string{"create_group"})

	// drop L1 so the next read must come from Redis
	cache.Purge()

	perms, tier, ok := cache.Get(ctx, 1, 10)
	require.True(t, ok)
	assert.Equal(t, "l2", tier)
	assert.Equal(t, []string{"create_group"}, perms)

	// promoted back into L1
	_, tier, ok = cache.Get(ctx, 1, 10)
	require.True(t, ok)
	assert.Equal(t, "l1", tier)
}

func TestCache_InvalidateUser_BothLevels(t *testing.T) {
	cache, _ := newRedisCache(t, 8, time.Minute)
	ctx := context.Background()

	cache.Set(ctx, 1, 10, []string{"a"})
	cache.Set(ctx, 1, 11, []string{"b"})
	cache.Set(ctx, 2, 10, []string{"c"})

	cache.InvalidateUser(ctx, 1)

	_, _, ok := cache.Get(ctx, 1, 10)
	assert.False(t, ok)
	_, _, ok = cache.Get(ctx, 1, 11)
	assert.False(t, ok)

	// other users untouched
	perms, _, ok := cache.Get(ctx, 2, 10)
	require.True(t, ok)
	assert.Equal(t, []string{"c"}, perms)
}

func TestCache_RedisTTL(t *testing.T) {
	cache, mr := newRedisCache(t, 4, time.Second)
	ctx := context.Background()

	cache.Set(ctx, 1, 10, []string{"a"})
	cache.Purge()

	mr.FastForward(2 * time.Second)

	_, _, ok := cache.Get(ctx, 1, 10)
	assert.False(t, ok)
}

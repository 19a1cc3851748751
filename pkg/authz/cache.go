package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache holds resolved permission sets. Two levels: an in-process
// expirable LRU in front of an optional shared Redis, both keyed by
// (user, group) and both honoring the same TTL. Either level may be
// absent.
type Cache struct {
	l1    *lru.LRU[string, []string]
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a Cache. redisClient may be nil for a purely local
// cache; size is the L1 entry capacity.
func NewCache(size int, ttl time.Duration, redisClient *redis.Client) *Cache {
	return &Cache{
		l1:    lru.NewLRU[string, []string](size, nil, ttl),
		redis: redisClient,
		ttl:   ttl,
	}
}

func cacheKey(userID, groupID int64) string {
	return fmt.Sprintf("authz:%d:%d", userID, groupID)
}

// Get returns the cached permission set and which tier served it
// ("l1" or "l2"), or ok=false on a miss.
func (c *Cache) Get(ctx context.Context, userID, groupID int64) (perms []string, tier string, ok bool) {
	key := cacheKey(userID, groupID)

	if perms, ok := c.l1.Get(key); ok {
		return perms, "l1", true
	}

	if c.redis == nil {
		return nil, "", false
	}

	data, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return nil, "", false
	}
	if err := json.Unmarshal([]byte(data), &perms); err != nil {
		return nil, "", false
	}

	// promote to L1
	c.l1.Add(key, perms)
	return perms, "l2", true
}

// Set stores a resolved permission set in both levels
func (c *Cache) Set(ctx context.Context, userID, groupID int64, perms []string) {
	key := cacheKey(userID, groupID)
	c.l1.Add(key, perms)

	if c.redis == nil {
		return
	}
	if data, err := json.Marshal(perms); err == nil {
		c.redis.Set(ctx, key, data, c.ttl)
	}
}

// InvalidateUser drops every cached resolution for the user across all
// groups, in both levels. Called after any membership, role, or grant
// mutation touching the user.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) {
	prefix := fmt.Sprintf("authz:%d:", userID)

	for _, key := range c.l1.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.l1.Remove(key)
		}
	}

	if c.redis == nil {
		return
	}
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, prefix+"*", 100).Result()
		if err != nil {
			return
		}
		if len(keys) > 0 {
			c.redis.Del(ctx, keys...)
		}
		if next == 0 {
			return
		}
		cursor = next
	}
}

// Purge empties the local level. Redis entries expire on their own.
func (c *Cache) Purge() {
	c.l1.Purge()
}

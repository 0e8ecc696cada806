package state

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/agentmesh/substrate/component"
)

// CachedStore wraps a backing Store with a Redis-backed read cache. Writes
// go to the backing store first, then invalidate (rather than populate) the
// cache entry, so a failed backing write never leaves a stale cached value
// behind. Get checks Redis before falling through to the backing store and
// populates the cache on a miss.
type CachedStore struct {
	backing Store
	client  *redis.Client
	prefix  string
	ttl     time.Duration
}

// NewCachedStore wraps backing with a Redis cache at ttl per entry. A zero
// ttl disables expiry (entries live until explicitly invalidated).
func NewCachedStore(backing Store, client *redis.Client, prefix string, ttl time.Duration) *CachedStore {
	return &CachedStore{backing: backing, client: client, prefix: prefix, ttl: ttl}
}

func (c *CachedStore) cacheKey(key Key) string {
	return c.prefix + key.Scope.String() + ":" + key.Name
}

func (c *CachedStore) Get(ctx context.Context, key Key) (any, bool, error) {
	raw, err := c.client.Get(ctx, c.cacheKey(key)).Bytes()
	if err == nil {
		var value any
		if jsonErr := json.Unmarshal(raw, &value); jsonErr == nil {
			return value, true, nil
		}
	}

	value, found, err := c.backing.Get(ctx, key)
	if err != nil || !found {
		return value, found, err
	}

	if encoded, encErr := json.Marshal(value); encErr == nil {
		_ = c.client.Set(ctx, c.cacheKey(key), encoded, c.ttl).Err()
	}
	return value, found, nil
}

func (c *CachedStore) Set(ctx context.Context, key Key, value any) error {
	if err := c.backing.Set(ctx, key, value); err != nil {
		return err
	}
	return c.client.Del(ctx, c.cacheKey(key)).Err()
}

func (c *CachedStore) Delete(ctx context.Context, key Key) (bool, error) {
	existed, err := c.backing.Delete(ctx, key)
	if err != nil {
		return existed, err
	}
	return existed, c.client.Del(ctx, c.cacheKey(key)).Err()
}

func (c *CachedStore) ListKeys(ctx context.Context, scope component.Scope, prefix string) ([]string, error) {
	return c.backing.ListKeys(ctx, scope, prefix)
}

func (c *CachedStore) ApplyMigration(ctx context.Context, version int, apply func(ctx context.Context) error) error {
	return c.backing.ApplyMigration(ctx, version, apply)
}

var _ Store = (*CachedStore)(nil)

package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/saimambayao/tms-access/internal/hierarchy"
)

const cacheVersionKey = "acl:version"

// Cache wraps Redis based caching of resolved permission sets. It is an
// optimization only: a nil client or zero TTL bypasses Redis entirely and
// every decision is recomputed from the store.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the per-user cache key. The role is part of the key, so
// a role change invalidates implicitly.
func (c *Cache) BuildKey(ctx context.Context, userID int64, role string) (string, error) {
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("acl:perms:%d:%d:%s", ver, userID, role), nil
}

// FetchSet loads a cached permission set or populates it using the loader.
func (c *Cache) FetchSet(ctx context.Context, key string, loader func(context.Context) ([]string, error)) ([]string, error) {
	if loader == nil {
		return nil, errors.New("resolver: cache loader required")
	}
	if !c.enabled() {
		return loader(ctx)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var cached []string
		if err := json.Unmarshal(payload, &cached); err == nil {
			return cached, nil
		}
		// Corrupt entry: fall through and recompute.
	} else if err != redis.Nil {
		return nil, err
	}
	value, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return nil, err
	}
	return value, nil
}

// InvalidateUser drops the cached sets for one user. The rank table is a
// compiled constant, so the candidate keys are bounded by the role list.
func (c *Cache) InvalidateUser(ctx context.Context, userID int64) error {
	if !c.enabled() {
		return nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(hierarchy.Roles()))
	for _, role := range hierarchy.Roles() {
		keys = append(keys, fmt.Sprintf("acl:perms:%d:%d:%s", ver, userID, role))
	}
	return c.client.Del(ctx, keys...).Err()
}

// Clear invalidates every cached set by bumping the global version.
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	return c.client.Incr(ctx, cacheVersionKey).Err()
}

// TTL exposes the configured entry lifetime.
func (c *Cache) TTL() time.Duration {
	if c == nil {
		return 0
	}
	return c.ttl
}

package permission

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const genKey = "authz:snapshot:gen"

// Cache keeps short-lived authorization snapshots in redis. Keys embed a
// generation counter: invalidating a principal deletes its key, while a
// catalogue-wide change (role deleted, grants edited) bumps the generation
// and orphans every cached snapshot at once.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache constructs a snapshot cache.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached snapshot for a principal, ok=false on miss.
func (c *Cache) Get(ctx context.Context, principalID int64) (Snapshot, bool) {
	if c == nil || c.client == nil {
		return Snapshot{}, false
	}
	key, err := c.key(ctx, principalID)
	if err != nil {
		return Snapshot{}, false
	}
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

// Set stores a snapshot under the current generation.
func (c *Cache) Set(ctx context.Context, principalID int64, snap Snapshot) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.key(ctx, principalID)
	if err != nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	c.client.Set(ctx, key, data, c.ttl)
}

// InvalidatePrincipal drops one principal's cached snapshot.
func (c *Cache) InvalidatePrincipal(ctx context.Context, principalID int64) {
	if c == nil || c.client == nil {
		return
	}
	key, err := c.key(ctx, principalID)
	if err != nil {
		return
	}
	c.client.Del(ctx, key)
}

// InvalidateRole orphans every cached snapshot; role membership is not
// indexed by principal, so the generation bump is the cheap global reset.
func (c *Cache) InvalidateRole(ctx context.Context, roleID int64) {
	if c == nil || c.client == nil {
		return
	}
	c.client.Incr(ctx, genKey)
}

func (c *Cache) key(ctx context.Context, principalID int64) (string, error) {
	gen, err := c.client.Get(ctx, genKey).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return fmt.Sprintf("authz:snapshot:%d:%d", gen, principalID), nil
}

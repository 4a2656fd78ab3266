package tiers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	tierListCacheKey = "tiers:list"
	fallbackCacheKey = "tiers:fallback"
)

// CachedStore is a Redis read-through cache over the tier store. The
// tier list is read on every membership evaluation, so cascades against
// large candidate sets hit Redis instead of the database; every tier
// write invalidates the cached registry.
type CachedStore struct {
	store *Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCachedStore creates a cached store over the given tier store.
func NewCachedStore(store *Store, redisAddr, password string, ttl time.Duration) (*CachedStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: password,
		DB:       0,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &CachedStore{store: store, redis: client, ttl: ttl}, nil
}

// NewCachedStoreWithClient creates a cached store over an existing Redis
// client. Used by tests.
func NewCachedStoreWithClient(store *Store, client *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{store: store, redis: client, ttl: ttl}
}

// Close closes the Redis connection.
func (c *CachedStore) Close() error {
	return c.redis.Close()
}

// ListTiers lists all tiers ordered by priority descending, with caching.
func (c *CachedStore) ListTiers(ctx context.Context) ([]*Tier, error) {
	cached, err := c.redis.Get(ctx, tierListCacheKey).Result()
	if err == nil {
		var result []*Tier
		if err := json.Unmarshal([]byte(cached), &result); err == nil {
			return result, nil
		}
	}

	result, err := c.store.ListTiers(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err == nil {
		c.redis.Set(ctx, tierListCacheKey, data, c.ttl)
	}

	return result, nil
}

// GetFallbackTier retrieves the fallback tier, with caching.
func (c *CachedStore) GetFallbackTier(ctx context.Context) (*Tier, error) {
	cached, err := c.redis.Get(ctx, fallbackCacheKey).Result()
	if err == nil {
		var tier Tier
		if err := json.Unmarshal([]byte(cached), &tier); err == nil {
			return &tier, nil
		}
	}

	tier, err := c.store.GetFallbackTier(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(tier); err == nil {
		c.redis.Set(ctx, fallbackCacheKey, data, c.ttl)
	}

	return tier, nil
}

// GetTier retrieves a tier by ID, uncached. Point reads are rare
// administrative traffic.
func (c *CachedStore) GetTier(ctx context.Context, tierID int64) (*Tier, error) {
	return c.store.GetTier(ctx, tierID)
}

// GetTierByName retrieves a tier by name, uncached.
func (c *CachedStore) GetTierByName(ctx context.Context, name string) (*Tier, error) {
	return c.store.GetTierByName(ctx, name)
}

// CreateTier creates a tier and invalidates the cached registry.
func (c *CachedStore) CreateTier(ctx context.Context, tier *Tier) error {
	if err := c.store.CreateTier(ctx, tier); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// UpdateTier updates a tier and invalidates the cached registry.
func (c *CachedStore) UpdateTier(ctx context.Context, tier *Tier) error {
	if err := c.store.UpdateTier(ctx, tier); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

// DeleteTier deletes a tier and invalidates the cached registry.
func (c *CachedStore) DeleteTier(ctx context.Context, tierID int64) error {
	if err := c.store.DeleteTier(ctx, tierID); err != nil {
		return err
	}
	c.invalidate(ctx)
	return nil
}

func (c *CachedStore) invalidate(ctx context.Context) {
	c.redis.Del(ctx, tierListCacheKey, fallbackCacheKey)
}

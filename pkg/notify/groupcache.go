package notify

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// GroupCache caches a service's remote group name to ID mapping with a
// TTL. Each service owns its own cache; there is no shared global map.
type GroupCache struct {
	cache *expirable.LRU[string, int64]
}

// NewGroupCache creates a group cache holding up to size entries for ttl.
func NewGroupCache(size int, ttl time.Duration) *GroupCache {
	return &GroupCache{
		cache: expirable.NewLRU[string, int64](size, nil, ttl),
	}
}

// Get returns a cached group ID.
func (c *GroupCache) Get(name string) (int64, bool) {
	return c.cache.Get(name)
}

// Put stores a group ID.
func (c *GroupCache) Put(name string, id int64) {
	c.cache.Add(name, id)
}

// GetOrFetch returns the cached group ID, fetching and caching it on a
// miss.
func (c *GroupCache) GetOrFetch(ctx context.Context, name string, fetch func(context.Context, string) (int64, error)) (int64, error) {
	if id, ok := c.cache.Get(name); ok {
		return id, nil
	}

	id, err := fetch(ctx, name)
	if err != nil {
		return 0, err
	}

	c.cache.Add(name, id)
	return id, nil
}

// Invalidate drops one entry.
func (c *GroupCache) Invalidate(name string) {
	c.cache.Remove(name)
}

// Purge drops all entries.
func (c *GroupCache) Purge() {
	c.cache.Purge()
}

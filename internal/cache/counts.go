// Package cache holds the in-process cache of comment counts.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	ristretto_store "github.com/eko/gocache/store/ristretto/v4"
)

// Counts caches one number per key. Entries are stored under the key's
// current generation, so bumping the generation makes every earlier value
// unreachable without waiting for the cache to drop it.
type Counts struct {
	manager *cache.Cache[int64]
	ttl     time.Duration

	mu          sync.Mutex
	generations map[string]uint64
}

// NewCounts builds a ristretto-backed cache holding at most maxEntries
// values, each for at most ttl.
func NewCounts(maxEntries int64, ttl time.Duration) (*Counts, error) {
	client, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create ristretto cache: %w", err)
	}

	return &Counts{
		manager:     cache.New[int64](ristretto_store.NewRistretto(client)),
		ttl:         ttl,
		generations: make(map[string]uint64),
	}, nil
}

func (c *Counts) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generations[key]
}

func cacheKey(key string, generation uint64) string {
	return fmt.Sprintf("comments-count#%s#%d", key, generation)
}

// GetOrLoad returns the cached count for key, calling load on a miss.
func (c *Counts) GetOrLoad(ctx context.Context, key string, load func(context.Context) (int64, error)) (int64, error) {
	// The generation is read before loading: a write racing with load bumps
	// it, and the value stored below is then never read again.
	k := cacheKey(key, c.generation(key))
	if v, err := c.manager.Get(ctx, k); err == nil {
		return v, nil
	}

	v, err := load(ctx)
	if err != nil {
		return 0, err
	}
	_ = c.manager.Set(ctx, k, v, store.WithCost(1), store.WithExpiration(c.ttl))
	return v, nil
}

// Invalidate makes every value cached so far for key unreachable.
func (c *Counts) Invalidate(ctx context.Context, key string) {
	c.mu.Lock()
	previous := c.generations[key]
	c.generations[key] = previous + 1
	c.mu.Unlock()

	_ = c.manager.Delete(ctx, cacheKey(key, previous))
}

// Forget drops the cached value and the generation of a key that will not
// be read again, such as the id of a deleted post.
func (c *Counts) Forget(ctx context.Context, key string) {
	c.mu.Lock()
	current, ok := c.generations[key]
	delete(c.generations, key)
	c.mu.Unlock()

	_ = c.manager.Delete(ctx, cacheKey(key, current))
	if ok {
		// a generation 0 value may still be cached
		_ = c.manager.Delete(ctx, cacheKey(key, 0))
	}
}

// Tracked reports how many keys currently have a generation.
func (c *Counts) Tracked() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.generations)
}

package provider

import (
	"context"
	"sync"
	"time"

	"github.com/pulldeck/pulldeck/internal/client/models"
)

// ttlCache is a bounded map with per-entry expiry. When full, the oldest
// entry is evicted to make room.
type ttlCache[V any] struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry[V]
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry[V any] struct {
	value   V
	expires time.Time
	added   time.Time
}

func newTTLCache[V any](ttl time.Duration, maxEntries int) *ttlCache[V] {
	return &ttlCache[V]{
		entries:    make(map[string]cacheEntry[V]),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[key]
	if !ok || c.now().After(entry.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

func (c *ttlCache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked(now)
	}
	c.entries[key] = cacheEntry[V]{value: value, expires: now.Add(c.ttl), added: now}
}

func (c *ttlCache[V]) evictOldestLocked(now time.Time) {
	var oldestKey string
	var oldestAdded time.Time
	for key, entry := range c.entries {
		if now.After(entry.expires) {
			delete(c.entries, key)
			return
		}
		if oldestKey == "" || entry.added.Before(oldestAdded) {
			oldestKey, oldestAdded = key, entry.added
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
	}
}

func (c *ttlCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Cached wraps a Provider with per-capability TTL caches. Composition keeps
// the transports cache-free; a poller that wants fresh data just skips the
// wrapper.
type Cached struct {
	inner    Provider
	details  *ttlCache[*models.PullRequest]
	reviews  *ttlCache[[]Review]
	comments *ttlCache[[]Comment]
	checks   *ttlCache[[]Check]
}

func NewCached(inner Provider, ttl time.Duration, maxEntries int) *Cached {
	return &Cached{
		inner:    inner,
		details:  newTTLCache[*models.PullRequest](ttl, maxEntries),
		reviews:  newTTLCache[[]Review](ttl, maxEntries),
		comments: newTTLCache[[]Comment](ttl, maxEntries),
		checks:   newTTLCache[[]Check](ttl, maxEntries),
	}
}

func (c *Cached) FetchDetails(ctx context.Context, id string) (*models.PullRequest, error) {
	if v, ok := c.details.Get(id); ok {
		return v, nil
	}
	v, err := c.inner.FetchDetails(ctx, id)
	if err != nil {
		return nil, err
	}
	c.details.Set(id, v)
	return v, nil
}

func (c *Cached) FetchReviews(ctx context.Context, id string) ([]Review, error) {
	if v, ok := c.reviews.Get(id); ok {
		return v, nil
	}
	v, err := c.inner.FetchReviews(ctx, id)
	if err != nil {
		return nil, err
	}
	c.reviews.Set(id, v)
	return v, nil
}

func (c *Cached) FetchComments(ctx context.Context, id string) ([]Comment, error) {
	if v, ok := c.comments.Get(id); ok {
		return v, nil
	}
	v, err := c.inner.FetchComments(ctx, id)
	if err != nil {
		return nil, err
	}
	c.comments.Set(id, v)
	return v, nil
}

func (c *Cached) FetchChecks(ctx context.Context, id string) ([]Check, error) {
	if v, ok := c.checks.Get(id); ok {
		return v, nil
	}
	v, err := c.inner.FetchChecks(ctx, id)
	if err != nil {
		return nil, err
	}
	c.checks.Set(id, v)
	return v, nil
}

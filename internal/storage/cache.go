package storage

import (
	"container/list"
	"context"
	"sync"
	"time"

	"chat_gateway/internal/models"
)

type cacheEntry struct {
	key       string
	value     *models.Provider
	expiresAt time.Time
}

// providerCache is a small thread-safe LRU with TTL for provider lookups.
type providerCache struct {
	mu           sync.Mutex
	capacity     int
	ttl          time.Duration
	items        map[string]*list.Element
	evictionList *list.List
}

func newProviderCache(capacity int, ttl time.Duration) *providerCache {
	return &providerCache{
		capacity:     capacity,
		ttl:          ttl,
		items:        make(map[string]*list.Element, capacity),
		evictionList: list.New(),
	}
}

func (c *providerCache) get(key string) (*models.Provider, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, found := c.items[key]
	if !found {
		return nil, false
	}
	entry := elem.Value.(*cacheEntry)
	if time.Now().After(entry.expiresAt) {
		c.evictionList.Remove(elem)
		delete(c.items, key)
		return nil, false
	}
	c.evictionList.MoveToFront(elem)
	return entry.value, true
}

func (c *providerCache) set(key string, value *models.Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[key]; found {
		c.evictionList.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = time.Now().Add(c.ttl)
		return
	}

	elem := c.evictionList.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	})
	c.items[key] = elem

	if c.evictionList.Len() > c.capacity {
		oldest := c.evictionList.Back()
		if oldest != nil {
			c.evictionList.Remove(oldest)
			delete(c.items, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *providerCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, found := c.items[key]; found {
		c.evictionList.Remove(elem)
		delete(c.items, key)
	}
}

// CachedProviderRepository wraps a ProviderRepository with an LRU read cache.
// Writes invalidate the cached entry so GetByID never serves a stale provider
// past the TTL after an update.
type CachedProviderRepository struct {
	inner ProviderRepository
	cache *providerCache
}

// NewCachedProviderRepository wraps inner with a read cache of the given
// capacity and TTL.
func NewCachedProviderRepository(inner ProviderRepository, capacity int, ttl time.Duration) *CachedProviderRepository {
	return &CachedProviderRepository{
		inner: inner,
		cache: newProviderCache(capacity, ttl),
	}
}

func (r *CachedProviderRepository) GetByID(ctx context.Context, id string) (*models.Provider, error) {
	if p, ok := r.cache.get(id); ok {
		cp := *p
		return &cp, nil
	}

	p, err := r.inner.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.cache.set(id, p)
	cp := *p
	return &cp, nil
}

func (r *CachedProviderRepository) List(ctx context.Context) ([]*models.Provider, error) {
	return r.inner.List(ctx)
}

func (r *CachedProviderRepository) Create(ctx context.Context, provider *models.Provider) error {
	if err := r.inner.Create(ctx, provider); err != nil {
		return err
	}
	r.cache.invalidate(provider.ID)
	return nil
}

func (r *CachedProviderRepository) Update(ctx context.Context, provider *models.Provider) error {
	if err := r.inner.Update(ctx, provider); err != nil {
		return err
	}
	r.cache.invalidate(provider.ID)
	return nil
}

func (r *CachedProviderRepository) Delete(ctx context.Context, id string) error {
	if err := r.inner.Delete(ctx, id); err != nil {
		return err
	}
	r.cache.invalidate(id)
	return nil
}

package cache

import (
	"context"
	"sync"
	"time"
)

type inMemoryCacheItem struct {
	value      []byte
	expiration time.Time
}

func (i *inMemoryCacheItem) isExpired(now time.Time) bool {
	if i.expiration.IsZero() {
		return false
	}
	return now.After(i.expiration)
}

// InMemoryCache is a thread-safe in-memory RawCache with lazy and periodic expiry.
type InMemoryCache struct {
	items      sync.Map // map[string]*inMemoryCacheItem
	closeOnce  sync.Once
	stopClean  chan struct{}
	cleanupInt time.Duration
	maxAge     time.Duration
}

const defaultCleanupInterval = time.Minute

// NewInMemoryCache creates a new in-memory cache. MaxAge, when set, applies to entries stored without a TTL.
func NewInMemoryCache(opts ...Option) *InMemoryCache {
	o := NewOptions(Options{Name: "memory"}, opts...)
	c := &InMemoryCache{
		stopClean:  make(chan struct{}),
		cleanupInt: defaultCleanupInterval,
		maxAge:     o.MaxAge,
	}

	go c.startCleanup()

	return c
}

func (c *InMemoryCache) startCleanup() {
	ticker := time.NewTicker(c.cleanupInt)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stopClean:
			return
		}
	}
}

func (c *InMemoryCache) cleanup() {
	now := time.Now()
	c.items.Range(func(key, value any) bool {
		item, ok := value.(*inMemoryCacheItem)
		if ok && item.isExpired(now) {
			c.items.CompareAndDelete(key, value)
		}
		return true
	})
}

func (c *InMemoryCache) load(key string) (*inMemoryCacheItem, bool) {
	value, ok := c.items.Load(key)
	if !ok {
		return nil, false
	}

	item, ok := value.(*inMemoryCacheItem)
	if !ok || item.isExpired(time.Now()) {
		c.items.CompareAndDelete(key, value)
		return nil, false
	}
	return item, true
}

// Get retrieves an item from the cache.
func (c *InMemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	item, ok := c.load(key)
	if !ok {
		return nil, false, nil
	}
	return item.value, true, nil
}

// Set stores value under key. A non-positive ttl falls back to MaxAge, zero MaxAge means no expiry.
func (c *InMemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.maxAge
	}

	item := &inMemoryCacheItem{value: value}
	if ttl > 0 {
		item.expiration = time.Now().Add(ttl)
	}

	c.items.Store(key, item)
	return nil
}

// Delete removes an item from the cache.
func (c *InMemoryCache) Delete(_ context.Context, key string) error {
	c.items.Delete(key)
	return nil
}

// Exists checks if a live key exists in the cache.
func (c *InMemoryCache) Exists(_ context.Context, key string) (bool, error) {
	_, ok := c.load(key)
	return ok, nil
}

// Flush clears all items from the cache.
func (c *InMemoryCache) Flush(_ context.Context) error {
	c.items.Range(func(key, _ any) bool {
		c.items.Delete(key)
		return true
	})
	return nil
}

// Close stops the cleanup goroutine.
func (c *InMemoryCache) Close() error {
	c.closeOnce.Do(func() { close(c.stopClean) })
	return nil
}

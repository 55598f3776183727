package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

type memoryItem struct {
	data     []byte
	expireAt time.Time
}

func (it *memoryItem) expired() bool {
	return time.Now().After(it.expireAt)
}

// MemoryConfig holds in-memory cache settings.
type MemoryConfig struct {
	MaxSize         int
	CleanupInterval time.Duration
}

// MemoryOption configures the in-memory cache.
type MemoryOption func(*MemoryConfig)

// WithMaxSize caps the number of entries; the least recently used entry is
// evicted when the cap is hit.
func WithMaxSize(n int) MemoryOption {
	return func(c *MemoryConfig) { c.MaxSize = n }
}

// WithCleanupInterval sets how often expired entries are swept.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(c *MemoryConfig) { c.CleanupInterval = d }
}

// MemoryCache implements Service in-process with TTL expiry and LRU eviction.
type MemoryCache struct {
	mu      sync.RWMutex
	data    map[string]*memoryItem
	access  map[string]time.Time
	maxSize int
	done    chan struct{}
}

// NewMemoryCache creates an in-memory cache and starts its sweep loop.
func NewMemoryCache(opts ...MemoryOption) *MemoryCache {
	cfg := &MemoryConfig{
		MaxSize:         1000,
		CleanupInterval: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	mc := &MemoryCache{
		data:    make(map[string]*memoryItem),
		access:  make(map[string]time.Time),
		maxSize: cfg.MaxSize,
		done:    make(chan struct{}),
	}
	go mc.sweep(cfg.CleanupInterval)
	return mc
}

// Close stops the sweep loop.
func (c *MemoryCache) Close() error {
	close(c.done)
	return nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.data[key]; !ok && len(c.data) >= c.maxSize {
		c.evictOldest()
	}
	c.data[key] = &memoryItem{data: data, expireAt: time.Now().Add(ttl)}
	c.access[key] = time.Now()
	return nil
}

func (c *MemoryCache) Get(_ context.Context, key string, dest interface{}) error {
	c.mu.RLock()
	it, ok := c.data[key]
	c.mu.RUnlock()
	if !ok || it.expired() {
		return ErrCacheMiss
	}

	c.mu.Lock()
	c.access[key] = time.Now()
	c.mu.Unlock()

	return json.Unmarshal(it.data, dest)
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, key := range keys {
		delete(c.data, key)
		delete(c.access, key)
	}
	return nil
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *MemoryCache) evictOldest() {
	var oldest string
	var oldestAt time.Time
	for key, at := range c.access {
		if oldest == "" || at.Before(oldestAt) {
			oldest, oldestAt = key, at
		}
	}
	if oldest != "" {
		delete(c.data, oldest)
		delete(c.access, oldest)
	}
}

func (c *MemoryCache) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.Lock()
			for key, it := range c.data {
				if it.expired() {
					delete(c.data, key)
					delete(c.access, key)
				}
			}
			c.mu.Unlock()
		}
	}
}

package cache

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// cacheItem represents an item in the memory cache. A zero expiration means
// the item never expires.
type cacheItem struct {
	value      []byte
	expiration time.Time
}

func (i *cacheItem) expired(now time.Time) bool {
	return !i.expiration.IsZero() && now.After(i.expiration)
}

// MemoryCache implements Cache using in-memory storage. It backs every cache
// in tests and single-node deployments.
type MemoryCache struct {
	items         map[string]*cacheItem
	mutex         sync.RWMutex
	maxMemory     int64
	currentMemory int64
	hits          int64
	misses        int64
	evictions     int64
	cleanupTicker *time.Ticker
	cleanupDone   chan bool
	config        *CacheConfig
	closed        bool
	closeMutex    sync.Mutex // Protects cleanup resources during close
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(config *CacheConfig) *MemoryCache {
	if config == nil {
		config = DefaultCacheConfig()
	}

	cache := &MemoryCache{
		items:       make(map[string]*cacheItem),
		maxMemory:   config.MaxMemory,
		cleanupDone: make(chan bool),
		config:      config,
	}

	go cache.startCleanup()

	return cache
}

// Get retrieves a value from cache
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil, ErrCacheClosed
	}

	item, exists := c.items[key]
	if !exists {
		atomic.AddInt64(&c.misses, 1)
		return nil, ErrKeyNotFound
	}

	if item.expired(time.Now()) {
		atomic.AddInt64(&c.misses, 1)
		delete(c.items, key)
		c.updateMemoryUsage(key, nil, item)
		return nil, ErrKeyNotFound
	}

	atomic.AddInt64(&c.hits, 1)
	result := make([]byte, len(item.value))
	copy(result, item.value)
	return result, nil
}

// Set stores a value in cache; ttl 0 keeps it until evicted.
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return ErrCacheClosed
	}

	c.setLocked(key, value, ttl)
	return nil
}

// SetNX stores a value only when the key is absent or expired.
func (c *MemoryCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return false, ErrCacheClosed
	}

	if item, exists := c.items[key]; exists && !item.expired(time.Now()) {
		return false, nil
	}

	c.setLocked(key, value, ttl)
	return true, nil
}

func (c *MemoryCache) setLocked(key string, value []byte, ttl time.Duration) {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	newItem := &cacheItem{value: valueCopy}
	if ttl > 0 {
		newItem.expiration = time.Now().Add(ttl)
	}

	oldItem := c.items[key]
	newMemory := c.calculateMemoryUsage(key, newItem)

	if oldItem != nil {
		oldMemory := c.calculateMemoryUsage(key, oldItem)
		c.currentMemory = c.currentMemory - oldMemory + newMemory
	} else {
		c.currentMemory += newMemory
	}

	c.evictIfNeeded()

	c.items[key] = newItem
}

// Delete removes a value from cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if item, exists := c.items[key]; exists {
		delete(c.items, key)
		c.updateMemoryUsage(key, nil, item)
	}
	return nil
}

// Exists checks if a key exists in cache
func (c *MemoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	item, exists := c.items[key]
	if !exists {
		return false, nil
	}

	return !item.expired(time.Now()), nil
}

// Increment atomically adds delta to the integer at key. A new key starts at
// delta and never expires, matching the counter semantics.
func (c *MemoryCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return 0, ErrCacheClosed
	}

	item, exists := c.items[key]
	var currentValue int64

	if exists && !item.expired(time.Now()) {
		if val, err := strconv.ParseInt(string(item.value), 10, 64); err == nil {
			currentValue = val
		}
	}

	newValue := currentValue + delta
	newItem := &cacheItem{value: []byte(strconv.FormatInt(newValue, 10))}

	if exists {
		c.updateMemoryUsage(key, newItem, item)
	} else {
		c.currentMemory += c.calculateMemoryUsage(key, newItem)
	}

	c.items[key] = newItem
	return newValue, nil
}

// Close closes the cache connection
func (c *MemoryCache) Close() error {
	c.closeMutex.Lock()
	defer c.closeMutex.Unlock()

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.closed {
		return nil
	}

	if c.cleanupTicker != nil {
		c.cleanupTicker.Stop()
		close(c.cleanupDone)
	}

	c.items = make(map[string]*cacheItem)
	c.currentMemory = 0
	c.closed = true
	return nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() CacheStats {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	active := int64(0)
	now := time.Now()

	for _, item := range c.items {
		if !item.expired(now) {
			active++
		}
	}

	hits := atomic.LoadInt64(&c.hits)
	misses := atomic.LoadInt64(&c.misses)
	total := hits + misses
	hitRatio := 0.0
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	return CacheStats{
		Hits:        hits,
		Misses:      misses,
		HitRatio:    hitRatio,
		Keys:        active,
		MemoryUsage: c.currentMemory,
		Evictions:   atomic.LoadInt64(&c.evictions),
	}
}

// startCleanup runs a background goroutine to clean up expired items
func (c *MemoryCache) startCleanup() {
	c.closeMutex.Lock()
	interval := c.config.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	c.cleanupTicker = time.NewTicker(interval)
	ticker := c.cleanupTicker
	c.closeMutex.Unlock()

	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.cleanupDone:
			return
		}
	}
}

// cleanupExpired removes expired items from the cache
func (c *MemoryCache) cleanupExpired() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := time.Now()
	keysToDelete := make([]string, 0)

	for key, item := range c.items {
		if item.expired(now) {
			keysToDelete = append(keysToDelete, key)
		}
	}

	for _, key := range keysToDelete {
		if item := c.items[key]; item != nil {
			delete(c.items, key)
			c.updateMemoryUsage(key, nil, item)
		}
	}
}

// evictIfNeeded removes items if memory limit is exceeded
func (c *MemoryCache) evictIfNeeded() {
	if c.maxMemory <= 0 || c.currentMemory <= c.maxMemory {
		return
	}

	now := time.Now()
	keysToEvict := make([]string, 0)

	// Expired items first
	for key, item := range c.items {
		if item.expired(now) {
			keysToEvict = append(keysToEvict, key)
		}
	}

	// Still over limit: evict a quarter of the map in iteration order
	if len(keysToEvict) == 0 && c.currentMemory > c.maxMemory {
		count := 0
		targetCount := len(c.items) / 4
		if targetCount == 0 {
			targetCount = 1
		}

		for key := range c.items {
			if count >= targetCount {
				break
			}
			keysToEvict = append(keysToEvict, key)
			count++
		}
	}

	for _, key := range keysToEvict {
		if item := c.items[key]; item != nil {
			delete(c.items, key)
			c.updateMemoryUsage(key, nil, item)
			atomic.AddInt64(&c.evictions, 1)
		}
	}
}

// calculateMemoryUsage estimates memory usage for a cache item
func (c *MemoryCache) calculateMemoryUsage(key string, item *cacheItem) int64 {
	if item == nil {
		return 0
	}
	// Rough estimation: key + value + overhead
	return int64(len(key) + len(item.value) + 64)
}

// updateMemoryUsage updates current memory usage when items change
func (c *MemoryCache) updateMemoryUsage(key string, newItem, oldItem *cacheItem) {
	var newMem, oldMem int64

	if newItem != nil {
		newMem = c.calculateMemoryUsage(key, newItem)
	}
	if oldItem != nil {
		oldMem = c.calculateMemoryUsage(key, oldItem)
	}

	c.currentMemory = c.currentMemory - oldMem + newMem
}

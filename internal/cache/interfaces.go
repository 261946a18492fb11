package cache

import (
	"context"
	"errors"
	"time"
)

// Cache is the generic cache interface shared by the post, score, vote, user
// and counter caches. A zero TTL means the entry never expires.
type Cache interface {
	// Get retrieves a value from cache by key
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in cache with TTL (0 = no expiry)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX stores a value only when the key is absent, reporting whether the
	// write happened. Counter seeding depends on this being atomic.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// Delete removes a value from cache by key
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists in cache
	Exists(ctx context.Context, key string) (bool, error)

	// Increment atomically adds delta to the integer at key, creating it at
	// delta when absent, and returns the new value
	Increment(ctx context.Context, key string, delta int64) (int64, error)

	// Close closes the cache connection
	Close() error

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheConfig holds configuration for cache instances
type CacheConfig struct {
	// TTL is the default time-to-live for cache entries (0 = never expire)
	TTL time.Duration `json:"ttl"`

	// Backend specifies the cache backend (memory, redis)
	Backend CacheType `json:"backend"`

	// MaxMemory is the maximum memory usage for memory cache (in bytes)
	MaxMemory int64 `json:"max_memory"`

	// CleanupInterval for expired item cleanup
	CleanupInterval time.Duration `json:"cleanup_interval"`

	// Redis configuration
	Redis RedisConfig `json:"redis"`
}

// RedisConfig holds Redis-specific configuration
type RedisConfig struct {
	// Address is the Redis server address
	Address string `json:"address"`

	// Password for Redis authentication
	Password string `json:"password"`

	// Database number
	Database int `json:"database"`

	// PoolSize is the maximum number of connections
	PoolSize int `json:"pool_size"`

	// MinIdleConns is the minimum number of idle connections
	MinIdleConns int `json:"min_idle_conns"`

	// MaxConnAge is the maximum connection age
	MaxConnAge time.Duration `json:"max_conn_age"`

	// Cluster settings
	Cluster ClusterConfig `json:"cluster"`
}

// ClusterConfig holds Redis cluster configuration
type ClusterConfig struct {
	// Enabled indicates if cluster mode is enabled
	Enabled bool `json:"enabled"`

	// Addresses is the list of cluster node addresses
	Addresses []string `json:"addresses"`
}

// CacheStats provides cache performance statistics
type CacheStats struct {
	// Hits is the number of cache hits
	Hits int64 `json:"hits"`

	// Misses is the number of cache misses
	Misses int64 `json:"misses"`

	// HitRatio is the cache hit ratio (hits / (hits + misses))
	HitRatio float64 `json:"hit_ratio"`

	// Keys is the current number of keys in cache
	Keys int64 `json:"keys"`

	// MemoryUsage is the current memory usage in bytes
	MemoryUsage int64 `json:"memory_usage"`

	// Evictions is the number of evicted items
	Evictions int64 `json:"evictions"`
}

// Common cache errors
var (
	// ErrKeyNotFound is returned when a key is not found in cache
	ErrKeyNotFound = errors.New("key not found")

	// ErrCacheUnavailable is returned when cache backend is unavailable
	ErrCacheUnavailable = errors.New("cache unavailable")

	// ErrInvalidCacheType is returned when cache type is invalid
	ErrInvalidCacheType = errors.New("invalid cache type")

	// ErrCacheClosed is returned when operating on a closed cache
	ErrCacheClosed = errors.New("cache closed")
)

// DefaultCacheConfig returns default cache configuration
func DefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		TTL:             0,
		Backend:         CacheTypeMemory,
		MaxMemory:       100 * 1024 * 1024, // 100MB
		CleanupInterval: 5 * time.Minute,
		Redis: RedisConfig{
			Address:      "localhost:6379",
			Password:     "",
			Database:     0,
			PoolSize:     10,
			MinIdleConns: 5,
			MaxConnAge:   30 * time.Minute,
			Cluster: ClusterConfig{
				Enabled:   false,
				Addresses: []string{},
			},
		},
	}
}

// CacheType represents different cache backend types
type CacheType string

const (
	// CacheTypeMemory represents in-memory cache
	CacheTypeMemory CacheType = "memory"

	// CacheTypeRedis represents Redis cache
	CacheTypeRedis CacheType = "redis"
)

// IsValid checks if the cache type is valid
func (ct CacheType) IsValid() bool {
	switch ct {
	case CacheTypeMemory, CacheTypeRedis:
		return true
	default:
		return false
	}
}

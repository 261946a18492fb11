package cache

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisCache implements Cache interface using Redis
type RedisCache struct {
	client redis.UniversalClient
	config *CacheConfig
	hits   int64
	misses int64
}

// NewRedisCache creates a new Redis cache instance
func NewRedisCache(config *CacheConfig) (*RedisCache, error) {
	if config == nil {
		config = DefaultCacheConfig()
	}

	var client redis.UniversalClient

	if config.Redis.Cluster.Enabled && len(config.Redis.Cluster.Addresses) > 0 {
		client = redis.NewClusterClient(&redis.ClusterOptions{
			Addrs:        config.Redis.Cluster.Addresses,
			Password:     config.Redis.Password,
			PoolSize:     config.Redis.PoolSize,
			MinIdleConns: config.Redis.MinIdleConns,
			MaxConnAge:   config.Redis.MaxConnAge,
		})
	} else {
		client = redis.NewClient(&redis.Options{
			Addr:         config.Redis.Address,
			Password:     config.Redis.Password,
			DB:           config.Redis.Database,
			PoolSize:     config.Redis.PoolSize,
			MinIdleConns: config.Redis.MinIdleConns,
			MaxConnAge:   config.Redis.MaxConnAge,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}

	return &RedisCache{
		client: client,
		config: config,
	}, nil
}

// Get retrieves a value from Redis cache
func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			atomic.AddInt64(&r.misses, 1)
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	atomic.AddInt64(&r.hits, 1)
	return result, nil
}

// Set stores a value in Redis cache; ttl 0 stores it without expiry.
func (r *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set error: %w", err)
	}
	return nil
}

// SetNX stores a value only if the key does not exist (Redis SET NX).
func (r *RedisCache) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	result, err := r.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx error: %w", err)
	}
	return result, nil
}

// Delete removes a value from Redis cache
func (r *RedisCache) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis delete error: %w", err)
	}
	return nil
}

// Exists checks if a key exists in Redis cache
func (r *RedisCache) Exists(ctx context.Context, key string) (bool, error) {
	result, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists error: %w", err)
	}
	return result > 0, nil
}

// Increment atomically adds delta to the integer at key via INCRBY. Keys
// created this way carry no TTL: counters live forever.
func (r *RedisCache) Increment(ctx context.Context, key string, delta int64) (int64, error) {
	result, err := r.client.IncrBy(ctx, key, delta).Result()
	if err != nil {
		return 0, fmt.Errorf("redis increment error: %w", err)
	}
	return result, nil
}

// Close closes the Redis connection
func (r *RedisCache) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Ping tests the Redis connection
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// GetClient returns the underlying Redis client for advanced operations
func (r *RedisCache) GetClient() redis.UniversalClient {
	return r.client
}

// Stats returns cache statistics from Redis
func (r *RedisCache) Stats() CacheStats {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hits := atomic.LoadInt64(&r.hits)
	misses := atomic.LoadInt64(&r.misses)
	total := hits + misses
	hitRatio := 0.0
	if total > 0 {
		hitRatio = float64(hits) / float64(total)
	}

	stats := CacheStats{
		Hits:     hits,
		Misses:   misses,
		HitRatio: hitRatio,
	}

	if info, err := r.client.Info(ctx, "memory", "keyspace").Result(); err == nil {
		stats.MemoryUsage = parseRedisMemoryUsage(info)
		stats.Keys = parseRedisKeyCount(info)
	}

	return stats
}

// parseRedisMemoryUsage extracts memory usage from Redis INFO output
func parseRedisMemoryUsage(info string) int64 {
	lines := strings.Split(info, "\r\n")
	for _, line := range lines {
		if strings.HasPrefix(line, "used_memory:") {
			parts := strings.Split(line, ":")
			if len(parts) == 2 {
				if memory, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
					return memory
				}
			}
		}
	}
	return 0
}

// parseRedisKeyCount extracts key count from Redis INFO output
func parseRedisKeyCount(info string) int64 {
	lines := strings.Split(info, "\r\n")
	var totalKeys int64

	for _, line := range lines {
		if strings.HasPrefix(line, "db") && strings.Contains(line, "keys=") {
			// Lines look like "db0:keys=10,expires=0,avg_ttl=0"
			parts := strings.Split(line, ":")
			if len(parts) == 2 {
				keyValuePairs := strings.Split(parts[1], ",")
				for _, pair := range keyValuePairs {
					if strings.HasPrefix(pair, "keys=") {
						keysPart := strings.TrimPrefix(pair, "keys=")
						if keys, err := strconv.ParseInt(keysPart, 10, 64); err == nil {
							totalKeys += keys
						}
					}
				}
			}
		}
	}

	return totalKeys
}

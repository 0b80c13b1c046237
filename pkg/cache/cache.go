package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by GetString for missing or expired keys.
var ErrNotFound = errors.New("key not found")

// Cache interface for storing and retrieving values
type Cache interface {
	GetString(ctx context.Context, key string) (string, error)
	SetString(ctx context.Context, key string, value string, expiration time.Duration) error
}

// DefaultSweepInterval is how often SetString drops expired entries that
// were never read again.
const DefaultSweepInterval = time.Minute

// MemoryCache implements an in-memory cache with TTL
type MemoryCache struct {
	mu            sync.Mutex
	items         map[string]*cacheItem
	sweepInterval time.Duration
	lastSweep     time.Time
}

type cacheItem struct {
	value     string
	expiresAt time.Time
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache() *MemoryCache {
	return NewMemoryCacheWithSweep(DefaultSweepInterval)
}

// NewMemoryCacheWithSweep creates a cache whose writes purge expired entries
// at most once per interval.
func NewMemoryCacheWithSweep(interval time.Duration) *MemoryCache {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &MemoryCache{
		items:         make(map[string]*cacheItem),
		sweepInterval: interval,
	}
}

// GetString retrieves a value from memory cache
func (c *MemoryCache) GetString(ctx context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, exists := c.items[key]
	if !exists {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if !item.expiresAt.IsZero() && time.Now().After(item.expiresAt) {
		delete(c.items, key)
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return item.value, nil
}

// SetString stores a value with the given TTL. A zero expiration never expires.
func (c *MemoryCache) SetString(ctx context.Context, key string, value string, expiration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	if now.Sub(c.lastSweep) >= c.sweepInterval {
		c.sweepLocked(now)
	}

	item := &cacheItem{value: value}
	if expiration > 0 {
		item.expiresAt = now.Add(expiration)
	}
	c.items[key] = item
	return nil
}

// Len reports how many entries are held, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *MemoryCache) sweepLocked(now time.Time) {
	for key, item := range c.items {
		if !item.expiresAt.IsZero() && now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
	c.lastSweep = now
}

// RedisClient is the subset of *redis.Client the adapter uses
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisAdapter implements Cache on top of Redis
type RedisAdapter struct {
	client RedisClient
}

// NewRedisAdapter creates a new Redis adapter
func NewRedisAdapter(client RedisClient) *RedisAdapter {
	return &RedisAdapter{
		client: client,
	}
}

// NewRedisAdapterFromURL accepts either a redis:// URL or a bare host:port.
func NewRedisAdapterFromURL(url string) *RedisAdapter {
	opt, err := redis.ParseURL(url)
	if err != nil {
		opt = &redis.Options{
			Addr: url,
		}
	}
	return NewRedisAdapter(redis.NewClient(opt))
}

// GetString returns ErrNotFound when the key is absent
func (c *RedisAdapter) GetString(ctx context.Context, key string) (string, error) {
	val, err := c.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return val, err
}

// SetString implements Cache.SetString
func (c *RedisAdapter) SetString(ctx context.Context, key string, value string, expiration time.Duration) error {
	return c.client.Set(ctx, key, value, expiration).Err()
}

// Close closes the Redis connection
func (c *RedisAdapter) Close() error {
	return c.client.Close()
}

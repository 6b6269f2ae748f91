// Package cache stores JSON-encoded values in Redis, or in process memory
// when Redis is disabled or unreachable.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fleetfuel:"

// Config configures the cache backend
type Config struct {
	RedisURL    string
	EnableRedis bool
	DefaultTTL  time.Duration
}

type memEntry struct {
	data    []byte
	expires time.Time
}

// Cache is safe for concurrent use
type Cache struct {
	rdb        *redis.Client
	defaultTTL time.Duration

	mu  sync.RWMutex
	mem map[string]memEntry
	now func() time.Time
}

// New creates a cache. A Redis connection failure is logged and the cache
// falls back to memory.
func New(cfg Config) *Cache {
	c := &Cache{
		defaultTTL: cfg.DefaultTTL,
		mem:        make(map[string]memEntry),
		now:        time.Now,
	}
	if c.defaultTTL <= 0 {
		c.defaultTTL = time.Minute
	}

	if !cfg.EnableRedis || cfg.RedisURL == "" {
		return c
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Printf("WARN: invalid REDIS_URL, using in-memory cache: %v", err)
		return c
	}
	rdb := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Printf("WARN: redis unreachable, using in-memory cache: %v", err)
		rdb.Close()
		return c
	}

	log.Printf("INFO: cache backed by redis at %s", opt.Addr)
	c.rdb = rdb
	return c
}

// Backend reports which store is active
func (c *Cache) Backend() string {
	if c.rdb != nil {
		return "redis"
	}
	return "memory"
}

// Get decodes the value stored at key into dst and reports whether it was found
func (c *Cache) Get(ctx context.Context, key string, dst interface{}) bool {
	var data []byte

	if c.rdb != nil {
		b, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				log.Printf("WARN: cache get %s: %v", key, err)
			}
			return false
		}
		data = b
	} else {
		c.mu.RLock()
		e, ok := c.mem[key]
		c.mu.RUnlock()
		if !ok || !c.now().Before(e.expires) {
			return false
		}
		data = e.data
	}

	if err := json.Unmarshal(data, dst); err != nil {
		log.Printf("WARN: cache decode %s: %v", key, err)
		return false
	}
	return true
}

// Set stores v under key for ttl; a non-positive ttl uses the default
func (c *Cache) Set(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if c.rdb != nil {
		return c.rdb.Set(ctx, keyPrefix+key, data, ttl).Err()
	}

	c.mu.Lock()
	c.mem[key] = memEntry{data: data, expires: c.now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

// Delete removes key
func (c *Cache) Delete(ctx context.Context, key string) error {
	if c.rdb != nil {
		return c.rdb.Del(ctx, keyPrefix+key).Err()
	}
	c.mu.Lock()
	delete(c.mem, key)
	c.mu.Unlock()
	return nil
}

// Close releases the Redis connection, if any
func (c *Cache) Close() error {
	if c.rdb != nil {
		return c.rdb.Close()
	}
	return nil
}

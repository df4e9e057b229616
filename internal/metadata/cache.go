package metadata

import (
	"context"
	"errors"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
)

// LRUCache keeps recently resolved titles in process.
type LRUCache struct {
	next  Resolver
	cache *lru.Cache[string, string]
}

func NewLRUCache(next Resolver, size int) (*LRUCache, error) {
	if size <= 0 {
		size = 1024
	}
	c, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &LRUCache{next: next, cache: c}, nil
}

// Cached returns a title already in the cache without resolving it.
func (c *LRUCache) Cached(ref string) (string, bool) {
	return c.cache.Get(ref)
}

func (c *LRUCache) Title(ctx context.Context, ref string) (string, error) {
	if t, ok := c.cache.Get(ref); ok {
		return t, nil
	}
	t, err := c.next.Title(ctx, ref)
	if err != nil {
		return "", err
	}
	c.cache.Add(ref, t)
	return t, nil
}

// RedisCache shares resolved titles between server instances. Redis errors
// are treated as cache misses.
type RedisCache struct {
	next   Resolver
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisCache(next Resolver, client *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisCache{next: next, client: client, ttl: ttl, prefix: "stroam:title:"}
}

func (c *RedisCache) Title(ctx context.Context, ref string) (string, error) {
	key := c.prefix + ref
	t, err := c.client.Get(ctx, key).Result()
	if err == nil && t != "" {
		return t, nil
	}
	if err != nil && !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return "", ctx.Err()
	}

	t, err = c.next.Title(ctx, ref)
	if err != nil {
		return "", err
	}
	_ = c.client.Set(ctx, key, t, c.ttl).Err()
	return t, nil
}

// NewRedisClient connects to addr and pings it. It returns nil when the
// server is unreachable so callers can run without the shared cache.
func NewRedisClient(addr, password string) *redis.Client {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil
	}
	return client
}

// Package cache implements the key/value resource on top of Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/0x0BSoD/turfoo/internal/resource"
)

var ErrNotConnected = errors.New("cache is not connected")

var (
	_ resource.Connectable     = (*Redis)(nil)
	_ resource.HealthCheckable = (*Redis)(nil)
	_ resource.Readable        = (*Redis)(nil)
	_ resource.Writable        = (*Redis)(nil)
	_ resource.Deletable       = (*Redis)(nil)
)

type Config struct {
	Addr        string
	Username    string
	Password    string
	DB          int
	DialTimeout time.Duration
}

type Redis struct {
	cfg Config

	mu     sync.RWMutex
	client *redis.Client
}

func New(cfg Config) *Redis {
	return &Redis{cfg: cfg}
}

func (c *Redis) Connect(ctx context.Context) error {
	client := redis.NewClient(&redis.Options{
		Addr:        c.cfg.Addr,
		Username:    c.cfg.Username,
		Password:    c.cfg.Password,
		DB:          c.cfg.DB,
		DialTimeout: c.cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return &resource.ConnectionError{Resource: "redis", Addr: c.cfg.Addr, Err: err}
	}

	c.mu.Lock()
	prev := c.client
	c.client = client
	c.mu.Unlock()

	if prev != nil {
		_ = prev.Close()
	}
	return nil
}

func (c *Redis) Disconnect() {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()

	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		slog.Warn("failed to close redis client", "addr", c.cfg.Addr, "err", err)
	}
}

func (c *Redis) Healthy(ctx context.Context) bool {
	client, err := c.conn()
	if err != nil {
		return false
	}
	return client.Ping(ctx).Err() == nil
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := c.conn()
	if err != nil {
		return nil, err
	}

	value, err := client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, &resource.NotFoundError{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return value, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	client, err := c.conn()
	if err != nil {
		return err
	}

	if err := client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

func (c *Redis) Delete(ctx context.Context, key string) error {
	client, err := c.conn()
	if err != nil {
		return err
	}

	if err := client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Claim sets key to owner with the given expiry unless another owner holds it.
// It returns true when the key now belongs to owner, including when owner
// already held it.
func (c *Redis) Claim(ctx context.Context, key, owner string, ttl time.Duration) (bool, error) {
	client, err := c.conn()
	if err != nil {
		return false, err
	}

	ok, err := client.SetNX(ctx, key, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	if ok {
		return true, nil
	}

	current, err := client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between the two calls
		return client.SetNX(ctx, key, owner, ttl).Result()
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	return current == owner, nil
}

// releaseScript deletes KEYS[1] only while it still holds ARGV[1].
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Release drops a marker taken with Claim. It reports false when the marker
// expired or belongs to another owner, and leaves it untouched in that case.
func (c *Redis) Release(ctx context.Context, key, owner string) (bool, error) {
	client, err := c.conn()
	if err != nil {
		return false, err
	}

	n, err := releaseScript.Run(ctx, client, []string{key}, owner).Int()
	if err != nil {
		return false, fmt.Errorf("redis release %s: %w", key, err)
	}
	return n == 1, nil
}

func (c *Redis) conn() (*redis.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

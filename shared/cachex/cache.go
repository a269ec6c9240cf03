package cachex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"facility-compliance-system/shared/config"
)

var ErrNotInitialized = errors.New("cachex: redis client not initialized")

// Client stores JSON read models in Redis. It satisfies lifecycle.JSONCache.
type Client struct {
	rdb *redis.Client
}

func New(cfg config.Config) (*Client, error) {
	if cfg.RedisAddr == "" {
		return nil, errors.New("REDIS_ADDR is required")
	}
	opts := &redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
	return NewFromClient(redis.NewClient(opts)), nil
}

// NewFromClient shares an existing connection, e.g. with lockx.
func NewFromClient(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

func (c *Client) conn() (*redis.Client, error) {
	if c == nil || c.rdb == nil {
		return nil, ErrNotInitialized
	}
	return c.rdb, nil
}

func (c *Client) Ping(ctx context.Context) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	rdb, err := c.conn()
	if err != nil {
		return nil
	}
	return rdb.Close()
}

// SetJSON stores value under key. A ttl of zero keeps the entry until deleted.
func (c *Client) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cachex: encode %s: %w", key, err)
	}
	return rdb.Set(ctx, key, payload, ttl).Err()
}

// GetJSON decodes key into dest and reports whether it was present. Entries that no
// longer decode into dest are evicted and reported as a miss.
func (c *Client) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	rdb, err := c.conn()
	if err != nil {
		return false, err
	}
	raw, err := rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if json.Unmarshal(raw, dest) != nil {
		_ = rdb.Del(ctx, key).Err()
		return false, nil
	}
	return true, nil
}

func (c *Client) Delete(ctx context.Context, key string) error {
	rdb, err := c.conn()
	if err != nil {
		return err
	}
	return rdb.Del(ctx, key).Err()
}

// TTL reports the remaining lifetime of key, or zero when it is missing or persistent.
func (c *Client) TTL(ctx context.Context, key string) (time.Duration, error) {
	rdb, err := c.conn()
	if err != nil {
		return 0, err
	}
	d, err := rdb.PTTL(ctx, key).Result()
	if err != nil || d < 0 {
		return 0, err
	}
	return d, nil
}

// Client exposes the underlying connection for packages that script Redis directly.
func (c *Client) Client() *redis.Client {
	if c == nil {
		return nil
	}
	return c.rdb
}

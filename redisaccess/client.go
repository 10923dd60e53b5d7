// Package redisaccess runs Redis commands through the access executor on a
// dedicated connection per attempt.
package redisaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	access "github.com/JohnPlummer/jp-go-access"
)

// Config holds Redis connection configuration.
type Config struct {
	URL      string `koanf:"url"`
	Password string `koanf:"password"`
}

// Conn is one Redis connection held for a single attempt.
type Conn struct {
	conn *redis.Conn
}

// Close returns the connection to the pool.
func (c *Conn) Close() error {
	return c.conn.Close()
}

// Client runs Redis commands with bounded retry.
type Client struct {
	rdb  *redis.Client
	opts []access.Option
}

// Open creates a Client from cfg. No connection is made until the first command.
func Open(cfg Config, opts ...access.Option) (*Client, error) {
	redisOpts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		redisOpts.Password = cfg.Password
	}
	return New(redis.NewClient(redisOpts), opts...), nil
}

// New wraps an existing go-redis client.
func New(rdb *redis.Client, opts ...access.Option) *Client {
	base := []access.Option{
		access.WithName("redis"),
		access.WithErrorClassifier(Classifier{}),
	}
	return &Client{rdb: rdb, opts: append(base, opts...)}
}

// With returns a Client sharing the pool with extra options applied.
func (c *Client) With(opts ...access.Option) *Client {
	return &Client{rdb: c.rdb, opts: append(append([]access.Option(nil), c.opts...), opts...)}
}

// Close closes the pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Acquire implements access.Acquirer. The connection is pinged before use.
func (c *Client) Acquire(ctx context.Context, _ access.Request) (*Conn, error) {
	conn := c.rdb.Conn()
	if err := conn.Ping(ctx).Err(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &Conn{conn: conn}, nil
}

func run[T any](ctx context.Context, c *Client, method, key string, fn func(ctx context.Context, conn *redis.Conn) (T, error)) (T, error) {
	exec := access.NewExecutor(c, func(ctx context.Context, h *Conn, _ access.Request) (T, error) {
		return fn(ctx, h.conn)
	}, c.opts...)

	result, err := exec.Execute(ctx, access.Request{Method: method, Target: key})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.Value, nil
}

// lookup turns redis.Nil into a miss.
func lookup(v string, err error) (string, bool, error) {
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

type found struct {
	value string
	ok    bool
}

// Get returns the value of key and whether it exists.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	f, err := run(ctx, c, "GET", key, func(ctx context.Context, conn *redis.Conn) (found, error) {
		v, ok, err := lookup(conn.Get(ctx, key).Result())
		return found{v, ok}, err
	})
	return f.value, f.ok, err
}

// Set stores value under key. A ttl of zero keeps the key forever.
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	_, err := run(ctx, c, "SET", key, func(ctx context.Context, conn *redis.Conn) (struct{}, error) {
		return struct{}{}, conn.Set(ctx, key, value, ttl).Err()
	})
	return err
}

// Del removes keys and returns how many existed.
func (c *Client) Del(ctx context.Context, keys ...string) (int64, error) {
	return run(ctx, c, "DEL", fmt.Sprint(keys), func(ctx context.Context, conn *redis.Conn) (int64, error) {
		return conn.Del(ctx, keys...).Result()
	})
}

// HSet sets hash fields, given as field/value pairs or a map, and returns how many
// were added.
func (c *Client) HSet(ctx context.Context, key string, values ...any) (int64, error) {
	return run(ctx, c, "HSET", key, func(ctx context.Context, conn *redis.Conn) (int64, error) {
		return conn.HSet(ctx, key, values...).Result()
	})
}

// HGet returns one hash field and whether it exists.
func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	f, err := run(ctx, c, "HGET", key, func(ctx context.Context, conn *redis.Conn) (found, error) {
		v, ok, err := lookup(conn.HGet(ctx, key, field).Result())
		return found{v, ok}, err
	})
	return f.value, f.ok, err
}

// HGetAll returns every field of a hash.
func (c *Client) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return run(ctx, c, "HGETALL", key, func(ctx context.Context, conn *redis.Conn) (map[string]string, error) {
		return conn.HGetAll(ctx, key).Result()
	})
}

// ZAdd adds members to a sorted set and returns how many were new.
func (c *Client) ZAdd(ctx context.Context, key string, members ...redis.Z) (int64, error) {
	return run(ctx, c, "ZADD", key, func(ctx context.Context, conn *redis.Conn) (int64, error) {
		return conn.ZAdd(ctx, key, members...).Result()
	})
}

// ZRange returns the members ranked start through stop, inclusive.
func (c *Client) ZRange(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return run(ctx, c, "ZRANGE", key, func(ctx context.Context, conn *redis.Conn) ([]string, error) {
		return conn.ZRange(ctx, key, start, stop).Result()
	})
}

// ZRangeByScore returns the members with scores between minScore and maxScore.
// Bounds use Redis syntax ("-inf", "(5", "10").
func (c *Client) ZRangeByScore(ctx context.Context, key, minScore, maxScore string) ([]string, error) {
	return run(ctx, c, "ZRANGEBYSCORE", key, func(ctx context.Context, conn *redis.Conn) ([]string, error) {
		return conn.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: minScore, Max: maxScore}).Result()
	})
}

// Publish sends message on channel and returns the number of receivers.
func (c *Client) Publish(ctx context.Context, channel string, message any) (int64, error) {
	return run(ctx, c, "PUBLISH", channel, func(ctx context.Context, conn *redis.Conn) (int64, error) {
		return conn.Publish(ctx, channel, message).Result()
	})
}

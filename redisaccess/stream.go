package redisaccess

import (
	"context"

	"github.com/redis/go-redis/v9"

	access "github.com/JohnPlummer/jp-go-access"
)

// StreamList reads a list front to back in batches of LRANGE windows.
func (c *Client) StreamList(ctx context.Context, key string) (*access.Stream[string], error) {
	open := func(_ context.Context, h *Conn, _ access.Request) (access.Cursor[string], error) {
		return &rangeCursor[string]{
			fetch: func(ctx context.Context, start, stop int64) ([]string, error) {
				return h.conn.LRange(ctx, key, start, stop).Result()
			},
		}, nil
	}
	return access.OpenStream(ctx, c, open, access.Request{Method: "LRANGE", Target: key}, c.opts...)
}

// StreamSortedSet reads a sorted set in ascending score order with scores.
func (c *Client) StreamSortedSet(ctx context.Context, key string) (*access.Stream[redis.Z], error) {
	open := func(_ context.Context, h *Conn, _ access.Request) (access.Cursor[redis.Z], error) {
		return &rangeCursor[redis.Z]{
			fetch: func(ctx context.Context, start, stop int64) ([]redis.Z, error) {
				return h.conn.ZRangeWithScores(ctx, key, start, stop).Result()
			},
		}, nil
	}
	return access.OpenStream(ctx, c, open, access.Request{Method: "ZRANGE", Target: key}, c.opts...)
}

// rangeCursor pages through an index range. Writes to the key while streaming
// can shift the windows.
type rangeCursor[R any] struct {
	fetch func(ctx context.Context, start, stop int64) ([]R, error)
	pos   int64
}

func (c *rangeCursor[R]) FetchMany(ctx context.Context, n int) ([]R, error) {
	records, err := c.fetch(ctx, c.pos, c.pos+int64(n)-1)
	if err != nil {
		return nil, err
	}
	c.pos += int64(len(records))
	return records, nil
}

func (c *rangeCursor[R]) Close() error {
	return nil
}

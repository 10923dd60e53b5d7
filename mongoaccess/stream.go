package mongoaccess

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	access "github.com/JohnPlummer/jp-go-access"
)

// ErrDecode marks a document that could not be decoded into the requested type.
var ErrDecode = errors.New("decode document")

// DocumentCursor is the part of *mongo.Cursor a stream reads from.
type DocumentCursor interface {
	Next(ctx context.Context) bool
	Decode(v any) error
	Err() error
	Close(ctx context.Context) error
}

var _ DocumentCursor = (*mongo.Cursor)(nil)

// NewCursor adapts a document cursor to access.Cursor, decoding every document into T.
func NewCursor[T any](cur DocumentCursor) access.Cursor[T] {
	return &documentCursor[T]{cur: cur}
}

type documentCursor[T any] struct {
	cur DocumentCursor
}

func (c *documentCursor[T]) FetchMany(ctx context.Context, n int) ([]T, error) {
	out := make([]T, 0, n)
	for len(out) < n && c.cur.Next(ctx) {
		var v T
		if err := c.cur.Decode(&v); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		out = append(out, v)
	}
	if err := c.cur.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *documentCursor[T]) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultDisconnectTimeout)
	defer cancel()
	return c.cur.Close(ctx)
}

// Stream finds the documents matching filter and returns them in batches. The
// server-side batch size follows the stream's batch size.
func Stream[T any](ctx context.Context, c *Client, collection string, filter any) (*access.Stream[T], error) {
	config := access.DefaultConfig()
	for _, opt := range c.opts {
		opt(config)
	}
	batchSize := int32(min(max(config.BatchSize, 1), math.MaxInt32))

	open := func(ctx context.Context, s *Session, req access.Request) (access.Cursor[T], error) {
		cur, err := s.Collection(req.Target).Find(ctx, filter, options.Find().SetBatchSize(batchSize))
		if err != nil {
			return nil, err
		}
		return NewCursor[T](cur), nil
	}
	return access.OpenStream(ctx, c, open, access.Request{Method: "FIND", Target: collection}, c.opts...)
}

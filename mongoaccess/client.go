// Package mongoaccess runs MongoDB operations through the access executor. Each
// attempt connects its own client and disconnects it on release.
package mongoaccess

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	access "github.com/JohnPlummer/jp-go-access"
)

// DefaultDisconnectTimeout bounds the disconnect run on release.
const DefaultDisconnectTimeout = 10 * time.Second

// Config holds MongoDB connection settings.
type Config struct {
	URI            string        `koanf:"uri"`
	Database       string        `koanf:"database"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// Session is one connected client held for a single attempt.
type Session struct {
	client *mongo.Client
	db     *mongo.Database
}

// Collection returns a collection of the configured database.
func (s *Session) Collection(name string) *mongo.Collection {
	return s.db.Collection(name)
}

// Close disconnects the client.
func (s *Session) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultDisconnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Client runs MongoDB operations with bounded retry.
type Client struct {
	cfg  Config
	opts []access.Option
}

// New creates a Client. No connection is made until the first operation.
func New(cfg Config, opts ...access.Option) *Client {
	base := []access.Option{
		access.WithName("mongo"),
		access.WithErrorClassifier(Classifier{}),
	}
	return &Client{cfg: cfg, opts: append(base, opts...)}
}

// With returns a Client with extra options applied.
func (c *Client) With(opts ...access.Option) *Client {
	return &Client{cfg: c.cfg, opts: append(append([]access.Option(nil), c.opts...), opts...)}
}

// Acquire implements access.Acquirer. The new client is pinged before use.
func (c *Client) Acquire(ctx context.Context, _ access.Request) (*Session, error) {
	clientOpts := options.Client().ApplyURI(c.cfg.URI)
	if c.cfg.ConnectTimeout > 0 {
		clientOpts.SetConnectTimeout(c.cfg.ConnectTimeout)
	}

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	return &Session{client: client, db: client.Database(c.cfg.Database)}, nil
}

func run[T any](ctx context.Context, c *Client, method, collection string, fn func(ctx context.Context, coll *mongo.Collection) (T, error)) (T, error) {
	exec := access.NewExecutor(c, func(ctx context.Context, s *Session, req access.Request) (T, error) {
		return fn(ctx, s.Collection(req.Target))
	}, c.opts...)

	result, err := exec.Execute(ctx, access.Request{Method: method, Target: collection})
	if err != nil {
		var zero T
		return zero, err
	}
	return result.Value, nil
}

// UpdateResult reports the effect of an update.
type UpdateResult struct {
	Matched    int64
	Modified   int64
	Upserted   int64
	UpsertedID any
}

// InsertOne inserts doc and returns its id.
func (c *Client) InsertOne(ctx context.Context, collection string, doc any) (any, error) {
	return run(ctx, c, "INSERT", collection, func(ctx context.Context, coll *mongo.Collection) (any, error) {
		res, err := coll.InsertOne(ctx, doc)
		if err != nil {
			return nil, err
		}
		return res.InsertedID, nil
	})
}

// InsertMany inserts docs and returns their ids in order.
func (c *Client) InsertMany(ctx context.Context, collection string, docs []any) ([]any, error) {
	return run(ctx, c, "INSERT", collection, func(ctx context.Context, coll *mongo.Collection) ([]any, error) {
		res, err := coll.InsertMany(ctx, docs)
		if err != nil {
			return nil, err
		}
		return res.InsertedIDs, nil
	})
}

// FindOne decodes the first document matching filter, or returns nil when none does.
func FindOne[T any](ctx context.Context, c *Client, collection string, filter any) (*T, error) {
	return run(ctx, c, "FIND", collection, func(ctx context.Context, coll *mongo.Collection) (*T, error) {
		var v T
		err := coll.FindOne(ctx, filter).Decode(&v)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return &v, nil
	})
}

// UpdateOne applies update to the first document matching filter.
func (c *Client) UpdateOne(ctx context.Context, collection string, filter, update any) (UpdateResult, error) {
	return run(ctx, c, "UPDATE", collection, func(ctx context.Context, coll *mongo.Collection) (UpdateResult, error) {
		return updateResult(coll.UpdateOne(ctx, filter, update))
	})
}

// UpdateMany applies update to every document matching filter.
func (c *Client) UpdateMany(ctx context.Context, collection string, filter, update any) (UpdateResult, error) {
	return run(ctx, c, "UPDATE", collection, func(ctx context.Context, coll *mongo.Collection) (UpdateResult, error) {
		return updateResult(coll.UpdateMany(ctx, filter, update))
	})
}

func updateResult(res *mongo.UpdateResult, err error) (UpdateResult, error) {
	if err != nil {
		return UpdateResult{}, err
	}
	return UpdateResult{
		Matched:    res.MatchedCount,
		Modified:   res.ModifiedCount,
		Upserted:   res.UpsertedCount,
		UpsertedID: res.UpsertedID,
	}, nil
}

// DeleteOne removes the first document matching filter and returns the count removed.
func (c *Client) DeleteOne(ctx context.Context, collection string, filter any) (int64, error) {
	return run(ctx, c, "DELETE", collection, func(ctx context.Context, coll *mongo.Collection) (int64, error) {
		return deleted(coll.DeleteOne(ctx, filter))
	})
}

// DeleteMany removes every document matching filter and returns the count removed.
func (c *Client) DeleteMany(ctx context.Context, collection string, filter any) (int64, error) {
	return run(ctx, c, "DELETE", collection, func(ctx context.Context, coll *mongo.Collection) (int64, error) {
		return deleted(coll.DeleteMany(ctx, filter))
	})
}

func deleted(res *mongo.DeleteResult, err error) (int64, error) {
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// CountDocuments counts the documents matching filter.
func (c *Client) CountDocuments(ctx context.Context, collection string, filter any) (int64, error) {
	return run(ctx, c, "COUNT", collection, func(ctx context.Context, coll *mongo.Collection) (int64, error) {
		return coll.CountDocuments(ctx, filter)
	})
}

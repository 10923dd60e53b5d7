package kafkaaccess

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"

	access "github.com/JohnPlummer/jp-go-access"
)

// MessageReader is the part of *kafka.Reader the consumer uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ MessageReader = (*kafka.Reader)(nil)

// Reader is one consumer held for the lifetime of a stream.
type Reader struct {
	r      MessageReader
	closer closer
}

// Close leaves the consumer group and closes the reader, giving up after the close
// timeout.
func (r *Reader) Close() error {
	return r.closer.close(r.r.Close)
}

// Consumer reads topics as batch streams.
type Consumer struct {
	cfg       Config
	newReader func(cfg Config, topic string) MessageReader
	closer    closer
	opts      []access.Option
}

// NewConsumer creates a Consumer reading from cfg.Brokers.
func NewConsumer(cfg Config, opts ...access.Option) *Consumer {
	return NewConsumerWithReader(cfg, newKafkaReader, opts...)
}

// NewConsumerWithReader creates a Consumer that builds its readers with newReader.
func NewConsumerWithReader(cfg Config, newReader func(cfg Config, topic string) MessageReader, opts ...access.Option) *Consumer {
	base := []access.Option{
		access.WithName("kafka"),
		access.WithErrorClassifier(Classifier{}),
	}
	opts = append(base, opts...)
	return &Consumer{
		cfg:       cfg,
		newReader: newReader,
		closer:    newCloser(cfg, opts),
		opts:      opts,
	}
}

func newKafkaReader(cfg Config, topic string) MessageReader {
	start := kafka.FirstOffset
	if cfg.StartOffset == "latest" {
		start = kafka.LastOffset
	}
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       topic,
		StartOffset: start,
		MaxWait:     time.Second,
	})
}

// Acquire implements access.Acquirer. req.Target names the topic.
func (c *Consumer) Acquire(_ context.Context, req access.Request) (*Reader, error) {
	if len(c.cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return &Reader{r: c.newReader(c.cfg, req.Target), closer: c.closer}, nil
}

// Consume returns a stream over the messages of topic. Every batch is full until
// the topic stays quiet for the idle timeout; the short batch that follows ends the
// stream. With a group id the offsets of a batch are committed before it is
// returned.
func (c *Consumer) Consume(ctx context.Context, topic string) (*access.Stream[kafka.Message], error) {
	idle := c.cfg.IdleTimeout
	if idle == 0 {
		idle = DefaultIdleTimeout
	}

	open := func(_ context.Context, r *Reader, _ access.Request) (access.Cursor[kafka.Message], error) {
		return &messageCursor{r: r.r, idle: idle, commit: c.cfg.GroupID != ""}, nil
	}
	return access.OpenStream(ctx, c, open, access.Request{Method: "CONSUME", Target: topic}, c.opts...)
}

type messageCursor struct {
	r      MessageReader
	idle   time.Duration
	commit bool
}

func (c *messageCursor) FetchMany(ctx context.Context, n int) ([]kafka.Message, error) {
	out := make([]kafka.Message, 0, n)
	for len(out) < n {
		msg, err := c.poll(ctx)
		if err != nil {
			if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
				break
			}
			return nil, err
		}
		out = append(out, msg)
	}

	if c.commit && len(out) > 0 {
		if err := c.r.CommitMessages(ctx, out...); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// poll waits for one message, at most the idle timeout when it is positive.
func (c *messageCursor) poll(ctx context.Context) (kafka.Message, error) {
	if c.idle < 0 {
		return c.r.FetchMessage(ctx)
	}
	pollCtx, cancel := context.WithTimeout(ctx, c.idle)
	defer cancel()
	return c.r.FetchMessage(pollCtx)
}

// Close is a no-op; the reader goes with the handle.
func (c *messageCursor) Close() error {
	return nil
}

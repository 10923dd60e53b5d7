// Package kafkaaccess produces and consumes Kafka messages through the access
// executor and batch streams. Every attempt gets its own writer or reader, and
// closing one runs on a bounded pool so a slow broker cannot stall the caller.
package kafkaaccess

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/segmentio/kafka-go"

	access "github.com/JohnPlummer/jp-go-access"
)

const (
	// DefaultIdleTimeout ends a consume stream after this long without a message.
	DefaultIdleTimeout = 10 * time.Second

	// DefaultCloseTimeout bounds closing a writer or leaving a consumer group.
	DefaultCloseTimeout = 10 * time.Second
)

// ErrNoBrokers is returned when no broker address is configured.
var ErrNoBrokers = errors.New("no kafka brokers configured")

// closePool runs writer and reader Close calls, which take no context.
var closePool = access.NewBlockingPool(8)

// Config holds broker, producer and consumer settings.
type Config struct {
	Brokers      []string      `koanf:"brokers"`
	GroupID      string        `koanf:"group_id"`      // consumer group; commits offsets when set
	StartOffset  string        `koanf:"start_offset"`  // "earliest" (default) or "latest"
	IdleTimeout  time.Duration `koanf:"idle_timeout"`  // negative polls until the context ends (default: 10s)
	WriteTimeout time.Duration `koanf:"write_timeout"` // per write, inside the attempt deadline
	CloseTimeout time.Duration `koanf:"close_timeout"` // (default: 10s)
}

func (c Config) closeTimeout() time.Duration {
	if c.CloseTimeout > 0 {
		return c.CloseTimeout
	}
	return DefaultCloseTimeout
}

// closer bounds a Close call that cannot be canceled.
type closer struct {
	pool    *access.BlockingPool
	timeout time.Duration
}

func newCloser(cfg Config, opts []access.Option) closer {
	config := access.DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	pool := config.Pool
	if pool == nil {
		pool = closePool
	}
	return closer{pool: pool, timeout: cfg.closeTimeout()}
}

func (c closer) close(fn func() error) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	_, err := access.Offload(ctx, c.pool, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// MessageWriter is the part of *kafka.Writer the producer uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

var _ MessageWriter = (*kafka.Writer)(nil)

// Writer is one producer held for a single attempt.
type Writer struct {
	w      MessageWriter
	closer closer
}

// Close flushes and closes the writer, giving up after the close timeout.
func (w *Writer) Close() error {
	return w.closer.close(w.w.Close)
}

// Delivery reports a successful produce.
type Delivery struct {
	Topic    string
	Messages int
	Attempts int
}

// Producer writes messages with bounded retry.
type Producer struct {
	cfg       Config
	newWriter func(Config) MessageWriter
	closer    closer
	opts      []access.Option
}

// NewProducer creates a Producer writing to cfg.Brokers.
func NewProducer(cfg Config, opts ...access.Option) *Producer {
	return NewProducerWithWriter(cfg, newKafkaWriter, opts...)
}

// NewProducerWithWriter creates a Producer that builds its per-attempt writers
// with newWriter.
func NewProducerWithWriter(cfg Config, newWriter func(Config) MessageWriter, opts ...access.Option) *Producer {
	base := []access.Option{
		access.WithName("kafka"),
		access.WithErrorClassifier(Classifier{}),
	}
	opts = append(base, opts...)
	return &Producer{
		cfg:       cfg,
		newWriter: newWriter,
		closer:    newCloser(cfg, opts),
		opts:      opts,
	}
}

// newKafkaWriter makes one attempt per write. Retries belong to the executor.
func newKafkaWriter(cfg Config) MessageWriter {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  1,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Acquire implements access.Acquirer.
func (p *Producer) Acquire(context.Context, access.Request) (*Writer, error) {
	if len(p.cfg.Brokers) == 0 {
		return nil, ErrNoBrokers
	}
	return &Writer{w: p.newWriter(p.cfg), closer: p.closer}, nil
}

// Produce writes msgs to topic and waits until every broker in the in-sync set
// acknowledged them. A failed attempt resends the whole batch.
func (p *Producer) Produce(ctx context.Context, topic string, msgs ...kafka.Message) (Delivery, error) {
	msgs = slices.Clone(msgs)
	for i := range msgs {
		msgs[i].Topic = topic
	}

	exec := access.NewExecutor(p, func(ctx context.Context, w *Writer, req access.Request) (Delivery, error) {
		if err := w.w.WriteMessages(ctx, msgs...); err != nil {
			return Delivery{}, err
		}
		return Delivery{Topic: req.Target, Messages: len(msgs)}, nil
	}, p.opts...)

	result, err := exec.Execute(ctx, access.Request{Method: "PRODUCE", Target: topic})
	if err != nil {
		return Delivery{}, err
	}

	delivery := result.Value
	delivery.Attempts = result.Attempts
	exec.Config().Logger.Info("messages delivered",
		"op", result.OperationID,
		"topic", delivery.Topic,
		"messages", delivery.Messages,
		"attempts", delivery.Attempts)
	return delivery, nil
}

// Send produces a single keyed message.
func (p *Producer) Send(ctx context.Context, topic string, key, value []byte) (Delivery, error) {
	return p.Produce(ctx, topic, kafka.Message{Key: key, Value: value})
}

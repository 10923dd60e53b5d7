package access

import (
	"log/slog"
	"time"
)

// Default values applied by DefaultConfig.
const (
	DefaultMaxAttempts = 4
	DefaultRetryWait   = 3 * time.Second
	DefaultBatchSize   = 10
	DefaultDeadline    = time.Hour
)

// Config holds the retry, deadline and streaming parameters of an Executor or Stream.
type Config struct {
	// Name labels the collaborator in logs and metrics.
	// Default: "access"
	Name string

	// MaxAttempts is the maximum number of attempts (including the initial request).
	// Default: 4 (1 initial + 3 retries)
	MaxAttempts int

	// RetryWait is the constant delay inserted before every retry.
	// Default: 3 seconds
	RetryWait time.Duration

	// BatchSize is the maximum number of records per stream batch.
	// Default: 10
	BatchSize int

	// Deadline bounds every single unit of work. Zero or negative disables it.
	// Default: 1 hour
	Deadline time.Duration

	// RetryOnTimeout retries attempts that hit the deadline like transient failures.
	// Default: true
	RetryOnTimeout bool

	// BackoffPolicy overrides the constant policy built from RetryWait.
	BackoffPolicy BackoffPolicy

	// ErrorClassifier determines which errors are transient.
	// Default: HTTPStatusClassifier
	ErrorClassifier ErrorClassifier

	// Observer receives attempt, result, batch and release events.
	// Default: no-op
	Observer Observer

	// Pool, when set, runs every unit of work on a bounded worker pool.
	Pool *BlockingPool

	// Logger for access operations.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Option is a functional option for configuring an Executor or Stream.
type Option func(*Config)

// DefaultConfig returns configuration with the documented defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:            "access",
		MaxAttempts:     DefaultMaxAttempts,
		RetryWait:       DefaultRetryWait,
		BatchSize:       DefaultBatchSize,
		Deadline:        DefaultDeadline,
		RetryOnTimeout:  true,
		ErrorClassifier: DefaultErrorClassifier(),
		Logger:          slog.Default(),
	}
}

// newConfig applies opts over the defaults and fills in anything left nil.
func newConfig(opts ...Option) *Config {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}

	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.ErrorClassifier == nil {
		config.ErrorClassifier = DefaultErrorClassifier()
	}
	if config.BackoffPolicy == nil {
		config.BackoffPolicy = NewConstantBackoff(config.RetryWait)
	}
	if config.Observer == nil {
		config.Observer = nopObserver{}
	}
	if config.Name == "" {
		config.Name = "access"
	}
	return config
}

// WithName sets the collaborator label used in logs and metrics.
func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithMaxAttempts sets the maximum number of attempts.
// The total number of calls will be MaxAttempts (including the initial attempt).
//
// Example:
//
//	access.WithMaxAttempts(5) // Try up to 5 times total
func WithMaxAttempts(attempts int) Option {
	return func(c *Config) {
		c.MaxAttempts = attempts
	}
}

// WithRetryWait sets the constant delay between attempts.
//
// Example:
//
//	access.WithRetryWait(3 * time.Second)
//	// Delays: 3s, 3s, 3s
func WithRetryWait(wait time.Duration) Option {
	return func(c *Config) {
		c.RetryWait = wait
	}
}

// WithBackoffPolicy replaces the constant backoff policy.
func WithBackoffPolicy(policy BackoffPolicy) Option {
	return func(c *Config) {
		c.BackoffPolicy = policy
	}
}

// WithBatchSize sets the maximum number of records per stream batch.
func WithBatchSize(size int) Option {
	return func(c *Config) {
		c.BatchSize = size
	}
}

// WithDeadline bounds every unit of work by d.
//
// Example:
//
//	access.WithDeadline(30 * time.Second)
func WithDeadline(d time.Duration) Option {
	return func(c *Config) {
		c.Deadline = d
	}
}

// WithRetryOnTimeout controls whether attempts that hit the deadline are retried.
func WithRetryOnTimeout(retry bool) Option {
	return func(c *Config) {
		c.RetryOnTimeout = retry
	}
}

// WithErrorClassifier sets a custom error classifier for retry decisions.
//
// Example:
//
//	access.WithErrorClassifier(sqlaccess.Classifier{})
func WithErrorClassifier(classifier ErrorClassifier) Option {
	return func(c *Config) {
		c.ErrorClassifier = classifier
	}
}

// WithObserver sets the observer notified of attempts, results, batches and releases.
func WithObserver(observer Observer) Option {
	return func(c *Config) {
		c.Observer = observer
	}
}

// WithBlockingPool runs every unit of work on pool.
func WithBlockingPool(pool *BlockingPool) Option {
	return func(c *Config) {
		c.Pool = pool
	}
}

// WithLogger sets a custom logger.
//
// Example:
//
//	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
//	access.WithLogger(logger)
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

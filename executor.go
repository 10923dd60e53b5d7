package access

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
)

// maxAttemptsCap bounds MaxAttempts to a reasonable upper limit.
const maxAttemptsCap = 1000

// Operation runs one unit of work against an acquired handle. The context carries
// the attempt deadline.
type Operation[H Handle, T any] func(ctx context.Context, h H, req Request) (T, error)

// Executor runs an Operation with bounded retry. Every attempt acquires a fresh
// handle, runs the operation under the configured deadline and releases the handle
// before the next attempt starts. Attempts of one call are strictly sequential.
//
// An Executor holds only immutable configuration and is safe for concurrent use.
type Executor[H Handle, T any] struct {
	acquirer Acquirer[H]
	op       Operation[H, T]
	config   *Config
}

// NewExecutor creates an Executor around acquirer and op.
//
// Example:
//
//	exec := access.NewExecutor(sessions, fetch,
//	    access.WithMaxAttempts(4),
//	    access.WithRetryWait(3*time.Second),
//	    access.WithDeadline(30*time.Second),
//	)
func NewExecutor[H Handle, T any](acquirer Acquirer[H], op Operation[H, T], opts ...Option) *Executor[H, T] {
	return &Executor[H, T]{
		acquirer: acquirer,
		op:       op,
		config:   newConfig(opts...),
	}
}

// Config returns a copy of the executor's configuration.
func (e *Executor[H, T]) Config() Config {
	return *e.config
}

// Execute performs the request with retry. It returns either a Result or an
// *OperationError, never both.
func (e *Executor[H, T]) Execute(ctx context.Context, req Request) (*Result[T], error) {
	req = req.Clone()
	loop := newRetryLoop(e.config, req)

	var value T
	records, err := loop.run(ctx, func(ctx context.Context) error {
		v, err := withHandle(ctx, e.acquirer, req, e.config, func(ctx context.Context, h H) (T, error) {
			return runBounded(ctx, e.config.Deadline, e.config.Pool, func(ctx context.Context) (T, error) {
				return e.op(ctx, h, req)
			})
		})
		if err != nil {
			return err
		}
		value = v
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &Result[T]{
		OperationID: loop.id,
		Value:       value,
		Attempts:    len(records),
		Records:     records,
	}, nil
}

// retryLoop drives the attempts of one logical operation.
type retryLoop struct {
	config *Config
	op     string
	id     string
	logger *slog.Logger
}

func newRetryLoop(config *Config, req Request) *retryLoop {
	id := uuid.NewString()
	return &retryLoop{
		config: config,
		op:     req.String(),
		id:     id,
		logger: config.Logger.With("collaborator", config.Name, "op", req.String(), "operation_id", id),
	}
}

// run calls attempt until it succeeds, fails terminally or the attempt budget is spent.
func (l *retryLoop) run(ctx context.Context, attempt func(ctx context.Context) error) ([]AttemptRecord, error) {
	c := l.config

	// Handle zero or negative max attempts - don't make any requests
	if c.MaxAttempts <= 0 {
		return nil, l.fail(KindFatal, nil, ErrInvalidMaxAttempts)
	}

	if err := ctx.Err(); err != nil {
		l.logger.Warn("context already done before request (expected condition)",
			"error", err)
		return nil, l.fail(KindCanceled, nil, err)
	}

	bo := &attemptBackoff{
		policy:      c.BackoffPolicy,
		maxAttempts: min(c.MaxAttempts, maxAttemptsCap),
	}

	var (
		records  []AttemptRecord
		lastKind Kind
		lastErr  error
	)

	err := retry.Do(ctx, bo.backoff(), func(ctx context.Context) error {
		index, wait := bo.begin()
		started := time.Now()

		err := attempt(ctx)
		kind := l.classify(ctx, err)

		rec := AttemptRecord{
			Index:    index,
			Wait:     wait,
			Duration: time.Since(started),
			Kind:     kind,
			Err:      err,
		}
		records = append(records, rec)
		c.Observer.ObserveAttempt(c.Name, rec)

		if err == nil {
			if index > 0 {
				l.logger.Info("request succeeded after retry",
					"attempts", index+1)
			}
			return nil
		}

		lastKind, lastErr = kind, err
		if kind == KindTransient || (kind == KindTimeout && c.RetryOnTimeout) {
			l.logger.Debug("retrying request after delay",
				"attempt", index,
				"kind", kind.String(),
				"error", err)
			return retry.RetryableError(err)
		}

		l.logger.Debug("non-retryable error, giving up",
			"attempt", index,
			"kind", kind.String(),
			"error", err)
		return err
	})
	if err == nil {
		c.Observer.ObserveResult(c.Name, KindNone, len(records))
		return records, nil
	}

	kind, cause := lastKind, lastErr
	switch {
	case ctx.Err() != nil:
		kind, cause = KindCanceled, ctx.Err()
	case lastKind == KindTransient:
		kind = KindExhausted
	case lastErr == nil:
		// retry.Do failed without running an attempt.
		kind, cause = KindFatal, err
	}

	l.logger.Warn("request failed after retries",
		"attempts", len(records),
		"kind", kind.String(),
		"error", cause)
	return nil, l.fail(kind, records, cause)
}

// classify maps an attempt error to a Kind. Cancellation of the caller's context and
// a passed deadline take precedence over the configured classifier.
func (l *retryLoop) classify(ctx context.Context, err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case ctx.Err() != nil:
		return KindCanceled
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case l.config.ErrorClassifier.IsRetryable(err):
		return KindTransient
	default:
		return KindFatal
	}
}

func (l *retryLoop) fail(kind Kind, records []AttemptRecord, cause error) error {
	l.config.Observer.ObserveResult(l.config.Name, kind, len(records))
	return &OperationError{
		Op:       l.op,
		Kind:     kind,
		Attempts: len(records),
		Records:  records,
		Err:      cause,
	}
}

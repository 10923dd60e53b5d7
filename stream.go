package access

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"sync"
)

// Cursor reads records from an open result set in order.
type Cursor[R any] interface {
	// FetchMany returns up to n records. A result shorter than n means the result set
	// is exhausted.
	FetchMany(ctx context.Context, n int) ([]R, error)

	// Close releases the cursor. The stream closes it before the handle.
	Close() error
}

// StreamOperation executes req against h and returns a cursor positioned before the
// first record. The context it receives lives as long as the stream, so the cursor
// may keep using it; the open itself is still bounded by the configured deadline.
type StreamOperation[H Handle, R any] func(ctx context.Context, h H, req Request) (Cursor[R], error)

// OpenStream acquires a handle, executes req and returns a stream over the result
// set. Acquisition and execution are retried like Executor.Execute; fetching is not.
// The returned stream owns the handle until it is exhausted, fails or is closed.
//
// Example:
//
//	stream, err := access.OpenStream(ctx, conns, query, req, access.WithBatchSize(100))
//	if err != nil {
//	    return err
//	}
//	defer stream.Close()
//	for batch, err := range stream.All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    process(batch.Records)
//	}
func OpenStream[H Handle, R any](
	ctx context.Context,
	acquirer Acquirer[H],
	open StreamOperation[H, R],
	req Request,
	opts ...Option,
) (*Stream[R], error) {
	config := newConfig(opts...)
	req = req.Clone()

	loop := newRetryLoop(config, req)
	if config.BatchSize <= 0 {
		return nil, loop.fail(KindFatal, nil, ErrInvalidBatchSize)
	}

	var stream *Stream[R]
	records, err := loop.run(ctx, func(ctx context.Context) error {
		scope, err := acquireScope(ctx, acquirer, req, config)
		if err != nil {
			return err
		}

		streamCtx, cancel := context.WithCancel(ctx)
		cursor, err := runBoundedOrDiscard(ctx, config.Deadline, config.Pool, func(context.Context) (Cursor[R], error) {
			return open(streamCtx, scope.handle, req)
		}, func(late Cursor[R]) {
			if late != nil {
				_ = late.Close()
			}
		})
		if err != nil {
			cancel()
			_ = scope.Release()
			return err
		}

		stream = &Stream[R]{
			config: config,
			id:     loop.id,
			op:     loop.op,
			logger: loop.logger,
			scope:  scope,
			cursor: cursor,
			ctx:    streamCtx,
			cancel: cancel,
			size:   config.BatchSize,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	stream.attempts = len(records)
	return stream, nil
}

// Stream is a pull-based, finite sequence of batches over one result set. It is not
// restartable: reading the same data again requires opening a new stream.
//
// A Stream must be consumed from one goroutine. Close may be called from any
// goroutine at any time; it cancels a fetch in flight and the batch it was reading
// is dropped.
type Stream[R any] struct {
	config   *Config
	id       string
	op       string
	logger   *slog.Logger
	attempts int

	scope  releaser
	cursor Cursor[R]
	ctx    context.Context
	cancel context.CancelFunc
	size   int

	mu      sync.Mutex // guards the fields below
	index   int
	records int
	done    bool
	err     error

	closeOnce sync.Once
	closeErr  error
}

type releaser interface {
	Release() error
}

// OperationID identifies the stream's logical operation in logs.
func (s *Stream[R]) OperationID() string {
	return s.id
}

// Attempts returns the number of attempts it took to open the stream.
func (s *Stream[R]) Attempts() int {
	return s.attempts
}

// BatchSize returns the maximum number of records per batch.
func (s *Stream[R]) BatchSize() int {
	return s.size
}

// Delivered returns the number of records delivered so far.
func (s *Stream[R]) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records
}

// Next fetches the next batch. It returns false once the stream is exhausted, failed
// or closed; Err then tells which. A short batch is returned with Final set and the
// handle has already been released when Next returns it.
func (s *Stream[R]) Next(ctx context.Context) (Batch[R], bool, error) {
	s.mu.Lock()
	if s.done {
		defer s.mu.Unlock()
		return Batch[R]{}, false, s.err
	}
	s.mu.Unlock()

	fetchCtx, stop := context.WithCancel(ctx)
	defer stop()
	defer context.AfterFunc(s.ctx, stop)()

	records, err := runBounded(fetchCtx, s.config.Deadline, s.config.Pool, func(ctx context.Context) ([]R, error) {
		return s.cursor.FetchMany(ctx, s.size)
	})

	s.mu.Lock()
	if s.done {
		// Closed while the fetch was in flight.
		defer s.mu.Unlock()
		return Batch[R]{}, false, s.err
	}

	var failure error
	switch {
	case err != nil:
		failure = s.failure(ctx, err)
	case len(records) > s.size:
		failure = s.failure(ctx, fmt.Errorf("%w: cursor returned %d records for a batch of %d",
			ErrFatal, len(records), s.size))
	case len(records) == 0:
		s.mu.Unlock()
		s.finish(nil)
		return Batch[R]{}, false, nil
	}
	if failure != nil {
		s.mu.Unlock()
		s.finish(failure)
		return Batch[R]{}, false, failure
	}

	batch := Batch[R]{
		Index:   s.index,
		Records: records,
		Final:   len(records) < s.size,
	}
	s.index++
	s.records += len(records)
	s.mu.Unlock()

	s.config.Observer.ObserveBatch(s.config.Name, len(records))
	if batch.Final {
		s.finish(nil)
	}
	return batch, true, nil
}

// Err returns the terminal error of a failed stream, or nil.
func (s *Stream[R]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// All returns an iterator over the remaining batches. The handle is released when
// the loop ends, including when the caller breaks out early. A failure is yielded
// once as the last element.
func (s *Stream[R]) All(ctx context.Context) iter.Seq2[Batch[R], error] {
	return func(yield func(Batch[R], error) bool) {
		defer func() { _ = s.Close() }()

		for {
			batch, ok, err := s.Next(ctx)
			if err != nil {
				yield(Batch[R]{}, err)
				return
			}
			if !ok {
				return
			}
			if !yield(batch, nil) {
				return
			}
		}
	}
}

// Close releases the cursor and the handle. It is safe to call more than once; an
// unfinished stream reports ErrStreamClosed from later Next calls.
func (s *Stream[R]) Close() error {
	s.mu.Lock()
	if !s.done {
		s.done = true
		s.err = ErrStreamClosed
		s.logger.Debug("stream closed before exhaustion",
			"batches", s.index,
			"records", s.records)
	}
	s.mu.Unlock()
	return s.release()
}

// finish ends the stream with err unless Close got there first.
func (s *Stream[R]) finish(err error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return
	}
	s.done = true
	s.err = err
	batches, records := s.index, s.records
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("stream failed",
			"batches", batches,
			"records", records,
			"error", err)
	} else {
		s.logger.Debug("stream exhausted",
			"batches", batches,
			"records", records)
	}
	_ = s.release()
}

func (s *Stream[R]) release() error {
	s.closeOnce.Do(func() {
		s.cancel()
		cursorErr := s.cursor.Close()
		scopeErr := s.scope.Release()
		s.closeErr = errors.Join(cursorErr, scopeErr)
	})
	return s.closeErr
}

// failure wraps a fetch error. Fetches are never retried.
func (s *Stream[R]) failure(ctx context.Context, err error) error {
	var kind Kind
	switch {
	case ctx.Err() != nil:
		kind, err = KindCanceled, ctx.Err()
	case errors.Is(err, ErrTimeout):
		kind = KindTimeout
	case errors.Is(err, ErrFatal):
		kind = KindFatal
	case s.config.ErrorClassifier.IsRetryable(err):
		kind = KindTransient
	default:
		kind = KindFatal
	}
	return &OperationError{
		Op:       s.op,
		Kind:     kind,
		Attempts: s.attempts,
		Err:      err,
	}
}

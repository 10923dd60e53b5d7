package access

import (
	"context"
	"log/slog"
	"sync"
)

// Handle is one live connection or session. It is owned by the operation that
// acquired it and closed exactly once.
type Handle interface {
	Close() error
}

// Acquirer opens a fresh handle for a request's target.
type Acquirer[H Handle] interface {
	Acquire(ctx context.Context, req Request) (H, error)
}

// AcquirerFunc adapts a function to Acquirer.
type AcquirerFunc[H Handle] func(ctx context.Context, req Request) (H, error)

// Acquire calls f(ctx, req).
func (f AcquirerFunc[H]) Acquire(ctx context.Context, req Request) (H, error) {
	return f(ctx, req)
}

// Scope owns one acquired handle until Release.
type Scope[H Handle] struct {
	handle   H
	name     string
	op       string
	logger   *slog.Logger
	observer Observer

	mu       sync.Mutex
	released bool
	err      error
}

// AcquireScope acquires a handle for req. The caller must call Release, typically
// with defer, on every exit path.
func AcquireScope[H Handle](ctx context.Context, acquirer Acquirer[H], req Request, opts ...Option) (*Scope[H], error) {
	return acquireScope(ctx, acquirer, req, newConfig(opts...))
}

func acquireScope[H Handle](ctx context.Context, acquirer Acquirer[H], req Request, config *Config) (*Scope[H], error) {
	handle, err := acquirer.Acquire(ctx, req)
	if err != nil {
		return nil, err
	}
	return &Scope[H]{
		handle:   handle,
		name:     config.Name,
		op:       req.String(),
		logger:   config.Logger,
		observer: config.Observer,
	}, nil
}

// Handle returns the live handle, or ErrHandleReleased once the scope is released.
func (s *Scope[H]) Handle() (H, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		var zero H
		return zero, ErrHandleReleased
	}
	return s.handle, nil
}

// Released reports whether Release has been called.
func (s *Scope[H]) Released() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

// Release closes the handle. Only the first call closes it; later calls return the
// first call's result.
func (s *Scope[H]) Release() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.released {
		return s.err
	}
	s.released = true
	s.err = s.handle.Close()
	if s.err != nil {
		s.logger.Warn("failed to release resource handle",
			"op", s.op,
			"error", s.err)
	}
	s.observer.ObserveRelease(s.name, s.err)
	return s.err
}

// WithHandle acquires a handle, passes it to fn and releases it on every exit path,
// including a panic in fn. A release failure is logged and does not replace fn's result.
func WithHandle[H Handle, T any](
	ctx context.Context,
	acquirer Acquirer[H],
	req Request,
	fn func(ctx context.Context, h H) (T, error),
	opts ...Option,
) (T, error) {
	return withHandle(ctx, acquirer, req, newConfig(opts...), fn)
}

func withHandle[H Handle, T any](
	ctx context.Context,
	acquirer Acquirer[H],
	req Request,
	config *Config,
	fn func(ctx context.Context, h H) (T, error),
) (T, error) {
	scope, err := acquireScope(ctx, acquirer, req, config)
	if err != nil {
		var zero T
		return zero, err
	}
	defer func() { _ = scope.Release() }()

	return fn(ctx, scope.handle)
}

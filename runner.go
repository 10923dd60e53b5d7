package access

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"
)

// RunWithDeadline runs fn with a context bounded by deadline and returns its result.
// When the deadline passes before fn returns, the context given to fn is canceled and
// an error matching ErrTimeout is returned without waiting for fn. When ctx ends
// first, ctx's error is returned. A deadline of zero or less means unbounded.
func RunWithDeadline[T any](ctx context.Context, deadline time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	return runBounded(ctx, deadline, nil, fn)
}

type outcome[T any] struct {
	value T
	err   error
}

func runBounded[T any](
	ctx context.Context,
	deadline time.Duration,
	pool *BlockingPool,
	fn func(ctx context.Context) (T, error),
) (T, error) {
	return runBoundedOrDiscard(ctx, deadline, pool, fn, nil)
}

// runBoundedOrDiscard is runBounded with a hook for results that arrive after the
// caller gave up. discard receives every such successful value, so resources fn
// created late are not leaked.
func runBoundedOrDiscard[T any](
	ctx context.Context,
	deadline time.Duration,
	pool *BlockingPool,
	fn func(ctx context.Context) (T, error),
	discard func(T),
) (T, error) {
	var zero T

	if err := ctx.Err(); err != nil {
		return zero, err
	}

	runCtx, cancel := ctx, context.CancelFunc(func() {})
	if deadline > 0 {
		runCtx, cancel = context.WithTimeout(ctx, deadline)
	}
	defer cancel()

	// Buffered so the worker never blocks when the caller has already given up.
	done := make(chan outcome[T], 1)
	work := func() {
		v, err := fn(runCtx)
		done <- outcome[T]{value: v, err: err}
	}

	if pool != nil {
		if err := pool.Go(runCtx, work); err != nil {
			return zero, deadlineCause(ctx, runCtx, deadline, err)
		}
	} else {
		go work()
	}

	select {
	case out := <-done:
		if out.err != nil && runCtx.Err() != nil {
			return zero, deadlineCause(ctx, runCtx, deadline, out.err)
		}
		return out.value, out.err
	case <-runCtx.Done():
		if discard != nil {
			go func() {
				if out := <-done; out.err == nil {
					discard(out.value)
				}
			}()
		}
		return zero, deadlineCause(ctx, runCtx, deadline, runCtx.Err())
	}
}

// deadlineCause tells a passed deadline apart from a canceled parent context.
func deadlineCause(parent, runCtx context.Context, deadline time.Duration, err error) error {
	if parentErr := parent.Err(); parentErr != nil {
		return parentErr
	}
	if deadline > 0 && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return newTimeoutError(deadline)
	}
	return err
}

// BlockingPool runs blocking calls on at most Size goroutines at once. It is the
// escape hatch for client libraries that cannot be canceled through a context.
type BlockingPool struct {
	sem  *semaphore.Weighted
	size int64
}

// NewBlockingPool creates a pool that runs at most size calls concurrently.
// A size below 1 is treated as 1.
func NewBlockingPool(size int) *BlockingPool {
	if size < 1 {
		size = 1
	}
	return &BlockingPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: int64(size),
	}
}

// Size returns the maximum number of concurrent calls.
func (p *BlockingPool) Size() int {
	return int(p.size)
}

// Go waits for a free slot and runs fn on its own goroutine. It returns ctx's error
// if no slot frees up before ctx ends.
func (p *BlockingPool) Go(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for worker slot: %w", err)
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}

// Offload runs a blocking call on pool and waits for it. If ctx ends first, ctx's
// error is returned and the call finishes in the background.
func Offload[T any](ctx context.Context, pool *BlockingPool, fn func() (T, error)) (T, error) {
	var zero T

	done := make(chan outcome[T], 1)
	err := pool.Go(ctx, func() {
		v, err := fn()
		done <- outcome[T]{value: v, err: err}
	})
	if err != nil {
		return zero, err
	}

	select {
	case out := <-done:
		return out.value, out.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

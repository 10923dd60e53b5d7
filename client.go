// Package access provides a resilient access layer for remote collaborators such as
// HTTP endpoints and databases. Every logical operation acquires its own resource
// handle, runs under a wall-clock deadline, retries transient failures with a
// constant backoff and releases the handle on every exit path. Bulk reads are
// exposed as lazily fetched batch streams.
//
// The package knows nothing about wire protocols. Collaborators plug in through
// the Acquirer, Operation and Cursor contracts; the httpaccess, sqlaccess,
// redisaccess and mongoaccess sub-packages provide ready-made adapters.
package access

import (
	"context"
)

// ResilientClient defines a generic interface for executing requests with resilience support.
// Executor implements it for Request/*Result[T], and CircuitBreakerWrapper wraps any
// implementation with circuit breaking.
//
// Example:
//
//	exec := access.NewExecutor(acquirer, operation,
//	    access.WithMaxAttempts(4),
//	    access.WithRetryWait(3*time.Second),
//	)
//	var client access.ResilientClient[access.Request, *access.Result[string]] = exec
type ResilientClient[Req, Resp any] interface {
	// Execute performs a request and returns a response or error.
	// The context should be used to control timeouts and cancellation.
	Execute(ctx context.Context, req Req) (Resp, error)
}

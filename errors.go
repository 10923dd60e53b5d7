package access

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	jperrors "github.com/JohnPlummer/jp-go-errors"
)

// Kind classifies the outcome of an attempt or a logical operation.
type Kind int

const (
	// KindNone marks a successful attempt.
	KindNone Kind = iota

	// KindTransient is a failure likely to succeed on retry. The executor retries it;
	// a stream surfaces it directly because re-fetching could duplicate records.
	KindTransient

	// KindExhausted means every attempt failed with a transient error.
	KindExhausted

	// KindFatal is a failure certain to recur on retry. It is never retried.
	KindFatal

	// KindTimeout means the operation did not finish within its deadline.
	KindTimeout

	// KindCanceled means the caller's context ended the operation.
	KindCanceled
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransient:
		return "transient"
	case KindExhausted:
		return "exhausted"
	case KindFatal:
		return "fatal"
	case KindTimeout:
		return "timeout"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Sentinel errors matched by errors.Is against an *OperationError of the same kind.
var (
	ErrTransient = errors.New("transient failure")
	ErrExhausted = errors.New("retries exhausted")
	ErrFatal     = errors.New("fatal failure")
	ErrTimeout   = errors.New("deadline exceeded")
	ErrCanceled  = errors.New("operation canceled")
)

var (
	// ErrHandleReleased is returned when a released scope is used again.
	ErrHandleReleased = errors.New("resource handle already released")

	// ErrInvalidMaxAttempts is returned when MaxAttempts is not positive.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrInvalidBatchSize is returned when a stream is opened with a batch size below 1.
	ErrInvalidBatchSize = errors.New("batch size must be positive")

	// ErrStreamClosed is returned by Next after Close was called on an unfinished stream.
	ErrStreamClosed = errors.New("stream closed")
)

// OperationError is the terminal failure of a logical operation. It carries the last
// underlying cause and the number of attempts made.
type OperationError struct {
	// Op labels the failed request.
	Op string

	// Kind classifies the failure.
	Kind Kind

	// Attempts is the number of attempts made.
	Attempts int

	// Records holds one entry per attempt, in order.
	Records []AttemptRecord

	// Err is the last underlying cause.
	Err error
}

// Error implements the error interface.
func (e *OperationError) Error() string {
	if e.Attempts > 0 {
		return fmt.Sprintf("%s: %s after %d attempt(s): %v", e.Op, e.Kind, e.Attempts, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the last underlying cause.
func (e *OperationError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *OperationError) Is(target error) bool {
	switch e.Kind {
	case KindTransient:
		return target == ErrTransient
	case KindExhausted:
		return target == ErrExhausted
	case KindFatal:
		return target == ErrFatal
	case KindTimeout:
		return target == ErrTimeout
	case KindCanceled:
		return target == ErrCanceled
	}
	return false
}

// TotalWait returns the sum of backoff delays spent before giving up.
func (e *OperationError) TotalWait() time.Duration {
	return totalWait(e.Records)
}

// KindOf returns the kind of an *OperationError in err's chain. Without one, a
// deadline failure from RunWithDeadline is KindTimeout and a canceled context is
// KindCanceled; anything else is KindNone.
func KindOf(err error) Kind {
	var opErr *OperationError
	switch {
	case errors.As(err, &opErr):
		return opErr.Kind
	case errors.Is(err, ErrTimeout):
		return KindTimeout
	case errors.Is(err, ErrCanceled), errors.Is(err, context.Canceled):
		return KindCanceled
	}
	return KindNone
}

// IsTimeout reports whether err is a deadline failure raised by this package, or
// any timeout recognised by jp-go-errors.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || jperrors.IsTimeout(err)
}

// newTimeoutError builds the error returned when a deadline passes. It matches
// ErrTimeout and is recognised by jperrors.IsTimeout.
func newTimeoutError(deadline time.Duration) error {
	return fmt.Errorf("%w: %w", ErrTimeout,
		jperrors.NewTimeoutError("operation did not complete within deadline", "run_with_deadline", deadline))
}

// ErrorClassifier decides whether a failure is transient.
// Implement this interface to customize retry behavior for a specific collaborator.
type ErrorClassifier interface {
	// IsRetryable returns true if the error represents a transient failure
	// that should be retried. Every other error is fatal.
	IsRetryable(err error) bool
}

// ClassifierFunc adapts a function to ErrorClassifier.
type ClassifierFunc func(err error) bool

// IsRetryable calls f(err).
func (f ClassifierFunc) IsRetryable(err error) bool {
	return f(err)
}

// RetryAll treats every error as transient.
var RetryAll ErrorClassifier = ClassifierFunc(func(err error) bool { return err != nil })

// HTTPError represents an error with an associated HTTP status code.
type HTTPError interface {
	error
	StatusCode() int
}

var (
	defaultRetryableStatuses = []int{
		http.StatusRequestTimeout,
		http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout,
	}
)

// HTTPStatusClassifier classifies errors by their HTTP status code.
// Errors without a status (connection refused, reset, DNS failure) are transient.
type HTTPStatusClassifier struct {
	// RetryableStatuses lists HTTP status codes that should trigger retries.
	// Defaults to 408, 429, 500, 502, 503, 504 if nil.
	RetryableStatuses []int
}

// NewHTTPStatusClassifier creates an HTTPStatusClassifier with the default status set.
func NewHTTPStatusClassifier() *HTTPStatusClassifier {
	return &HTTPStatusClassifier{
		RetryableStatuses: slices.Clone(defaultRetryableStatuses),
	}
}

// IsRetryable implements ErrorClassifier.
func (c *HTTPStatusClassifier) IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Check these FIRST: context.DeadlineExceeded is also a timeout to jp-go-errors,
	// and retrying with an ended context fails immediately.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	if errors.Is(err, jperrors.ErrRateLimited) {
		return true
	}
	if errors.Is(err, ErrTimeout) || jperrors.IsTimeout(err) {
		return true
	}

	statusCode := extractStatusCode(err)
	if statusCode == 0 {
		return true
	}

	statuses := c.RetryableStatuses
	if statuses == nil {
		statuses = defaultRetryableStatuses
	}
	return slices.Contains(statuses, statusCode)
}

// extractStatusCode returns the status carried by err, or 0.
func extractStatusCode(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

// DefaultErrorClassifier returns the classifier used when none is configured.
func DefaultErrorClassifier() ErrorClassifier {
	return NewHTTPStatusClassifier()
}

// StatusCodeError wraps an error with an HTTP status code.
type StatusCodeError struct {
	Err  error
	Code int
}

// Error implements the error interface.
func (e *StatusCodeError) Error() string {
	return e.Err.Error()
}

// Unwrap implements error unwrapping for errors.Is and errors.As.
func (e *StatusCodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status code.
func (e *StatusCodeError) StatusCode() int {
	return e.Code
}

// NewStatusCodeError creates a new StatusCodeError.
//
// Example:
//
//	if resp.StatusCode >= 500 {
//	    return nil, access.NewStatusCodeError(resp.StatusCode, errors.New(resp.Status))
//	}
func NewStatusCodeError(statusCode int, err error) error {
	return &StatusCodeError{
		Code: statusCode,
		Err:  err,
	}
}

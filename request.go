package access

import (
	"maps"
	"slices"
	"time"
)

// Request describes one logical operation against a remote collaborator.
// Method is the verb ("GET", "QUERY", "HGETALL"), Target the address the verb applies
// to (a URL, a SQL statement, a key or collection name).
type Request struct {
	// Method is the verb of the operation.
	Method string

	// Target is the address the operation is applied to.
	Target string

	// Header holds optional transport headers. It shares its underlying type with http.Header.
	Header map[string][]string

	// Params holds optional positional parameters, e.g. SQL bind arguments.
	Params []any

	// Body holds an optional request payload.
	Body []byte
}

// Clone returns a deep copy of the request's slices and header map.
// Params elements are copied shallowly.
func (r Request) Clone() Request {
	clone := Request{
		Method: r.Method,
		Target: r.Target,
		Params: slices.Clone(r.Params),
		Body:   slices.Clone(r.Body),
	}
	if r.Header != nil {
		clone.Header = make(map[string][]string, len(r.Header))
		for k, v := range maps.All(r.Header) {
			clone.Header[k] = slices.Clone(v)
		}
	}
	return clone
}

// String returns a short label for logs and errors.
func (r Request) String() string {
	const maxTarget = 96

	target := r.Target
	if len(target) > maxTarget {
		target = target[:maxTarget] + "..."
	}
	if r.Method == "" {
		return target
	}
	return r.Method + " " + target
}

// Result is the successful outcome of an Executor run.
type Result[T any] struct {
	// OperationID identifies the logical operation in logs.
	OperationID string

	// Value is the payload returned by the successful attempt.
	Value T

	// Attempts is the number of attempts made, including the successful one.
	Attempts int

	// Records holds one entry per attempt, in order.
	Records []AttemptRecord
}

// TotalWait returns the sum of backoff delays spent before the successful attempt.
func (r *Result[T]) TotalWait() time.Duration {
	return totalWait(r.Records)
}

// AttemptRecord describes one attempt of a logical operation. It is kept for
// diagnostics only.
type AttemptRecord struct {
	// Index is the 0-based attempt number.
	Index int

	// Wait is the backoff delay inserted before this attempt.
	Wait time.Duration

	// Duration is the time spent acquiring, running and releasing.
	Duration time.Duration

	// Kind classifies the attempt outcome. KindNone means success.
	Kind Kind

	// Err is the failure of this attempt, nil on success.
	Err error
}

// Batch is one chunk of a batch stream.
type Batch[R any] struct {
	// Index is the 0-based position of the batch in its stream.
	Index int

	// Records holds at most the stream's batch size records, in result-set order.
	Records []R

	// Final is set on a short batch, after which the stream is exhausted.
	Final bool
}

// Len returns the number of records in the batch.
func (b Batch[R]) Len() int {
	return len(b.Records)
}

func totalWait(records []AttemptRecord) time.Duration {
	var total time.Duration
	for _, r := range records {
		total += r.Wait
	}
	return total
}

package mongoaccess

import (
	"context"
	"errors"
	"slices"

	"go.mongodb.org/mongo-driver/mongo"
)

// Server error codes that signal a failover or an overloaded node.
var transientCodes = []int{
	6,     // HostUnreachable
	7,     // HostNotFound
	89,    // NetworkTimeout
	91,    // ShutdownInProgress
	189,   // PrimarySteppedDown
	262,   // ExceededTimeLimit
	10107, // NotWritablePrimary
	11600, // InterruptedAtShutdown
	11602, // InterruptedDueToReplStateChange
	13435, // NotPrimaryNoSecondaryOk
	13436, // NotPrimaryOrSecondary
}

// Classifier decides whether a MongoDB error is transient. Network errors, driver
// timeouts, retryable labels and failover codes are retried; every other server
// reply describes the request and is fatal. Errors it does not recognise are
// treated as transient.
type Classifier struct{}

// IsRetryable implements access.ErrorClassifier.
func (Classifier) IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, mongo.ErrNoDocuments), errors.Is(err, ErrDecode):
		return false
	case errors.Is(err, mongo.ErrClientDisconnected):
		return true
	case mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return true
	}

	var serverErr mongo.ServerError
	if errors.As(err, &serverErr) {
		if serverErr.HasErrorLabel("RetryableWriteError") || serverErr.HasErrorLabel("TransientTransactionError") {
			return true
		}
		return slices.ContainsFunc(transientCodes, serverErr.HasErrorCode)
	}

	return true
}

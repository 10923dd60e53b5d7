package redisaccess

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Server replies that a later attempt can succeed.
var transientReplies = []string{"LOADING", "BUSY", "TRYAGAIN", "CLUSTERDOWN", "MASTERDOWN", "READONLY", "MOVED", "ASK"}

// Classifier decides whether a Redis error is transient. Server replies such as
// WRONGTYPE or NOAUTH are fatal, network failures are transient.
type Classifier struct{}

// IsRetryable implements access.ErrorClassifier.
func (Classifier) IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, redis.Nil), errors.Is(err, redis.ErrClosed):
		return false
	}

	var reply redis.Error
	if errors.As(err, &reply) {
		prefix, _, _ := strings.Cut(reply.Error(), " ")
		return slices.Contains(transientReplies, prefix)
	}

	return true
}

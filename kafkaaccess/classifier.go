package kafkaaccess

import (
	"context"
	"errors"
	"io"

	"github.com/segmentio/kafka-go"
)

// Classifier decides whether a Kafka error is transient. Broker errors follow the
// protocol's retriable flag, a closed reader or group is final, and network
// failures are transient.
type Classifier struct{}

// IsRetryable implements access.ErrorClassifier.
func (c Classifier) IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, io.EOF), errors.Is(err, kafka.ErrGroupClosed), errors.Is(err, ErrNoBrokers):
		return false
	}

	// A batch is worth resending if any of its messages failed for a transient reason.
	var writeErrs kafka.WriteErrors
	if errors.As(err, &writeErrs) {
		for _, e := range writeErrs {
			if e != nil && c.IsRetryable(e) {
				return true
			}
		}
		return false
	}

	var kerr kafka.Error
	if errors.As(err, &kerr) {
		return kerr.Temporary()
	}

	return true
}

package access

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// BackoffPolicy maps an attempt number to the wait inserted before it and decides
// whether another attempt may follow.
type BackoffPolicy interface {
	// NextWait returns the delay before the given 0-based attempt.
	NextWait(attempt int) time.Duration

	// ShouldRetry reports whether another attempt may follow the given failed attempt.
	ShouldRetry(attempt, maxAttempts int) bool
}

// ConstantBackoff waits Delay before every attempt except the first.
// There is no jitter and no growth, so retry timing is fully predictable.
type ConstantBackoff struct {
	Delay time.Duration
}

// NewConstantBackoff returns a ConstantBackoff with the given delay.
func NewConstantBackoff(delay time.Duration) ConstantBackoff {
	return ConstantBackoff{Delay: delay}
}

// NextWait implements BackoffPolicy.
func (b ConstantBackoff) NextWait(attempt int) time.Duration {
	if attempt <= 0 || b.Delay < 0 {
		return 0
	}
	return b.Delay
}

// ShouldRetry implements BackoffPolicy.
func (b ConstantBackoff) ShouldRetry(attempt, maxAttempts int) bool {
	return attempt < maxAttempts-1
}

// attemptBackoff adapts a BackoffPolicy to go-retry. The retry loop calls Next after
// every retryable failure; the wait chosen for the upcoming attempt is kept so the
// attempt can record it.
type attemptBackoff struct {
	policy      BackoffPolicy
	maxAttempts int
	made        int
	wait        time.Duration
}

func (b *attemptBackoff) backoff() retry.Backoff {
	return retry.BackoffFunc(func() (time.Duration, bool) {
		failed := b.made - 1
		if !b.policy.ShouldRetry(failed, b.maxAttempts) {
			return 0, true
		}
		b.wait = b.policy.NextWait(b.made)
		return b.wait, false
	})
}

// begin registers a new attempt and returns its index and the wait that preceded it.
func (b *attemptBackoff) begin() (int, time.Duration) {
	index := b.made
	b.made++
	wait := b.wait
	b.wait = 0
	return index, wait
}

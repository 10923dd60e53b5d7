package access

// HealthStatus reports whether a guarded collaborator is currently accepting operations.
type HealthStatus struct {
	// Name is the circuit breaker name.
	Name string `json:"name"`

	// Healthy is true for the closed and half-open states, false for open.
	Healthy bool `json:"healthy"`

	// State is the breaker state ("closed", "half-open", "open").
	State string `json:"state"`

	// Requests is the number of operations in the current interval.
	Requests uint32 `json:"requests"`

	// TotalSuccesses is the number of successful operations in the current interval.
	TotalSuccesses uint32 `json:"total_successes"`

	// TotalFailures is the number of failed operations in the current interval.
	TotalFailures uint32 `json:"total_failures"`

	// ConsecutiveFailures is the number of consecutive failures.
	ConsecutiveFailures uint32 `json:"consecutive_failures"`

	// ConsecutiveSuccesses is the number of consecutive successes.
	ConsecutiveSuccesses uint32 `json:"consecutive_successes"`
}

func newHealthStatus(name string, state CircuitBreakerState, counts CircuitBreakerCounts) HealthStatus {
	return HealthStatus{
		Name:                 name,
		Healthy:              state != StateOpen,
		State:                state.String(),
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
	}
}

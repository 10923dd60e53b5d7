package access

// Observer receives events from executors, scopes and streams. Implementations must
// be safe for concurrent use.
type Observer interface {
	// ObserveAttempt is called once per attempt, after the attempt's handle is released.
	ObserveAttempt(name string, rec AttemptRecord)

	// ObserveResult is called once per logical operation with its final kind
	// (KindNone on success) and the number of attempts made.
	ObserveResult(name string, kind Kind, attempts int)

	// ObserveBatch is called for every batch a stream delivers.
	ObserveBatch(name string, records int)

	// ObserveRelease is called whenever a handle is released.
	ObserveRelease(name string, err error)
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, AttemptRecord) {}
func (nopObserver) ObserveResult(string, Kind, int)      {}
func (nopObserver) ObserveBatch(string, int)             {}
func (nopObserver) ObserveRelease(string, error)         {}

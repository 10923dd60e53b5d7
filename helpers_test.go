package access_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	access "github.com/JohnPlummer/jp-go-access"
)

var (
	errConnReset  = errors.New("connection reset by peer")
	errBadRequest = access.NewStatusCodeError(400, errors.New("bad request"))
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockHandle counts how often it is closed.
type mockHandle struct {
	id       int
	closed   atomic.Int32
	closeErr error
}

func (h *mockHandle) Close() error {
	h.closed.Add(1)
	return h.closeErr
}

// mockAcquirer hands out a fresh mockHandle per call and remembers all of them.
type mockAcquirer struct {
	mu         sync.Mutex
	calls      int
	handles    []*mockHandle
	acquireErr func(call int) error
	closeErr   error
}

func (a *mockAcquirer) Acquire(ctx context.Context, req access.Request) (*mockHandle, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	call := a.calls
	a.calls++
	if a.acquireErr != nil {
		if err := a.acquireErr(call); err != nil {
			return nil, err
		}
	}
	h := &mockHandle{id: call, closeErr: a.closeErr}
	a.handles = append(a.handles, h)
	return h, nil
}

func (a *mockAcquirer) acquireCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func (a *mockAcquirer) acquired() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.handles)
}

// releaseCounts returns how often each acquired handle was closed.
func (a *mockAcquirer) releaseCounts() []int {
	a.mu.Lock()
	defer a.mu.Unlock()

	counts := make([]int, len(a.handles))
	for i, h := range a.handles {
		counts[i] = int(h.closed.Load())
	}
	return counts
}

func (a *mockAcquirer) allReleasedOnce() bool {
	for _, c := range a.releaseCounts() {
		if c != 1 {
			return false
		}
	}
	return true
}

// sliceCursor serves records from a slice.
type sliceCursor[R any] struct {
	mu       sync.Mutex
	records  []R
	pos      int
	fetches  int
	closed   atomic.Int32
	extra    int
	fetchErr func(fetch int) error
	block    bool
}

func newSliceCursor[R any](records []R) *sliceCursor[R] {
	return &sliceCursor[R]{records: records}
}

func (c *sliceCursor[R]) FetchMany(ctx context.Context, n int) ([]R, error) {
	c.mu.Lock()
	fetch := c.fetches
	c.fetches++
	block := c.block
	c.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if c.fetchErr != nil {
		if err := c.fetchErr(fetch); err != nil {
			return nil, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	end := min(c.pos+n+c.extra, len(c.records))
	out := append([]R(nil), c.records[c.pos:end]...)
	c.pos = end
	return out, nil
}

func (c *sliceCursor[R]) Close() error {
	c.closed.Add(1)
	return nil
}

func (c *sliceCursor[R]) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetches
}

func intRange(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

// recordingObserver keeps every event it receives.
type recordingObserver struct {
	mu       sync.Mutex
	attempts []access.AttemptRecord
	results  []access.Kind
	batches  []int
	releases int
}

func (o *recordingObserver) ObserveAttempt(_ string, rec access.AttemptRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.attempts = append(o.attempts, rec)
}

func (o *recordingObserver) ObserveResult(_ string, kind access.Kind, _ int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.results = append(o.results, kind)
}

func (o *recordingObserver) ObserveBatch(_ string, records int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.batches = append(o.batches, records)
}

func (o *recordingObserver) ObserveRelease(string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.releases++
}

func (o *recordingObserver) releaseCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.releases
}

const shortWait = 10 * time.Millisecond

package access_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	access "github.com/JohnPlummer/jp-go-access"
)

var _ = Describe("RunWithDeadline", func() {
	It("returns the result of work that finishes in time", func() {
		v, err := access.RunWithDeadline(context.Background(), time.Second, func(ctx context.Context) (int, error) {
			return 42, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal(42))
	})

	It("passes the work's own error through", func() {
		boom := errors.New("boom")
		_, err := access.RunWithDeadline(context.Background(), time.Second, func(ctx context.Context) (int, error) {
			return 0, boom
		})
		Expect(err).To(MatchError(boom))
		Expect(access.IsTimeout(err)).To(BeFalse())
		Expect(access.KindOf(err)).To(Equal(access.KindNone))
	})

	It("returns a timeout without waiting for work that ignores its context", func() {
		release := make(chan struct{})
		defer close(release)

		start := time.Now()
		_, err := access.RunWithDeadline(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		})
		Expect(err).To(MatchError(access.ErrTimeout))
		Expect(access.IsTimeout(err)).To(BeTrue())
		Expect(access.KindOf(err)).To(Equal(access.KindTimeout))
		Expect(time.Since(start)).To(BeNumerically("<", time.Second))
	})

	It("cancels the work's context when the deadline passes", func() {
		var canceled atomic.Bool
		finished := make(chan struct{})

		_, err := access.RunWithDeadline(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
			defer close(finished)
			<-ctx.Done()
			canceled.Store(true)
			return 0, ctx.Err()
		})
		Expect(err).To(MatchError(access.ErrTimeout))
		Eventually(finished).Should(BeClosed())
		Expect(canceled.Load()).To(BeTrue())
	})

	It("reports the parent's cancellation instead of a timeout", func() {
		ctx, cancel := context.WithCancel(context.Background())
		time.AfterFunc(10*time.Millisecond, cancel)

		_, err := access.RunWithDeadline(ctx, time.Minute, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(access.IsTimeout(err)).To(BeFalse())
		Expect(access.KindOf(err)).To(Equal(access.KindCanceled))
	})

	It("does not start work under an ended context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		var ran atomic.Bool
		_, err := access.RunWithDeadline(ctx, time.Second, func(ctx context.Context) (int, error) {
			ran.Store(true)
			return 0, nil
		})
		Expect(err).To(MatchError(context.Canceled))
		Expect(ran.Load()).To(BeFalse())
	})

	It("treats a non-positive deadline as unbounded", func() {
		hasDeadline, err := access.RunWithDeadline(context.Background(), 0, func(ctx context.Context) (bool, error) {
			_, ok := ctx.Deadline()
			return ok, nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(hasDeadline).To(BeFalse())
	})
})

var _ = Describe("BlockingPool", func() {
	It("treats sizes below one as one", func() {
		Expect(access.NewBlockingPool(0).Size()).To(Equal(1))
		Expect(access.NewBlockingPool(-3).Size()).To(Equal(1))
		Expect(access.NewBlockingPool(8).Size()).To(Equal(8))
	})

	It("never runs more than size calls at once", func() {
		pool := access.NewBlockingPool(2)

		var running, peak atomic.Int32
		done := make(chan struct{}, 6)
		for i := 0; i < 6; i++ {
			Expect(pool.Go(context.Background(), func() {
				n := running.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				running.Add(-1)
				done <- struct{}{}
			})).To(Succeed())
		}
		for i := 0; i < 6; i++ {
			Eventually(done).Should(Receive())
		}
		Expect(peak.Load()).To(BeNumerically("<=", 2))
	})

	It("gives up waiting for a slot when the context ends", func() {
		pool := access.NewBlockingPool(1)
		block := make(chan struct{})
		defer close(block)
		Expect(pool.Go(context.Background(), func() { <-block })).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		err := pool.Go(ctx, func() {})
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})

	It("bounds executor attempts when configured", func() {
		pool := access.NewBlockingPool(1)
		v, err := access.NewExecutor(&mockAcquirer{},
			func(ctx context.Context, h *mockHandle, req access.Request) (int, error) { return h.id + 7, nil },
			access.WithBlockingPool(pool),
			access.WithLogger(quietLogger()),
		).Execute(context.Background(), access.Request{Target: "pooled"})
		Expect(err).NotTo(HaveOccurred())
		Expect(v.Value).To(Equal(7))
	})
})

var _ = Describe("Offload", func() {
	It("returns the blocking call's result", func() {
		pool := access.NewBlockingPool(1)
		v, err := access.Offload(context.Background(), pool, func() (string, error) {
			return "offloaded", nil
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(v).To(Equal("offloaded"))
	})

	It("stops waiting when the context ends", func() {
		pool := access.NewBlockingPool(1)
		release := make(chan struct{})
		defer close(release)

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		_, err := access.Offload(ctx, pool, func() (string, error) {
			<-release
			return "late", nil
		})
		Expect(err).To(MatchError(context.DeadlineExceeded))
	})
})

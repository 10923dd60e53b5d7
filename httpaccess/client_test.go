package httpaccess_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	access "github.com/JohnPlummer/jp-go-access"
	"github.com/JohnPlummer/jp-go-access/httpaccess"
)

// countingSessions counts the sessions opened by the client.
type countingSessions struct {
	factory *httpaccess.SessionFactory
	opened  atomic.Int32
}

func (c *countingSessions) Acquire(ctx context.Context, req access.Request) (*httpaccess.Session, error) {
	c.opened.Add(1)
	return c.factory.Acquire(ctx, req)
}

var _ = Describe("Client", func() {
	var (
		server *httptest.Server
		hits   atomic.Int32
		fail   atomic.Int32
		status atomic.Int32
		ctx    context.Context
		quiet  access.Option
	)

	BeforeEach(func() {
		ctx = context.Background()
		hits.Store(0)
		fail.Store(0)
		status.Store(http.StatusServiceUnavailable)
		quiet = access.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))

		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			n := hits.Add(1)
			if n <= fail.Load() {
				w.WriteHeader(int(status.Load()))
				return
			}
			switch r.URL.Path {
			case "/echo":
				body, _ := io.ReadAll(r.Body)
				w.Header().Set("X-Method", r.Method)
				w.Header().Set("X-Echo", r.Header.Get("X-Trace"))
				_, _ = w.Write(body)
			case "/slow":
				select {
				case <-r.Context().Done():
				case <-time.After(time.Second):
				}
			default:
				_, _ = io.WriteString(w, "hello")
			}
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	newClient := func(opts ...httpaccess.Option) *httpaccess.Client {
		opts = append([]httpaccess.Option{
			httpaccess.WithAccessOptions(quiet, access.WithRetryWait(5*time.Millisecond)),
		}, opts...)
		return httpaccess.NewClient(opts...)
	}

	It("returns status, headers and body", func() {
		resp, err := newClient().Post(ctx, server.URL+"/echo", http.Header{"X-Trace": {"abc"}}, []byte("payload"))
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(resp.Header.Get("X-Method")).To(Equal(http.MethodPost))
		Expect(resp.Header.Get("X-Echo")).To(Equal("abc"))
		Expect(resp.Text()).To(Equal("payload"))
	})

	It("defaults to GET", func() {
		resp, err := newClient().Do(ctx, access.Request{Target: server.URL + "/echo"})
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Header.Get("X-Method")).To(Equal(http.MethodGet))
	})

	It("retries server errors and opens a new session per attempt", func() {
		fail.Store(2)
		sessions := &countingSessions{factory: httpaccess.NewSessionFactory()}

		result, err := newClient(httpaccess.WithSessions(sessions)).Execute(ctx, access.Request{
			Method: http.MethodGet,
			Target: server.URL,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Value.Text()).To(Equal("hello"))
		Expect(result.Attempts).To(Equal(3))
		Expect(sessions.opened.Load()).To(Equal(int32(3)))
	})

	It("exhausts after four attempts against a failing server", func() {
		fail.Store(100)

		_, err := newClient().Get(ctx, server.URL, nil)
		Expect(err).To(MatchError(access.ErrExhausted))
		Expect(hits.Load()).To(Equal(int32(4)))

		var httpErr access.HTTPError
		Expect(errors.As(err, &httpErr)).To(BeTrue())
		Expect(httpErr.StatusCode()).To(Equal(http.StatusServiceUnavailable))
	})

	It("does not retry client errors", func() {
		fail.Store(100)
		status.Store(http.StatusNotFound)

		_, err := newClient().Get(ctx, server.URL, nil)
		Expect(err).To(MatchError(access.ErrFatal))
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("accepts every status when told to", func() {
		fail.Store(1)
		status.Store(http.StatusInternalServerError)

		resp, err := newClient(httpaccess.WithAcceptedStatus(func(int) bool { return true })).Get(ctx, server.URL, nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("bounds each attempt by the deadline", func() {
		client := newClient(httpaccess.WithAccessOptions(
			access.WithDeadline(20*time.Millisecond),
			access.WithMaxAttempts(2),
		))

		_, err := client.Get(ctx, server.URL+"/slow", nil)
		Expect(err).To(MatchError(access.ErrTimeout))
		Expect(hits.Load()).To(Equal(int32(2)))
	})

	It("fails fatally on a malformed request", func() {
		_, err := newClient().Do(ctx, access.Request{Method: "BAD METHOD", Target: server.URL})
		Expect(err).To(MatchError(access.ErrFatal))
		Expect(hits.Load()).To(BeZero())
	})

	It("reports connection failures as exhausted retries", func() {
		addr := server.URL
		server.Close()

		_, err := newClient(httpaccess.WithAccessOptions(access.WithMaxAttempts(2))).Get(ctx, addr, nil)
		Expect(err).To(MatchError(access.ErrExhausted))
	})

	It("works behind a circuit breaker", func() {
		guarded := access.NewCircuitBreakerWrapper[access.Request, *access.Result[*httpaccess.Response]](
			newClient(),
			access.WithCircuitBreakerLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)

		result, err := guarded.Execute(ctx, access.Request{Target: server.URL})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Value.Text()).To(Equal("hello"))
	})
})

var _ = Describe("SessionFactory", func() {
	It("builds traced and insecure sessions", func() {
		factory := httpaccess.NewSessionFactory(
			httpaccess.WithTracing(true),
			httpaccess.WithInsecureSkipVerify(true),
			httpaccess.WithIdleTimeout(time.Second),
		)

		session, err := factory.Acquire(context.Background(), access.Request{})
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Client().Transport).NotTo(BeAssignableToTypeOf(&http.Transport{}))
		Expect(session.Close()).To(Succeed())
	})

	It("refuses to open a session under an ended context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := httpaccess.NewSessionFactory().Acquire(ctx, access.Request{})
		Expect(err).To(MatchError(context.Canceled))
	})
})

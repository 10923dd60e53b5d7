package httpaccess

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	access "github.com/JohnPlummer/jp-go-access"
)

// DefaultTimeout bounds a single HTTP attempt.
const DefaultTimeout = 30 * time.Second

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Client sends HTTP requests with bounded retry.
type Client struct {
	sessions   access.Acquirer[*Session]
	accept     func(status int) bool
	accessOpts []access.Option
	exec       *access.Executor[*Session, *Response]
}

// Option configures a Client.
type Option func(*Client)

// WithSessions replaces the default SessionFactory.
func WithSessions(sessions access.Acquirer[*Session]) Option {
	return func(c *Client) {
		c.sessions = sessions
	}
}

// WithAcceptedStatus sets which statuses count as success. Any other status fails
// the attempt with an *access.StatusCodeError.
//
// Example:
//
//	// accept everything, including 5xx
//	httpaccess.WithAcceptedStatus(func(int) bool { return true })
func WithAcceptedStatus(accept func(status int) bool) Option {
	return func(c *Client) {
		c.accept = accept
	}
}

// WithAccessOptions passes retry, deadline and logging options to the executor.
func WithAccessOptions(opts ...access.Option) Option {
	return func(c *Client) {
		c.accessOpts = append(c.accessOpts, opts...)
	}
}

// NewClient creates a Client. Without options it retries up to 4 times, 3 seconds
// apart, and bounds each attempt by DefaultTimeout.
func NewClient(opts ...Option) *Client {
	c := &Client{
		accept: func(status int) bool { return status < http.StatusBadRequest },
		accessOpts: []access.Option{
			access.WithName("http"),
			access.WithDeadline(DefaultTimeout),
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sessions == nil {
		c.sessions = NewSessionFactory()
	}

	c.exec = access.NewExecutor(c.sessions, c.send, c.accessOpts...)
	return c
}

// Execute implements access.ResilientClient.
func (c *Client) Execute(ctx context.Context, req access.Request) (*access.Result[*Response], error) {
	return c.exec.Execute(ctx, req)
}

// Do sends req and returns the response of the successful attempt.
func (c *Client) Do(ctx context.Context, req access.Request) (*Response, error) {
	result, err := c.exec.Execute(ctx, req)
	if err != nil {
		return nil, err
	}
	return result.Value, nil
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return c.Do(ctx, access.Request{Method: http.MethodGet, Target: url, Header: header})
}

// Post sends a POST request with body.
func (c *Client) Post(ctx context.Context, url string, header http.Header, body []byte) (*Response, error) {
	return c.Do(ctx, access.Request{Method: http.MethodPost, Target: url, Header: header, Body: body})
}

func (c *Client) send(ctx context.Context, s *Session, req access.Request) (*Response, error) {
	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.Target, body)
	if err != nil {
		return nil, access.NewStatusCodeError(http.StatusBadRequest, fmt.Errorf("build request: %w", err))
	}
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if !c.accept(resp.StatusCode) {
		return nil, access.NewStatusCodeError(resp.StatusCode, fmt.Errorf("unexpected status %s", resp.Status))
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
	}, nil
}

// Package httpaccess sends HTTP requests through the access executor. Every attempt
// runs on its own session, so a broken connection never leaks into the next retry.
package httpaccess

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	access "github.com/JohnPlummer/jp-go-access"
)

// Session is one HTTP transport and the client bound to it.
type Session struct {
	client    *http.Client
	transport *http.Transport
}

// Client returns the session's HTTP client.
func (s *Session) Client() *http.Client {
	return s.client
}

// Close drops the session's idle connections.
func (s *Session) Close() error {
	s.transport.CloseIdleConnections()
	return nil
}

// SessionFactory opens a fresh Session for every attempt.
type SessionFactory struct {
	proxy    *url.URL
	insecure bool
	tracing  bool
	idle     time.Duration
}

// SessionOption configures a SessionFactory.
type SessionOption func(*SessionFactory)

// WithProxy routes every session through proxy. A nil proxy falls back to the
// environment's proxy settings.
func WithProxy(proxy *url.URL) SessionOption {
	return func(f *SessionFactory) {
		f.proxy = proxy
	}
}

// WithInsecureSkipVerify disables TLS certificate verification.
func WithInsecureSkipVerify(skip bool) SessionOption {
	return func(f *SessionFactory) {
		f.insecure = skip
	}
}

// WithTracing wraps every session transport in an OpenTelemetry transport.
func WithTracing(enabled bool) SessionOption {
	return func(f *SessionFactory) {
		f.tracing = enabled
	}
}

// WithIdleTimeout sets how long idle connections stay open within a session.
func WithIdleTimeout(d time.Duration) SessionOption {
	return func(f *SessionFactory) {
		f.idle = d
	}
}

// NewSessionFactory creates a SessionFactory.
func NewSessionFactory(opts ...SessionOption) *SessionFactory {
	f := &SessionFactory{idle: 90 * time.Second}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Acquire implements access.Acquirer.
func (f *SessionFactory) Acquire(ctx context.Context, _ access.Request) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.IdleConnTimeout = f.idle
	if f.proxy != nil {
		transport.Proxy = http.ProxyURL(f.proxy)
	}
	if f.insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in
	}

	var rt http.RoundTripper = transport
	if f.tracing {
		rt = otelhttp.NewTransport(transport)
	}

	return &Session{
		client:    &http.Client{Transport: rt},
		transport: transport,
	}, nil
}

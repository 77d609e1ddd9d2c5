package client

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultHTTPTimeoutSeconds     = 30
	defaultHTTPIdleTimeoutSeconds = 90
	defaultMaxResponseBodyLen     = 20 << 20
)

// HTTPOption configures the underlying *http.Client.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	timeout     time.Duration
	transport   http.RoundTripper
	idleTimeout time.Duration

	traceRequests       bool
	traceRequestHeaders bool
	traceRequestBody    bool
}

// WithHTTPTimeout sets the wall clock limit for a whole request, body included.
func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.timeout = timeout
	}
}

// WithHTTPTransport sets the HTTP transport.
func WithHTTPTransport(transport http.RoundTripper) HTTPOption {
	return func(c *httpConfig) {
		c.transport = transport
	}
}

// WithHTTPIdleTimeout sets the idle timeout.
func WithHTTPIdleTimeout(timeout time.Duration) HTTPOption {
	return func(c *httpConfig) {
		c.idleTimeout = timeout
	}
}

// WithHTTPTraceRequests logs every request and response.
func WithHTTPTraceRequests(headers bool, body bool) HTTPOption {
	return func(c *httpConfig) {
		c.traceRequests = true
		c.traceRequestHeaders = headers
		c.traceRequestBody = body
	}
}

// NewHTTPClient creates a new HTTP client with the provided options.
// If no transport is specified, it defaults to otelhttp.NewTransport(http.DefaultTransport).
func NewHTTPClient(opts ...HTTPOption) *http.Client {
	cfg := &httpConfig{
		timeout:     time.Duration(defaultHTTPTimeoutSeconds) * time.Second,
		idleTimeout: time.Duration(defaultHTTPIdleTimeoutSeconds) * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.transport == nil {
		base := http.DefaultTransport.(*http.Transport).Clone()
		base.IdleConnTimeout = cfg.idleTimeout
		cfg.transport = otelhttp.NewTransport(base)
	}

	if cfg.traceRequests {
		cfg.transport = NewLoggingTransport(cfg.transport,
			WithTransportLogHeaders(cfg.traceRequestHeaders),
			WithTransportLogBody(cfg.traceRequestBody))
	}

	return &http.Client{
		Transport: cfg.transport,
		Timeout:   cfg.timeout,
	}
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default otelhttp instrumented client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithHTTPOptions builds the default client with opts.
func WithHTTPOptions(opts ...HTTPOption) Option {
	return func(c *Client) {
		c.http = NewHTTPClient(opts...)
	}
}

// WithSession sets the session used when a request context carries none.
func WithSession(s Session) Option {
	return func(c *Client) {
		c.fallback = s
	}
}

// WithMaxResponseBytes caps how much of a response body is decoded.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxBodyLen = n
	}
}

package client

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pitabwire/util"
)

// Copyright 2023-2024 Ant Investor Ltd
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

const (
	defaultMaxLoggedBody = 1024
	redacted             = "[redacted]"
)

// LoggingTransportOption configures the logging HTTP transport.
type LoggingTransportOption func(*loggingTransport)

type loggingTransport struct {
	transport   http.RoundTripper
	logHeaders  bool
	logBody     bool
	maxBodySize int64
}

// NewLoggingTransport wraps transport so every backend call is logged.
// Headers and bodies are off by default, Authorization and Cookie values are always redacted.
func NewLoggingTransport(transport http.RoundTripper, opts ...LoggingTransportOption) http.RoundTripper {
	if transport == nil {
		transport = http.DefaultTransport
	}

	t := &loggingTransport{
		transport:   transport,
		maxBodySize: defaultMaxLoggedBody,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// WithTransportLogHeaders enables or disables header logging.
func WithTransportLogHeaders(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logHeaders = enabled
	}
}

// WithTransportLogBody enables or disables body logging.
func WithTransportLogBody(enabled bool) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.logBody = enabled
	}
}

// WithTransportMaxBodySize sets how many body bytes are logged.
func WithTransportMaxBodySize(size int64) LoggingTransportOption {
	return func(t *loggingTransport) {
		t.maxBodySize = size
	}
}

func (t *loggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	ctx := req.Context()

	t.logRequest(ctx, req)

	resp, err := t.transport.RoundTrip(req)

	t.logResponse(ctx, req, resp, err, time.Since(start))
	return resp, err
}

func (t *loggingTransport) logRequest(ctx context.Context, req *http.Request) {
	logger := util.Log(ctx).WithFields(map[string]any{
		"method": req.Method,
		"url":    req.URL.String(),
	})

	if t.logHeaders {
		logger = logger.WithField("headers", flattenHeaders(req.Header))
	}

	if t.logBody && req.Body != nil && !isMultipart(req.Header) {
		var head []byte
		head, req.Body = t.peek(req.Body)
		if len(head) > 0 {
			logger = logger.WithField("body", string(head))
		}
	}

	logger.Debug("api request sent")
}

func (t *loggingTransport) logResponse(
	ctx context.Context,
	req *http.Request,
	resp *http.Response,
	err error,
	duration time.Duration,
) {
	logger := util.Log(ctx).WithFields(map[string]any{
		"method":   req.Method,
		"path":     req.URL.Path,
		"duration": duration.String(),
	})

	if err != nil {
		logger.WithError(err).Warn("api request failed")
		return
	}

	logger = logger.WithField("status", resp.StatusCode)
	if t.logHeaders {
		logger = logger.WithField("headers", flattenHeaders(resp.Header))
	}
	if t.logBody && resp.Body != nil {
		var head []byte
		head, resp.Body = t.peek(resp.Body)
		if len(head) > 0 {
			logger = logger.WithField("body", string(head))
		}
	}

	logger.Debug("api response received")
}

// peek reads up to maxBodySize bytes and returns a body that still yields the full stream.
func (t *loggingTransport) peek(body io.ReadCloser) ([]byte, io.ReadCloser) {
	head, err := io.ReadAll(io.LimitReader(body, t.maxBodySize))
	if err != nil {
		return nil, body
	}
	return head, struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(head), body), body}
}

func flattenHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if len(values) == 0 {
			continue
		}
		switch http.CanonicalHeaderKey(name) {
		case "Authorization", "Cookie", "Set-Cookie":
			out[name] = redacted
		default:
			out[name] = strings.Join(values, ", ")
		}
	}
	return out
}

func isMultipart(h http.Header) bool {
	return strings.HasPrefix(h.Get("Content-Type"), "multipart/")
}

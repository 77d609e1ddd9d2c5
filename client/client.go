package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"

	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition/config"
)

// Client talks to the backend REST API. One Client is shared by every agent;
// per-agent state travels in the request context.
type Client struct {
	http       *http.Client
	baseURL    string
	origin     string
	fallback   Session
	maxBodyLen int64
}

// New resolves the base URL once and builds the shared client.
// An empty API_URL is a startup error, there is no fallback origin.
func New(cfg config.ConfigurationAPI, opts ...Option) (*Client, error) {
	if cfg == nil || cfg.APIBaseURL() == "" {
		return nil, config.ErrMissingAPIURL
	}

	c := &Client{
		baseURL:    cfg.APIBaseURL(),
		origin:     cfg.APIOrigin(),
		fallback:   anonymous{},
		maxBodyLen: defaultMaxResponseBodyLen,
	}

	httpOpts := []HTTPOption{WithHTTPTimeout(cfg.APIRequestTimeout())}
	if tr, ok := cfg.(config.ConfigurationTraceRequests); ok && tr.TraceReq() {
		httpOpts = append(httpOpts, WithHTTPTraceRequests(false, tr.TraceReqLogBody()))
	}
	c.http = NewHTTPClient(httpOpts...)

	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL is the versioned REST root, e.g. https://api.example.com/api/v1.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Request describes one backend call.
type Request struct {
	Method string
	// Path is relative to the base URL, or to the origin when FromOrigin is set.
	Path       string
	FromOrigin bool
	Query      url.Values
	// Body is JSON encoded unless Form is set.
	Body any
	Form *Multipart
	// Anonymous sends no bearer token, and a 401 answer leaves the session alone.
	Anonymous bool
}

// Multipart is a multipart/form-data body with a single file part.
type Multipart struct {
	Fields    map[string]string
	FileField string
	FileName  string
	File      io.Reader
}

// Get is shorthand for a GET Do.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query}, out)
}

// Post is shorthand for a JSON POST Do.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put is shorthand for a JSON PUT Do.
func (c *Client) Put(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Do sends req and decodes a 2xx JSON response into out, which may be nil.
//
// Failures come back as ErrNetwork when nothing was received, or as *Error otherwise.
// A 401 first runs the session's Unauthorized hook so the caller only has to propagate it.
func (c *Client) Do(ctx context.Context, req Request, out any) error {
	sess := FromContext(ctx)
	if sess == nil {
		sess = c.fallback
	}

	httpReq, err := c.newRequest(ctx, req)
	if err != nil {
		return err
	}

	if !req.Anonymous {
		token, tokenErr := sess.Token(ctx)
		if tokenErr != nil {
			return fmt.Errorf("read session token: %w", tokenErr)
		}
		if token != "" {
			httpReq.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(ctxErr, context.DeadlineExceeded) {
			return ctxErr
		}
		return errors.Join(ErrNetwork, err)
	}
	defer util.CloseAndLogOnError(ctx, resp.Body, "could not close api response body")

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBodyLen))
	if err != nil {
		return errors.Join(ErrNetwork, err)
	}

	if resp.StatusCode == http.StatusUnauthorized && !req.Anonymous {
		util.Log(ctx).WithField("path", req.Path).Info("api rejected session token")
		sess.Unauthorized(ctx)
		return decodeError(req.Method, req.Path, resp.StatusCode, body)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return decodeError(req.Method, req.Path, resp.StatusCode, body)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	if err = json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", req.Method, req.Path, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, req Request) (*http.Request, error) {
	root := c.baseURL
	if req.FromOrigin {
		root = c.origin
	}
	target := root + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var (
		body        io.Reader
		contentType string
	)
	switch {
	case req.Form != nil:
		buf, ct, err := req.Form.encode()
		if err != nil {
			return nil, err
		}
		body, contentType = buf, ct
	case req.Body != nil:
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode %s %s body: %w", method, req.Path, err)
		}
		body, contentType = bytes.NewReader(payload), "application/json"
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("build %s %s: %w", method, req.Path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	return httpReq, nil
}

func (m *Multipart) encode() (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	for name, value := range m.Fields {
		if err := w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write form field %s: %w", name, err)
		}
	}

	if m.File != nil {
		field := m.FileField
		if field == "" {
			field = "file"
		}
		part, err := w.CreateFormFile(field, m.FileName)
		if err != nil {
			return nil, "", fmt.Errorf("create form file: %w", err)
		}
		if _, err = io.Copy(part, m.File); err != nil {
			return nil, "", fmt.Errorf("copy form file: %w", err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return buf, w.FormDataContentType(), nil
}

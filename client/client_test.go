package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/config"
)

type stubSession struct {
	token        string
	unauthorized atomic.Int32
}

func (s *stubSession) Token(context.Context) (string, error) { return s.token, nil }
func (s *stubSession) Unauthorized(context.Context)           { s.unauthorized.Add(1) }

type ClientSuite struct {
	suite.Suite
}

func TestClientSuite(t *testing.T) {
	suite.Run(t, new(ClientSuite))
}

func (s *ClientSuite) newClient(srv *httptest.Server, opts ...client.Option) *client.Client {
	cfg := &config.ConfigurationDefault{APIURL: srv.URL + "/"}
	c, err := client.New(cfg, opts...)
	s.Require().NoError(err)
	return c
}

func (s *ClientSuite) TestNewFailsWithoutAPIURL() {
	for _, raw := range []string{"", "  "} {
		c, err := client.New(&config.ConfigurationDefault{APIURL: raw})
		s.Require().ErrorIs(err, config.ErrMissingAPIURL)
		s.Nil(c)
	}
}

func (s *ClientSuite) TestBaseURLTrimsTrailingSlash() {
	c, err := client.New(&config.ConfigurationDefault{APIURL: "http://localhost:8080//"})
	s.Require().NoError(err)
	s.Equal("http://localhost:8080/api/v1", c.BaseURL())
}

func (s *ClientSuite) TestBearerHeaderFollowsSession() {
	var seen atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.Equal("/api/v1/auth/me", r.URL.Path)
		seen.Store(r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	c := s.newClient(srv)

	var out struct {
		ID int `json:"id"`
	}

	ctx := client.ToContext(context.Background(), &stubSession{token: "tok-1"})
	s.Require().NoError(c.Get(ctx, "/auth/me", nil, &out))
	s.Equal(7, out.ID)
	s.Equal("Bearer tok-1", seen.Load())

	ctx = client.ToContext(context.Background(), &stubSession{})
	s.Require().NoError(c.Get(ctx, "auth/me", nil, &out))
	s.Empty(seen.Load())

	s.Require().NoError(c.Get(context.Background(), "/auth/me", nil, &out))
	s.Empty(seen.Load())

	ctx = client.ToContext(context.Background(), &stubSession{token: "tok-2"})
	s.Require().NoError(c.Do(ctx, client.Request{Path: "/auth/me", Anonymous: true}, &out))
	s.Empty(seen.Load())
}

func (s *ClientSuite) TestUnauthorizedRunsHookAndShortCircuits() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":401,"error":"Unauthorized","message":"token expired"}`))
	}))
	defer srv.Close()

	c := s.newClient(srv)
	sess := &stubSession{token: "expired"}
	ctx := client.ToContext(context.Background(), sess)

	var out map[string]any
	err := c.Get(ctx, "/applications/my", nil, &out)
	s.Require().ErrorIs(err, client.ErrUnauthorized)
	s.Nil(out)
	s.Equal(int32(1), sess.unauthorized.Load())
	s.Equal(http.StatusUnauthorized, client.StatusCode(err))
	s.True(client.IsClientError(err))
}

func (s *ClientSuite) TestErrorBodiesAreDecoded() {
	testCases := []struct {
		name    string
		status  int
		body    string
		target  error
		message string
		fields  map[string]string
	}{
		{
			name:    "conflict",
			status:  http.StatusConflict,
			body:    `{"status":409,"error":"Conflict","message":"already applied"}`,
			target:  client.ErrConflict,
			message: "already applied",
		},
		{
			name:    "validation map",
			status:  http.StatusBadRequest,
			body:    `{"status":400,"message":"invalid","errors":{"email":"must be valid"}}`,
			target:  client.ErrValidation,
			message: "invalid",
			fields:  map[string]string{"email": "must be valid"},
		},
		{
			name:    "validation list",
			status:  http.StatusUnprocessableEntity,
			body:    `{"error":"Unprocessable","errors":[{"field":"name","message":"too short"}]}`,
			target:  client.ErrValidation,
			message: "Unprocessable",
			fields:  map[string]string{"name": "too short"},
		},
		{
			name:    "plain text server error",
			status:  http.StatusBadGateway,
			body:    " upstream down \n",
			target:  client.ErrServer,
			message: "upstream down",
		},
		{
			name:   "forbidden without body",
			status: http.StatusForbidden,
			target: client.ErrForbidden,
		},
		{
			name:   "not found",
			status: http.StatusNotFound,
			body:   `{}`,
			target: client.ErrNotFound,
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte(tc.body))
			}))
			defer srv.Close()

			err := s.newClient(srv).Post(context.Background(), "/applications", map[string]any{"auditionId": 1}, nil)
			s.Require().ErrorIs(err, tc.target)

			var apiErr *client.Error
			s.Require().ErrorAs(err, &apiErr)
			s.Equal(tc.status, apiErr.StatusCode)
			s.Equal(tc.message, apiErr.Message)
			s.Equal(tc.fields, apiErr.Fields)
			s.NotErrorIs(err, client.ErrUnauthorized)
		})
	}
}

func (s *ClientSuite) TestTimeoutIsNetworkError() {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	c := s.newClient(srv, client.WithHTTPOptions(client.WithHTTPTimeout(50*time.Millisecond)))

	err := c.Get(context.Background(), "/auditions", nil, nil)
	s.Require().ErrorIs(err, client.ErrNetwork)
	s.Zero(client.StatusCode(err))
}

func (s *ClientSuite) TestCancelledCallerGetsContextError() {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := s.newClient(srv).Get(ctx, "/auditions", nil, nil)
	s.Require().ErrorIs(err, context.Canceled)
	s.NotErrorIs(err, client.ErrNetwork)
}

func (s *ClientSuite) TestJSONAndMultipartBodies() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/points/topup":
			s.Equal("application/json", r.Header.Get("Content-Type"))
			var in map[string]int
			s.NoError(json.NewDecoder(r.Body).Decode(&in))
			s.Equal(500, in["amount"])
			w.WriteHeader(http.StatusNoContent)
		case "/api/v1/vault/assets":
			s.True(strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data"))
			s.NoError(r.ParseMultipartForm(1 << 20))
			s.Equal("demo", r.FormValue("title"))
			f, hdr, err := r.FormFile("file")
			s.Require().NoError(err)
			defer f.Close()
			s.Equal("clip.mp4", hdr.Filename)
			data, _ := io.ReadAll(f)
			s.Equal("video-bytes", string(data))
			_, _ = w.Write([]byte(`{"id":3}`))
		case "/api/health":
			s.Equal("page=2", r.URL.RawQuery)
			_, _ = w.Write([]byte(`{"status":"UP"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := s.newClient(srv)
	ctx := context.Background()

	s.Require().NoError(c.Post(ctx, "/points/topup", map[string]int{"amount": 500}, &struct{}{}))

	var asset struct {
		ID int `json:"id"`
	}
	err := c.Do(ctx, client.Request{
		Method: http.MethodPost,
		Path:   "/vault/assets",
		Form: &client.Multipart{
			Fields:   map[string]string{"title": "demo"},
			FileName: "clip.mp4",
			File:     strings.NewReader("video-bytes"),
		},
	}, &asset)
	s.Require().NoError(err)
	s.Equal(3, asset.ID)

	var health map[string]string
	s.Require().NoError(c.Do(ctx, client.Request{
		Path:       "/api/health",
		FromOrigin: true,
		Query:      map[string][]string{"page": {"2"}},
	}, &health))
	s.Equal("UP", health["status"])
}

func (s *ClientSuite) TestUndecodableSuccessBody() {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer srv.Close()

	var out map[string]any
	err := s.newClient(srv).Get(context.Background(), "/auditions", nil, &out)
	s.Require().Error(err)
	s.False(errors.Is(err, client.ErrNetwork))
}

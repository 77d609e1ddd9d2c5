package client //nolint:testpackage // tests reach the unexported header flattening

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/suite"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

type LoggingTransportSuite struct {
	suite.Suite
}

func TestLoggingTransportSuite(t *testing.T) {
	suite.Run(t, new(LoggingTransportSuite))
}

func (s *LoggingTransportSuite) TestBodiesSurviveLogging() {
	var received string
	base := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		data, err := io.ReadAll(req.Body)
		s.Require().NoError(err)
		received = string(data)
		return &http.Response{
			StatusCode: http.StatusOK,
			Body:       io.NopCloser(bytes.NewBufferString("response body that is long")),
			Header:     http.Header{"X-Test": []string{"yes"}},
		}, nil
	})

	rt := NewLoggingTransport(base,
		WithTransportLogHeaders(true),
		WithTransportLogBody(true),
		WithTransportMaxBodySize(5),
	)

	req, err := http.NewRequestWithContext(
		context.Background(),
		http.MethodPost,
		"http://example.com/api/v1/auth/login",
		strings.NewReader("request body payload"),
	)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer secret")

	resp, err := rt.RoundTrip(req)
	s.Require().NoError(err)
	s.Equal("request body payload", received)

	data, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	s.Equal("response body that is long", string(data))
	s.NoError(resp.Body.Close())
}

func (s *LoggingTransportSuite) TestTransportErrorIsReturned() {
	base := roundTripFunc(func(_ *http.Request) (*http.Response, error) {
		return nil, errors.New("network down")
	})

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "http://example.com", nil)
	s.Require().NoError(err)

	resp, err := NewLoggingTransport(base).RoundTrip(req)
	s.Nil(resp)
	s.Require().EqualError(err, "network down")
}

func (s *LoggingTransportSuite) TestCredentialsAreRedacted() {
	flat := flattenHeaders(http.Header{
		"Authorization": {"Bearer secret"},
		"Cookie":        {"ga_agent=abc"},
		"Accept":        {"application/json", "text/plain"},
	})
	s.Equal(redacted, flat["Authorization"])
	s.Equal(redacted, flat["Cookie"])
	s.Equal("application/json, text/plain", flat["Accept"])
}

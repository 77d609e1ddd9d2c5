// Copyright 2018 The Go Cloud Development Kit Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
// Picked from : "gocloud.dev/server/health"

package audition

import (
	"context"
	"errors"
	"io"
	"net/http"
)

var ErrHealthCheckFailed = errors.New("health check failed")

// Checker reports whether a dependency is usable. CheckHealth must be safe to call from multiple goroutines.
type Checker interface {
	CheckHealth(ctx context.Context) error
}

// CheckerFunc adapts an ordinary function to Checker.
type CheckerFunc func(ctx context.Context) error

// CheckHealth calls f(ctx).
func (f CheckerFunc) CheckHealth(ctx context.Context) error {
	return f(ctx)
}

// AddHealthCheck adds a checker consulted by the health endpoint.
func (s *Service) AddHealthCheck(checker Checker) {
	s.healthCheckers = append(s.healthCheckers, checker)
}

// HealthCheckers returns the registered checkers.
func (s *Service) HealthCheckers() []Checker {
	return s.healthCheckers
}

// WithHealthCheckPath moves the health endpoint away from /healthz.
func WithHealthCheckPath(path string) Option {
	return func(_ context.Context, s *Service) {
		if path != "" {
			s.healthCheckPath = path
		}
	}
}

// HandleHealth returns 200 if every checker passes, 500 otherwise.
func (s *Service) HandleHealth(w http.ResponseWriter, r *http.Request) {
	for _, c := range s.healthCheckers {
		if err := c.CheckHealth(r.Context()); err != nil {
			s.Log(r.Context()).WithError(errors.Join(ErrHealthCheckFailed, err)).Warn("service unhealthy")
			writeHealth(w, http.StatusInternalServerError, "unhealthy")
			return
		}
	}
	writeHealth(w, http.StatusOK, "ok")
}

func writeHealth(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_, _ = io.WriteString(w, status)
}

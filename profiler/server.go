// Package profiler serves the pprof endpoints on a port of their own.
package profiler

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"sync"
	"time"

	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition/config"
)

const (
	// DefaultShutdownTimeout bounds the graceful shutdown of the pprof server.
	DefaultShutdownTimeout = 5 * time.Second
	// DefaultReadHeaderTimeout guards against slowloris clients.
	DefaultReadHeaderTimeout = 5 * time.Second
)

// Handler routes /debug/pprof/ without touching http.DefaultServeMux.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// Server manages the pprof listener lifecycle.
type Server struct {
	mu     sync.Mutex
	server *http.Server
	addr   string
}

// NewServer creates a stopped profiler server.
func NewServer() *Server {
	return &Server{}
}

// StartIfEnabled listens on the configured port when profiling is switched on.
func (s *Server) StartIfEnabled(ctx context.Context, cfg config.ConfigurationProfiler) error {
	if cfg == nil || !cfg.ProfilerEnabled() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return nil
	}

	ln, err := net.Listen("tcp", cfg.ProfilerPort())
	if err != nil {
		return err
	}

	log := util.Log(ctx).WithField("address", ln.Addr().String())
	srv := &http.Server{
		Handler:           Handler(),
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			log.WithError(serveErr).Error("pprof server failed")
		}
	}()

	s.server = srv
	s.addr = ln.Addr().String()
	log.Info("pprof server started")
	return nil
}

// Addr is the bound address, empty while stopped.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Stop gracefully shuts the pprof server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, DefaultShutdownTimeout)
	defer cancel()

	if err := s.server.Shutdown(shutdownCtx); err != nil {
		util.Log(ctx).WithError(err).Error("failed to shutdown pprof server")
		return err
	}

	s.server = nil
	s.addr = ""
	return nil
}

// IsRunning reports whether the listener is up.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.server != nil
}

package audition

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/pitabwire/util"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/tjddyd55-crypto/global-audition/api"
	"github.com/tjddyd55-crypto/global-audition/cache"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/localization"
	"github.com/tjddyd55-crypto/global-audition/profiler"
	"github.com/tjddyd55-crypto/global-audition/session"
	"github.com/tjddyd55-crypto/global-audition/version"
	"github.com/tjddyd55-crypto/global-audition/workerpool"
)

type contextKey string

func (c contextKey) String() string {
	return "audition/" + string(c)
}

const (
	ctxKeyService = contextKey("serviceKey")

	defaultHTTPReadTimeoutSeconds  = 15
	defaultHTTPWriteTimeoutSeconds = 60
	defaultHTTPIdleTimeoutSeconds  = 60
	defaultShutdownTimeout         = 15 * time.Second
	defaultHealthCheckPath         = "/healthz"
)

// Service holds together the process wide components of the frontend:
// the API client, the session and cache backends, the message catalog,
// the worker pool and the per visitor agents.
// One instance lives for the lifetime of the application.
type Service struct {
	name          string
	version       string
	environment   string
	configuration any
	logger        *util.LogEntry

	client       *client.Client
	api          *api.API
	sessionStore session.Store
	cacheStore   cache.RawCache
	localization localization.Manager
	routing      *localization.Routing
	pool         *workerpool.Pool
	agents       *Agents
	profiler     *profiler.Server

	handler         http.Handler
	healthCheckPath string
	healthCheckers  []Checker

	startupErrors []error
	cleanup       func(ctx context.Context)
	cancelFunc    context.CancelFunc
	stopMutex     sync.Mutex
	stopped       bool
}

// Option configures a Service.
type Option func(ctx context.Context, s *Service)

// NewService creates a Service with a background context.
func NewService(name string, opts ...Option) (context.Context, *Service) {
	return NewServiceWithContext(context.Background(), name, opts...)
}

// NewServiceWithContext creates a Service whose context ends on SIGINT, SIGTERM, SIGHUP or SIGQUIT.
// Components not supplied through options are built from the configuration.
// Failures are collected and reported by Err and Run.
func NewServiceWithContext(ctx context.Context, name string, opts ...Option) (context.Context, *Service) {
	ctx, signalCancelFunc := signal.NotifyContext(ctx,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	defaultLogger := util.Log(ctx)
	ctx = util.ContextWithLogger(ctx, defaultLogger)

	s := &Service{
		name:            name,
		version:         version.Current(),
		profiler:        profiler.NewServer(),
		logger:          defaultLogger,
		cancelFunc:      signalCancelFunc,
		healthCheckPath: defaultHealthCheckPath,
	}

	s.Init(ctx, opts...)
	s.setupDefaults(ctx)

	ctx = ToContext(ctx, s)
	ctx = config.ToContext(ctx, s.Config())
	ctx = util.ContextWithLogger(ctx, s.logger)
	return ctx, s
}

// ToContext pushes a service instance into the supplied context for easier propagation.
func ToContext(ctx context.Context, s *Service) context.Context {
	return context.WithValue(ctx, ctxKeyService, s)
}

// FromContext obtains a service instance being propagated through the context.
func FromContext(ctx context.Context) *Service {
	s, ok := ctx.Value(ctxKeyService).(*Service)
	if !ok {
		return nil
	}
	return s
}

// Init applies opts to the service.
func (s *Service) Init(ctx context.Context, opts ...Option) {
	for _, opt := range opts {
		opt(ctx, s)
	}
}

func (s *Service) setupDefaults(ctx context.Context) {
	if s.configuration == nil {
		cfg, err := config.Load()
		if err != nil {
			s.AddStartupError(err)
			return
		}
		WithConfig(cfg)(ctx, s)
	}

	if s.client == nil {
		WithAPIClient()(ctx, s)
	}
	if s.sessionStore == nil {
		WithSessionStore(nil)(ctx, s)
	}
	if s.cacheStore == nil {
		WithCacheStore(nil)(ctx, s)
	}
	if s.localization == nil {
		WithTranslations("")(ctx, s)
	}
	if s.pool == nil {
		WithWorkerPool()(ctx, s)
	}
	if s.Err() != nil {
		return
	}

	s.agents = NewAgents(s.newAgent, s.agentIdle())
	s.AddHealthCheck(CheckerFunc(func(ctx context.Context) error {
		_, _, err := s.sessionStore.Get(ctx, "healthz")
		return err
	}))
}

// AddStartupError records a failure that prevents the service from running.
func (s *Service) AddStartupError(err error) {
	if err == nil {
		return
	}
	s.startupErrors = append(s.startupErrors, err)
}

// Err reports every startup failure, nil when the service is usable.
func (s *Service) Err() error {
	return errors.Join(s.startupErrors...)
}

// Name gets the name of the service.
func (s *Service) Name() string {
	return s.name
}

// WithName specifies the name the service will utilize.
func WithName(name string) Option {
	return func(_ context.Context, s *Service) {
		s.name = name
	}
}

// Version gets the release version of the service.
func (s *Service) Version() string {
	return s.version
}

// WithVersion specifies the version the service will utilize.
func WithVersion(v string) Option {
	return func(_ context.Context, s *Service) {
		s.version = v
	}
}

// Environment gets the runtime environment of the service.
func (s *Service) Environment() string {
	return s.environment
}

// WithEnvironment specifies the environment the service will utilize.
func WithEnvironment(environment string) Option {
	return func(_ context.Context, s *Service) {
		s.environment = environment
	}
}

// WithHTTPHandler sets the application handler served next to the health endpoint.
func WithHTTPHandler(h http.Handler) Option {
	return func(_ context.Context, s *Service) {
		s.handler = h
	}
}

// API returns the domain endpoint wrappers.
func (s *Service) API() *api.API {
	return s.api
}

// Client returns the shared backend client.
func (s *Service) Client() *client.Client {
	return s.client
}

// Localization returns the message catalog.
func (s *Service) Localization() localization.Manager {
	return s.localization
}

// Routing returns the locale routing rules.
func (s *Service) Routing() *localization.Routing {
	return s.routing
}

// Agents returns the visitor registry.
func (s *Service) Agents() *Agents {
	return s.agents
}

// AddCleanupMethod adds f to the functions run when the service stops, newest first.
func (s *Service) AddCleanupMethod(f func(ctx context.Context)) {
	s.stopMutex.Lock()
	defer s.stopMutex.Unlock()

	if s.cleanup == nil {
		s.cleanup = f
		return
	}

	old := s.cleanup
	s.cleanup = func(ctx context.Context) { f(ctx); old(ctx) }
}

// Handler is the full HTTP surface: health endpoint plus application handler, traced.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.healthCheckPath, s.HandleHealth)

	app := s.handler
	if app == nil {
		app = http.NotFoundHandler()
	}
	mux.Handle("/", app)

	return otelhttp.NewHandler(mux, s.name)
}

// Run serves HTTP on address until ctx ends or the server fails, then stops the service.
// An empty address uses the configured port.
func (s *Service) Run(ctx context.Context, address string) error {
	if err := s.Err(); err != nil {
		return err
	}

	if address == "" {
		address = ":8080"
		if cfg, ok := s.Config().(config.ConfigurationPorts); ok {
			address = cfg.HTTPPort()
		}
	}

	if cfg, ok := s.Config().(config.ConfigurationProfiler); ok {
		if err := s.profiler.StartIfEnabled(ctx, cfg); err != nil {
			s.Log(ctx).WithError(err).Warn("could not start profiler")
		}
	}

	go s.agents.Run(ctx)

	srv := &http.Server{
		Addr:    address,
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ReadTimeout:  defaultHTTPReadTimeoutSeconds * time.Second,
		WriteTimeout: defaultHTTPWriteTimeoutSeconds * time.Second,
		IdleTimeout:  defaultHTTPIdleTimeoutSeconds * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.Log(ctx).
		WithField("address", address).
		WithField("version", s.Version()).
		WithField("revision", version.Revision()).
		Info("service started")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), defaultShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		s.Stop(shutdownCtx)
		return err
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			s.Log(ctx).WithError(err).Error("system exit in error")
		}
		s.Stop(ctx)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// Stop gracefully runs clean up methods and releases every component. It is safe to call more than once.
func (s *Service) Stop(ctx context.Context) {
	s.stopMutex.Lock()
	defer s.stopMutex.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true

	s.Log(ctx).Info("service stopping")

	if s.cancelFunc != nil {
		s.cancelFunc()
	}

	if s.cleanup != nil {
		s.cleanup(ctx)
	}

	if s.agents != nil {
		s.agents.Close(ctx)
	}

	if err := s.profiler.Stop(ctx); err != nil {
		s.Log(ctx).WithError(err).Warn("profiler did not stop cleanly")
	}

	if s.pool != nil {
		if err := s.pool.Shutdown(defaultShutdownTimeout); err != nil {
			s.Log(ctx).WithError(err).Warn("worker pool did not drain")
		}
	}

	if s.sessionStore != nil {
		util.CloseAndLogOnError(ctx, s.sessionStore, "could not close session store")
	}
	if s.cacheStore != nil {
		util.CloseAndLogOnError(ctx, s.cacheStore, "could not close cache store")
	}
}

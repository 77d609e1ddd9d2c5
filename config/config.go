package config

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type contextKey string

func (c contextKey) String() string {
	return "audition/config/" + string(c)
}

const (
	ctxKeyConfiguration = contextKey("configurationKey")

	apiPathPrefix = "/api/v1"
)

// ErrMissingAPIURL is returned at startup when the backend origin is not configured.
// There is no fallback origin: a deployment without API_URL must not boot.
var ErrMissingAPIURL = errors.New("API_URL is not defined, set it to the backend origin e.g. https://api.example.com")

// ToContext adds service configuration to the current supplied context.
func ToContext(ctx context.Context, config any) context.Context {
	return context.WithValue(ctx, ctxKeyConfiguration, config)
}

// FromContext extracts service configuration from the supplied context if any exist.
func FromContext[T any](ctx context.Context) T {
	if cfg, ok := ctx.Value(ctxKeyConfiguration).(T); ok {
		return cfg
	}
	var zero T
	return zero
}

// FromEnv convenience method to process configs.
func FromEnv[T any]() (T, error) {
	return env.ParseAs[T]()
}

// FillEnv convenience method to fill a config object with environment data.
func FillEnv(v any) error {
	return env.Parse(v)
}

// Load reads ConfigurationDefault from the environment and validates it.
func Load() (*ConfigurationDefault, error) {
	cfg, err := FromEnv[ConfigurationDefault]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type ConfigurationDefault struct {
	LogLevel          string `envDefault:"info"                      env:"LOG_LEVEL"            yaml:"log_level"`
	LogFormat         string `envDefault:"info"                      env:"LOG_FORMAT"           yaml:"log_format"`
	LogTimeFormat     string `envDefault:"2006-01-02T15:04:05Z07:00" env:"LOG_TIME_FORMAT"      yaml:"log_time_format"`
	LogColored        bool   `envDefault:"true"                      env:"LOG_COLORED"          yaml:"log_colored"`
	LogShowStackTrace bool   `envDefault:"false"                     env:"LOG_SHOW_STACK_TRACE" yaml:"log_show_stack_trace"`

	TraceRequests        bool `envDefault:"false" env:"TRACE_REQUESTS"          yaml:"trace_requests"`
	TraceRequestsLogBody bool `envDefault:"false" env:"TRACE_REQUESTS_LOG_BODY" yaml:"trace_requests_log_body"`

	ServiceName        string `envDefault:"webfront" env:"SERVICE_NAME"        yaml:"service_name"`
	ServiceEnvironment string `envDefault:""         env:"SERVICE_ENVIRONMENT" yaml:"service_environment"`
	ServiceVersion     string `envDefault:""         env:"SERVICE_VERSION"     yaml:"service_version"`

	HTTPServerPort string `envDefault:":8080" env:"HTTP_PORT"     yaml:"http_server_port"`
	CookieSecure   bool   `envDefault:"false" env:"COOKIE_SECURE" yaml:"cookie_secure"`

	ProfilerEnable   bool   `envDefault:"false" env:"PROFILER_ENABLE" yaml:"profiler_enable"`
	ProfilerPortAddr string `envDefault:":6060" env:"PROFILER_PORT"   yaml:"profiler_port"`

	APIURL     string        `env:"API_URL"                       yaml:"api_url"`
	APITimeout time.Duration `env:"API_TIMEOUT" envDefault:"30s"  yaml:"api_timeout"`

	DefaultLocale    string   `envDefault:"ko"                   env:"DEFAULT_LOCALE"                        yaml:"default_locale"`
	SupportedLocales []string `envDefault:"ko,en,ja,zh,es,fr,de" env:"SUPPORTED_LOCALES" envSeparator:","   yaml:"supported_locales"`
	LocaleDetection  bool     `envDefault:"false"                env:"LOCALE_DETECTION"                      yaml:"locale_detection"`

	QueryStaleTime  time.Duration `envDefault:"5m"  env:"QUERY_STALE_TIME"  yaml:"query_stale_time"`
	QueryGCTime     time.Duration `envDefault:"10m" env:"QUERY_GC_TIME"     yaml:"query_gc_time"`
	QueryRetry      int           `envDefault:"1"   env:"QUERY_RETRY"       yaml:"query_retry"`
	QueryRetryDelay time.Duration `envDefault:"1s"  env:"QUERY_RETRY_DELAY" yaml:"query_retry_delay"`

	SessionStoreURI  string        `envDefault:"mem://"  env:"SESSION_STORE_URI"  yaml:"session_store_uri"`
	SessionNamespace string        `envDefault:"ga"      env:"SESSION_NAMESPACE"  yaml:"session_namespace"`
	AgentIdleTimeout time.Duration `envDefault:"30m"     env:"AGENT_IDLE_TIMEOUT" yaml:"agent_idle_timeout"`
	CacheStoreURI    string        `envDefault:"mem://"  env:"CACHE_STORE_URI"    yaml:"cache_store_uri"`

	WorkerPoolCapacity int `envDefault:"100" env:"WORKER_POOL_CAPACITY" yaml:"worker_pool_capacity"`

	LoginRequestsPerSecond int `envDefault:"2"  env:"LOGIN_REQUESTS_PER_SECOND" yaml:"login_requests_per_second"`
	LoginBurst             int `envDefault:"10" env:"LOGIN_BURST"               yaml:"login_burst"`
}

// Validate rejects configurations the frontend cannot run with.
func (c *ConfigurationDefault) Validate() error {
	if strings.TrimSpace(c.APIURL) == "" {
		return ErrMissingAPIURL
	}
	if len(c.SupportedLocales) == 0 {
		return errors.New("SUPPORTED_LOCALES must name at least one locale")
	}
	for _, l := range c.SupportedLocales {
		if strings.TrimSpace(l) == c.DefaultLocale {
			return nil
		}
	}
	return fmt.Errorf("DEFAULT_LOCALE %q is not one of SUPPORTED_LOCALES %v", c.DefaultLocale, c.SupportedLocales)
}

type ConfigurationService interface {
	Name() string
	Environment() string
	Version() string
}

var _ ConfigurationService = new(ConfigurationDefault)

func (c *ConfigurationDefault) Name() string {
	return c.ServiceName
}
func (c *ConfigurationDefault) Environment() string {
	return c.ServiceEnvironment
}
func (c *ConfigurationDefault) Version() string {
	return c.ServiceVersion
}

type ConfigurationLogLevel interface {
	LoggingLevel() string
	LoggingFormat() string
	LoggingTimeFormat() string
	LoggingShowStackTrace() bool
	LoggingColored() bool
	LoggingLevelIsDebug() bool
}

var _ ConfigurationLogLevel = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoggingLevel() string {
	return c.LogLevel
}

func (c *ConfigurationDefault) LoggingTimeFormat() string {
	return c.LogTimeFormat
}

func (c *ConfigurationDefault) LoggingFormat() string {
	return c.LogFormat
}

func (c *ConfigurationDefault) LoggingColored() bool {
	return c.LogColored
}

func (c *ConfigurationDefault) LoggingShowStackTrace() bool {
	return c.LogShowStackTrace
}

func (c *ConfigurationDefault) LoggingLevelIsDebug() bool {
	return c.LoggingLevel() == "debug" || c.LoggingLevel() == "trace"
}

type ConfigurationTraceRequests interface {
	TraceReq() bool
	TraceReqLogBody() bool
}

var _ ConfigurationTraceRequests = new(ConfigurationDefault)

func (c *ConfigurationDefault) TraceReq() bool {
	return c.TraceRequests
}

func (c *ConfigurationDefault) TraceReqLogBody() bool {
	return c.TraceRequestsLogBody
}

type ConfigurationPorts interface {
	HTTPPort() string
}

var _ ConfigurationPorts = new(ConfigurationDefault)

func (c *ConfigurationDefault) HTTPPort() string {
	if i, err := strconv.Atoi(c.HTTPServerPort); err == nil && i > 0 {
		return fmt.Sprintf(":%s", strings.TrimSpace(c.HTTPServerPort))
	}

	if strings.HasPrefix(c.HTTPServerPort, ":") || strings.Contains(c.HTTPServerPort, ":") {
		return c.HTTPServerPort
	}

	return ":8080"
}

// ConfigurationAPI describes how the backend REST API is reached.
type ConfigurationProfiler interface {
	ProfilerEnabled() bool
	ProfilerPort() string
}

var _ ConfigurationProfiler = new(ConfigurationDefault)

func (c *ConfigurationDefault) ProfilerEnabled() bool {
	return c.ProfilerEnable
}

func (c *ConfigurationDefault) ProfilerPort() string {
	if strings.TrimSpace(c.ProfilerPortAddr) == "" {
		return ":6060"
	}
	return c.ProfilerPortAddr
}

type ConfigurationAPI interface {
	APIOrigin() string
	APIBaseURL() string
	APIRequestTimeout() time.Duration
}

var _ ConfigurationAPI = new(ConfigurationDefault)

// APIOrigin is API_URL without surrounding whitespace or trailing slashes.
func (c *ConfigurationDefault) APIOrigin() string {
	return strings.TrimRight(strings.TrimSpace(c.APIURL), "/")
}

// APIBaseURL is the versioned REST root every domain call is relative to.
func (c *ConfigurationDefault) APIBaseURL() string {
	origin := c.APIOrigin()
	if origin == "" {
		return ""
	}
	return origin + apiPathPrefix
}

func (c *ConfigurationDefault) APIRequestTimeout() time.Duration {
	if c.APITimeout <= 0 {
		return 30 * time.Second
	}
	return c.APITimeout
}

type ConfigurationLocale interface {
	Locales() []string
	DefaultLocaleCode() string
	DetectLocale() bool
}

var _ ConfigurationLocale = new(ConfigurationDefault)

func (c *ConfigurationDefault) Locales() []string {
	out := make([]string, 0, len(c.SupportedLocales))
	for _, l := range c.SupportedLocales {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func (c *ConfigurationDefault) DefaultLocaleCode() string {
	return c.DefaultLocale
}

func (c *ConfigurationDefault) DetectLocale() bool {
	return c.LocaleDetection
}

type ConfigurationQuery interface {
	StaleTime() time.Duration
	GCTime() time.Duration
	RetryCount() int
	RetryDelay() time.Duration
	CacheURI() string
}

var _ ConfigurationQuery = new(ConfigurationDefault)

func (c *ConfigurationDefault) StaleTime() time.Duration {
	return c.QueryStaleTime
}

func (c *ConfigurationDefault) GCTime() time.Duration {
	return c.QueryGCTime
}

func (c *ConfigurationDefault) RetryCount() int {
	if c.QueryRetry < 0 {
		return 0
	}
	return c.QueryRetry
}

func (c *ConfigurationDefault) RetryDelay() time.Duration {
	return c.QueryRetryDelay
}

func (c *ConfigurationDefault) CacheURI() string {
	return c.CacheStoreURI
}

type ConfigurationSession interface {
	SessionURI() string
	SessionKeyNamespace() string
	AgentIdle() time.Duration
	SecureCookies() bool
}

var _ ConfigurationSession = new(ConfigurationDefault)

func (c *ConfigurationDefault) SessionURI() string {
	return c.SessionStoreURI
}

func (c *ConfigurationDefault) SessionKeyNamespace() string {
	return c.SessionNamespace
}

func (c *ConfigurationDefault) AgentIdle() time.Duration {
	if c.AgentIdleTimeout <= 0 {
		return 30 * time.Minute
	}
	return c.AgentIdleTimeout
}

func (c *ConfigurationDefault) SecureCookies() bool {
	return c.CookieSecure
}

type ConfigurationWorkerPool interface {
	GetCapacity() int
}

var _ ConfigurationWorkerPool = new(ConfigurationDefault)

func (c *ConfigurationDefault) GetCapacity() int {
	return c.WorkerPoolCapacity
}

type ConfigurationRateLimit interface {
	LoginRate() (perSecond int, burst int)
}

var _ ConfigurationRateLimit = new(ConfigurationDefault)

func (c *ConfigurationDefault) LoginRate() (int, int) {
	return c.LoginRequestsPerSecond, c.LoginBurst
}

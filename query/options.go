package query

import (
	"context"
	"time"

	"github.com/tjddyd55-crypto/global-audition/cache"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/config"
)

const (
	defaultStaleTime  = 5 * time.Minute
	defaultGCTime     = 10 * time.Minute
	defaultRetry      = 1
	defaultRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

// Executor runs background refetches.
// *workerpool.Pool satisfies it.
type Executor interface {
	Submit(ctx context.Context, task func()) error
}

type goExecutor struct{}

func (goExecutor) Submit(_ context.Context, task func()) error {
	go task()
	return nil
}

// Option configures a Cache.
type Option func(*Cache)

// WithStaleTime sets how long a fetched value is served without refetching.
func WithStaleTime(d time.Duration) Option {
	return func(c *Cache) {
		c.staleTime = d
	}
}

// WithGCTime sets how long a payload is retained after it was fetched.
func WithGCTime(d time.Duration) Option {
	return func(c *Cache) {
		c.gcTime = d
	}
}

// WithRetry sets how many times a failed fetch is retried and the initial delay between tries.
func WithRetry(retries int, delay time.Duration) Option {
	return func(c *Cache) {
		if retries < 0 {
			retries = 0
		}
		c.retry = retries
		c.retryDelay = delay
	}
}

// WithExecutor sets where background refetches run, a plain goroutine by default.
func WithExecutor(exec Executor) Option {
	return func(c *Cache) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithPermanentError decides which fetch errors are not retried.
// The default treats every 4xx response as permanent, 401 included.
func WithPermanentError(fn func(error) bool) Option {
	return func(c *Cache) {
		if fn != nil {
			c.permanent = fn
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithStore keeps payloads in raw instead of a private in-memory cache.
func WithStore(raw cache.RawCache) Option {
	return func(c *Cache) {
		if raw != nil {
			c.raw = raw
		}
	}
}

// WithName labels the cache in traces and logs.
func WithName(name string) Option {
	return func(c *Cache) {
		c.name = name
	}
}

// FromConfig maps configuration onto cache options.
func FromConfig(cfg config.ConfigurationQuery) []Option {
	return []Option{
		WithStaleTime(cfg.StaleTime()),
		WithGCTime(cfg.GCTime()),
		WithRetry(cfg.RetryCount(), cfg.RetryDelay()),
	}
}

func defaultPermanent(err error) bool {
	return client.IsClientError(err)
}

package audition

import (
	"context"
	"fmt"
	"time"

	"github.com/tjddyd55-crypto/global-audition/cache"
	"github.com/tjddyd55-crypto/global-audition/cache/jetstream"
	"github.com/tjddyd55-crypto/global-audition/cache/redis"
	"github.com/tjddyd55-crypto/global-audition/cache/valkey"
	"github.com/tjddyd55-crypto/global-audition/config"
)

const defaultCacheMaxAge = 10 * time.Minute

// WithCacheStore sets the backend query payloads are kept in. Agents share it through
// namespaced views and the service closes it on Stop.
// A nil store is opened from the configured CACHE_STORE_URI.
func WithCacheStore(raw cache.RawCache) Option {
	return func(ctx context.Context, s *Service) {
		if raw != nil {
			s.cacheStore = raw
			return
		}

		uri, namespace, maxAge := "mem://", "ga", defaultCacheMaxAge
		if cfg, ok := s.Config().(config.ConfigurationQuery); ok {
			uri, maxAge = cfg.CacheURI(), cfg.GCTime()
		}
		if cfg, ok := s.Config().(config.ConfigurationSession); ok {
			namespace = cfg.SessionKeyNamespace()
		}

		opened, err := OpenCacheStore(uri, namespace, maxAge)
		if err != nil {
			s.AddStartupError(err)
			return
		}
		s.Log(ctx).WithField("backend", scheme(uri)).Debug("cache store opened")
		s.cacheStore = opened
	}
}

// OpenCacheStore opens the payload backend named by uri:
// mem:// is in process, valkey:// uses valkey-go, redis:// and rediss:// use go-redis,
// nats:// uses a JetStream key value bucket whose TTL is maxAge.
func OpenCacheStore(uri, namespace string, maxAge time.Duration) (cache.RawCache, error) {
	opts := []cache.Option{
		cache.WithDSN(redisDSN(uri)),
		cache.WithName(namespace + "-query"),
		cache.WithMaxAge(maxAge),
	}

	var (
		raw cache.RawCache
		err error
	)
	switch scheme(uri) {
	case "", "mem", "memory":
		return cache.NewInMemoryCache(cache.WithMaxAge(maxAge)), nil
	case "valkey", "valkeys":
		raw, err = valkey.New(opts...)
	case "redis", "rediss":
		raw, err = redis.New(opts...)
	case "nats":
		raw, err = jetstream.New(opts...)
	default:
		return nil, fmt.Errorf("unsupported cache store %q", uri)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s cache store: %w", scheme(uri), err)
	}
	return raw, nil
}

package audition

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/session"
	"github.com/tjddyd55-crypto/global-audition/session/natskv"
	sessionvalkey "github.com/tjddyd55-crypto/global-audition/session/valkey"
)

// WithSessionStore sets the storage visitor sessions are kept in. The service closes it on Stop.
// A nil store is opened from the configured SESSION_STORE_URI.
func WithSessionStore(store session.Store) Option {
	return func(ctx context.Context, s *Service) {
		if store != nil {
			s.sessionStore = store
			return
		}

		cfg, ok := s.Config().(config.ConfigurationSession)
		if !ok {
			s.sessionStore = session.NewMemoryStore()
			return
		}

		opened, err := OpenSessionStore(cfg.SessionURI(), cfg.SessionKeyNamespace())
		if err != nil {
			s.AddStartupError(err)
			return
		}
		s.Log(ctx).WithField("backend", scheme(cfg.SessionURI())).Debug("session store opened")
		s.sessionStore = opened
	}
}

// OpenSessionStore opens the session backend named by uri:
// mem:// keeps sessions in process, valkey:// and redis:// use Valkey with pub/sub,
// nats:// uses a JetStream key value bucket.
func OpenSessionStore(uri, namespace string) (session.Store, error) {
	switch scheme(uri) {
	case "", "mem", "memory":
		return session.NewMemoryStore(), nil
	case "valkey", "valkeys", "redis", "rediss":
		store, err := sessionvalkey.New(redisDSN(uri), namespace)
		if err != nil {
			return nil, fmt.Errorf("open valkey session store: %w", err)
		}
		return store, nil
	case "nats":
		store, err := natskv.New(uri, namespace)
		if err != nil {
			return nil, fmt.Errorf("open nats session store: %w", err)
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unsupported session store %q", uri)
	}
}

func scheme(uri string) string {
	u, err := url.Parse(uri)
	if err != nil {
		return "invalid"
	}
	return strings.ToLower(u.Scheme)
}

// redisDSN rewrites valkey:// style URLs to the redis:// form the client libraries parse.
func redisDSN(uri string) string {
	switch scheme(uri) {
	case "valkey":
		return "redis" + uri[len("valkey"):]
	case "valkeys":
		return "rediss" + uri[len("valkeys"):]
	default:
		return uri
	}
}

package audition

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition/api"
	"github.com/tjddyd55-crypto/global-audition/cache"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/events"
	"github.com/tjddyd55-crypto/global-audition/localization"
	"github.com/tjddyd55-crypto/global-audition/query"
	"github.com/tjddyd55-crypto/global-audition/session"
)

var (
	// ErrNotSignedIn is returned by queries that need a session when the agent has none.
	ErrNotSignedIn = fmt.Errorf("%w: no session token", client.ErrUnauthorized)
	// ErrBusinessOnly is returned when an applicant tries an agency action.
	// The check only spares a round trip, the backend decides.
	ErrBusinessOnly = fmt.Errorf("%w: agency accounts only", client.ErrForbidden)
	// ErrAlreadyApplied marks a 409 from applying to the same audition twice.
	ErrAlreadyApplied = errors.New("already applied to this audition")
)

// Agent is one visitor: its own session storage view, auth state tracker and query cache.
// Every agent shares the service's API client; the agent's session travels in the context.
type Agent struct {
	id      string
	api     *api.API
	tracker *session.Tracker
	queries *query.Cache
	bus     events.Manager
	catalog localization.Manager
	locale  string

	lastSeen atomic.Int64
	now      func() time.Time
}

func (s *Service) newAgent(ctx context.Context, id string) (*Agent, error) {
	opts := []query.Option{
		query.WithStore(cache.NewNamespaced(s.cacheStore, "agent:"+id)),
		query.WithExecutor(s.pool),
		query.WithName("agent " + id),
	}
	if cfg, ok := s.Config().(config.ConfigurationQuery); ok {
		opts = append(query.FromConfig(cfg), opts...)
	}

	bus := events.NewManager()
	queries := query.New(opts...)
	tracker := session.NewTracker(
		session.NewTokens(session.Scope(s.sessionStore, id)),
		session.WithEventBus(bus),
		session.WithQueryCache(queries),
		session.WithAccountKeys(userScopedKeys...),
	)

	a := &Agent{
		id:      id,
		api:     s.api,
		tracker: tracker,
		queries: queries,
		bus:     bus,
		catalog: s.localization,
		locale:  s.DefaultLocale(),
		now:     time.Now,
	}
	a.touch()

	// the tracker outlives the request that created the agent
	agentCtx := a.Context(util.ContextWithLogger(context.WithoutCancel(ctx), s.Log(ctx).WithField("agent", id)))
	if err := tracker.Start(agentCtx); err != nil {
		_ = queries.Close(ctx)
		return nil, fmt.Errorf("start agent %s: %w", id, err)
	}
	return a, nil
}

func (s *Service) agentIdle() time.Duration {
	if cfg, ok := s.Config().(config.ConfigurationSession); ok {
		return cfg.AgentIdle()
	}
	return 30 * time.Minute
}

// ID is the visitor id, also the session storage scope.
func (a *Agent) ID() string {
	return a.id
}

// Context returns ctx carrying the agent's session for outgoing API calls.
func (a *Agent) Context(ctx context.Context) context.Context {
	return client.ToContext(ctx, a.tracker)
}

// Tracker exposes the agent's auth state.
func (a *Agent) Tracker() *session.Tracker {
	return a.tracker
}

// Queries exposes the agent's query cache.
func (a *Agent) Queries() *query.Cache {
	return a.queries
}

// Authenticated reports whether the agent holds a session token.
func (a *Agent) Authenticated() bool {
	return a.tracker.Authenticated()
}

// Role returns the stored account role, used only to decide what the UI offers.
func (a *Agent) Role(ctx context.Context) session.Role {
	role, err := a.tracker.Role(ctx)
	if err != nil {
		util.Log(ctx).WithError(err).Warn("could not read account role")
		return session.RoleNone
	}
	return role
}

func (a *Agent) touch() {
	a.lastSeen.Store(a.now().UnixNano())
}

func (a *Agent) idleSince(now time.Time) time.Duration {
	return now.Sub(time.Unix(0, a.lastSeen.Load()))
}

// Close detaches the agent from storage and drops its cached queries.
func (a *Agent) Close(ctx context.Context) error {
	a.tracker.Stop()
	return a.queries.Close(ctx)
}

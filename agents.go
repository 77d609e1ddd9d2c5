package audition

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/pitabwire/util"
	"github.com/rs/xid"
)

// ErrAgentsClosed is returned by Get once the registry is closed.
var ErrAgentsClosed = errors.New("agent registry is closed")

const minEvictInterval = time.Second

// Agents keeps one Agent per visitor id and closes agents left idle.
type Agents struct {
	create func(ctx context.Context, id string) (*Agent, error)
	idle   time.Duration
	now    func() time.Time

	mu     sync.Mutex
	agents map[string]*Agent
	closed bool
}

// NewAgents builds a registry whose agents are made by create and evicted after idle.
func NewAgents(create func(ctx context.Context, id string) (*Agent, error), idle time.Duration) *Agents {
	return &Agents{
		create: create,
		idle:   idle,
		now:    time.Now,
		agents: map[string]*Agent{},
	}
}

// Get returns the agent for id, creating it when needed.
// An id that is not a valid xid is replaced by a fresh one, the caller reads it back with Agent.ID.
func (r *Agents) Get(ctx context.Context, id string) (*Agent, error) {
	if _, err := xid.FromString(id); err != nil {
		id = xid.New().String()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrAgentsClosed
	}
	if a, ok := r.agents[id]; ok {
		// touched under the lock so a concurrent Evict cannot close it on the way out
		a.touch()
		r.mu.Unlock()
		return a, nil
	}
	r.mu.Unlock()

	created, err := r.create(ctx, id)
	if err != nil {
		return nil, err
	}
	created.now = r.now
	created.touch()

	r.mu.Lock()
	existing, ok := r.agents[id]
	closed := r.closed
	switch {
	case ok:
		existing.touch()
	case !closed:
		r.agents[id] = created
	}
	r.mu.Unlock()

	switch {
	case closed:
		closeAgent(ctx, created, "could not close agent")
		return nil, ErrAgentsClosed
	case ok:
		// another request created it first
		closeAgent(ctx, created, "could not close duplicate agent")
		return existing, nil
	}
	util.Log(ctx).WithField("agent", id).Debug("agent created")
	return created, nil
}

// Len reports how many agents are live.
func (r *Agents) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.agents)
}

// Evict closes the agents idle for longer than the idle timeout and returns how many it closed.
func (r *Agents) Evict(ctx context.Context) int {
	now := r.now()

	r.mu.Lock()
	var stale []*Agent
	for id, a := range r.agents {
		if a.idleSince(now) > r.idle {
			stale = append(stale, a)
			delete(r.agents, id)
		}
	}
	r.mu.Unlock()

	for _, a := range stale {
		closeAgent(ctx, a, "could not close idle agent")
	}
	if len(stale) > 0 {
		util.Log(ctx).WithField("evicted", len(stale)).Debug("idle agents closed")
	}
	return len(stale)
}

// Run evicts idle agents periodically until ctx ends.
func (r *Agents) Run(ctx context.Context) {
	interval := max(r.idle/2, minEvictInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Evict(ctx)
		}
	}
}

// Close closes every agent and rejects further Get calls.
func (r *Agents) Close(ctx context.Context) {
	r.mu.Lock()
	r.closed = true
	agents := r.agents
	r.agents = map[string]*Agent{}
	r.mu.Unlock()

	for _, a := range agents {
		closeAgent(ctx, a, "could not close agent")
	}
}

func closeAgent(ctx context.Context, a *Agent, msg string) {
	if err := a.Close(ctx); err != nil {
		util.Log(ctx).WithError(err).WithField("agent", a.ID()).Warn(msg)
	}
}

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition/events"
	"github.com/tjddyd55-crypto/global-audition/query"
)

// AuthChangeEvent is emitted on the agent's bus after its own code changed the token.
const AuthChangeEvent = "auth-change"

// CurrentUserKey caches the signed-in user's profile.
var CurrentUserKey = query.K("currentUser")

const (
	rewatchInitialDelay = 50 * time.Millisecond
	rewatchMaxDelay     = 30 * time.Second
)

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithEventBus listens for AuthChangeEvent on bus and announces sign in and sign out on it.
func WithEventBus(bus events.Manager) TrackerOption {
	return func(t *Tracker) {
		t.bus = bus
	}
}

// WithQueryCache lets the tracker purge or refresh the cached current user on token changes.
func WithQueryCache(c *query.Cache) TrackerOption {
	return func(t *Tracker) {
		t.queries = c
	}
}

// WithAccountKeys names query prefixes holding data of the signed in account.
// They are removed whenever the token changes, so one account never reads another's entries.
func WithAccountKeys(keys ...query.Key) TrackerOption {
	return func(t *Tracker) {
		t.accountKeys = append(t.accountKeys, keys...)
	}
}

// Tracker holds whether the agent has a session token and keeps it in line with storage.
// Storage is the source of truth; the tracker converges on it from its initial read,
// from store change notifications written by other agents, and from AuthChangeEvent.
type Tracker struct {
	tokens      *Tokens
	bus         events.Manager
	queries     *query.Cache
	accountKeys []query.Key

	applyMu sync.Mutex

	mu          sync.RWMutex
	token       string
	initialized bool
	subscribers map[int]func(authenticated bool)
	nextSub     int

	cancel         context.CancelFunc
	removeListener func()
	done           chan struct{}
}

// NewTracker creates a tracker over tokens. Call Start before use.
func NewTracker(tokens *Tokens, opts ...TrackerOption) *Tracker {
	t := &Tracker{
		tokens:      tokens,
		subscribers: map[int]func(bool){},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start reads storage synchronously, then follows it until ctx is done or Stop is called.
func (t *Tracker) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)
	changes, err := t.tokens.Store().Watch(watchCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("watch session store: %w", err)
	}

	if err = t.Refresh(ctx); err != nil {
		cancel()
		return err
	}

	t.cancel = cancel
	t.done = make(chan struct{})
	go t.follow(watchCtx, changes)

	if t.bus != nil {
		t.removeListener = t.bus.Add(&events.EventFunc{
			EventName: AuthChangeEvent,
			Fn: func(ctx context.Context, _ any) error {
				return t.Refresh(ctx)
			},
		})
	}
	return nil
}

// follow applies token changes from the store feed. A feed can drop changes or end,
// so whenever it closes the tracker watches again and re-reads storage.
func (t *Tracker) follow(ctx context.Context, changes <-chan Change) {
	defer close(t.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rewatchInitialDelay
	b.MaxInterval = rewatchMaxDelay

	for {
		delivered := false
		for change := range changes {
			delivered = true
			if IsTokenKey(change.Key) {
				t.refreshLogged(ctx)
			}
		}
		if delivered {
			b.Reset()
		}

		next, ok := t.rewatch(ctx, b)
		if !ok {
			return
		}
		changes = next
		t.refreshLogged(ctx)
	}
}

// rewatch opens a new store feed after waiting out b. It reports false once ctx is done
// or the store is closed.
func (t *Tracker) rewatch(ctx context.Context, b backoff.BackOff) (<-chan Change, bool) {
	for {
		timer := time.NewTimer(b.NextBackOff())
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, false
		case <-timer.C:
		}
		if ctx.Err() != nil {
			return nil, false
		}

		changes, err := t.tokens.Store().Watch(ctx)
		switch {
		case err == nil:
			util.Log(ctx).Debug("session change feed resumed")
			return changes, true
		case errors.Is(err, ErrStoreClosed) || ctx.Err() != nil:
			return nil, false
		default:
			util.Log(ctx).WithError(err).Warn("could not watch session store, retrying")
		}
	}
}

func (t *Tracker) refreshLogged(ctx context.Context) {
	if err := t.Refresh(ctx); err != nil && ctx.Err() == nil {
		util.Log(ctx).WithError(err).Warn("could not re-read session token")
	}
}

// Stop detaches the tracker from storage and the event bus.
func (t *Tracker) Stop() {
	if t.removeListener != nil {
		t.removeListener()
	}
	if t.cancel != nil {
		t.cancel()
		<-t.done
	}
}

// Refresh re-reads the token from storage and applies it.
// Reads and applies are serialized so an older read never overwrites a newer one.
func (t *Tracker) Refresh(ctx context.Context) error {
	t.applyMu.Lock()
	token, err := t.tokens.Token(ctx)
	if err != nil {
		t.applyMu.Unlock()
		return err
	}
	subscribers := t.apply(ctx, token)
	t.applyMu.Unlock()

	for _, fn := range subscribers {
		fn(token != "")
	}
	return nil
}

// apply records token and updates the query cache. It returns the subscribers to notify.
func (t *Tracker) apply(ctx context.Context, token string) []func(bool) {
	t.mu.Lock()
	if t.initialized && token == t.token {
		t.mu.Unlock()
		return nil
	}
	t.token = token
	t.initialized = true
	subscribers := make([]func(bool), 0, len(t.subscribers))
	for _, fn := range t.subscribers {
		subscribers = append(subscribers, fn)
	}
	t.mu.Unlock()

	if t.queries != nil {
		for _, key := range t.accountKeys {
			t.queries.Remove(ctx, key)
		}
		if token == "" {
			t.queries.Remove(ctx, CurrentUserKey)
		} else {
			t.queries.Invalidate(ctx, CurrentUserKey)
			t.queries.Refetch(ctx, CurrentUserKey)
		}
	}
	return subscribers
}

// Current returns the token the tracker last observed.
func (t *Tracker) Current() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.token
}

// Authenticated reports whether a token is present.
func (t *Tracker) Authenticated() bool {
	return t.Current() != ""
}

// Subscribe calls fn after every change of authenticated state and returns a function that stops it.
func (t *Tracker) Subscribe(fn func(authenticated bool)) (unsubscribe func()) {
	t.mu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subscribers[id] = fn
	t.mu.Unlock()

	return func() {
		t.mu.Lock()
		delete(t.subscribers, id)
		t.mu.Unlock()
	}
}

// Token reads the bearer token for an outgoing request straight from storage.
func (t *Tracker) Token(ctx context.Context) (string, error) {
	return t.tokens.Token(ctx)
}

// SignIn stores token and role, then announces the change.
func (t *Tracker) SignIn(ctx context.Context, token string, role Role) error {
	if err := t.tokens.SetToken(ctx, token); err != nil {
		return err
	}
	if err := t.tokens.SetRole(ctx, role); err != nil {
		return fmt.Errorf("write role: %w", err)
	}
	return t.announce(ctx)
}

// SignOut removes the token and role, then announces the change.
func (t *Tracker) SignOut(ctx context.Context) error {
	if err := t.tokens.Clear(ctx); err != nil {
		return err
	}
	return t.announce(ctx)
}

// Unauthorized purges the session after the backend rejected its token.
func (t *Tracker) Unauthorized(ctx context.Context) {
	if err := t.SignOut(ctx); err != nil {
		util.Log(ctx).WithError(err).Error("could not purge rejected session")
	}
}

// Role returns the stored role.
func (t *Tracker) Role(ctx context.Context) (Role, error) {
	return t.tokens.Role(ctx)
}

func (t *Tracker) announce(ctx context.Context) error {
	if t.bus == nil || t.bus.Listeners(AuthChangeEvent) == 0 {
		return t.Refresh(ctx)
	}
	if err := t.bus.Emit(ctx, AuthChangeEvent, nil); err != nil {
		return errors.Join(errors.New("announce auth change"), err)
	}
	return nil
}

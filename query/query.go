// Package query caches remote reads per key: fresh values are served without a
// network call and concurrent misses for one key share a single fetch.
package query

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/pitabwire/util"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/tjddyd55-crypto/global-audition/cache"
	"github.com/tjddyd55-crypto/global-audition/internal"
)

const tracerName = "github.com/tjddyd55-crypto/global-audition/query"

// ErrClosed is returned by reads on a closed cache.
var ErrClosed = errors.New("query cache is closed")

// State is where a key is in its lifecycle:
// Absent → Fetching → Fresh → Stale → Fetching → Fresh | Error, and Error → Fetching on the next read.
type State int

const (
	Absent State = iota
	Fetching
	Fresh
	Stale
	Error
)

func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Fetching:
		return "fetching"
	case Fresh:
		return "fresh"
	case Stale:
		return "stale"
	case Error:
		return "error"
	default:
		return "state(" + strconv.Itoa(int(s)) + ")"
	}
}

// Loader produces the encoded payload for a key.
type Loader func(ctx context.Context) ([]byte, error)

type entry struct {
	key         Key
	gen         uint64
	dataGen     uint64
	inflight    int
	hasData     bool
	invalidated bool
	fetchedAt   time.Time
	err         error
	loader      Loader
}

// Cache is a per-agent query cache. Payloads live in a cache.RawCache with the GC time as TTL,
// the lifecycle bookkeeping stays in memory.
type Cache struct {
	name       string
	staleTime  time.Duration
	gcTime     time.Duration
	retry      int
	retryDelay time.Duration
	permanent  func(error) bool
	now        func() time.Time
	exec       Executor
	raw        cache.RawCache
	ownsRaw    bool
	tracer     trace.Tracer

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	nextGen uint64
	closed  bool
}

// New builds a Cache. Without WithStore payloads are kept in a private in-memory cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		name:       "query",
		staleTime:  defaultStaleTime,
		gcTime:     defaultGCTime,
		retry:      defaultRetry,
		retryDelay: defaultRetryDelay,
		permanent:  defaultPermanent,
		now:        time.Now,
		exec:       goExecutor{},
		tracer:     otel.Tracer(tracerName),
		entries:    map[string]*entry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.raw == nil {
		c.raw = cache.NewInMemoryCache(cache.WithMaxAge(c.gcTime))
		c.ownsRaw = true
	}
	return c
}

// Fetch returns the value for key, calling fn only when the cached value is missing or stale.
// Concurrent callers for the same key share one call of fn. A caller whose ctx ends gets ctx.Err(),
// the shared fetch still completes and its result is cached.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	data, err := c.Load(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, fnErr := fn(ctx)
		if fnErr != nil {
			return nil, fnErr
		}
		return internal.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err = internal.Unmarshal(data, &out); err != nil {
		return zero, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, nil
}

// Peek returns the cached value for key without fetching. Stale values are returned too.
func Peek[T any](ctx context.Context, c *Cache, key Key) (T, bool, error) {
	var out T

	c.mu.Lock()
	e, ok := c.entries[key.String()]
	present := ok && e.hasData && !c.expired(e)
	c.mu.Unlock()
	if !present {
		return out, false, nil
	}

	data, found, err := c.raw.Get(ctx, key.String())
	if err != nil || !found {
		return out, false, err
	}
	if err = internal.Unmarshal(data, &out); err != nil {
		return out, false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return out, true, nil
}

// Load is the untyped form of Fetch.
func (c *Cache) Load(ctx context.Context, key Key, loader Loader) ([]byte, error) {
	id := key.String()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	e := c.entry(key)
	e.loader = loader
	fresh := c.stateLocked(e) == Fresh
	c.mu.Unlock()

	if fresh {
		data, found, err := c.raw.Get(ctx, id)
		if err == nil && found {
			return data, nil
		}
		if err != nil {
			util.Log(ctx).WithError(err).WithField("key", id).Warn("cached payload unreadable, refetching")
		}
	}

	return c.flight(ctx, key, loader)
}

func (c *Cache) flight(ctx context.Context, key Key, loader Loader) ([]byte, error) {
	id := key.String()

	c.mu.Lock()
	e := c.entry(key)
	gen := e.gen
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	ch := c.group.DoChan(id+"#"+strconv.FormatUint(gen, 10), func() (any, error) {
		return c.run(detached, key, gen, loader)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		data, _ := res.Val.([]byte)
		return data, nil
	}
}

func (c *Cache) run(ctx context.Context, key Key, gen uint64, loader Loader) ([]byte, error) {
	id := key.String()

	ctx, span := c.tracer.Start(ctx, "query.fetch", trace.WithAttributes(
		attribute.String("query.cache", c.name),
		attribute.String("query.key", id),
	))
	defer span.End()

	c.mu.Lock()
	owner := c.entries[id]
	if owner != nil {
		owner.inflight++
	}
	c.mu.Unlock()

	attempts := 0
	data, err := backoff.Retry(ctx, func() ([]byte, error) {
		attempts++
		out, loadErr := loader(ctx)
		if loadErr != nil && c.permanent(loadErr) {
			return nil, backoff.Permanent(loadErr)
		}
		return out, loadErr
	}, backoff.WithBackOff(c.backOff()), backoff.WithMaxTries(uint(c.retry+1)))

	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		err = perm.Unwrap()
	}
	span.SetAttributes(attribute.Int("query.attempts", attempts))

	c.mu.Lock()
	defer c.mu.Unlock()

	if owner != nil {
		owner.inflight--
	}
	e := c.entries[id]
	// Removed while in flight, or overtaken by a newer fetch: waiters still get the result, the cache does not.
	if e == nil || e != owner || c.closed || gen < e.dataGen {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return data, err
	}

	if err != nil {
		e.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		util.Log(ctx).WithError(err).WithField("key", id).WithField("attempts", attempts).Debug("query fetch failed")
		return nil, err
	}

	if setErr := c.raw.Set(ctx, id, data, c.gcTime); setErr != nil {
		util.Log(ctx).WithError(setErr).WithField("key", id).Warn("could not store query payload")
		return data, nil
	}
	e.hasData = true
	e.dataGen = gen
	e.err = nil
	e.fetchedAt = c.now()
	e.invalidated = e.gen != gen
	return data, nil
}

func (c *Cache) backOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxInterval = maxRetryDelay
	return b
}

// State reports the lifecycle state of key.
func (c *Cache) State(key Key) State {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key.String()]
	if !ok {
		return Absent
	}
	return c.stateLocked(e)
}

// Err is the error of the last failed fetch of key, nil once a fetch succeeds.
func (c *Cache) Err(key Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key.String()]; ok {
		return e.err
	}
	return nil
}

// Invalidate marks every key under prefix stale and returns how many were marked.
// A fetch already in flight for such a key is stored as stale.
func (c *Cache) Invalidate(_ context.Context, prefix Key) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.invalidated = true
			e.gen = c.bump()
			n++
		}
	}
	return n
}

// Remove purges every key under prefix; later reads see Absent until refetched.
func (c *Cache) Remove(ctx context.Context, prefix Key) int {
	c.mu.Lock()
	var ids []string
	for id, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			ids = append(ids, id)
			delete(c.entries, id)
		}
	}
	c.mu.Unlock()

	for _, id := range ids {
		if err := c.raw.Delete(ctx, id); err != nil {
			util.Log(ctx).WithError(err).WithField("key", id).Warn("could not delete query payload")
		}
	}
	return len(ids)
}

// Refetch reloads every remembered key under prefix in the background, stale or not.
func (c *Cache) Refetch(ctx context.Context, prefix Key) int {
	type job struct {
		key    Key
		loader Loader
	}

	c.mu.Lock()
	var jobs []job
	for _, e := range c.entries {
		if e.loader != nil && e.key.HasPrefix(prefix) {
			e.invalidated = true
			e.gen = c.bump()
			jobs = append(jobs, job{key: e.key, loader: e.loader})
		}
	}
	c.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	for _, j := range jobs {
		err := c.exec.Submit(detached, func() {
			if _, err := c.flight(detached, j.key, j.loader); err != nil {
				util.Log(detached).WithError(err).WithField("key", j.key.String()).Debug("background refetch failed")
			}
		})
		if err != nil {
			util.Log(ctx).WithError(err).WithField("key", j.key.String()).Warn("could not schedule refetch")
		}
	}
	return len(jobs)
}

// Clear drops every key.
func (c *Cache) Clear(ctx context.Context) error {
	c.Remove(ctx, nil)
	return c.raw.Flush(ctx)
}

// Close clears the cache and rejects further reads.
func (c *Cache) Close(ctx context.Context) error {
	err := c.Clear(ctx)

	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	if c.ownsRaw {
		err = errors.Join(err, c.raw.Close())
	}
	return err
}

func (c *Cache) entry(key Key) *entry {
	id := key.String()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{key: key, gen: c.bump()}
		c.entries[id] = e
	}
	return e
}

func (c *Cache) bump() uint64 {
	c.nextGen++
	return c.nextGen
}

func (c *Cache) expired(e *entry) bool {
	return c.gcTime > 0 && c.now().Sub(e.fetchedAt) >= c.gcTime
}

func (c *Cache) stateLocked(e *entry) State {
	switch {
	case e.inflight > 0:
		return Fetching
	case e.err != nil:
		return Error
	case !e.hasData || c.expired(e):
		return Absent
	case e.invalidated || c.now().Sub(e.fetchedAt) >= c.staleTime:
		return Stale
	default:
		return Fresh
	}
}

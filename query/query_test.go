package query_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/tjddyd55-crypto/global-audition/cache"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/query"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type inlineExecutor struct {
	submitted atomic.Int32
}

func (e *inlineExecutor) Submit(_ context.Context, task func()) error {
	e.submitted.Add(1)
	task()
	return nil
}

type user struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type QuerySuite struct {
	suite.Suite
	clock *clock
	exec  *inlineExecutor
	cache *query.Cache
}

func TestQuerySuite(t *testing.T) {
	suite.Run(t, new(QuerySuite))
}

func (s *QuerySuite) SetupTest() {
	s.clock = &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	s.exec = &inlineExecutor{}
	s.cache = query.New(
		query.WithClock(s.clock.Now),
		query.WithRetry(1, time.Millisecond),
		query.WithExecutor(s.exec),
	)
}

func (s *QuerySuite) TearDownTest() {
	s.NoError(s.cache.Close(context.Background()))
}

func (s *QuerySuite) counter(u user, calls *atomic.Int32) func(context.Context) (user, error) {
	return func(context.Context) (user, error) {
		calls.Add(1)
		return u, nil
	}
}

func (s *QuerySuite) TestConcurrentReadsShareOneFetch() {
	ctx := context.Background()
	key := query.K("currentUser")

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	fn := func(context.Context) (user, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return user{ID: 1, Name: "Mina"}, nil
	}

	results := make(chan user, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		u, err := query.Fetch(ctx, s.cache, key, fn)
		s.NoError(err)
		results <- u
	}()

	<-started
	s.Equal(query.Fetching, s.cache.State(key))

	wg.Add(1)
	go func() {
		defer wg.Done()
		u, err := query.Fetch(ctx, s.cache, key, fn)
		s.NoError(err)
		results <- u
	}()

	// Give the second reader time to join the in-flight call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)

	for u := range results {
		s.Equal(user{ID: 1, Name: "Mina"}, u)
	}
	s.Equal(int32(1), calls.Load())
	s.Equal(query.Fresh, s.cache.State(key))
}

func (s *QuerySuite) TestFreshValueIsServedWithoutFetching() {
	ctx := context.Background()
	key := query.K("audition", 7)
	var calls atomic.Int32
	fn := s.counter(user{ID: 7}, &calls)

	for range 3 {
		u, err := query.Fetch(ctx, s.cache, key, fn)
		s.Require().NoError(err)
		s.Equal(int64(7), u.ID)
	}
	s.Equal(int32(1), calls.Load())

	s.clock.Advance(5 * time.Minute)
	s.Equal(query.Stale, s.cache.State(key))

	_, err := query.Fetch(ctx, s.cache, key, fn)
	s.Require().NoError(err)
	s.Equal(int32(2), calls.Load())
	s.Equal(query.Fresh, s.cache.State(key))
}

func (s *QuerySuite) TestDifferentKeysFetchIndependently() {
	ctx := context.Background()
	var calls atomic.Int32

	_, err := query.Fetch(ctx, s.cache, query.K("audition", 1), s.counter(user{ID: 1}, &calls))
	s.Require().NoError(err)
	_, err = query.Fetch(ctx, s.cache, query.K("audition", 2), s.counter(user{ID: 2}, &calls))
	s.Require().NoError(err)

	s.Equal(int32(2), calls.Load())
}

func (s *QuerySuite) TestInvalidateMarksPrefixStale() {
	ctx := context.Background()
	var calls atomic.Int32

	for _, key := range []query.Key{query.K("applications", 1), query.K("applications", 2), query.K("points")} {
		_, err := query.Fetch(ctx, s.cache, key, s.counter(user{}, &calls))
		s.Require().NoError(err)
	}

	s.Equal(2, s.cache.Invalidate(ctx, query.K("applications")))
	s.Equal(query.Stale, s.cache.State(query.K("applications", 1)))
	s.Equal(query.Stale, s.cache.State(query.K("applications", 2)))
	s.Equal(query.Fresh, s.cache.State(query.K("points")))

	u, ok, err := query.Peek[user](ctx, s.cache, query.K("applications", 1))
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(user{}, u)

	_, err = query.Fetch(ctx, s.cache, query.K("applications", 1), s.counter(user{ID: 9}, &calls))
	s.Require().NoError(err)
	s.Equal(int32(4), calls.Load())
}

func (s *QuerySuite) TestRemovePurgesEntries() {
	ctx := context.Background()
	key := query.K("currentUser")
	var calls atomic.Int32

	_, err := query.Fetch(ctx, s.cache, key, s.counter(user{ID: 3}, &calls))
	s.Require().NoError(err)

	s.Equal(1, s.cache.Remove(ctx, key))
	s.Equal(query.Absent, s.cache.State(key))

	_, ok, err := query.Peek[user](ctx, s.cache, key)
	s.Require().NoError(err)
	s.False(ok)

	s.Zero(s.cache.Refetch(ctx, key))
	s.Equal(int32(1), calls.Load())
}

func (s *QuerySuite) TestUnauthorizedIsNotRetried() {
	ctx := context.Background()
	var calls atomic.Int32

	_, err := query.Fetch(ctx, s.cache, query.K("myApplications"), func(context.Context) (user, error) {
		calls.Add(1)
		return user{}, &client.Error{StatusCode: http.StatusUnauthorized}
	})
	s.Require().ErrorIs(err, client.ErrUnauthorized)
	s.Equal(int32(1), calls.Load())
	s.Equal(query.Error, s.cache.State(query.K("myApplications")))
}

func (s *QuerySuite) TestServerErrorIsRetriedOnce() {
	ctx := context.Background()
	var calls atomic.Int32

	_, err := query.Fetch(ctx, s.cache, query.K("auditions"), func(context.Context) (user, error) {
		calls.Add(1)
		return user{}, &client.Error{StatusCode: http.StatusBadGateway}
	})
	s.Require().ErrorIs(err, client.ErrServer)
	s.Equal(int32(2), calls.Load())

	calls.Store(0)
	u, err := query.Fetch(ctx, s.cache, query.K("auditions"), func(context.Context) (user, error) {
		if calls.Add(1) == 1 {
			return user{}, client.ErrNetwork
		}
		return user{ID: 5}, nil
	})
	s.Require().NoError(err)
	s.Equal(int64(5), u.ID)
	s.Equal(int32(2), calls.Load())
}

func (s *QuerySuite) TestRetryCountComesFromConfig() {
	ctx := context.Background()
	cfg := &config.ConfigurationDefault{
		QueryStaleTime:  time.Minute,
		QueryGCTime:     time.Hour,
		QueryRetry:      3,
		QueryRetryDelay: time.Millisecond,
	}
	c := query.New(append(query.FromConfig(cfg), query.WithExecutor(s.exec))...)
	defer func() { s.NoError(c.Close(ctx)) }()

	var calls atomic.Int32
	_, err := query.Fetch(ctx, c, query.K("auditions"), func(context.Context) (user, error) {
		calls.Add(1)
		return user{}, client.ErrNetwork
	})
	s.Require().ErrorIs(err, client.ErrNetwork)
	s.Equal(int32(4), calls.Load())
}

func (s *QuerySuite) TestStateMachine() {
	ctx := context.Background()
	key := query.K("points")
	s.Equal(query.Absent, s.cache.State(key))

	_, err := query.Fetch(ctx, s.cache, key, func(context.Context) (int, error) {
		s.Equal(query.Fetching, s.cache.State(key))
		return 100, nil
	})
	s.Require().NoError(err)
	s.Equal(query.Fresh, s.cache.State(key))

	s.clock.Advance(6 * time.Minute)
	s.Equal(query.Stale, s.cache.State(key))

	boom := errors.New("boom")
	_, err = query.Fetch(ctx, s.cache, key, func(context.Context) (int, error) {
		return 0, &client.Error{StatusCode: http.StatusForbidden, Message: boom.Error()}
	})
	s.Require().ErrorIs(err, client.ErrForbidden)
	s.Equal(query.Error, s.cache.State(key))
	s.Require().Error(s.cache.Err(key))

	balance, err := query.Fetch(ctx, s.cache, key, func(context.Context) (int, error) {
		return 200, nil
	})
	s.Require().NoError(err)
	s.Equal(200, balance)
	s.Equal(query.Fresh, s.cache.State(key))
	s.NoError(s.cache.Err(key))

	s.clock.Advance(10 * time.Minute)
	s.Equal(query.Absent, s.cache.State(key))
}

func (s *QuerySuite) TestCancelledCallerStillPopulatesCache() {
	key := query.K("audition", 11)
	release := make(chan struct{})
	done := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_, err := query.Fetch(ctx, s.cache, key, func(context.Context) (user, error) {
			cancel()
			<-release
			return user{ID: 11}, nil
		})
		s.ErrorIs(err, context.Canceled)
		close(done)
	}()

	<-done
	close(release)

	s.Eventually(func() bool {
		return s.cache.State(key) == query.Fresh
	}, time.Second, 5*time.Millisecond)

	u, ok, err := query.Peek[user](context.Background(), s.cache, key)
	s.Require().NoError(err)
	s.True(ok)
	s.Equal(int64(11), u.ID)
}

func (s *QuerySuite) TestRefetchRunsRememberedLoader() {
	ctx := context.Background()
	key := query.K("currentUser")
	var calls atomic.Int32

	_, err := query.Fetch(ctx, s.cache, key, s.counter(user{ID: 1}, &calls))
	s.Require().NoError(err)

	s.Equal(1, s.cache.Refetch(ctx, query.K("currentUser")))
	s.Equal(int32(1), s.exec.submitted.Load())
	s.Equal(int32(2), calls.Load())
	s.Equal(query.Fresh, s.cache.State(key))
}

func (s *QuerySuite) TestRemovedDuringFetchIsNotStored() {
	ctx := context.Background()
	key := query.K("currentUser")

	_, err := query.Fetch(ctx, s.cache, key, func(context.Context) (user, error) {
		s.cache.Remove(ctx, key)
		return user{ID: 1}, nil
	})
	s.Require().NoError(err)
	s.Equal(query.Absent, s.cache.State(key))
}

func (s *QuerySuite) TestSharedStoreAndClose() {
	ctx := context.Background()
	raw := cache.NewInMemoryCache()
	defer func() { s.NoError(raw.Close()) }()

	c := query.New(query.WithStore(cache.NewNamespaced(raw, "agent-1")), query.WithName("agent-1"))
	_, err := query.Fetch(ctx, c, query.K("points"), func(context.Context) (int, error) { return 5, nil })
	s.Require().NoError(err)

	found, err := raw.Exists(ctx, "agent-1:"+query.K("points").String())
	s.Require().NoError(err)
	s.True(found)

	s.Require().NoError(c.Close(ctx))
	found, err = raw.Exists(ctx, "agent-1:"+query.K("points").String())
	s.Require().NoError(err)
	s.False(found)

	_, err = query.Fetch(ctx, c, query.K("points"), func(context.Context) (int, error) { return 5, nil })
	s.Require().ErrorIs(err, query.ErrClosed)
}

func (s *QuerySuite) TestKeys() {
	s.Equal(`["audition",7]`, query.K("audition", 7).String())
	s.True(query.K("applications", 3).HasPrefix(query.K("applications")))
	s.True(query.K("audition", int64(3)).HasPrefix(query.K("audition", 3)))
	s.False(query.K("audition").HasPrefix(query.K("audition", 3)))
	s.False(query.K("auditions").HasPrefix(query.K("audition")))
	s.True(query.K("points").HasPrefix(nil))
	s.Equal("stale", query.Stale.String())
}

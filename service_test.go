package audition_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/tjddyd55-crypto/global-audition"
	"github.com/tjddyd55-crypto/global-audition/api"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/localization"
	"github.com/tjddyd55-crypto/global-audition/query"
	"github.com/tjddyd55-crypto/global-audition/session"
)

type ServiceSuite struct {
	suite.Suite
	backend *fakeBackend
	ctx     context.Context
	svc     *audition.Service
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.backend = newFakeBackend(s.T())
	s.ctx, s.svc = audition.NewServiceWithContext(context.Background(), "test",
		audition.WithConfig(testConfig(s.backend.URL)))
	s.Require().NoError(s.svc.Err())
}

func (s *ServiceSuite) TearDownTest() {
	s.svc.Stop(s.ctx)
}

func (s *ServiceSuite) agent(id string) *audition.Agent {
	a, err := s.svc.Agents().Get(s.ctx, id)
	s.Require().NoError(err)
	return a
}

func (s *ServiceSuite) TestFromContext() {
	s.Same(s.svc, audition.FromContext(s.ctx))
	s.Nil(audition.FromContext(context.Background()))
	s.Equal("webfront-test", s.svc.Name())
	s.Equal("ko", s.svc.DefaultLocale())
}

func (s *ServiceSuite) TestStartupFailures() {
	testCases := []struct {
		name   string
		mutate func(cfg *config.ConfigurationDefault)
		target error
	}{
		{
			name:   "missing api url",
			mutate: func(cfg *config.ConfigurationDefault) { cfg.APIURL = "" },
			target: config.ErrMissingAPIURL,
		},
		{
			name:   "unsupported session store",
			mutate: func(cfg *config.ConfigurationDefault) { cfg.SessionStoreURI = "ftp://sessions" },
		},
		{
			name:   "unsupported cache store",
			mutate: func(cfg *config.ConfigurationDefault) { cfg.CacheStoreURI = "memcached://cache" },
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			cfg := testConfig(s.backend.URL)
			tc.mutate(cfg)

			ctx, svc := audition.NewServiceWithContext(context.Background(), "broken", audition.WithConfig(cfg))
			defer svc.Stop(ctx)

			s.Require().Error(svc.Err())
			if tc.target != nil {
				s.Require().ErrorIs(svc.Err(), tc.target)
			}
			s.Require().Error(svc.Run(ctx, ":0"))
		})
	}
}

func (s *ServiceSuite) TestHealthEndpoint() {
	srv := httptest.NewServer(s.svc.Handler())
	defer srv.Close()

	get := func() (int, string) {
		resp, err := http.Get(srv.URL + "/healthz")
		s.Require().NoError(err)
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, string(body)
	}

	code, body := get()
	s.Equal(http.StatusOK, code)
	s.Equal("ok", body)

	s.svc.AddHealthCheck(audition.CheckerFunc(func(context.Context) error {
		return errors.New("backend down")
	}))
	code, body = get()
	s.Equal(http.StatusInternalServerError, code)
	s.Equal("unhealthy", body)
}

func (s *ServiceSuite) TestLoginLoadsCurrentUserAndLogoutPurgesIt() {
	a := s.agent("")

	_, err := a.CurrentUser(s.ctx)
	s.Require().ErrorIs(err, audition.ErrNotSignedIn)
	s.Require().ErrorIs(err, client.ErrUnauthorized)

	resp, err := a.Login(s.ctx, api.LoginRequest{Email: "mina@example.com", Password: "password1"})
	s.Require().NoError(err)
	s.Equal("tok-mina@example.com", resp.Token)
	s.True(a.Authenticated())
	s.Equal(session.RoleApplicant, a.Role(s.ctx))

	user, err := a.CurrentUser(s.ctx)
	s.Require().NoError(err)
	s.Equal("mina@example.com", user.Email)

	_, err = a.CurrentUser(s.ctx)
	s.Require().NoError(err)
	s.Equal(int32(1), s.backend.meCalls.Load())

	s.Require().NoError(a.Logout(s.ctx))
	s.False(a.Authenticated())
	s.Equal(session.RoleNone, a.Role(s.ctx))
	s.Equal(query.Absent, a.Queries().State(session.CurrentUserKey))

	_, err = a.CurrentUser(s.ctx)
	s.Require().ErrorIs(err, audition.ErrNotSignedIn)
}

func (s *ServiceSuite) TestRejectedTokenSignsOut() {
	a := s.agent("")
	_, err := a.Login(s.ctx, api.LoginRequest{Email: "mina@example.com", Password: "password1"})
	s.Require().NoError(err)

	s.backend.revoke("tok-mina@example.com")

	_, err = a.MyApplications(s.ctx)
	s.Require().ErrorIs(err, client.ErrUnauthorized)
	s.False(a.Authenticated())

	problem := a.Describe(localization.ToContext(s.ctx, "ko"), err)
	s.Equal(http.StatusUnauthorized, problem.Status)
	s.Equal("로그인이 필요합니다.", problem.Message)
}

func (s *ServiceSuite) myApplicationIDs(a *audition.Agent) []string {
	apps, err := a.MyApplications(s.ctx)
	s.Require().NoError(err)
	ids := make([]string, 0, len(apps))
	for _, app := range apps {
		ids = append(ids, app.ID)
	}
	return ids
}

func (s *ServiceSuite) TestRejectedTokenDropsTheAccountsData() {
	a := s.agent("")
	_, err := a.Login(s.ctx, api.LoginRequest{Email: "alice@example.com", Password: "password1"})
	s.Require().NoError(err)
	s.Equal([]string{"app-of-alice@example.com"}, s.myApplicationIDs(a))
	s.Equal([]string{"app-of-alice@example.com"}, s.myApplicationIDs(a))
	s.Equal(int32(1), s.backend.myAppsCalls.Load())

	s.backend.revoke("tok-alice@example.com")
	_, err = a.Apply(s.ctx, "7")
	s.Require().ErrorIs(err, client.ErrUnauthorized)
	s.False(a.Authenticated())

	_, err = a.Login(s.ctx, api.LoginRequest{Email: "bob@example.com", Password: "password1"})
	s.Require().NoError(err)
	s.Equal([]string{"app-of-bob@example.com"}, s.myApplicationIDs(a))
	s.Equal(int32(2), s.backend.myAppsCalls.Load())
}

func (s *ServiceSuite) TestSwitchingAccountsDropsTheAccountsData() {
	a := s.agent("")
	_, err := a.Login(s.ctx, api.LoginRequest{Email: "alice@example.com", Password: "password1"})
	s.Require().NoError(err)
	s.Equal([]string{"app-of-alice@example.com"}, s.myApplicationIDs(a))

	_, err = a.Login(s.ctx, api.LoginRequest{Email: "bob@example.com", Password: "password1"})
	s.Require().NoError(err)
	s.Equal([]string{"app-of-bob@example.com"}, s.myApplicationIDs(a))
	s.Equal(int32(2), s.backend.myAppsCalls.Load())
}

func (s *ServiceSuite) TestApplyingTwiceIsReportedAsDuplicate() {
	a := s.agent("")
	_, err := a.Login(s.ctx, api.LoginRequest{Email: "mina@example.com", Password: "password1"})
	s.Require().NoError(err)

	app, err := a.Apply(s.ctx, "7")
	s.Require().NoError(err)
	s.Equal(api.StatusSubmitted, app.Status)

	_, err = a.Apply(s.ctx, "7")
	s.Require().ErrorIs(err, audition.ErrAlreadyApplied)
	s.Require().ErrorIs(err, client.ErrConflict)

	ko := a.Describe(localization.ToContext(s.ctx, "ko"), err)
	s.Equal(http.StatusConflict, ko.Status)
	s.Equal("이미 지원하셨습니다.", ko.Message)

	en := a.Describe(localization.ToContext(s.ctx, "en"), err)
	s.Equal("You have already applied to this audition.", en.Message)
}

func (s *ServiceSuite) TestQueriesAreCachedUntilAMutationInvalidates() {
	a := s.agent("")

	for range 3 {
		list, err := a.Auditions(s.ctx, api.AuditionFilter{})
		s.Require().NoError(err)
		s.Len(list, 1)
	}
	s.Equal(int32(1), s.backend.auditionListCalls.Load())

	_, err := a.Audition(s.ctx, "7")
	s.Require().NoError(err)
	_, err = a.Audition(s.ctx, "7")
	s.Require().NoError(err)
	s.Equal(int32(1), s.backend.auditionGetCalls.Load())

	_, err = a.Login(s.ctx, api.LoginRequest{Email: "mina@example.com", Password: "password1"})
	s.Require().NoError(err)
	_, err = a.Apply(s.ctx, "7")
	s.Require().NoError(err)

	_, err = a.Audition(s.ctx, "7")
	s.Require().NoError(err)
	s.Equal(int32(2), s.backend.auditionGetCalls.Load())
}

func (s *ServiceSuite) TestCreateAuditionIsForAgencies() {
	applicant := s.agent("")
	_, err := applicant.Login(s.ctx, api.LoginRequest{Email: "mina@example.com", Password: "password1"})
	s.Require().NoError(err)

	_, err = applicant.CreateAudition(s.ctx, api.CreateAuditionRequest{Title: "Dance"})
	s.Require().ErrorIs(err, audition.ErrBusinessOnly)
	s.Equal("Only agencies can post auditions.",
		applicant.Describe(localization.ToContext(s.ctx, "en"), err).Message)

	agency := s.agent("")
	_, err = agency.Login(s.ctx, api.LoginRequest{Email: "biz@agency.example", Password: "password1"})
	s.Require().NoError(err)

	created, err := agency.CreateAudition(s.ctx, api.CreateAuditionRequest{Title: "Dance"})
	s.Require().NoError(err)
	s.Equal("8", created.ID)
}

func (s *ServiceSuite) TestDescribe() {
	a := s.agent("")
	en := localization.ToContext(s.ctx, "en")

	testCases := []struct {
		name    string
		err     error
		status  int
		message string
		fields  map[string]string
	}{
		{
			name:    "client side field checks",
			err:     api.FieldErrors{"points": "points.topupMinimum"},
			status:  http.StatusBadRequest,
			message: "Please check the highlighted fields.",
			fields:  map[string]string{"points": "Top-up amount must be at least 1 point."},
		},
		{
			name:    "backend validation keeps backend text",
			err:     &client.Error{StatusCode: http.StatusBadRequest, Message: "bad input", Fields: map[string]string{"email": "taken"}},
			status:  http.StatusBadRequest,
			message: "bad input",
			fields:  map[string]string{"email": "taken"},
		},
		{
			name:    "network",
			err:     errors.Join(client.ErrNetwork, errors.New("dial tcp: refused")),
			status:  http.StatusBadGateway,
			message: "The server could not be reached. Please try again shortly.",
		},
		{
			name:    "delete stub",
			err:     a.DeleteAudition(s.ctx, "7"),
			status:  http.StatusNotImplemented,
			message: "Deleting auditions is not supported yet.",
		},
		{
			name:    "other stub",
			err:     client.ErrNotImplemented,
			status:  http.StatusNotImplemented,
			message: "This feature is not available yet.",
		},
		{
			name:    "server message",
			err:     &client.Error{StatusCode: http.StatusInternalServerError, Message: "boom"},
			status:  http.StatusInternalServerError,
			message: "boom",
		},
		{
			name:    "server without message",
			err:     &client.Error{StatusCode: http.StatusBadGateway},
			status:  http.StatusBadGateway,
			message: "A server error occurred.",
		},
		{
			name:    "unknown",
			err:     errors.New("something else"),
			status:  http.StatusInternalServerError,
			message: "The request could not be completed.",
		},
	}

	for _, tc := range testCases {
		s.Run(tc.name, func() {
			p := a.Describe(en, tc.err)
			s.Equal(tc.status, p.Status)
			s.Equal(tc.message, p.Message)
			s.Equal(tc.fields, p.Fields)
		})
	}

	s.Equal(audition.Problem{}, a.Describe(en, nil))
}

func (s *ServiceSuite) TestVisitorsAreIsolated() {
	first := s.agent("")
	second := s.agent("")
	s.NotEqual(first.ID(), second.ID())
	s.Same(first, s.agent(first.ID()))

	_, err := first.Login(s.ctx, api.LoginRequest{Email: "mina@example.com", Password: "password1"})
	s.Require().NoError(err)
	s.True(first.Authenticated())
	s.False(second.Authenticated())
}

func (s *ServiceSuite) TestInstancesSharingStorageConverge() {
	shared := session.NewMemoryStore()
	open := func() (context.Context, *audition.Service) {
		ctx, svc := audition.NewServiceWithContext(context.Background(), "instance",
			audition.WithConfig(testConfig(s.backend.URL)),
			audition.WithSessionStore(shared))
		s.Require().NoError(svc.Err())
		return ctx, svc
	}
	ctx1, one := open()
	defer one.Stop(ctx1)
	ctx2, two := open()
	defer two.Stop(ctx2)

	onOne, err := one.Agents().Get(ctx1, "")
	s.Require().NoError(err)
	onTwo, err := two.Agents().Get(ctx2, onOne.ID())
	s.Require().NoError(err)

	_, err = onOne.Login(ctx1, api.LoginRequest{Email: "mina@example.com", Password: "password1"})
	s.Require().NoError(err)
	s.Eventually(onTwo.Authenticated, time.Second, 5*time.Millisecond)

	apps, err := onOne.MyApplications(ctx1)
	s.Require().NoError(err)
	s.Require().Len(apps, 1)
	s.Equal("app-of-mina@example.com", apps[0].ID)

	s.Require().NoError(onTwo.Logout(ctx2))
	s.Eventually(func() bool { return !onOne.Authenticated() }, time.Second, 5*time.Millisecond)

	_, err = onOne.Login(ctx1, api.LoginRequest{Email: "bob@example.com", Password: "password1"})
	s.Require().NoError(err)
	apps, err = onOne.MyApplications(ctx1)
	s.Require().NoError(err)
	s.Require().Len(apps, 1)
	s.Equal("app-of-bob@example.com", apps[0].ID)
	s.Equal(int32(2), s.backend.myAppsCalls.Load())
}

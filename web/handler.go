// Package web serves the localized marketplace pages as JSON view models.
// Each visitor is an audition.Agent selected by the ga_agent cookie.
package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/pitabwire/util"

	"github.com/tjddyd55-crypto/global-audition"
	"github.com/tjddyd55-crypto/global-audition/client"
	"github.com/tjddyd55-crypto/global-audition/config"
	"github.com/tjddyd55-crypto/global-audition/localization"
	localehttp "github.com/tjddyd55-crypto/global-audition/localization/interceptors/http"
	"github.com/tjddyd55-crypto/global-audition/ratelimiter"
)

// CookieName holds the visitor id.
const CookieName = "ga_agent"

const cookieMaxAge = 365 * 24 * time.Hour

// Handler routes /{locale}/... requests to the visitor's agent.
type Handler struct {
	svc     *audition.Service
	routing *localization.Routing
	limiter *ratelimiter.KeyedLimiter
	secure  bool
	root    http.Handler
}

// agentFunc serves one request for a; a returned error is rendered by the handler.
type agentFunc func(w http.ResponseWriter, r *http.Request, a *audition.Agent) error

// NewHandler builds the page routes for svc and registers the limiter's cleanup with it.
func NewHandler(svc *audition.Service) *Handler {
	h := &Handler{
		svc:     svc,
		routing: svc.Routing(),
	}

	var detect bool
	cfg := svc.Config()
	if c, ok := cfg.(config.ConfigurationLocale); ok {
		detect = c.DetectLocale()
	}
	if c, ok := cfg.(config.ConfigurationSession); ok {
		h.secure = c.SecureCookies()
	}
	rateCfg, _ := cfg.(config.ConfigurationRateLimit)
	h.limiter = ratelimiter.NewKeyedLimiter(ratelimiter.FromConfig(rateCfg))
	svc.AddCleanupMethod(func(ctx context.Context) {
		util.CloseAndLogOnError(ctx, h.limiter, "could not stop login rate limiter")
	})

	limited := ratelimiter.IPMiddleware(h.limiter, h.rejectLimited)

	mux := http.NewServeMux()
	mux.Handle("GET /{locale}", h.agent(h.home))
	mux.Handle("GET /{locale}/{$}", h.agent(h.home))
	mux.Handle("GET /{locale}/auditions", h.agent(h.auditions))
	mux.Handle("POST /{locale}/auditions", h.agent(h.createAudition))
	mux.Handle("GET /{locale}/auditions/{id}", h.agent(h.audition))
	mux.Handle("POST /{locale}/auditions/{id}/apply", h.agent(h.apply))
	mux.Handle("GET /{locale}/auditions/{id}/applications", h.agent(h.applications))
	mux.Handle("POST /{locale}/applications/{id}/accept", h.agent(h.accept))
	mux.Handle("POST /{locale}/applications/{id}/reject", h.agent(h.reject))
	mux.Handle("GET /{locale}/login", h.agent(h.loginPage))
	mux.Handle("POST /{locale}/login", limited(h.agent(h.login)))
	mux.Handle("POST /{locale}/login/{provider}", limited(h.agent(h.socialLogin)))
	mux.Handle("POST /{locale}/register", limited(h.agent(h.register)))
	mux.Handle("POST /{locale}/logout", h.agent(h.logout))
	mux.Handle("GET /{locale}/me", h.agent(h.me))
	mux.Handle("GET /{locale}/my/applications", h.agent(h.myApplications))
	mux.Handle("GET /{locale}/my/wallet", h.agent(h.wallet))
	mux.Handle("GET /{locale}/dashboard", h.agent(h.dashboard))
	mux.Handle("GET /{locale}/vault", h.agent(h.vault))
	mux.Handle("GET /{locale}/language", h.agent(h.languages))

	h.root = localehttp.LocaleHTTPMiddleware(h.routing, detect)(mux)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// agent resolves the visitor from its cookie, issuing a new id when it has none.
func (h *Handler) agent(fn agentFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(CookieName); err == nil {
			id = c.Value
		}

		a, err := h.svc.Agents().Get(r.Context(), id)
		if err != nil {
			util.Log(r.Context()).WithError(err).Error("could not resolve visitor")
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		if a.ID() != id {
			http.SetCookie(w, h.cookie(a.ID()))
		}

		ctx := util.ContextWithLogger(r.Context(), util.Log(r.Context()).WithField("agent", a.ID()))
		r = r.WithContext(ctx)
		if err = fn(w, r, a); err != nil {
			h.fail(w, r, a, err)
		}
	})
}

func (h *Handler) cookie(id string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// fail renders err: any authorization failure sends the visitor to the login page.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, a *audition.Agent, err error) {
	locale := h.locale(r)
	log := util.Log(r.Context()).WithError(err).WithField("path", r.URL.Path)

	if errors.Is(err, client.ErrUnauthorized) {
		log.Debug("login required")
		http.Redirect(w, r, h.routing.Path(locale, "/login"), http.StatusSeeOther)
		return
	}

	problem := a.Describe(r.Context(), err)
	if problem.Status >= http.StatusInternalServerError {
		log.Error("request failed")
	} else {
		log.Info("request rejected")
	}
	writeJSON(r.Context(), w, problem.Status, problem)
}

func (h *Handler) rejectLimited(w http.ResponseWriter, r *http.Request) {
	writeJSON(r.Context(), w, http.StatusTooManyRequests, audition.Problem{
		Status:  http.StatusTooManyRequests,
		Message: h.svc.Localization().Translate(r.Context(), h.locale(r), "error.rateLimited"),
	})
}

func (h *Handler) locale(r *http.Request) string {
	if locale := localization.FromContext(r.Context()); locale != "" {
		return locale
	}
	return h.routing.Default()
}

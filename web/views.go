package web

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/tjddyd55-crypto/global-audition"
	"github.com/tjddyd55-crypto/global-audition/api"
	"github.com/tjddyd55-crypto/global-audition/localization"
	"github.com/tjddyd55-crypto/global-audition/session"
)

// accountView is what the browser learns about a signed in account; the token stays server side.
type accountView struct {
	UserID   int64        `json:"userId,omitempty"`
	Email    string       `json:"email,omitempty"`
	Name     string       `json:"name,omitempty"`
	UserType session.Role `json:"userType,omitempty"`
	Redirect string       `json:"redirect"`
}

type meView struct {
	User api.UserProfile `json:"user"`
	Role session.Role    `json:"role"`
}

type dashboardView struct {
	Stats     api.DashboardStats `json:"stats"`
	Auditions api.MyAuditions    `json:"auditions"`
}

type languageOption struct {
	localization.Language
	Href    string `json:"href"`
	Current bool   `json:"current"`
}

func (h *Handler) home(w http.ResponseWriter, r *http.Request, _ *audition.Agent) error {
	http.Redirect(w, r, h.routing.Path(h.locale(r), "/auditions"), http.StatusSeeOther)
	return nil
}

func (h *Handler) auditions(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	filter := api.AuditionFilter{
		Category: r.URL.Query().Get("category"),
		Status:   r.URL.Query().Get("status"),
	}
	list, err := a.Auditions(r.Context(), filter)
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"auditions": list})
	return nil
}

func (h *Handler) audition(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	item, err := a.Audition(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, item)
	return nil
}

func (h *Handler) createAudition(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	var req api.CreateAuditionRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	created, err := a.CreateAudition(r.Context(), req)
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusCreated, created)
	return nil
}

func (h *Handler) apply(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	app, err := a.Apply(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusCreated, app)
	return nil
}

func (h *Handler) applications(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	list, err := a.Applications(r.Context(), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"applications": list})
	return nil
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	app, err := a.Accept(r.Context(), r.URL.Query().Get("auditionId"), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, app)
	return nil
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	app, err := a.Reject(r.Context(), r.URL.Query().Get("auditionId"), r.PathValue("id"))
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, app)
	return nil
}

func (h *Handler) loginPage(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{
		"authenticated": a.Authenticated(),
		"providers": []api.Provider{
			api.ProviderGoogle, api.ProviderKakao, api.ProviderNaver, api.ProviderFacebook,
		},
	})
	return nil
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	var req api.LoginRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	resp, err := a.Login(r.Context(), req)
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, h.account(r, resp))
	return nil
}

type socialLoginRequest struct {
	AccessToken string       `json:"accessToken"`
	UserType    session.Role `json:"userType"`
}

func (h *Handler) socialLogin(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	var req socialLoginRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	provider := api.Provider(strings.ToUpper(r.PathValue("provider")))
	resp, err := a.SocialLogin(r.Context(), provider, req.AccessToken, req.UserType)
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, h.account(r, resp))
	return nil
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	var req api.RegisterRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	resp, err := a.Register(r.Context(), req)
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusCreated, h.account(r, resp))
	return nil
}

func (h *Handler) account(r *http.Request, resp api.AuthResponse) accountView {
	next := "/auditions"
	if resp.UserType == session.RoleBusiness {
		next = "/dashboard"
	}
	return accountView{
		UserID:   resp.UserID,
		Email:    resp.Email,
		Name:     resp.Name,
		UserType: resp.UserType,
		Redirect: h.routing.Path(h.locale(r), next),
	}
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	if err := a.Logout(r.Context()); err != nil {
		return err
	}
	http.Redirect(w, r, h.routing.Path(h.locale(r), "/login"), http.StatusSeeOther)
	return nil
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	user, err := a.CurrentUser(r.Context())
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, meView{User: user, Role: a.Role(r.Context())})
	return nil
}

func (h *Handler) myApplications(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	list, err := a.MyApplications(r.Context())
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"applications": list})
	return nil
}

func (h *Handler) wallet(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	wallet, err := a.Wallet(r.Context(), pageRequest(r))
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, wallet)
	return nil
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	stats, err := a.DashboardStats(r.Context())
	if err != nil {
		return err
	}
	mine, err := a.MyAuditions(r.Context())
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, dashboardView{Stats: stats, Auditions: mine})
	return nil
}

func (h *Handler) vault(w http.ResponseWriter, r *http.Request, a *audition.Agent) error {
	assets, err := a.MyAssets(r.Context(), pageRequest(r))
	if err != nil {
		return err
	}
	writeJSON(r.Context(), w, http.StatusOK, assets)
	return nil
}

// languages lists the switcher entries; each href keeps the page given in ?path.
func (h *Handler) languages(w http.ResponseWriter, r *http.Request, _ *audition.Agent) error {
	current := h.locale(r)
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/" + current
	}

	langs, err := h.routing.Languages()
	if err != nil {
		return err
	}
	options := make([]languageOption, 0, len(langs))
	for _, l := range langs {
		options = append(options, languageOption{
			Language: l,
			Href:     h.routing.Switch(path, l.Code),
			Current:  l.Code == current,
		})
	}
	writeJSON(r.Context(), w, http.StatusOK, map[string]any{"current": current, "languages": options})
	return nil
}

func pageRequest(r *http.Request) api.PageRequest {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))
	return api.PageRequest{Page: page, Size: size}
}

package web_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tjddyd55-crypto/global-audition/config"
)

// backend answers the handful of REST calls the page tests make.
type backend struct {
	*httptest.Server

	mu      sync.Mutex
	applied map[string]bool
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	b := &backend{applied: map[string]bool{}}
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "password1" {
			reply(w, http.StatusBadRequest, map[string]any{"message": "invalid credentials"})
			return
		}
		reply(w, http.StatusOK, map[string]any{
			"token":    "tok-" + body["email"],
			"userId":   1,
			"email":    body["email"],
			"name":     "Mina",
			"userType": "APPLICANT",
		})
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		token, ok := authorized(w, r)
		if !ok {
			return
		}
		reply(w, http.StatusOK, map[string]any{"id": 1, "email": strings.TrimPrefix(token, "tok-"), "userType": "APPLICANT"})
	})
	mux.HandleFunc("GET /api/v1/auditions", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, []map[string]any{{"id": "7", "title": "Vocal", "status": "OPEN"}})
	})
	mux.HandleFunc("GET /api/v1/auditions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("id") == "404" {
			reply(w, http.StatusNotFound, map[string]any{})
			return
		}
		reply(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "title": "Vocal", "status": "OPEN"})
	})
	mux.HandleFunc("POST /api/v1/auditions/{id}/apply", func(w http.ResponseWriter, r *http.Request) {
		token, ok := authorized(w, r)
		if !ok {
			return
		}
		key := token + "/" + r.PathValue("id")
		b.mu.Lock()
		dup := b.applied[key]
		b.applied[key] = true
		b.mu.Unlock()
		if dup {
			reply(w, http.StatusConflict, map[string]any{"message": "Already applied"})
			return
		}
		reply(w, http.StatusCreated, map[string]any{"id": "a1", "auditionId": r.PathValue("id"), "status": "SUBMITTED"})
	})

	b.Server = httptest.NewServer(mux)
	t.Cleanup(b.Close)
	return b
}

func authorized(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		reply(w, http.StatusUnauthorized, map[string]any{"message": "token expired"})
		return "", false
	}
	return token, true
}

func reply(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func testConfig(apiURL string) *config.ConfigurationDefault {
	return &config.ConfigurationDefault{
		ServiceName:            "webfront-test",
		LogLevel:               "info",
		APIURL:                 apiURL,
		APITimeout:             5 * time.Second,
		DefaultLocale:          "ko",
		SupportedLocales:       []string{"ko", "en", "ja", "zh", "es", "fr", "de"},
		QueryStaleTime:         time.Minute,
		QueryGCTime:            10 * time.Minute,
		SessionStoreURI:        "mem://",
		SessionNamespace:       "ga",
		CacheStoreURI:          "mem://",
		AgentIdleTimeout:       time.Hour,
		WorkerPoolCapacity:     8,
		LoginRequestsPerSecond: 1,
		LoginBurst:             5,
	}
}

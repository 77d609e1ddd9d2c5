package audition_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tjddyd55-crypto/global-audition/config"
)

// fakeBackend is a small in-memory rendition of the REST API.
type fakeBackend struct {
	*httptest.Server

	mu      sync.Mutex
	revoked map[string]bool
	applied map[string]bool

	auditionListCalls atomic.Int32
	auditionGetCalls  atomic.Int32
	meCalls           atomic.Int32
	myAppsCalls       atomic.Int32
}

func newFakeBackend(t *testing.T) *fakeBackend {
	t.Helper()

	b := &fakeBackend{revoked: map[string]bool{}, applied: map[string]bool{}}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, http.StatusOK, map[string]any{"ok": true})
	})
	mux.HandleFunc("POST /api/v1/auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["password"] != "password1" {
			reply(w, http.StatusBadRequest, map[string]any{"message": "invalid credentials"})
			return
		}
		userType := "APPLICANT"
		if strings.HasPrefix(body["email"], "biz") {
			userType = "BUSINESS"
		}
		reply(w, http.StatusOK, map[string]any{
			"token":    "tok-" + body["email"],
			"userId":   1,
			"email":    body["email"],
			"userType": userType,
		})
	})
	mux.HandleFunc("GET /api/v1/auth/me", func(w http.ResponseWriter, r *http.Request) {
		b.meCalls.Add(1)
		token, ok := b.authorize(w, r)
		if !ok {
			return
		}
		email := strings.TrimPrefix(token, "tok-")
		reply(w, http.StatusOK, map[string]any{"id": 1, "email": email, "name": "Mina"})
	})
	mux.HandleFunc("GET /api/v1/applications/me", func(w http.ResponseWriter, r *http.Request) {
		b.myAppsCalls.Add(1)
		token, ok := b.authorize(w, r)
		if !ok {
			return
		}
		email := strings.TrimPrefix(token, "tok-")
		reply(w, http.StatusOK, []map[string]any{{"id": "app-of-" + email, "auditionId": "7", "status": "SUBMITTED"}})
	})
	mux.HandleFunc("GET /api/v1/auditions", func(w http.ResponseWriter, _ *http.Request) {
		b.auditionListCalls.Add(1)
		reply(w, http.StatusOK, []map[string]any{{"id": "7", "title": "Vocal", "status": "OPEN"}})
	})
	mux.HandleFunc("GET /api/v1/auditions/{id}", func(w http.ResponseWriter, r *http.Request) {
		b.auditionGetCalls.Add(1)
		reply(w, http.StatusOK, map[string]any{"id": r.PathValue("id"), "title": "Vocal", "status": "OPEN"})
	})
	mux.HandleFunc("POST /api/v1/auditions", func(w http.ResponseWriter, r *http.Request) {
		if _, ok := b.authorize(w, r); !ok {
			return
		}
		reply(w, http.StatusCreated, map[string]any{"id": "8", "title": "Dance", "status": "DRAFT"})
	})
	mux.HandleFunc("POST /api/v1/auditions/{id}/apply", func(w http.ResponseWriter, r *http.Request) {
		token, ok := b.authorize(w, r)
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

func (b *fakeBackend) revoke(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.revoked[token] = true
}

func (b *fakeBackend) authorize(w http.ResponseWriter, r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	b.mu.Lock()
	revoked := b.revoked[token]
	b.mu.Unlock()
	if !ok || token == "" || revoked {
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
		ServiceName:        "webfront-test",
		LogLevel:           "info",
		APIURL:             apiURL,
		APITimeout:         5 * time.Second,
		DefaultLocale:      "ko",
		SupportedLocales:   []string{"ko", "en", "ja", "zh", "es", "fr", "de"},
		QueryStaleTime:     time.Minute,
		QueryGCTime:        10 * time.Minute,
		QueryRetry:         0,
		SessionStoreURI:    "mem://",
		SessionNamespace:   "ga",
		CacheStoreURI:      "mem://",
		AgentIdleTimeout:   time.Hour,
		WorkerPoolCapacity: 8,
	}
}

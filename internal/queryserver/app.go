// Package queryserver exposes a thin read-only HTTP diagnostics surface
// over a ModuleTracker snapshot: a human or test harness can curl it to
// see what the tracker currently believes about a qualifier. It is not
// the analysis query wire protocol (out of scope) — just an introspection
// aid.
package queryserver

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"buildtrack/internal/moduletracker"
)

// Snapshotter supplies the read-only tracker view the server answers
// queries against. A fresh snapshot is taken per request so concurrent
// writes to the live tracker never race with a response being written.
type Snapshotter interface {
	ReadOnlyView() *moduletracker.ReadOnly
}

// App holds the server's dependencies.
type App struct {
	tracker Snapshotter
	store   *sharedStoreView
	origins []string
}

// NewApp creates an App over tracker, with no shared-store diagnostics
// endpoint enabled.
func NewApp(tracker Snapshotter) *App {
	return &App{tracker: tracker}
}

// WithAllowedOrigins restricts cross-site callers to the given origins.
// With none configured, any origin is allowed.
func (a *App) WithAllowedOrigins(origins []string) *App {
	a.origins = origins
	return a
}

// WithSharedStore opens sharedStorePath read-only and enables the
// /api/sharedstore/keys diagnostics endpoint against it.
func (a *App) WithSharedStore(sharedStorePath string) (*App, error) {
	view, err := openSharedStoreView(sharedStorePath)
	if err != nil {
		return nil, err
	}
	a.store = view
	return a, nil
}

// Handler returns the HTTP handler: CORS, panic recovery, and the
// /api/module routes.
func (a *App) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(a.cors)

	r.Route("/api", func(r chi.Router) {
		r.Get("/module/lookup", a.handleLookupQualifier)
		r.Get("/module/eligibility", a.handleTypeCheckEligibility)
		r.Get("/module/code", a.handleCodeOfModulePath)
		r.Get("/sharedstore/keys", a.handleSharedStoreKeys)
	})

	return r
}

// cors grants cross-site read access per the app's configured origin
// list. Same-site requests (no Origin header) pass through untouched;
// a disallowed origin gets no CORS grant and the browser enforces the
// refusal.
func (a *App) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && a.originAllowed(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Allow-Methods", http.MethodGet)
			h.Set("Access-Control-Allow-Headers", "Accept, Content-Type")
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *App) originAllowed(origin string) bool {
	if len(a.origins) == 0 {
		return true
	}
	for _, allowed := range a.origins {
		if strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requireQualifier(w http.ResponseWriter, r *http.Request) (string, bool) {
	q := strings.TrimSpace(r.URL.Query().Get("qualifier"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing qualifier query param"})
		return "", false
	}
	return q, true
}

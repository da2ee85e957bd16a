package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"taskflow.dev/internal/audit"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/obs"
	"taskflow.dev/internal/task"
	"taskflow.dev/internal/team"
)

const serviceName = "taskflow-api"

// ReadinessChecker reports whether the backing store is reachable.
type ReadinessChecker interface {
	Check(ctx context.Context) error
}

// Pinger is satisfied by both store implementations.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe adapts a store to ReadinessChecker. A nil store is always ready.
type ReadyProbe struct {
	Store Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.Store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return rp.Store.Ping(ctx)
}

// Services bundles the core operations exposed over HTTP.
type Services struct {
	Auth  *auth.Service
	Tasks *task.Service
	Teams *team.Service
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadinessChecker
	version    string
	svc        Services
	recorder   *audit.Recorder

	rateBurst      int
	ratePerSec     float64
	trustForwarded bool
	maxBodyBytes   int64
	allowedOrigins []string
}

// Option configures API.
type Option func(*API)

// WithRecorder sets the audit recorder. The default logs through obs.Logger.
func WithRecorder(r *audit.Recorder) Option {
	return func(a *API) {
		if r != nil {
			a.recorder = r
		}
	}
}

// WithTrustForwarded keys rate-limit buckets on X-Forwarded-For instead of
// the TCP peer.
func WithTrustForwarded(trust bool) Option {
	return func(a *API) {
		a.trustForwarded = trust
	}
}

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst int, perSecond float64) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst = burst
			a.ratePerSec = perSecond
		}
	}
}

func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithAllowedOrigins replaces the localhost-only CORS allow list.
func WithAllowedOrigins(origins []string) Option {
	return func(a *API) { a.allowedOrigins = origins }
}

func New(rp ReadinessChecker, version string, svc Services, opts ...Option) *API {
	if rp == nil {
		rp = ReadyProbe{}
	}
	a := &API{
		mux:          http.NewServeMux(),
		readyProbe:   rp,
		version:      version,
		svc:          svc,
		rateBurst:    20,
		ratePerSec:   10,
		maxBodyBytes: 1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.recorder == nil {
		a.recorder = audit.NewRecorder()
	}
	a.routes()
	return a
}

func (a *API) routes() {
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	admin := RequireRole(auth.RoleAdmin)

	a.mux.HandleFunc("POST /v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("POST /v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	a.mux.Handle("POST /v1/auth/managers", admin(http.HandlerFunc(a.handleRegisterManager)))

	a.mux.HandleFunc("GET /v1/users", a.handleListUsers)
	a.mux.HandleFunc("GET /v1/users/me", a.handleMe)
	a.mux.HandleFunc("PUT /v1/users/me", a.handleUpdateProfile)
	a.mux.HandleFunc("GET /v1/users/{id}", a.handleGetUser)
	a.mux.Handle("DELETE /v1/users/{id}", admin(http.HandlerFunc(a.handleDeleteUser)))
	a.mux.Handle("PUT /v1/users/{id}/role", admin(http.HandlerFunc(a.handleAssignRole)))

	a.mux.HandleFunc("POST /v1/tasks", a.handleCreateTask)
	a.mux.HandleFunc("GET /v1/tasks", a.handleListTasks)
	a.mux.HandleFunc("GET /v1/tasks/{id}", a.handleGetTask)
	a.mux.HandleFunc("PUT /v1/tasks/{id}", a.handleUpdateTask)
	a.mux.HandleFunc("DELETE /v1/tasks/{id}", a.handleDeleteTask)
	a.mux.HandleFunc("PATCH /v1/tasks/{id}/status", a.handleChangeStatus)
	a.mux.HandleFunc("PATCH /v1/tasks/{id}/assignee", a.handleReassign)

	a.mux.HandleFunc("POST /v1/teams", a.handleCreateTeam)
	a.mux.HandleFunc("GET /v1/teams", a.handleListTeams)
	a.mux.HandleFunc("GET /v1/teams/{id}", a.handleGetTeam)
	a.mux.HandleFunc("PUT /v1/teams/{id}", a.handleUpdateTeam)
	a.mux.HandleFunc("DELETE /v1/teams/{id}", a.handleDeleteTeam)
	a.mux.HandleFunc("GET /v1/teams/{id}/members", a.handleListMembers)
	a.mux.HandleFunc("POST /v1/teams/{id}/members", a.handleAddMember)
	a.mux.HandleFunc("DELETE /v1/teams/{id}/members/{userID}", a.handleRemoveMember)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
}

// Handler returns the full middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec, a.trustForwarded)
	h = CORS(h, a.allowedOrigins)
	h = SecurityHeaders(h)
	h = obs.Instrument(h)
	h = LoggingJSON(h)
	return RequestID(h)
}

func (a *API) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.Logger().WithError(err).Warn("readiness check failed")
		writeError(w, r, http.StatusServiceUnavailable, "not ready")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"version": a.version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) record(ctx context.Context, event string, fields map[string]any) {
	_ = a.recorder.Record(ctx, event, fields)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

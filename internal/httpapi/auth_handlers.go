package httpapi

import (
	"errors"
	"net/http"
	"time"

	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/obs"
)

type registerRequest struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
	Nickname  string `json:"nickname" validate:"required,max=64"`
	FirstName string `json:"first_name" validate:"max=64"`
	LastName  string `json:"last_name" validate:"max=64"`
}

func (req registerRequest) credentials() (auth.Credentials, auth.Profile) {
	return auth.Credentials{Email: req.Email, Password: req.Password},
		auth.Profile{Nickname: req.Nickname, FirstName: req.FirstName, LastName: req.LastName}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

type sessionResponse struct {
	User             auth.Summary `json:"user"`
	AccessToken      string       `json:"access_token"`
	TokenType        string       `json:"token_type"`
	ExpiresAt        time.Time    `json:"expires_at"`
	RefreshToken     string       `json:"refresh_token"`
	RefreshExpiresAt time.Time    `json:"refresh_expires_at"`
}

type accessResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func newSessionResponse(s auth.Session) sessionResponse {
	return sessionResponse{
		User:             s.Principal,
		AccessToken:      s.AccessToken,
		TokenType:        "Bearer",
		ExpiresAt:        s.AccessExpiresAt,
		RefreshToken:     s.RefreshToken,
		RefreshExpiresAt: s.RefreshExpiresAt,
	}
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !bind(w, r, &req) {
		return
	}
	creds, profile := req.credentials()
	session, err := a.svc.Auth.Register(r.Context(), creds, profile)
	obs.ObserveAuth("register", outcome(err))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "auth.register", map[string]any{
		"principal_id": session.Principal.ID,
		"role":         session.Principal.Role,
	})
	writeJSON(w, http.StatusCreated, newSessionResponse(session))
}

func (a *API) handleRegisterManager(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req registerRequest
	if !bind(w, r, &req) {
		return
	}
	creds, profile := req.credentials()
	summary, err := a.svc.Auth.RegisterPrivileged(r.Context(), actor, creds, profile)
	obs.ObserveAuth("register_manager", outcome(err))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "auth.register_manager", map[string]any{
		"principal_id": summary.ID,
	})
	writeJSON(w, http.StatusCreated, summary)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !bind(w, r, &req) {
		return
	}
	session, err := a.svc.Auth.Login(r.Context(), req.Email, req.Password)
	obs.ObserveAuth("login", outcome(err))
	if err != nil {
		// Unknown email and wrong password are indistinguishable to the client.
		if errors.Is(err, auth.ErrPrincipalNotFound) || errors.Is(err, auth.ErrInvalidCredentials) {
			a.record(r.Context(), "auth.login", map[string]any{"outcome": "rejected"})
			writeError(w, r, http.StatusUnauthorized, "invalid email or password")
			return
		}
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "auth.login", map[string]any{
		"outcome":      "ok",
		"principal_id": session.Principal.ID,
	})
	writeJSON(w, http.StatusOK, newSessionResponse(session))
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bind(w, r, &req) {
		return
	}
	token, err := a.svc.Auth.Refresh(r.Context(), req.RefreshToken)
	obs.ObserveAuth("refresh", outcome(err))
	if err != nil {
		a.record(r.Context(), "auth.refresh", map[string]any{"outcome": outcome(err)})
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "auth.refresh", map[string]any{"outcome": "ok"})
	writeJSON(w, http.StatusOK, accessResponse{
		AccessToken: token.Token,
		TokenType:   "Bearer",
		ExpiresAt:   token.ExpiresAt,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !bind(w, r, &req) {
		return
	}
	err := a.svc.Auth.Logout(r.Context(), req.RefreshToken)
	obs.ObserveAuth("logout", outcome(err))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "auth.logout", nil)
	w.WriteHeader(http.StatusNoContent)
}

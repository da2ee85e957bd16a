package httpapi

import (
	"net/http"

	"taskflow.dev/internal/auth"
)

type assignRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=USER MANAGER ADMIN"`
}

type profileRequest struct {
	Nickname  string `json:"nickname" validate:"required,max=64"`
	FirstName string `json:"first_name" validate:"max=64"`
	LastName  string `json:"last_name" validate:"max=64"`
}

func (a *API) handleListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	users, err := a.svc.Auth.ListPrincipals(r.Context(), actor)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	p, err := a.svc.Auth.Principal(r.Context(), actor.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleGetUser(w http.ResponseWriter, r *http.Request) {
	p, err := a.svc.Auth.Principal(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p.Summary())
}

func (a *API) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req profileRequest
	if !bind(w, r, &req) {
		return
	}
	p, err := a.svc.Auth.UpdateProfile(r.Context(), actor, auth.Profile{
		Nickname:  req.Nickname,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "user.profile.update", map[string]any{"principal_id": p.ID})
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := a.svc.Auth.DeletePrincipal(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "user.delete", map[string]any{"principal_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAssignRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req assignRoleRequest
	if !bind(w, r, &req) {
		return
	}
	role, _ := auth.ParseRole(req.Role)
	summary, err := a.svc.Auth.AssignRole(r.Context(), actor, r.PathValue("id"), role)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "user.role.assign", map[string]any{
		"principal_id": summary.ID,
		"role":         summary.Role,
	})
	writeJSON(w, http.StatusOK, summary)
}

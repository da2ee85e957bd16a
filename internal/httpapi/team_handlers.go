package httpapi

import (
	"net/http"

	"taskflow.dev/internal/team"
)

type teamRequest struct {
	Name        string `json:"name" validate:"required,max=120"`
	Description string `json:"description" validate:"max=2000"`
}

type memberRequest struct {
	UserID string `json:"user_id" validate:"required,max=64"`
}

func (a *API) handleCreateTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req teamRequest
	if !bind(w, r, &req) {
		return
	}
	t, err := a.svc.Teams.Create(r.Context(), actor, team.Input{Name: req.Name, Description: req.Description})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "team.create", map[string]any{"team_id": t.ID})
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleListTeams(w http.ResponseWriter, r *http.Request) {
	teams, err := a.svc.Teams.List(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if teams == nil {
		teams = []team.Team{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"teams": teams})
}

func (a *API) handleGetTeam(w http.ResponseWriter, r *http.Request) {
	t, err := a.svc.Teams.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req teamRequest
	if !bind(w, r, &req) {
		return
	}
	t, err := a.svc.Teams.Update(r.Context(), actor, r.PathValue("id"), team.Input{Name: req.Name, Description: req.Description})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "team.update", map[string]any{"team_id": t.ID})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleDeleteTeam(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := a.svc.Teams.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "team.delete", map[string]any{"team_id": id})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.svc.Teams.Members(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if members == nil {
		members = []team.Member{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

func (a *API) handleAddMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req memberRequest
	if !bind(w, r, &req) {
		return
	}
	m, err := a.svc.Teams.AddMember(r.Context(), actor, r.PathValue("id"), req.UserID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "team.member.add", map[string]any{"team_id": m.TeamID, "user_id": m.UserID})
	writeJSON(w, http.StatusCreated, m)
}

func (a *API) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	teamID, userID := r.PathValue("id"), r.PathValue("userID")
	if err := a.svc.Teams.RemoveMember(r.Context(), actor, teamID, userID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "team.member.remove", map[string]any{"team_id": teamID, "user_id": userID})
	w.WriteHeader(http.StatusNoContent)
}

package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"taskflow.dev/internal/task"
)

type createTaskRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=4000"`
	Priority    int        `json:"priority" validate:"gte=0,lte=10"`
	Category    string     `json:"category" validate:"max=64"`
	Deadline    *time.Time `json:"deadline"`
	AssignedTo  string     `json:"assigned_to" validate:"max=64"`
	TeamID      string     `json:"team_id" validate:"max=64"`
}

type updateTaskRequest struct {
	Title       *string    `json:"title" validate:"omitnil,min=1,max=200"`
	Description *string    `json:"description" validate:"omitnil,max=4000"`
	Status      *string    `json:"status" validate:"omitnil,oneof=NEW IN_PROGRESS DONE"`
	Priority    *int       `json:"priority" validate:"omitnil,gte=0,lte=10"`
	Category    *string    `json:"category" validate:"omitnil,max=64"`
	Deadline    *time.Time `json:"deadline"`
	AssignedTo  *string    `json:"assigned_to" validate:"omitnil,max=64"`
	TeamID      *string    `json:"team_id" validate:"omitnil,max=64"`
}

func (req updateTaskRequest) patch() task.Patch {
	p := task.Patch{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
		Deadline:    req.Deadline,
		AssignedTo:  req.AssignedTo,
		TeamID:      req.TeamID,
	}
	if req.Status != nil {
		st := task.Status(*req.Status)
		p.Status = &st
	}
	return p
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=NEW IN_PROGRESS DONE"`
}

type assigneeRequest struct {
	AssignedTo string `json:"assigned_to" validate:"required,max=64"`
}

func (a *API) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req createTaskRequest
	if !bind(w, r, &req) {
		return
	}
	t, err := a.svc.Tasks.Create(r.Context(), actor, task.Input{
		Title:       req.Title,
		Description: req.Description,
		Priority:    req.Priority,
		Category:    req.Category,
		Deadline:    req.Deadline,
		AssignedTo:  req.AssignedTo,
		TeamID:      req.TeamID,
	})
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "task.create", map[string]any{"task_id": t.ID})
	writeJSON(w, http.StatusCreated, t)
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := task.Filter{
		Category:   q.Get("category"),
		CreatedBy:  q.Get("created_by"),
		AssignedTo: q.Get("assigned_to"),
		TeamID:     q.Get("team_id"),
	}
	if raw := q.Get("status"); raw != "" {
		st, ok := task.ParseStatus(raw)
		if !ok {
			writeError(w, r, http.StatusBadRequest, "status must be one of: NEW IN_PROGRESS DONE")
			return
		}
		f.Status = st
	}
	if raw := q.Get("priority"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, http.StatusBadRequest, "priority must be an integer")
			return
		}
		f.Priority = &n
	}
	tasks, err := a.svc.Tasks.List(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if tasks == nil {
		tasks = []task.Task{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (a *API) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t, err := a.svc.Tasks.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req updateTaskRequest
	if !bind(w, r, &req) {
		return
	}
	t, err := a.svc.Tasks.Update(r.Context(), actor, r.PathValue("id"), req.patch())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "task.update", map[string]any{"task_id": t.ID})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleChangeStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req statusRequest
	if !bind(w, r, &req) {
		return
	}
	t, err := a.svc.Tasks.ChangeStatus(r.Context(), actor, r.PathValue("id"), task.Status(req.Status))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "task.status", map[string]any{"task_id": t.ID, "status": t.Status})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleReassign(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	var req assigneeRequest
	if !bind(w, r, &req) {
		return
	}
	t, err := a.svc.Tasks.Reassign(r.Context(), actor, r.PathValue("id"), req.AssignedTo)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "task.reassign", map[string]any{"task_id": t.ID, "assigned_to": t.AssignedTo})
	writeJSON(w, http.StatusOK, t)
}

func (a *API) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	id := r.PathValue("id")
	if err := a.svc.Tasks.Delete(r.Context(), actor, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	a.record(r.Context(), "task.delete", map[string]any{"task_id": id})
	w.WriteHeader(http.StatusNoContent)
}

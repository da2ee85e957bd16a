package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	"taskflow.dev/internal/auth"
)

// Status is the workflow state of a task.
type Status string

const (
	StatusNew        Status = "NEW"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// ParseStatus normalises s into a known status.
func ParseStatus(s string) (Status, bool) {
	st := Status(strings.ToUpper(strings.TrimSpace(s)))
	switch st {
	case StatusNew, StatusInProgress, StatusDone:
		return st, true
	}
	return "", false
}

// Task is a unit of work created by one principal and optionally assigned to another.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	Priority    int        `json:"priority"`
	Category    string     `json:"category,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	CreatedBy   string     `json:"created_by"`
	AssignedTo  string     `json:"assigned_to,omitempty"`
	TeamID      string     `json:"team_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Filter narrows List results. Zero fields match everything.
type Filter struct {
	Status     Status
	Priority   *int
	Category   string
	CreatedBy  string
	AssignedTo string
	TeamID     string
}

// Matches reports whether t satisfies f.
func (f Filter) Matches(t *Task) bool {
	switch {
	case f.Status != "" && t.Status != f.Status:
		return false
	case f.Priority != nil && t.Priority != *f.Priority:
		return false
	case f.Category != "" && !strings.EqualFold(t.Category, f.Category):
		return false
	case f.CreatedBy != "" && t.CreatedBy != f.CreatedBy:
		return false
	case f.AssignedTo != "" && t.AssignedTo != f.AssignedTo:
		return false
	case f.TeamID != "" && t.TeamID != f.TeamID:
		return false
	}
	return true
}

// Repository persists tasks. Missing rows are reported as auth.ErrNotFound.
type Repository interface {
	CreateTask(ctx context.Context, t *Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, f Filter) ([]Task, error)
	UpdateTask(ctx context.Context, t *Task) error
	DeleteTask(ctx context.Context, id string) error
}

// TeamChecker reports whether a team exists.
type TeamChecker interface {
	TeamExists(ctx context.Context, id string) (bool, error)
}

// Input carries the writable fields of a task.
type Input struct {
	Title       string
	Description string
	Priority    int
	Category    string
	Deadline    *time.Time
	AssignedTo  string
	TeamID      string
}

// Patch is a partial update; nil fields are left unchanged.
type Patch struct {
	Title       *string
	Description *string
	Status      *Status
	Priority    *int
	Category    *string
	Deadline    *time.Time
	AssignedTo  *string
	TeamID      *string
}

var (
	ErrAssigneeNotFound = fmt.Errorf("%w: assignee does not exist", auth.ErrInvalidInput)
	ErrTeamNotFound     = fmt.Errorf("%w: team does not exist", auth.ErrInvalidInput)
	ErrInvalidStatus    = fmt.Errorf("%w: unknown status", auth.ErrInvalidInput)
)

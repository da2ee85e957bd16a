package team

import (
	"context"
	"time"
)

// Team groups principals. Membership is unique per (team, principal).
type Team struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type Member struct {
	TeamID   string    `json:"team_id"`
	UserID   string    `json:"user_id"`
	JoinedAt time.Time `json:"joined_at"`
}

// Repository persists teams and memberships. Missing rows are reported as
// auth.ErrNotFound and duplicate memberships as auth.ErrConflict.
type Repository interface {
	CreateTeam(ctx context.Context, t *Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	ListTeams(ctx context.Context) ([]Team, error)
	UpdateTeam(ctx context.Context, t *Team) error
	// DeleteTeam removes the team and its memberships.
	DeleteTeam(ctx context.Context, id string) error
	AddMember(ctx context.Context, m Member) error
	RemoveMember(ctx context.Context, teamID, userID string) error
	ListMembers(ctx context.Context, teamID string) ([]Member, error)
	RemoveMemberships(ctx context.Context, userID string) error
}

type Input struct {
	Name        string
	Description string
}

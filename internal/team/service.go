package team

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"taskflow.dev/internal/access"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/ids"
)

var ErrMemberNotFound = fmt.Errorf("%w: principal does not exist", auth.ErrInvalidInput)

// Service applies the team policy before every mutation, using the actor's
// current directory role.
type Service struct {
	repo      Repository
	directory auth.PrincipalLookup
	now       func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func NewService(repo Repository, directory auth.PrincipalLookup, opts ...Option) *Service {
	s := &Service{repo: repo, directory: directory, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, actor auth.Actor, in Input) (*Team, error) {
	if err := s.authorize(ctx, actor, access.OpCreate); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, auth.ErrInvalidInput
	}
	now := s.now().UTC()
	t := &Team{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		CreatedBy:   actor.ID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateTeam(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Team, error) {
	return s.repo.GetTeam(ctx, id)
}

func (s *Service) List(ctx context.Context) ([]Team, error) {
	return s.repo.ListTeams(ctx)
}

func (s *Service) Members(ctx context.Context, id string) ([]Member, error) {
	if _, err := s.repo.GetTeam(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, id)
}

func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, in Input) (*Team, error) {
	if err := s.authorize(ctx, actor, access.OpUpdate); err != nil {
		return nil, err
	}
	t, err := s.repo.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, auth.ErrInvalidInput
	}
	t.Name = name
	t.Description = strings.TrimSpace(in.Description)
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateTeam(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	if err := s.authorize(ctx, actor, access.OpDelete); err != nil {
		return err
	}
	return s.repo.DeleteTeam(ctx, id)
}

func (s *Service) AddMember(ctx context.Context, actor auth.Actor, id, userID string) (*Member, error) {
	if err := s.authorize(ctx, actor, access.OpManageMembership); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetTeam(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.directory.FindByID(ctx, userID); errors.Is(err, auth.ErrNotFound) {
		return nil, ErrMemberNotFound
	} else if err != nil {
		return nil, err
	}
	m := Member{TeamID: id, UserID: userID, JoinedAt: s.now().UTC()}
	if err := s.repo.AddMember(ctx, m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Service) RemoveMember(ctx context.Context, actor auth.Actor, id, userID string) error {
	if err := s.authorize(ctx, actor, access.OpManageMembership); err != nil {
		return err
	}
	if _, err := s.repo.GetTeam(ctx, id); err != nil {
		return err
	}
	return s.repo.RemoveMember(ctx, id, userID)
}

// RemovePrincipal drops every membership of a deleted principal. It is
// registered with auth.OnPrincipalDeleted.
func (s *Service) RemovePrincipal(ctx context.Context, principalID string) error {
	return s.repo.RemoveMemberships(ctx, principalID)
}

func (s *Service) authorize(ctx context.Context, actor auth.Actor, op access.Operation) error {
	role, err := auth.CurrentRole(ctx, s.directory, actor.ID)
	if err != nil {
		return err
	}
	return access.Authorize(access.TeamFacts(role), op)
}

package task

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskflow.dev/internal/access"
	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/ids"
)

// Service applies the access policy before every task mutation. The actor's
// role is read from the directory on each call so role changes apply at once.
type Service struct {
	repo      Repository
	directory auth.PrincipalLookup
	teams     TeamChecker
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

// WithTeams enables team id validation.
func WithTeams(teams TeamChecker) Option {
	return func(s *Service) { s.teams = teams }
}

func NewService(repo Repository, directory auth.PrincipalLookup, opts ...Option) *Service {
	s := &Service{repo: repo, directory: directory, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new task owned by actor with status NEW.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in Input) (*Task, error) {
	role, err := auth.CurrentRole(ctx, s.directory, actor.ID)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(access.TaskFacts(actor.ID, role, "", ""), access.OpCreate); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return nil, auth.ErrInvalidInput
	}
	if err := s.checkAssignee(ctx, in.AssignedTo); err != nil {
		return nil, err
	}
	if err := s.checkTeam(ctx, in.TeamID); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	t := &Task{
		ID:          ids.New(),
		Title:       title,
		Description: in.Description,
		Status:      StatusNew,
		Priority:    in.Priority,
		Category:    strings.TrimSpace(in.Category),
		Deadline:    in.Deadline,
		CreatedBy:   actor.ID,
		AssignedTo:  in.AssignedTo,
		TeamID:      in.TeamID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) Get(ctx context.Context, id string) (*Task, error) {
	return s.repo.GetTask(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]Task, error) {
	return s.repo.ListTasks(ctx, f)
}

// Update applies a partial update. Changing the assignee additionally requires
// the reassign permission.
func (s *Service) Update(ctx context.Context, actor auth.Actor, id string, p Patch) (*Task, error) {
	t, facts, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(facts, access.OpUpdate); err != nil {
		return nil, err
	}
	if p.AssignedTo != nil && *p.AssignedTo != t.AssignedTo {
		if err := access.Authorize(facts, access.OpReassign); err != nil {
			return nil, err
		}
		if err := s.checkAssignee(ctx, *p.AssignedTo); err != nil {
			return nil, err
		}
		t.AssignedTo = *p.AssignedTo
	}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		if title == "" {
			return nil, auth.ErrInvalidInput
		}
		t.Title = title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		st, ok := ParseStatus(string(*p.Status))
		if !ok {
			return nil, ErrInvalidStatus
		}
		t.Status = st
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Category != nil {
		t.Category = strings.TrimSpace(*p.Category)
	}
	if p.Deadline != nil {
		t.Deadline = p.Deadline
	}
	if p.TeamID != nil {
		if err := s.checkTeam(ctx, *p.TeamID); err != nil {
			return nil, err
		}
		t.TeamID = *p.TeamID
	}
	return s.save(ctx, t)
}

func (s *Service) ChangeStatus(ctx context.Context, actor auth.Actor, id string, status Status) (*Task, error) {
	st, ok := ParseStatus(string(status))
	if !ok {
		return nil, ErrInvalidStatus
	}
	t, facts, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(facts, access.OpChangeStatus); err != nil {
		return nil, err
	}
	t.Status = st
	return s.save(ctx, t)
}

func (s *Service) Reassign(ctx context.Context, actor auth.Actor, id, assignee string) (*Task, error) {
	t, facts, err := s.load(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := access.Authorize(facts, access.OpReassign); err != nil {
		return nil, err
	}
	if strings.TrimSpace(assignee) == "" {
		return nil, ErrAssigneeNotFound
	}
	if err := s.checkAssignee(ctx, assignee); err != nil {
		return nil, err
	}
	t.AssignedTo = assignee
	return s.save(ctx, t)
}

func (s *Service) Delete(ctx context.Context, actor auth.Actor, id string) error {
	_, facts, err := s.load(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := access.Authorize(facts, access.OpDelete); err != nil {
		return err
	}
	return s.repo.DeleteTask(ctx, id)
}

// load fetches the task and builds fresh facts for actor.
func (s *Service) load(ctx context.Context, actor auth.Actor, id string) (*Task, access.Facts, error) {
	role, err := auth.CurrentRole(ctx, s.directory, actor.ID)
	if err != nil {
		return nil, access.Facts{}, err
	}
	t, err := s.repo.GetTask(ctx, id)
	if err != nil {
		return nil, access.Facts{}, err
	}
	return t, access.TaskFacts(actor.ID, role, t.CreatedBy, t.AssignedTo), nil
}

func (s *Service) save(ctx context.Context, t *Task) (*Task, error) {
	t.UpdatedAt = s.now().UTC()
	if err := s.repo.UpdateTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *Service) checkAssignee(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	_, err := s.directory.FindByID(ctx, id)
	if errors.Is(err, auth.ErrNotFound) {
		return ErrAssigneeNotFound
	}
	return err
}

func (s *Service) checkTeam(ctx context.Context, id string) error {
	if id == "" || s.teams == nil {
		return nil
	}
	ok, err := s.teams.TeamExists(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return ErrTeamNotFound
	}
	return nil
}

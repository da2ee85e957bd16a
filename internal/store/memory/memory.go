// Package memory keeps every repository in process memory. It backs dev mode
// when no database is configured and the service-level tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/task"
	"taskflow.dev/internal/team"
)

type Store struct {
	mu sync.RWMutex

	principals map[string]*auth.Principal
	emails     map[string]string

	refresh      map[string]*auth.RefreshToken
	refreshOwner map[string]string

	tasks   map[string]*task.Task
	teams   map[string]*team.Team
	members map[string]map[string]time.Time // team id -> user id -> joined at
}

var (
	_ auth.PrincipalDirectory = (*Store)(nil)
	_ auth.RefreshStore       = (*Store)(nil)
	_ task.Repository         = (*Store)(nil)
	_ task.TeamChecker        = (*Store)(nil)
	_ team.Repository         = (*Store)(nil)
)

func New() *Store {
	return &Store{
		principals:   map[string]*auth.Principal{},
		emails:       map[string]string{},
		refresh:      map[string]*auth.RefreshToken{},
		refreshOwner: map[string]string{},
		tasks:        map[string]*task.Task{},
		teams:        map[string]*team.Team{},
		members:      map[string]map[string]time.Time{},
	}
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

// Principals

func (s *Store) FindByEmail(_ context.Context, email string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emails[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *s.principals[id]
	return &cp, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.principals[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *Store) Create(_ context.Context, p *auth.Principal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emails[p.Email]; ok {
		return auth.ErrDuplicateEmail
	}
	if _, ok := s.principals[p.ID]; ok {
		return auth.ErrConflict
	}
	cp := *p
	s.principals[p.ID] = &cp
	s.emails[p.Email] = p.ID
	return nil
}

func (s *Store) List(_ context.Context) ([]auth.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]auth.Principal, 0, len(s.principals))
	for _, p := range s.principals {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateRole(_ context.Context, id string, role auth.Role, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	p.Role = role
	p.UpdatedAt = at
	return nil
}

func (s *Store) UpdateProfile(_ context.Context, id string, profile auth.Profile, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	p.Nickname = profile.Nickname
	p.FirstName = profile.FirstName
	p.LastName = profile.LastName
	p.UpdatedAt = at
	return nil
}

// Delete removes the principal and cascades like the SQL schema does: the
// refresh slot and memberships go, tasks keep their rows with the reference cleared.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.principals[id]
	if !ok {
		return auth.ErrNotFound
	}
	delete(s.emails, p.Email)
	delete(s.principals, id)
	if slot, ok := s.refreshOwner[id]; ok {
		delete(s.refresh, slot)
		delete(s.refreshOwner, id)
	}
	for _, m := range s.members {
		delete(m, id)
	}
	for _, t := range s.tasks {
		if t.AssignedTo == id {
			t.AssignedTo = ""
		}
		if t.CreatedBy == id {
			t.CreatedBy = ""
		}
	}
	for _, t := range s.teams {
		if t.CreatedBy == id {
			t.CreatedBy = ""
		}
	}
	return nil
}

// Refresh tokens

func (s *Store) Get(_ context.Context, id string) (*auth.RefreshToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.refresh[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *Store) GetByPrincipal(ctx context.Context, principalID string) (*auth.RefreshToken, error) {
	s.mu.RLock()
	id, ok := s.refreshOwner[principalID]
	s.mu.RUnlock()
	if !ok {
		return nil, auth.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *Store) Upsert(_ context.Context, principalID, newID, tokenHash string, expiresAt, now time.Time) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.principals[principalID]; !ok {
		return nil, auth.ErrNotFound
	}
	id, ok := s.refreshOwner[principalID]
	if !ok {
		id = newID
		s.refreshOwner[principalID] = id
		s.refresh[id] = &auth.RefreshToken{ID: id, PrincipalID: principalID, CreatedAt: now}
	}
	row := s.refresh[id]
	row.TokenHash = tokenHash
	row.ExpiresAt = expiresAt
	row.Revoked = false
	row.RotatedAt = now
	cp := *row
	return &cp, nil
}

func (s *Store) Revoke(_ context.Context, id, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.refresh[id]
	if !ok || row.TokenHash != tokenHash {
		return false, nil
	}
	row.Revoked = true
	return true, nil
}

func (s *Store) DeleteByPrincipal(_ context.Context, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.refreshOwner[principalID]; ok {
		delete(s.refresh, id)
		delete(s.refreshOwner, principalID)
	}
	return nil
}

// RefreshCount reports how many refresh slots exist for principalID.
func (s *Store) RefreshCount(principalID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, row := range s.refresh {
		if row.PrincipalID == principalID {
			n++
		}
	}
	return n
}

// Tasks

func (s *Store) CreateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return auth.ErrConflict
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (*task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *Store) ListTasks(_ context.Context, f task.Filter) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]task.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		if f.Matches(t) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateTask(_ context.Context, t *task.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *t
	s.tasks[t.ID] = &cp
	return nil
}

func (s *Store) DeleteTask(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.tasks, id)
	return nil
}

// Teams

func (s *Store) TeamExists(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.teams[id]
	return ok, nil
}

func (s *Store) CreateTeam(_ context.Context, t *team.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[t.ID]; ok {
		return auth.ErrConflict
	}
	cp := *t
	s.teams[t.ID] = &cp
	s.members[t.ID] = map[string]time.Time{}
	return nil
}

func (s *Store) GetTeam(_ context.Context, id string) (*team.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.teams[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *t
	cp.MemberCount = len(s.members[id])
	return &cp, nil
}

func (s *Store) ListTeams(_ context.Context) ([]team.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]team.Team, 0, len(s.teams))
	for id, t := range s.teams {
		cp := *t
		cp.MemberCount = len(s.members[id])
		out = append(out, cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateTeam(_ context.Context, t *team.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.teams[t.ID]
	if !ok {
		return auth.ErrNotFound
	}
	cur.Name = t.Name
	cur.Description = t.Description
	cur.UpdatedAt = t.UpdatedAt
	return nil
}

// DeleteTeam removes the team with its memberships and detaches its tasks.
func (s *Store) DeleteTeam(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.teams, id)
	delete(s.members, id)
	for _, t := range s.tasks {
		if t.TeamID == id {
			t.TeamID = ""
		}
	}
	return nil
}

func (s *Store) AddMember(_ context.Context, m team.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[m.TeamID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, dup := set[m.UserID]; dup {
		return auth.ErrConflict
	}
	set[m.UserID] = m.JoinedAt
	return nil
}

func (s *Store) RemoveMember(_ context.Context, teamID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.members[teamID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, member := set[userID]; !member {
		return auth.ErrNotFound
	}
	delete(set, userID)
	return nil
}

func (s *Store) ListMembers(_ context.Context, teamID string) ([]team.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	set := s.members[teamID]
	out := make([]team.Member, 0, len(set))
	for uid, joined := range set {
		out = append(out, team.Member{TeamID: teamID, UserID: uid, JoinedAt: joined})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *Store) RemoveMemberships(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.members {
		delete(set, userID)
	}
	return nil
}

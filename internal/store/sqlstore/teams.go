package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/team"
)

const teamSelect = `
	select t.id, t.name, t.description, t.created_by, t.created_at, t.updated_at,
		(select count(*) from team_members m where m.team_id = t.id)
	from teams t`

func scanTeam(row rowScanner) (*team.Team, error) {
	var t team.Team
	var createdBy sql.NullString
	err := row.Scan(&t.ID, &t.Name, &t.Description, &createdBy, &t.CreatedAt, &t.UpdatedAt, &t.MemberCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.CreatedBy = createdBy.String
	return &t, nil
}

func (s *Store) TeamExists(ctx context.Context, id string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `select count(*) from teams where id = $1`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) CreateTeam(ctx context.Context, t *team.Team) error {
	_, err := s.db.ExecContext(ctx, `
		insert into teams(id, name, description, created_by, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6)`,
		t.ID, t.Name, t.Description, nullIfEmpty(t.CreatedBy), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return auth.ErrConflict
	}
	return err
}

func (s *Store) GetTeam(ctx context.Context, id string) (*team.Team, error) {
	return scanTeam(s.db.QueryRowContext(ctx, teamSelect+` where t.id = $1`, id))
}

func (s *Store) ListTeams(ctx context.Context) ([]team.Team, error) {
	rows, err := s.db.QueryContext(ctx, teamSelect+` order by t.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []team.Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTeam(ctx context.Context, t *team.Team) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`update teams set name = $1, description = $2, updated_at = $3 where id = $4`,
		t.Name, t.Description, t.UpdatedAt.UTC(), t.ID))
}

func (s *Store) DeleteTeam(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `delete from team_members where team_id = $1`, id); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `update tasks set team_id = null where team_id = $1`, id); err != nil {
			return err
		}
		return affectedOrNotFound(tx.ExecContext(ctx, `delete from teams where id = $1`, id))
	})
}

func (s *Store) AddMember(ctx context.Context, m team.Member) error {
	_, err := s.db.ExecContext(ctx,
		`insert into team_members(team_id, user_id, joined_at) values ($1, $2, $3)`,
		m.TeamID, m.UserID, m.JoinedAt.UTC())
	switch {
	case isUniqueViolation(err):
		return auth.ErrConflict
	case isForeignKeyViolation(err):
		return auth.ErrNotFound
	}
	return err
}

func (s *Store) RemoveMember(ctx context.Context, teamID, userID string) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`delete from team_members where team_id = $1 and user_id = $2`, teamID, userID))
}

func (s *Store) ListMembers(ctx context.Context, teamID string) ([]team.Member, error) {
	rows, err := s.db.QueryContext(ctx,
		`select team_id, user_id, joined_at from team_members where team_id = $1 order by user_id`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []team.Member
	for rows.Next() {
		var m team.Member
		if err := rows.Scan(&m.TeamID, &m.UserID, &m.JoinedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Store) RemoveMemberships(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `delete from team_members where user_id = $1`, userID)
	return err
}

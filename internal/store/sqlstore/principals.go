package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskflow.dev/internal/auth"
)

const principalColumns = `id, email, nickname, first_name, last_name, password_hash, role, created_at, updated_at`

func scanPrincipal(row rowScanner) (*auth.Principal, error) {
	var p auth.Principal
	var role string
	err := row.Scan(&p.ID, &p.Email, &p.Nickname, &p.FirstName, &p.LastName, &p.PasswordHash, &role, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	p.Role = auth.Role(role)
	return &p, nil
}

func (s *Store) FindByEmail(ctx context.Context, email string) (*auth.Principal, error) {
	return scanPrincipal(s.db.QueryRowContext(ctx, `select `+principalColumns+` from users where email = $1`, email))
}

func (s *Store) FindByID(ctx context.Context, id string) (*auth.Principal, error) {
	return scanPrincipal(s.db.QueryRowContext(ctx, `select `+principalColumns+` from users where id = $1`, id))
}

func (s *Store) Create(ctx context.Context, p *auth.Principal) error {
	_, err := s.db.ExecContext(ctx, `
		insert into users(id, email, nickname, first_name, last_name, password_hash, role, created_at, updated_at)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		p.ID, p.Email, p.Nickname, p.FirstName, p.LastName, p.PasswordHash, string(p.Role), p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return auth.ErrDuplicateEmail
	}
	return err
}

func (s *Store) List(ctx context.Context) ([]auth.Principal, error) {
	rows, err := s.db.QueryContext(ctx, `select `+principalColumns+` from users order by id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []auth.Principal
	for rows.Next() {
		p, err := scanPrincipal(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRole(ctx context.Context, id string, role auth.Role, at time.Time) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`update users set role = $1, updated_at = $2 where id = $3`, string(role), at.UTC(), id))
}

func (s *Store) UpdateProfile(ctx context.Context, id string, profile auth.Profile, at time.Time) error {
	return affectedOrNotFound(s.db.ExecContext(ctx,
		`update users set nickname = $1, first_name = $2, last_name = $3, updated_at = $4 where id = $5`,
		profile.Nickname, profile.FirstName, profile.LastName, at.UTC(), id))
}

// Delete removes the principal and everything that references it in one
// transaction, without relying on foreign-key enforcement being enabled.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range []string{
			`delete from refresh_tokens where user_id = $1`,
			`delete from team_members where user_id = $1`,
			`update tasks set assigned_to = null where assigned_to = $1`,
			`update tasks set created_by = null where created_by = $1`,
			`update teams set created_by = null where created_by = $1`,
		} {
			if _, err := tx.ExecContext(ctx, stmt, id); err != nil {
				return err
			}
		}
		return affectedOrNotFound(tx.ExecContext(ctx, `delete from users where id = $1`, id))
	})
}

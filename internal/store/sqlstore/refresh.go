package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"taskflow.dev/internal/auth"
)

const refreshColumns = `id, user_id, token_hash, expires_at, revoked, created_at, rotated_at`

func scanRefresh(row rowScanner) (*auth.RefreshToken, error) {
	var t auth.RefreshToken
	err := row.Scan(&t.ID, &t.PrincipalID, &t.TokenHash, &t.ExpiresAt, &t.Revoked, &t.CreatedAt, &t.RotatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) Get(ctx context.Context, id string) (*auth.RefreshToken, error) {
	return scanRefresh(s.db.QueryRowContext(ctx, `select `+refreshColumns+` from refresh_tokens where id = $1`, id))
}

func (s *Store) GetByPrincipal(ctx context.Context, principalID string) (*auth.RefreshToken, error) {
	return scanRefresh(s.db.QueryRowContext(ctx, `select `+refreshColumns+` from refresh_tokens where user_id = $1`, principalID))
}

// Upsert relies on the unique user_id constraint: concurrent callers for the
// same principal serialise on it and the last writer's hash wins.
func (s *Store) Upsert(ctx context.Context, principalID, newID, tokenHash string, expiresAt, now time.Time) (*auth.RefreshToken, error) {
	row, err := scanRefresh(s.db.QueryRowContext(ctx, `
		insert into refresh_tokens(id, user_id, token_hash, expires_at, revoked, created_at, rotated_at)
		values ($1, $2, $3, $4, false, $5, $5)
		on conflict (user_id) do update
		set token_hash = excluded.token_hash,
		    expires_at = excluded.expires_at,
		    revoked = false,
		    rotated_at = excluded.rotated_at
		returning `+refreshColumns,
		newID, principalID, tokenHash, expiresAt.UTC(), now.UTC()))
	if isForeignKeyViolation(err) {
		return nil, auth.ErrNotFound
	}
	return row, err
}

func (s *Store) Revoke(ctx context.Context, id, tokenHash string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`update refresh_tokens set revoked = true where id = $1 and token_hash = $2`, id, tokenHash)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) DeleteByPrincipal(ctx context.Context, principalID string) error {
	_, err := s.db.ExecContext(ctx, `delete from refresh_tokens where user_id = $1`, principalID)
	return err
}

// RefreshCount reports how many refresh rows exist for principalID.
func (s *Store) RefreshCount(ctx context.Context, principalID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `select count(*) from refresh_tokens where user_id = $1`, principalID).Scan(&n)
	return n, err
}

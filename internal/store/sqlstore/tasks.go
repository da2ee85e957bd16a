package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"

	"taskflow.dev/internal/auth"
	"taskflow.dev/internal/task"
)

const taskColumns = `id, title, description, status, priority, category, deadline, created_by, assigned_to, team_id, created_at, updated_at`

func scanTask(row rowScanner) (*task.Task, error) {
	var t task.Task
	var status string
	var deadline sql.NullTime
	var createdBy, assignedTo, teamID sql.NullString
	err := row.Scan(&t.ID, &t.Title, &t.Description, &status, &t.Priority, &t.Category, &deadline,
		&createdBy, &assignedTo, &teamID, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Status = task.Status(status)
	if deadline.Valid {
		d := deadline.Time
		t.Deadline = &d
	}
	t.CreatedBy = createdBy.String
	t.AssignedTo = assignedTo.String
	t.TeamID = teamID.String
	return &t, nil
}

func (s *Store) CreateTask(ctx context.Context, t *task.Task) error {
	_, err := s.db.ExecContext(ctx, `
		insert into tasks(`+taskColumns+`)
		values ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.Title, t.Description, string(t.Status), t.Priority, t.Category, nullTime(t.Deadline),
		nullIfEmpty(t.CreatedBy), nullIfEmpty(t.AssignedTo), nullIfEmpty(t.TeamID), t.CreatedAt.UTC(), t.UpdatedAt.UTC())
	if isUniqueViolation(err) {
		return auth.ErrConflict
	}
	if isForeignKeyViolation(err) {
		return auth.ErrInvalidInput
	}
	return err
}

func (s *Store) GetTask(ctx context.Context, id string) (*task.Task, error) {
	return scanTask(s.db.QueryRowContext(ctx, `select `+taskColumns+` from tasks where id = $1`, id))
}

func (s *Store) ListTasks(ctx context.Context, f task.Filter) ([]task.Task, error) {
	var (
		where []string
		args  []any
	)
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, strings.Replace(clause, "?", "$"+strconv.Itoa(len(args)), 1))
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Priority != nil {
		add("priority = ?", *f.Priority)
	}
	if f.Category != "" {
		add("lower(category) = lower(?)", f.Category)
	}
	if f.CreatedBy != "" {
		add("created_by = ?", f.CreatedBy)
	}
	if f.AssignedTo != "" {
		add("assigned_to = ?", f.AssignedTo)
	}
	if f.TeamID != "" {
		add("team_id = ?", f.TeamID)
	}
	query := `select ` + taskColumns + ` from tasks`
	if len(where) > 0 {
		query += ` where ` + strings.Join(where, " and ")
	}
	query += ` order by id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []task.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateTask(ctx context.Context, t *task.Task) error {
	err := affectedOrNotFound(s.db.ExecContext(ctx, `
		update tasks set title = $1, description = $2, status = $3, priority = $4, category = $5,
			deadline = $6, assigned_to = $7, team_id = $8, updated_at = $9
		where id = $10`,
		t.Title, t.Description, string(t.Status), t.Priority, t.Category, nullTime(t.Deadline),
		nullIfEmpty(t.AssignedTo), nullIfEmpty(t.TeamID), t.UpdatedAt.UTC(), t.ID))
	if isForeignKeyViolation(err) {
		return auth.ErrInvalidInput
	}
	return err
}

func (s *Store) DeleteTask(ctx context.Context, id string) error {
	return affectedOrNotFound(s.db.ExecContext(ctx, `delete from tasks where id = $1`, id))
}

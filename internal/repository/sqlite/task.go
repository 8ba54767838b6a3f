package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

const taskColumns = `id, user_id, text, status, project_scope_id, notes, due_date, order_val, created_at, updated_at`

func (db *DB) CreateTask(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.UserID, task.Text, string(task.Status), nullableString(task.ProjectScopeID),
		task.Notes, nullableTime(task.DueDate), task.OrderVal, task.CreatedAt, task.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("project scope", derefOr(task.ProjectScopeID, ""))
		}
		return fmt.Errorf("sqlite: inserting task: %w", err)
	}
	return nil
}

func (db *DB) GetTask(ctx context.Context, userID, id string) (*model.Task, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	t, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("sqlite: getting task %s: %w", id, err)
	}
	return t, nil
}

// ListTasks returns the user's board, newest first.
func (db *DB) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing tasks: %w", err)
	}
	defer rows.Close()

	tasks := []model.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning task row: %w", err)
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating task rows: %w", err)
	}
	return tasks, nil
}

func (db *DB) UpdateTask(ctx context.Context, task *model.Task) error {
	task.UpdatedAt = time.Now().UTC()
	res, err := db.conn.ExecContext(ctx,
		`UPDATE tasks SET text = ?, status = ?, project_scope_id = ?, notes = ?, due_date = ?, order_val = ?, updated_at = ?
		 WHERE id = ? AND user_id = ?`,
		task.Text, string(task.Status), nullableString(task.ProjectScopeID), task.Notes,
		nullableTime(task.DueDate), task.OrderVal, task.UpdatedAt, task.ID, task.UserID,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return apperror.NotFound("project scope", derefOr(task.ProjectScopeID, ""))
		}
		return fmt.Errorf("sqlite: updating task %s: %w", task.ID, err)
	}
	return requireOneRow(res, "task", task.ID)
}

func (db *DB) DeleteTask(ctx context.Context, userID, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("sqlite: deleting task %s: %w", id, err)
	}
	return requireOneRow(res, "task", id)
}

func (db *DB) CreateScope(ctx context.Context, scope *model.ProjectScope) error {
	scope.ID = xid.New().String()
	scope.CreatedAt = time.Now().UTC()
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO project_scopes (id, user_id, name, created_at) VALUES (?, ?, ?, ?)`,
		scope.ID, scope.UserID, scope.Name, scope.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting project scope: %w", err)
	}
	return nil
}

func (db *DB) GetScope(ctx context.Context, userID, id string) (*model.ProjectScope, error) {
	var s model.ProjectScope
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, user_id, name, created_at FROM project_scopes WHERE id = ? AND user_id = ?`, id, userID,
	).Scan(&s.ID, &s.UserID, &s.Name, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("project scope", id)
		}
		return nil, fmt.Errorf("sqlite: getting project scope %s: %w", id, err)
	}
	return &s, nil
}

func (db *DB) ListScopes(ctx context.Context, userID string) ([]model.ProjectScope, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, user_id, name, created_at FROM project_scopes WHERE user_id = ? ORDER BY name, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing project scopes: %w", err)
	}
	defer rows.Close()

	scopes := []model.ProjectScope{}
	for rows.Next() {
		var s model.ProjectScope
		if err := rows.Scan(&s.ID, &s.UserID, &s.Name, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning project scope row: %w", err)
		}
		scopes = append(scopes, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating project scope rows: %w", err)
	}
	return scopes, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*model.Task, error) {
	var (
		t       model.Task
		status  string
		scopeID sql.NullString
		due     sql.NullTime
	)
	if err := row.Scan(&t.ID, &t.UserID, &t.Text, &status, &scopeID, &t.Notes, &due,
		&t.OrderVal, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Status = model.TaskStatus(status)
	if scopeID.Valid {
		id := scopeID.String
		t.ProjectScopeID = &id
	}
	if due.Valid {
		d := due.Time
		t.DueDate = &d
	}
	return &t, nil
}

func nullableString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func nullableTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func derefOr(v *string, fallback string) string {
	if v == nil {
		return fallback
	}
	return *v
}

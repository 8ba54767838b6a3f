package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

func scopeRef(task *model.Task) string {
	if task.ProjectScopeID == nil {
		return ""
	}
	return *task.ProjectScopeID
}

func (db *DB) CreateTask(ctx context.Context, task *model.Task) error {
	now := time.Now().UTC()
	task.ID = xid.New().String()
	task.CreatedAt = now
	task.UpdatedAt = now

	row := taskRowFrom(task)
	if err := db.gorm.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrForeignKeyViolated) {
			return apperror.NotFound("project scope", scopeRef(task))
		}
		return fmt.Errorf("postgres: inserting task: %w", err)
	}
	return nil
}

func (db *DB) GetTask(ctx context.Context, userID, id string) (*model.Task, error) {
	var row taskRow
	err := db.gorm.WithContext(ctx).First(&row, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("task", id)
		}
		return nil, fmt.Errorf("postgres: getting task %s: %w", id, err)
	}
	t := row.toModel()
	return &t, nil
}

func (db *DB) ListTasks(ctx context.Context, userID string) ([]model.Task, error) {
	var rows []taskRow
	err := db.gorm.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: listing tasks: %w", err)
	}
	tasks := make([]model.Task, len(rows))
	for i, r := range rows {
		tasks[i] = r.toModel()
	}
	return tasks, nil
}

func (db *DB) UpdateTask(ctx context.Context, task *model.Task) error {
	task.UpdatedAt = time.Now().UTC()
	tx := db.gorm.WithContext(ctx).Model(&taskRow{}).
		Where("id = ? AND user_id = ?", task.ID, task.UserID).
		Updates(map[string]any{
			"text":             task.Text,
			"status":           string(task.Status),
			"project_scope_id": task.ProjectScopeID,
			"notes":            task.Notes,
			"due_date":         task.DueDate,
			"order_val":        task.OrderVal,
			"updated_at":       task.UpdatedAt,
		})
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrForeignKeyViolated) {
			return apperror.NotFound("project scope", scopeRef(task))
		}
		return fmt.Errorf("postgres: updating task %s: %w", task.ID, tx.Error)
	}
	return requireRows(tx, "task", task.ID)
}

func (db *DB) DeleteTask(ctx context.Context, userID, id string) error {
	tx := db.gorm.WithContext(ctx).Delete(&taskRow{}, "id = ? AND user_id = ?", id, userID)
	if tx.Error != nil {
		return fmt.Errorf("postgres: deleting task %s: %w", id, tx.Error)
	}
	return requireRows(tx, "task", id)
}

func (db *DB) CreateScope(ctx context.Context, scope *model.ProjectScope) error {
	scope.ID = xid.New().String()
	scope.CreatedAt = time.Now().UTC()
	row := scopeRow{ID: scope.ID, UserID: scope.UserID, Name: scope.Name, CreatedAt: scope.CreatedAt}
	if err := db.gorm.WithContext(ctx).Omit(clause.Associations).Create(&row).Error; err != nil {
		return fmt.Errorf("postgres: inserting project scope: %w", err)
	}
	return nil
}

func (db *DB) GetScope(ctx context.Context, userID, id string) (*model.ProjectScope, error) {
	var row scopeRow
	err := db.gorm.WithContext(ctx).First(&row, "id = ? AND user_id = ?", id, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("project scope", id)
		}
		return nil, fmt.Errorf("postgres: getting project scope %s: %w", id, err)
	}
	s := row.toModel()
	return &s, nil
}

func (db *DB) ListScopes(ctx context.Context, userID string) ([]model.ProjectScope, error) {
	var rows []scopeRow
	if err := db.gorm.WithContext(ctx).Where("user_id = ?", userID).Order("name, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres: listing project scopes: %w", err)
	}
	scopes := make([]model.ProjectScope, len(rows))
	for i, r := range rows {
		scopes[i] = r.toModel()
	}
	return scopes, nil
}

package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/repository"
)

const (
	MaxTaskTextLength  = 500
	MaxScopeNameLength = 100
)

// TaskService runs the work-in-progress board. Every method takes the
// owner's user ID; the repository filters on it, so another user's task
// looks exactly like a missing one.
type TaskService struct {
	repo   repository.TaskRepository
	logger *slog.Logger
}

func NewTaskService(repo repository.TaskRepository, logger *slog.Logger) *TaskService {
	return &TaskService{repo: repo, logger: logger}
}

// TaskPatch is a partial task update. ScopeID set to "" detaches the task
// from its scope.
type TaskPatch struct {
	Text    *string           `json:"text"`
	Status  *model.TaskStatus `json:"status"`
	Notes   *string           `json:"notes"`
	ScopeID *string           `json:"projectScopeId"`
}

func (s *TaskService) List(ctx context.Context, userID string) ([]model.Task, error) {
	tasks, err := s.repo.ListTasks(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing tasks: %w", err)
	}
	return tasks, nil
}

// Create adds a task in the TO_DO column.
func (s *TaskService) Create(ctx context.Context, userID, text string, scopeID *string) (*model.Task, error) {
	text, err := validateTaskText(text)
	if err != nil {
		return nil, err
	}
	if scopeID != nil && *scopeID == "" {
		scopeID = nil
	}
	if scopeID != nil {
		if err := s.checkScope(ctx, userID, *scopeID); err != nil {
			return nil, err
		}
	}

	task := &model.Task{UserID: userID, Text: text, Status: model.TaskToDo, ProjectScopeID: scopeID}
	if err := s.repo.CreateTask(ctx, task); err != nil {
		s.logger.Error("failed to create task",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("service/task: creating task: %w", err)
	}
	return task, nil
}

// Update applies a patch. Status must be one of model.TaskStatuses and a
// scope must belong to the same user.
func (s *TaskService) Update(ctx context.Context, userID, id string, patch TaskPatch) (*model.Task, error) {
	task, err := s.repo.GetTask(ctx, userID, id)
	if err != nil {
		return nil, err
	}

	if patch.Text != nil {
		text, err := validateTaskText(*patch.Text)
		if err != nil {
			return nil, err
		}
		task.Text = text
	}
	if patch.Status != nil {
		if !patch.Status.Valid() {
			return nil, apperror.ValidationFailed("status", fmt.Sprintf("unknown task status %q", *patch.Status))
		}
		task.Status = *patch.Status
	}
	if patch.Notes != nil {
		task.Notes = *patch.Notes
	}
	if patch.ScopeID != nil {
		if *patch.ScopeID == "" {
			task.ProjectScopeID = nil
		} else {
			if err := s.checkScope(ctx, userID, *patch.ScopeID); err != nil {
				return nil, err
			}
			scope := *patch.ScopeID
			task.ProjectScopeID = &scope
		}
	}

	if err := s.repo.UpdateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("service/task: updating task %s: %w", id, err)
	}
	return task, nil
}

func (s *TaskService) Delete(ctx context.Context, userID, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperror.ValidationFailed("id", "task ID is required")
	}
	if err := s.repo.DeleteTask(ctx, userID, id); err != nil {
		return err
	}
	s.logger.Info("task deleted", slog.String("id", id), slog.String("userID", userID))
	return nil
}

func (s *TaskService) ListScopes(ctx context.Context, userID string) ([]model.ProjectScope, error) {
	scopes, err := s.repo.ListScopes(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("service/task: listing scopes: %w", err)
	}
	return scopes, nil
}

func (s *TaskService) CreateScope(ctx context.Context, userID, name string) (*model.ProjectScope, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperror.ValidationFailed("name", "scope name is required")
	}
	if utf8.RuneCountInString(name) > MaxScopeNameLength {
		return nil, apperror.ValidationFailed("name",
			fmt.Sprintf("scope name must be %d characters or less", MaxScopeNameLength))
	}
	scope := &model.ProjectScope{UserID: userID, Name: name}
	if err := s.repo.CreateScope(ctx, scope); err != nil {
		return nil, fmt.Errorf("service/task: creating scope: %w", err)
	}
	return scope, nil
}

// checkScope turns a foreign or unknown scope into a validation error on
// the field rather than a 404 for the whole request.
func (s *TaskService) checkScope(ctx context.Context, userID, scopeID string) error {
	if _, err := s.repo.GetScope(ctx, userID, scopeID); err != nil {
		if apperror.Is(err, apperror.ErrNotFound) {
			return apperror.ValidationFailed("projectScopeId", "unknown project scope")
		}
		return fmt.Errorf("service/task: checking scope: %w", err)
	}
	return nil
}

func validateTaskText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperror.ValidationFailed("text", "task text is required")
	}
	if utf8.RuneCountInString(text) > MaxTaskTextLength {
		return "", apperror.ValidationFailed("text",
			fmt.Sprintf("task text must be %d characters or less", MaxTaskTextLength))
	}
	return text, nil
}

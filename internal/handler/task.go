package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/opsdash/internal/auth"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/service"
)

// TaskService is implemented by *service.TaskService.
type TaskService interface {
	List(ctx context.Context, userID string) ([]model.Task, error)
	Create(ctx context.Context, userID, text string, scopeID *string) (*model.Task, error)
	Update(ctx context.Context, userID, id string, patch service.TaskPatch) (*model.Task, error)
	Delete(ctx context.Context, userID, id string) error
	ListScopes(ctx context.Context, userID string) ([]model.ProjectScope, error)
	CreateScope(ctx context.Context, userID, name string) (*model.ProjectScope, error)
}

// TaskHandler serves the signed-in user's tasks and project scopes.
type TaskHandler struct {
	tasks  TaskService
	logger *slog.Logger
}

func NewTaskHandler(tasks TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{tasks: tasks, logger: logger}
}

// HandleList handles GET /api/tasks
func (h *TaskHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	tasks, err := h.tasks.List(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// HandleCreate handles POST /api/tasks  {"text": "...", "projectScopeId": "..."}
func (h *TaskHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req struct {
		Text    string  `json:"text"`
		ScopeID *string `json:"projectScopeId"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	task, err := h.tasks.Create(r.Context(), userID, req.Text, req.ScopeID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

// HandleUpdate handles PATCH /api/tasks/{id}
func (h *TaskHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var patch service.TaskPatch
	if err := decodeJSON(r, &patch); err != nil {
		writeError(w, err)
		return
	}
	task, err := h.tasks.Update(r.Context(), userID, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// HandleDelete handles DELETE /api/tasks/{id}
func (h *TaskHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.tasks.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListScopes handles GET /api/scopes
func (h *TaskHandler) HandleListScopes(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	scopes, err := h.tasks.ListScopes(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if scopes == nil {
		scopes = []model.ProjectScope{}
	}
	writeJSON(w, http.StatusOK, scopes)
}

// HandleCreateScope handles POST /api/scopes  {"name": "..."}
func (h *TaskHandler) HandleCreateScope(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	scope, err := h.tasks.CreateScope(r.Context(), userID, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, scope)
}

package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/auth"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/profilesync"
)

// ControllerSource hands out the profile controller of the session behind
// an access token. *profilesync.Registry implements it.
type ControllerSource interface {
	Acquire(ctx context.Context, accessToken, view string) (*profilesync.Controller, error)
}

// SkillCatalog lists every known skill.
type SkillCatalog interface {
	ListSkills(ctx context.Context) ([]model.Skill, error)
}

// ProfileHandler exposes the profile controller over HTTP. All routes sit
// behind auth.RequireAuth.
type ProfileHandler struct {
	controllers ControllerSource
	catalog     SkillCatalog
	maxAvatar   int64
	logger      *slog.Logger
}

func NewProfileHandler(controllers ControllerSource, catalog SkillCatalog, maxAvatarBytes int64, logger *slog.Logger) *ProfileHandler {
	if maxAvatarBytes <= 0 {
		maxAvatarBytes = profilesync.DefaultMaxAvatarBytes
	}
	return &ProfileHandler{controllers: controllers, catalog: catalog, maxAvatar: maxAvatarBytes, logger: logger}
}

// controller resolves the caller's controller, answering 401 itself when
// the session is gone.
func (h *ProfileHandler) controller(w http.ResponseWriter, r *http.Request, view string) (*profilesync.Controller, bool) {
	token, _ := auth.AccessTokenFromContext(r.Context())
	c, err := h.controllers.Acquire(r.Context(), token, view)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return c, true
}

// writeState answers with the controller's state. A failed mutation keeps
// the state body (its "error" field says what went wrong) and takes its
// status from the error kind.
func writeState(w http.ResponseWriter, c *profilesync.Controller, err error) {
	status := http.StatusOK
	if err != nil {
		status, _ = classify(err)
	}
	writeJSON(w, status, c.State())
}

// HandleGet loads (if needed) and returns the dashboard state.
//
// HTTP: GET /api/profile?view=profile
func (h *ProfileHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view := r.URL.Query().Get("view")
	if view == "" {
		view = profilesync.ViewProfile
	}
	c, ok := h.controller(w, r, view)
	if !ok {
		return
	}
	writeState(w, c, nil)
}

// HandleReload forces a fresh fetch of every section.
//
// HTTP: POST /api/profile/reload
func (h *ProfileHandler) HandleReload(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r, profilesync.ViewProfile)
	if !ok {
		return
	}
	report, err := c.Load(r.Context(), profilesync.ViewProfile)
	if err == nil && !report.OK() {
		h.logger.Warn("profile reload incomplete",
			slog.String("userID", c.UserID()),
			slog.String("error", report.Message()),
		)
	}
	writeState(w, c, err)
}

// draftRequest is a partial draft: keys that are absent keep their current
// value because the body is decoded on top of the existing draft.
type draftRequest struct {
	model.ProfileFields
	AutoSave bool `json:"autoSave"`
}

// HandleUpdateDraft edits the form buffers and optionally schedules the
// debounced auto-save.
//
// HTTP: PATCH /api/profile/draft  {"bio": "...", "autoSave": true}
func (h *ProfileHandler) HandleUpdateDraft(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r, profilesync.ViewProfile)
	if !ok {
		return
	}
	req := draftRequest{ProfileFields: c.State().Draft}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c.UpdateDraft(req.ProfileFields)
	if req.AutoSave {
		c.ScheduleAutoSave()
	}
	writeState(w, c, nil)
}

// HandleSave persists the draft.
//
// HTTP: PUT /api/profile
func (h *ProfileHandler) HandleSave(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r, profilesync.ViewProfile)
	if !ok {
		return
	}
	writeState(w, c, c.SaveProfile(r.Context()))
}

// HandleDismissWelcome hides the welcome card for good.
//
// HTTP: POST /api/profile/welcome/dismiss
func (h *ProfileHandler) HandleDismissWelcome(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r, profilesync.ViewProfile)
	if !ok {
		return
	}
	writeState(w, c, c.DismissWelcomeCard(r.Context()))
}

// HandleUploadAvatar accepts a multipart form with a single "file" part.
//
// HTTP: POST /api/profile/avatar
func (h *ProfileHandler) HandleUploadAvatar(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r, profilesync.ViewProfile)
	if !ok {
		return
	}

	// Room for the multipart envelope on top of the file itself.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxAvatar+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, apperror.ValidationFailed("file", "Please select an image file to upload."))
		return
	}
	defer file.Close()

	_, err = c.UploadAvatar(r.Context(), profilesync.AvatarFile{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	writeState(w, c, err)
}

// HandleAddSkill links a catalog skill.
//
// HTTP: POST /api/profile/skills/{id}
func (h *ProfileHandler) HandleAddSkill(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// HandleRemoveSkill unlinks a skill.
//
// HTTP: DELETE /api/profile/skills/{id}
func (h *ProfileHandler) HandleRemoveSkill(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *ProfileHandler) toggle(w http.ResponseWriter, r *http.Request, selected bool) {
	c, ok := h.controller(w, r, profilesync.ViewProfile)
	if !ok {
		return
	}
	writeState(w, c, c.ToggleSkill(r.Context(), chi.URLParam(r, "id"), selected))
}

// HandleAddCustomSkill links a skill by name, creating it when the
// catalog has no match.
//
// HTTP: POST /api/profile/skills/custom  {"name": "Rust"}
func (h *ProfileHandler) HandleAddCustomSkill(w http.ResponseWriter, r *http.Request) {
	c, ok := h.controller(w, r, profilesync.ViewProfile)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	writeState(w, c, c.AddCustomSkill(r.Context(), req.Name))
}

// HandleListSkills returns the skill catalog.
//
// HTTP: GET /api/skills
func (h *ProfileHandler) HandleListSkills(w http.ResponseWriter, r *http.Request) {
	skills, err := h.catalog.ListSkills(r.Context())
	if err != nil {
		h.logger.Error("listing skills failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}
	if skills == nil {
		skills = []model.Skill{}
	}
	writeJSON(w, http.StatusOK, skills)
}

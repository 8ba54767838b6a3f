package handler_test

import (
	"bytes"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/auth"
	"github.com/sakif/opsdash/internal/handler"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/profilesync"
)

// profileRouter mounts the profile routes behind the real auth middleware.
func profileRouter(s *stack) http.Handler {
	h := handler.NewProfileHandler(s.registry, s.store, 1<<20, testLogger())
	r := chi.NewRouter()
	r.Use(auth.RequireAuth(s.auth))
	r.Get("/api/skills", h.HandleListSkills)
	r.Get("/api/profile", h.HandleGet)
	r.Put("/api/profile", h.HandleSave)
	r.Post("/api/profile/reload", h.HandleReload)
	r.Patch("/api/profile/draft", h.HandleUpdateDraft)
	r.Post("/api/profile/welcome/dismiss", h.HandleDismissWelcome)
	r.Post("/api/profile/avatar", h.HandleUploadAvatar)
	r.Post("/api/profile/skills/custom", h.HandleAddCustomSkill)
	r.Post("/api/profile/skills/{id}", h.HandleAddSkill)
	r.Delete("/api/profile/skills/{id}", h.HandleRemoveSkill)
	return r
}

func do(t *testing.T, h http.Handler, sess *model.Session, method, target string, body io.Reader) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if sess != nil {
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// =============================================================================
// === LOAD ===
// =============================================================================

func TestProfileHandler_Get(t *testing.T) {
	s := newStack(t)
	sess := s.signUp(t, "jane@example.com")
	s.seedSkill(t, "Go")
	router := profileRouter(s)

	rr := do(t, router, sess, http.MethodGet, "/api/profile?view=profile", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	st := decode[profilesync.State](t, rr.Body)
	require.NotNil(t, st.Profile)
	assert.Equal(t, sess.User.ID, st.Profile.ID)
	assert.True(t, st.ShowWelcomeCard)
	assert.Equal(t, model.DefaultSupply, st.Draft.Supply)
	assert.Len(t, st.AllSkills, 1)
	assert.Empty(t, st.Error)
	assert.Equal(t, 1, s.registry.Len())
}

func TestProfileHandler_RequiresSession(t *testing.T) {
	s := newStack(t)
	router := profileRouter(s)

	rr := do(t, router, nil, http.MethodGet, "/api/profile", nil)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestProfileHandler_SignedOutTokenIsRejected(t *testing.T) {
	s := newStack(t)
	sess := s.signUp(t, "jane@example.com")
	router := profileRouter(s)

	require.Equal(t, http.StatusOK, do(t, router, sess, http.MethodGet, "/api/profile", nil).Code)
	require.NoError(t, s.auth.SignOut(t.Context(), sess.AccessToken))

	assert.Equal(t, http.StatusUnauthorized, do(t, router, sess, http.MethodGet, "/api/profile", nil).Code)
}

// =============================================================================
// === DRAFT / SAVE ===
// =============================================================================

func TestProfileHandler_DraftThenSave(t *testing.T) {
	s := newStack(t)
	sess := s.signUp(t, "jane@example.com")
	router := profileRouter(s)

	rr := do(t, router, sess, http.MethodPatch, "/api/profile/draft",
		strings.NewReader(`{"username":"  Jane Doe ","bio":"Gopher"}`))
	require.Equal(t, http.StatusOK, rr.Code)
	st := decode[profilesync.State](t, rr.Body)
	assert.Equal(t, "  Jane Doe ", st.Draft.Username)
	assert.Equal(t, model.DefaultSupply, st.Draft.Supply, "absent keys keep their value")

	rr = do(t, router, sess, http.MethodPut, "/api/profile", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	st = decode[profilesync.State](t, rr.Body)
	assert.Equal(t, "jane_doe", st.Profile.Username)
	assert.Equal(t, "jane_doe", st.Profile.DisplayName)
	assert.Equal(t, "Gopher", st.Profile.Bio)
	assert.Equal(t, "Profile updated successfully!", st.SuccessMessage)

	stored, err := s.store.GetProfile(t.Context(), sess.User.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane_doe", stored.Username)
}

func TestProfileHandler_SaveInvalidUsername(t *testing.T) {
	s := newStack(t)
	sess := s.signUp(t, "jane@example.com")
	router := profileRouter(s)

	do(t, router, sess, http.MethodPatch, "/api/profile/draft", strings.NewReader(`{"username":"!!"}`))
	rr := do(t, router, sess, http.MethodPut, "/api/profile", nil)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	st := decode[profilesync.State](t, rr.Body)
	assert.Contains(t, st.Error, "at least 3 characters")
}

func TestProfileHandler_SaveTakenUsername(t *testing.T) {
	s := newStack(t)
	first := s.signUp(t, "jane@example.com")
	second := s.signUp(t, "john@example.com")
	router := profileRouter(s)

	do(t, router, first, http.MethodPatch, "/api/profile/draft", strings.NewReader(`{"username":"gopher"}`))
	require.Equal(t, http.StatusOK, do(t, router, first, http.MethodPut, "/api/profile", nil).Code)

	do(t, router, second, http.MethodPatch, "/api/profile/draft", strings.NewReader(`{"username":"gopher"}`))
	rr := do(t, router, second, http.MethodPut, "/api/profile", nil)

	assert.Equal(t, http.StatusConflict, rr.Code)
	st := decode[profilesync.State](t, rr.Body)
	assert.Contains(t, st.Error, "Username might be taken")
}

func TestProfileHandler_DismissWelcome(t *testing.T) {
	s := newStack(t)
	sess := s.signUp(t, "jane@example.com")
	router := profileRouter(s)

	rr := do(t, router, sess, http.MethodPost, "/api/profile/welcome/dismiss", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.False(t, decode[profilesync.State](t, rr.Body).ShowWelcomeCard)

	stored, err := s.store.GetProfile(t.Context(), sess.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.HasSeenWelcomeCard)
}

// =============================================================================
// === SKILLS ===
// =============================================================================

func TestProfileHandler_Skills(t *testing.T) {
	s := newStack(t)
	sess := s.signUp(t, "jane@example.com")
	goSkill := s.seedSkill(t, "Go")
	router := profileRouter(s)

	t.Run("add catalog skill", func(t *testing.T) {
		rr := do(t, router, sess, http.MethodPost, "/api/profile/skills/"+goSkill.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		st := decode[profilesync.State](t, rr.Body)
		assert.Equal(t, []string{goSkill.ID}, st.SelectedSkillIDs)
		assert.Equal(t, "Skill added!", st.SuccessMessage)
	})

	t.Run("unknown skill", func(t *testing.T) {
		rr := do(t, router, sess, http.MethodPost, "/api/profile/skills/missing", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Contains(t, decode[profilesync.State](t, rr.Body).Error, "Failed to add skill")
	})

	t.Run("custom skill is created and linked", func(t *testing.T) {
		rr := do(t, router, sess, http.MethodPost, "/api/profile/skills/custom", strings.NewReader(`{"name":"Rust"}`))
		require.Equal(t, http.StatusOK, rr.Code)
		st := decode[profilesync.State](t, rr.Body)
		assert.Len(t, st.SelectedSkillIDs, 2)

		var names []string
		for _, sk := range st.UserSkills {
			names = append(names, sk.Name)
		}
		assert.ElementsMatch(t, []string{"Go", "Rust"}, names)
	})

	t.Run("empty custom name", func(t *testing.T) {
		rr := do(t, router, sess, http.MethodPost, "/api/profile/skills/custom", strings.NewReader(`{"name":"  "}`))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("remove skill", func(t *testing.T) {
		rr := do(t, router, sess, http.MethodDelete, "/api/profile/skills/"+goSkill.ID, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		st := decode[profilesync.State](t, rr.Body)
		assert.NotContains(t, st.SelectedSkillIDs, goSkill.ID)
		assert.Equal(t, "Skill removed.", st.SuccessMessage)
	})

	t.Run("catalog lists both", func(t *testing.T) {
		rr := do(t, router, sess, http.MethodGet, "/api/skills", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Len(t, decode[[]model.Skill](t, rr.Body), 2)
	})
}

// =============================================================================
// === AVATAR ===
// =============================================================================

func multipartFile(t *testing.T, filename string, content []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestProfileHandler_UploadAvatar(t *testing.T) {
	s := newStack(t)
	sess := s.signUp(t, "jane@example.com")
	router := profileRouter(s)

	upload := func(filename string, content []byte) *httptest.ResponseRecorder {
		body, contentType := multipartFile(t, filename, content)
		req := httptest.NewRequest(http.MethodPost, "/api/profile/avatar", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", "Bearer "+sess.AccessToken)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("png", func(t *testing.T) {
		rr := upload("me.png", []byte("\x89PNG fake"))
		require.Equal(t, http.StatusOK, rr.Code)
		st := decode[profilesync.State](t, rr.Body)
		want := "http://cdn.test/storage/public/" + sess.User.ID + "/avatar.png?t=1700000000000"
		assert.Equal(t, want, st.Profile.AvatarURL)
		assert.Equal(t, "Avatar updated!", st.SuccessMessage)
		assert.Empty(t, st.AvatarUploadError)

		user, err := s.auth.GetUser(t.Context(), sess.User.ID)
		require.NoError(t, err)
		assert.Equal(t, want, user.AvatarURL)
	})

	t.Run("not an image", func(t *testing.T) {
		rr := upload("notes.txt", []byte("hello"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Contains(t, decode[profilesync.State](t, rr.Body).AvatarUploadError, "Upload failed")
	})

	t.Run("too large", func(t *testing.T) {
		rr := upload("big.png", bytes.Repeat([]byte("x"), 1<<20+1))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})

	t.Run("missing file part", func(t *testing.T) {
		rr := do(t, router, sess, http.MethodPost, "/api/profile/avatar", strings.NewReader("nope"))
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

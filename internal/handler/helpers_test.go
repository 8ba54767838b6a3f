package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sakif/opsdash/internal/auth"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/profilesync"
	"github.com/sakif/opsdash/internal/repository/sqlite"
	"github.com/sakif/opsdash/internal/service"
	"github.com/sakif/opsdash/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

var fixedNow = time.UnixMilli(1_700_000_000_000)

// stack is the real service graph on an in-memory database, the same
// wiring the server uses minus HTTP routing.
type stack struct {
	store    *sqlite.DB
	auth     *service.AuthService
	objects  *storage.Disk
	registry *profilesync.Registry
}

func newStack(t *testing.T) *stack {
	t.Helper()
	logger := testLogger()

	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	tokens, err := auth.NewTokenService("handler-test-secret-0123456789", time.Hour)
	require.NoError(t, err)
	authSvc := service.NewAuthService(store, tokens, auth.NewPasswordServiceForTest(bcrypt.MinCost), nil, logger)

	objects, err := storage.NewDisk(t.TempDir(), "http://cdn.test/storage")
	require.NoError(t, err)

	registry := profilesync.NewRegistry(profilesync.Deps{
		Sessions: authSvc,
		Store:    store,
		Objects:  objects,
		Logger:   logger,
	}, profilesync.Options{
		SuccessTTL:     time.Minute,
		AutoSaveDelay:  20 * time.Millisecond,
		MaxAvatarBytes: 1 << 20,
		Now:            func() time.Time { return fixedNow },
	})
	t.Cleanup(registry.Close)

	return &stack{store: store, auth: authSvc, objects: objects, registry: registry}
}

func (s *stack) signUp(t *testing.T, email string) *model.Session {
	t.Helper()
	sess, err := s.auth.SignUp(context.Background(), email, "correct-horse-battery")
	require.NoError(t, err)
	return sess
}

func (s *stack) seedSkill(t *testing.T, name string) model.Skill {
	t.Helper()
	skill := &model.Skill{Name: name, Category: "Language"}
	require.NoError(t, s.store.CreateSkill(context.Background(), skill))
	return *skill
}

// authed attaches the session the way auth.RequireAuth would.
func authed(r *http.Request, sess *model.Session) *http.Request {
	return r.WithContext(auth.WithSession(r.Context(), sess.User.ID, sess.AccessToken))
}

func decode[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(body).Decode(&v))
	return v
}

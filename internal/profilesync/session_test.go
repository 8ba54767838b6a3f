package profilesync

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

// =========================================================================
// MOUNT
// =========================================================================

func TestMount_StoresUser(t *testing.T) {
	h := newHarness(t)
	c := NewController(h.deps, h.opts)
	defer c.Close()

	u, err := c.Mount(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", u.ID)
	assert.Equal(t, "u1", c.UserID())
	assert.Empty(t, c.State().Error)
}

func TestMount_FailureClearsStateAndReportsUnauthorized(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)
	require.NotNil(t, c.State().Profile)

	_, err := c.Mount(context.Background(), "bogus")
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)

	st := c.State()
	assert.Nil(t, st.User)
	assert.Nil(t, st.Profile)
	assert.Empty(t, st.UserSkills)
	assert.Equal(t, "Failed to authenticate. Please try again.", st.Error)
}

func TestSetUser_SwitchingUserClearsProfile(t *testing.T) {
	h := newHarness(t)
	c := h.controller(t)

	needsLoad := c.setUser(&model.User{ID: "u2"})
	assert.True(t, needsLoad)
	assert.Nil(t, c.State().Profile)

	// Same user again keeps what is loaded.
	c2 := h.controller(t)
	assert.False(t, c2.setUser(&model.User{ID: "u1", Email: "new@example.com"}))
	assert.Equal(t, "new@example.com", c2.State().User.Email)
}

// =========================================================================
// REGISTRY
// =========================================================================

func TestRegistry_AcquireLoadsOnceAndReuses(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	ctx := context.Background()

	c1, err := reg.Acquire(ctx, "tok-1", ViewProfile)
	require.NoError(t, err)
	c2, err := reg.Acquire(ctx, "tok-1", ViewProfile)
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, reg.Len())
	assert.Equal(t, 1, h.store.callCount("GetProfile"))
	assert.NotNil(t, c1.State().Profile)
}

func TestRegistry_AcquireRejectsBadToken(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()

	_, err := reg.Acquire(context.Background(), "nope", ViewProfile)
	assert.ErrorIs(t, err, apperror.ErrUnauthorized)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_AcquireStartsOverWhenControllerIsDropped(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	ctx := context.Background()

	first, err := reg.Acquire(ctx, "tok-1", ViewProfile)
	require.NoError(t, err)

	// A sign-out lands after Acquire picked first but before it adopts
	// the user.
	dropped := false
	reg.beforeAdopt = func(userID string) {
		if !dropped {
			dropped = true
			reg.Drop(userID)
		}
	}

	c, err := reg.Acquire(ctx, "tok-1", ViewProfile)
	require.NoError(t, err)
	assert.True(t, dropped)
	assert.NotSame(t, first, c)

	registered, ok := reg.Lookup("u1")
	require.True(t, ok)
	assert.Same(t, registered, c)
	assert.Equal(t, 1, reg.Len())
	assert.NotNil(t, c.State().Profile)
}

func TestRegistry_AcquireGivesUpWhenAlwaysDropped(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	reg.beforeAdopt = reg.Drop

	_, err := reg.Acquire(context.Background(), "tok-1", ViewProfile)
	assert.ErrorIs(t, err, apperror.ErrUnavailable)
	assert.Equal(t, 0, reg.Len())
}

func TestRegistry_EvictIdle(t *testing.T) {
	h := newHarness(t)
	h.sessions.byToken["tok-2"] = model.User{ID: "u2", Email: "sam@example.com"}
	h.store.profiles["u2"] = model.Profile{ID: "u2"}

	now := fixedNow
	h.opts.Now = func() time.Time { return now }
	h.opts.IdleTTL = time.Minute
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	ctx := context.Background()

	c1, err := reg.Acquire(ctx, "tok-1", ViewProfile)
	require.NoError(t, err)
	c2, err := reg.Acquire(ctx, "tok-2", ViewProfile)
	require.NoError(t, err)

	now = now.Add(45 * time.Second)
	_, err = reg.Acquire(ctx, "tok-1", ViewProfile)
	require.NoError(t, err)
	assert.Empty(t, reg.EvictIdle())

	now = now.Add(30 * time.Second)
	assert.Equal(t, []string{"u2"}, reg.EvictIdle())

	assert.Equal(t, 1, reg.Len())
	_, ok := reg.Lookup("u2")
	assert.False(t, ok)
	assert.Nil(t, c2.State().User)
	assert.NotNil(t, c1.State().Profile)
}

// =========================================================================
// WATCHER
// =========================================================================

func startWatcher(t *testing.T, h *harness, reg *Registry) (stop func()) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewWatcher(h.sessions, reg, testLogger()).Run(ctx) }()
	return func() {
		cancel()
		require.NoError(t, <-done)
	}
}

func TestWatcher_SignedOutDropsController(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	c, err := reg.Acquire(context.Background(), "tok-1", ViewProfile)
	require.NoError(t, err)

	stop := startWatcher(t, h, reg)
	defer stop()

	h.sessions.events <- model.AuthEvent{Kind: model.EventSignedOut, UserID: "u1"}

	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
	st := c.State()
	assert.Nil(t, st.User)
	assert.Nil(t, st.Profile)
}

func TestWatcher_UserUpdatedRefreshesIdentity(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	c, err := reg.Acquire(context.Background(), "tok-1", ViewProfile)
	require.NoError(t, err)

	stop := startWatcher(t, h, reg)
	defer stop()

	updated := model.User{ID: "u1", Email: "jane@example.com", AvatarURL: "http://cdn.test/a.png"}
	h.sessions.events <- model.AuthEvent{Kind: model.EventUserUpdated, UserID: "u1", User: &updated}

	require.Eventually(t, func() bool {
		u := c.State().User
		return u != nil && u.AvatarURL == updated.AvatarURL
	}, time.Second, 5*time.Millisecond)
	// Profile was already loaded, so no second fetch.
	assert.Equal(t, 1, h.store.callCount("GetProfile"))
}

func TestWatcher_SignedInLoadsMissingProfile(t *testing.T) {
	h := newHarness(t)
	h.store.setErr("GetProfile", assert.AnError)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	c, err := reg.Acquire(context.Background(), "tok-1", ViewProfile)
	require.NoError(t, err)
	require.Nil(t, c.State().Profile)

	stop := startWatcher(t, h, reg)
	defer stop()

	h.store.setErr("GetProfile", nil)
	u := model.User{ID: "u1"}
	h.sessions.events <- model.AuthEvent{Kind: model.EventSignedIn, UserID: "u1", User: &u}

	require.Eventually(t, func() bool { return c.State().Profile != nil }, time.Second, 5*time.Millisecond)
}

func TestWatcher_NullSessionClearsProfile(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	_, err := reg.Acquire(context.Background(), "tok-1", ViewProfile)
	require.NoError(t, err)

	stop := startWatcher(t, h, reg)
	defer stop()

	h.sessions.events <- model.AuthEvent{Kind: model.EventUserUpdated, UserID: "u1"}
	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatcher_SweepsIdleControllers(t *testing.T) {
	h := newHarness(t)
	h.opts.Now = time.Now
	h.opts.IdleTTL = 20 * time.Millisecond
	h.opts.IdleSweepInterval = 5 * time.Millisecond
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()
	_, err := reg.Acquire(context.Background(), "tok-1", ViewProfile)
	require.NoError(t, err)

	stop := startWatcher(t, h, reg)
	defer stop()

	require.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, 5*time.Millisecond)
}

func TestWatcher_StopsAndUnsubscribes(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()

	stop := startWatcher(t, h, reg)
	stop()
	assert.True(t, h.sessions.isUnsubscribed())
}

func TestWatcher_ReturnsWhenStreamCloses(t *testing.T) {
	h := newHarness(t)
	reg := NewRegistry(h.deps, h.opts)
	defer reg.Close()

	close(h.sessions.events)
	err := NewWatcher(h.sessions, reg, testLogger()).Run(context.Background())
	assert.NoError(t, err)
	assert.True(t, h.sessions.isUnsubscribed())
}

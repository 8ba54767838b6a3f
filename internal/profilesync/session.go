package profilesync

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

const msgAuthFailed = "Failed to authenticate. Please try again."

// Mount asks the provider for the session behind accessToken and adopts its
// user. There is no retry: a failure clears the view, records a generic
// message and returns ErrUnauthorized so the caller can send the client to
// the login view.
func (c *Controller) Mount(ctx context.Context, accessToken string) (*model.User, error) {
	sess, err := c.sessions.GetSession(ctx, accessToken)
	if err != nil {
		c.mu.Lock()
		c.clearLocked()
		c.user = nil
		c.errMsg = msgAuthFailed
		c.mu.Unlock()

		c.logger.Warn("session lookup failed", slog.String("error", err.Error()))
		return nil, apperror.Unauthorized(msgAuthFailed)
	}

	user := sess.User
	c.setUser(&user)
	return &user, nil
}

// setUser stores a new identity and reports whether the profile still
// needs loading. Switching to a different user drops the old user's state.
func (c *Controller) setUser(u *model.User) (needsLoad bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user != nil && c.user.ID != u.ID {
		c.clearLocked()
	}
	cp := *u
	c.user = &cp
	if c.errMsg == msgAuthFailed {
		c.errMsg = ""
	}
	return c.profile == nil
}

// signOut forgets the user and everything loaded for them.
func (c *Controller) signOut() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearLocked()
	c.user = nil
	c.errMsg = ""
}

// Registry holds one controller per signed-in user. Controllers nobody
// acquired for opts.IdleTTL are evicted by EvictIdle, so a sign-out that
// never arrives does not pin a user's state forever.
type Registry struct {
	deps   Deps
	opts   Options
	logger *slog.Logger

	mu          sync.Mutex
	controllers map[string]*mounted

	// beforeAdopt runs between picking a controller and adopting the user.
	// Tests use it to interleave a Drop.
	beforeAdopt func(userID string)
}

type mounted struct {
	c        *Controller
	lastSeen time.Time
}

// acquireAttempts bounds how often Acquire starts over after the controller
// it picked was dropped underneath it.
const acquireAttempts = 3

func NewRegistry(deps Deps, opts Options) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		deps:        deps,
		opts:        opts.withDefaults(),
		logger:      logger,
		controllers: make(map[string]*mounted),
	}
}

// Acquire mounts the session behind accessToken and returns that user's
// controller. A controller without a loaded profile is loaded for view
// before it is returned. The returned controller is registered: if a Drop
// closes the one Acquire picked, Acquire starts over with a fresh one.
func (r *Registry) Acquire(ctx context.Context, accessToken, view string) (*Controller, error) {
	fresh := NewController(r.deps, r.opts)
	user, err := fresh.Mount(ctx, accessToken)
	if err != nil {
		fresh.Close()
		return nil, err
	}

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		if fresh == nil {
			fresh = NewController(r.deps, r.opts)
		}
		c := r.pick(user.ID, fresh)
		if c == fresh {
			fresh = nil
		}

		if r.beforeAdopt != nil {
			r.beforeAdopt(user.ID)
		}
		if c.setUser(user) {
			if _, err := c.Load(ctx, view); err != nil {
				if fresh != nil {
					fresh.Close()
				}
				return nil, err
			}
		}
		if r.holds(user.ID, c) {
			if fresh != nil {
				fresh.Close()
			}
			return c, nil
		}
		r.logger.Debug("controller dropped during acquire, retrying", slog.String("userID", user.ID))
	}
	if fresh != nil {
		fresh.Close()
	}
	return nil, apperror.Unavailable("Session ended while loading. Please try again.")
}

// pick returns the registered controller for userID, registering fresh if
// there is none, and marks it as just used.
func (r *Registry) pick(userID string, fresh *Controller) *Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.controllers[userID]
	if !ok {
		m = &mounted{c: fresh}
		r.controllers[userID] = m
	}
	m.lastSeen = r.opts.Now()
	return m.c
}

// holds reports whether c is still the registered controller of userID.
func (r *Registry) holds(userID string, c *Controller) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.controllers[userID]
	return ok && m.c == c
}

// Lookup returns the controller of a user that is already mounted.
func (r *Registry) Lookup(userID string) (*Controller, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.controllers[userID]
	if !ok {
		return nil, false
	}
	return m.c, true
}

// Drop clears and closes the user's controller, if any.
func (r *Registry) Drop(userID string) {
	r.mu.Lock()
	m, ok := r.controllers[userID]
	delete(r.controllers, userID)
	r.mu.Unlock()
	if ok {
		m.c.signOut()
		m.c.Close()
	}
}

// EvictIdle drops every controller not acquired within opts.IdleTTL and
// returns the evicted user IDs.
func (r *Registry) EvictIdle() []string {
	cutoff := r.opts.Now().Add(-r.opts.IdleTTL)

	r.mu.Lock()
	var idle []*Controller
	var ids []string
	for id, m := range r.controllers {
		if m.lastSeen.Before(cutoff) {
			idle = append(idle, m.c)
			ids = append(ids, id)
			delete(r.controllers, id)
		}
	}
	r.mu.Unlock()

	for i, c := range idle {
		c.signOut()
		c.Close()
		r.logger.Info("evicted idle controller", slog.String("userID", ids[i]))
	}
	return ids
}

// Len is the number of mounted users.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.controllers)
}

// Close closes every controller.
func (r *Registry) Close() {
	r.mu.Lock()
	ms := r.controllers
	r.controllers = make(map[string]*mounted)
	r.mu.Unlock()
	for _, m := range ms {
		m.c.Close()
	}
}

// userChanged adopts a new identity for a mounted user and loads the
// profile if none is loaded yet. Users without a controller are ignored.
func (r *Registry) userChanged(ctx context.Context, u model.User) {
	c, ok := r.Lookup(u.ID)
	if !ok {
		return
	}
	if c.setUser(&u) {
		if _, err := c.Load(ctx, ViewProfile); err != nil {
			r.logger.Warn("reload after auth change failed",
				slog.String("userID", u.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Watcher routes the provider's auth-change stream to the registry.
type Watcher struct {
	sessions SessionProvider
	registry *Registry
	logger   *slog.Logger
}

func NewWatcher(sessions SessionProvider, registry *Registry, logger *slog.Logger) *Watcher {
	return &Watcher{sessions: sessions, registry: registry, logger: logger}
}

// Run consumes events until ctx is cancelled or the provider closes the
// stream. Between events it evicts idle controllers every
// IdleSweepInterval. It unsubscribes before returning.
func (w *Watcher) Run(ctx context.Context) error {
	events, unsubscribe := w.sessions.OnAuthStateChange()
	defer unsubscribe()

	sweep := time.NewTicker(w.registry.opts.IdleSweepInterval)
	defer sweep.Stop()

	w.logger.Info("auth watcher started")
	for {
		select {
		case <-sweep.C:
			w.registry.EvictIdle()
		case <-ctx.Done():
			w.logger.Info("auth watcher stopped")
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			w.handle(ctx, ev)
		}
	}
}

func (w *Watcher) handle(ctx context.Context, ev model.AuthEvent) {
	w.logger.Debug("auth event", slog.String("kind", string(ev.Kind)), slog.String("userID", ev.UserID))

	switch ev.Kind {
	case model.EventSignedOut:
		w.registry.Drop(ev.UserID)
	case model.EventSignedIn, model.EventUserUpdated:
		// A change that carries no user means the session is gone.
		if ev.User == nil {
			w.registry.Drop(ev.UserID)
			return
		}
		w.registry.userChanged(ctx, *ev.User)
	default:
		w.logger.Warn("unknown auth event", slog.String("kind", string(ev.Kind)))
	}
}

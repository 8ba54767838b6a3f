// Package profilesync keeps the per-user view state the dashboard renders
// in step with the identity provider, the relational store and the object
// store.
//
// It has three parts:
//
//	Watcher / Mount   (session.go)  → who is signed in, clear state on sign-out
//	Load              (loader.go)   → profile, user skills, teams, skill catalog
//	Toggle/Save/...   (gateway.go)  → optimistic edits with rollback
//
// A Controller holds the state of one user. Callers never read its fields
// directly; they take a State snapshot, which is a deep copy.
package profilesync

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/repository"
	"github.com/sakif/opsdash/internal/storage"
)

// SessionProvider is the identity side. *service.AuthService implements it.
type SessionProvider interface {
	GetSession(ctx context.Context, accessToken string) (*model.Session, error)
	UpdateUser(ctx context.Context, userID string, attrs model.UserAttributes) (*model.User, error)
	OnAuthStateChange() (<-chan model.AuthEvent, func())
}

// Store is the part of the relational store the controller reads and writes.
type Store interface {
	repository.ProfileRepository
	repository.SkillRepository
	repository.UserSkillRepository
	repository.TeamRepository
}

// ChangeNotifier hears about every accepted profile change. The search
// outbox implements it.
type ChangeNotifier interface {
	ProfileChanged(ctx context.Context, userID string) error
}

// Deps are the collaborators shared by every controller. Notifier may be nil.
type Deps struct {
	Sessions SessionProvider
	Store    Store
	Objects  storage.ObjectStore
	Notifier ChangeNotifier
	Logger   *slog.Logger
}

// Options tune timers and limits. Zero values take the defaults.
type Options struct {
	// SuccessTTL is how long a success message stays visible.
	SuccessTTL time.Duration
	// DuplicateTTL is used for the "already added" notice.
	DuplicateTTL time.Duration
	// AutoSaveDelay is the debounce window of ScheduleAutoSave.
	AutoSaveDelay time.Duration
	// AutoSaveTimeout bounds the save the debounce timer runs.
	AutoSaveTimeout time.Duration
	MaxAvatarBytes  int64
	// IdleTTL is how long a registry keeps a controller nobody acquired.
	IdleTTL time.Duration
	// IdleSweepInterval is how often the watcher looks for idle controllers.
	IdleSweepInterval time.Duration
	Now               func() time.Time
}

const (
	DefaultSuccessTTL      = 3 * time.Second
	DefaultDuplicateTTL    = 2 * time.Second
	DefaultAutoSaveDelay   = 1500 * time.Millisecond
	DefaultAutoSaveTimeout = 15 * time.Second
	DefaultMaxAvatarBytes  = 5 << 20
	DefaultIdleTTL         = 30 * time.Minute
	DefaultIdleSweep       = time.Minute
)

func (o Options) withDefaults() Options {
	if o.SuccessTTL <= 0 {
		o.SuccessTTL = DefaultSuccessTTL
	}
	if o.DuplicateTTL <= 0 {
		o.DuplicateTTL = DefaultDuplicateTTL
	}
	if o.AutoSaveDelay <= 0 {
		o.AutoSaveDelay = DefaultAutoSaveDelay
	}
	if o.AutoSaveTimeout <= 0 {
		o.AutoSaveTimeout = DefaultAutoSaveTimeout
	}
	if o.MaxAvatarBytes <= 0 {
		o.MaxAvatarBytes = DefaultMaxAvatarBytes
	}
	if o.IdleTTL <= 0 {
		o.IdleTTL = DefaultIdleTTL
	}
	if o.IdleSweepInterval <= 0 {
		o.IdleSweepInterval = DefaultIdleSweep
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// State is a snapshot of a controller. Empty strings mean "no message".
type State struct {
	User             *model.User         `json:"user"`
	Profile          *model.Profile      `json:"profile"`
	Draft            model.ProfileFields `json:"draft"`
	AllSkills        []model.Skill       `json:"allSkills"`
	UserSkills       []model.Skill       `json:"userSkills"`
	SelectedSkillIDs []string            `json:"selectedSkillIds"`
	Teams            []model.MemberTeam  `json:"teams"`

	Loading         bool `json:"loading"`
	LoadingSkills   bool `json:"loadingSkills"`
	LoadingTeams    bool `json:"loadingTeams"`
	Saving          bool `json:"saving"`
	UploadingAvatar bool `json:"uploadingAvatar"`
	ShowWelcomeCard bool `json:"showWelcomeCard"`

	Error             string `json:"error"`
	TeamsError        string `json:"teamsError"`
	AvatarUploadError string `json:"avatarUploadError"`
	SuccessMessage    string `json:"successMessage"`
}

// Controller owns the view state of one signed-in user. All methods are
// safe for concurrent use. Remote calls run without holding mu; optimistic
// changes and reconciliation happen under it.
type Controller struct {
	sessions SessionProvider
	store    Store
	objects  storage.ObjectStore
	notifier ChangeNotifier
	logger   *slog.Logger
	opts     Options

	loads singleflight.Group

	mu         sync.Mutex
	user       *model.User
	profile    *model.Profile
	draft      model.ProfileFields
	allSkills  []model.Skill
	userSkills []model.Skill
	selected   map[string]bool
	teams      []model.MemberTeam

	loading, loadingSkills, loadingTeams bool
	saving, uploadingAvatar              bool
	showWelcome                          bool

	errMsg, teamsErr, avatarErr, success string

	successSeq    int
	successTimer  *time.Timer
	autoSaveTimer *time.Timer
	autoSaves     sync.WaitGroup
	closed        bool
}

func NewController(deps Deps, opts Options) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		sessions: deps.Sessions,
		store:    deps.Store,
		objects:  deps.Objects,
		notifier: deps.Notifier,
		logger:   logger,
		opts:     opts.withDefaults(),
		selected: make(map[string]bool),
	}
}

// State returns a deep copy of the current view state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := State{
		Draft:             c.draft,
		AllSkills:         append([]model.Skill{}, c.allSkills...),
		UserSkills:        append([]model.Skill{}, c.userSkills...),
		SelectedSkillIDs:  make([]string, 0, len(c.selected)),
		Teams:             append([]model.MemberTeam{}, c.teams...),
		Loading:           c.loading,
		LoadingSkills:     c.loadingSkills,
		LoadingTeams:      c.loadingTeams,
		Saving:            c.saving,
		UploadingAvatar:   c.uploadingAvatar,
		ShowWelcomeCard:   c.showWelcome,
		Error:             c.errMsg,
		TeamsError:        c.teamsErr,
		AvatarUploadError: c.avatarErr,
		SuccessMessage:    c.success,
	}
	if c.user != nil {
		u := *c.user
		s.User = &u
	}
	if c.profile != nil {
		p := *c.profile
		s.Profile = &p
	}
	for id := range c.selected {
		s.SelectedSkillIDs = append(s.SelectedSkillIDs, id)
	}
	sort.Strings(s.SelectedSkillIDs)
	return s
}

// UserID is empty until Mount succeeds.
func (c *Controller) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return ""
	}
	return c.user.ID
}

// Close stops the success and auto-save timers and waits for a running
// auto-save to finish.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTimersLocked()
	c.mu.Unlock()
	c.autoSaves.Wait()
}

func (c *Controller) stopTimersLocked() {
	if c.successTimer != nil {
		c.successTimer.Stop()
		c.successTimer = nil
	}
	if c.autoSaveTimer != nil {
		// A successful Stop means the callback never runs, so it will
		// never call Done itself.
		if c.autoSaveTimer.Stop() {
			c.autoSaves.Done()
		}
		c.autoSaveTimer = nil
	}
}

// setSuccess shows msg for ttl. A newer message replaces an older one and
// the older one's timer no longer clears anything.
func (c *Controller) setSuccess(msg string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.success = msg
	c.successSeq++
	seq := c.successSeq
	if c.successTimer != nil {
		c.successTimer.Stop()
	}
	c.successTimer = time.AfterFunc(ttl, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.successSeq == seq {
			c.success = ""
		}
	})
}

func (c *Controller) setError(msg string) {
	c.mu.Lock()
	c.errMsg = msg
	c.mu.Unlock()
}

// clearLocked drops everything derived from the current user.
func (c *Controller) clearLocked() {
	c.profile = nil
	c.draft = model.ProfileFields{}
	c.userSkills = nil
	c.selected = make(map[string]bool)
	c.teams = nil
	c.showWelcome = false
	c.teamsErr = ""
	c.avatarErr = ""
	c.success = ""
	c.loading, c.loadingSkills, c.loadingTeams = false, false, false
	c.stopTimersLocked()
}

func (c *Controller) notify(ctx context.Context, userID string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.ProfileChanged(ctx, userID); err != nil {
		c.logger.Warn("failed to record profile change",
			slog.String("userID", userID),
			slog.String("error", err.Error()),
		)
	}
}

func sortSkills(skills []model.Skill) {
	sort.SliceStable(skills, func(i, j int) bool {
		a, b := strings.ToLower(skills[i].Name), strings.ToLower(skills[j].Name)
		if a != b {
			return a < b
		}
		return skills[i].ID < skills[j].ID
	})
}

func sortTeams(teams []model.MemberTeam) {
	sort.SliceStable(teams, func(i, j int) bool {
		if teams[i].Name != teams[j].Name {
			return teams[i].Name < teams[j].Name
		}
		return teams[i].ID < teams[j].ID
	})
}

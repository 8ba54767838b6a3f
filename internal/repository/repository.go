// Package repository declares the data-access contracts. Each backend
// (repository/sqlite, repository/postgres) implements all of them on a
// single type, and callers depend only on the interfaces they need.
//
// Errors: missing rows come back as apperror.ErrNotFound and unique
// violations as apperror.ErrConflict, whatever the backend.
package repository

import (
	"context"

	"github.com/sakif/opsdash/internal/model"
)

type UserRepository interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	// UpsertGitHubUser inserts or refreshes the account keyed by GitHubID
	// and fills in user.ID.
	UpsertGitHubUser(ctx context.Context, user *model.User) error
	UpdateUserAvatar(ctx context.Context, id, avatarURL string) error
}

type ProfileRepository interface {
	// CreateProfile inserts an empty profile; ErrConflict if one exists.
	CreateProfile(ctx context.Context, profile *model.Profile) error
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
	UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error
}

type SkillRepository interface {
	ListSkills(ctx context.Context) ([]model.Skill, error)
	CreateSkill(ctx context.Context, skill *model.Skill) error
	// GetSkillByName matches case-insensitively after trimming.
	GetSkillByName(ctx context.Context, name string) (*model.Skill, error)
	DeleteSkill(ctx context.Context, id string) error
}

type UserSkillRepository interface {
	AddUserSkill(ctx context.Context, userID, skillID string) error
	RemoveUserSkill(ctx context.Context, userID, skillID string) error
	// ListUserSkills returns the catalog rows joined through user_skills.
	ListUserSkills(ctx context.Context, userID string) ([]model.Skill, error)
}

type TeamRepository interface {
	CreateTeam(ctx context.Context, team *model.Team) error
	AddTeamMember(ctx context.Context, teamID, userID string, role model.TeamRole) error
	ListUserTeams(ctx context.Context, userID string) ([]model.MemberTeam, error)
}

// TaskRepository scopes every read and write by owner; rows of other
// users look not found.
type TaskRepository interface {
	CreateTask(ctx context.Context, task *model.Task) error
	GetTask(ctx context.Context, userID, id string) (*model.Task, error)
	ListTasks(ctx context.Context, userID string) ([]model.Task, error)
	UpdateTask(ctx context.Context, task *model.Task) error
	DeleteTask(ctx context.Context, userID, id string) error

	CreateScope(ctx context.Context, scope *model.ProjectScope) error
	GetScope(ctx context.Context, userID, id string) (*model.ProjectScope, error)
	ListScopes(ctx context.Context, userID string) ([]model.ProjectScope, error)
}

type OutboxRepository interface {
	Enqueue(ctx context.Context, event *model.OutboxEvent) error
	// FetchPending returns unprocessed events with fewer than
	// model.MaxOutboxAttempts failures, fewest failures first, then oldest.
	FetchPending(ctx context.Context, limit int) ([]model.OutboxEvent, error)
	MarkProcessed(ctx context.Context, ids []int64) error
	// MarkFailed records one more failed attempt for each event.
	MarkFailed(ctx context.Context, ids []int64) error
	// RequeueDead resets the attempts of dead-lettered events and returns
	// how many there were.
	RequeueDead(ctx context.Context) (int64, error)
}

// Store is everything a backend provides.
type Store interface {
	UserRepository
	ProfileRepository
	SkillRepository
	UserSkillRepository
	TeamRepository
	TaskRepository
	OutboxRepository
	Close() error
}

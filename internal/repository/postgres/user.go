package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

func (db *DB) CreateUser(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = uuid.NewString()
	user.Email = strings.TrimSpace(user.Email)
	user.CreatedAt = now
	user.UpdatedAt = now

	row := userRowFrom(user)
	if err := db.gorm.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("postgres: inserting user %s: %w", user.Email, err)
	}
	return nil
}

// UpsertGitHubUser runs lookup and write in one transaction so two
// concurrent callbacks for the same account cannot both insert.
func (db *DB) UpsertGitHubUser(ctx context.Context, user *model.User) error {
	if user.GitHubID == nil {
		return apperror.ValidationFailed("githubId", "github id is required")
	}

	return db.gorm.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing userRow
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("github_id = ?", *user.GitHubID).First(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			now := time.Now().UTC()
			user.ID = uuid.NewString()
			user.CreatedAt = now
			user.UpdatedAt = now
			row := userRowFrom(user)
			if err := tx.Create(&row).Error; err != nil {
				return translate(err, "user", user.Email)
			}
			return nil
		case err != nil:
			return fmt.Errorf("postgres: looking up github user %d: %w", *user.GitHubID, err)
		}

		user.ID = existing.ID
		user.CreatedAt = existing.CreatedAt
		user.PasswordHash = existing.PasswordHash
		user.UpdatedAt = time.Now().UTC()
		err = tx.Model(&userRow{}).Where("id = ?", user.ID).Updates(map[string]any{
			"login":      user.Login,
			"email":      user.Email,
			"avatar_url": user.AvatarURL,
			"updated_at": user.UpdatedAt,
		}).Error
		if err != nil {
			return translate(err, "user", user.Email)
		}
		return nil
	})
}

func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if uuid.Validate(id) != nil {
		// A malformed id would make Postgres reject the uuid cast.
		return nil, apperror.NotFound("user", id)
	}
	var row userRow
	if err := db.gorm.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return row.toModel(), nil
}

func (db *DB) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, apperror.NotFound("user", email)
	}
	var row userRow
	if err := db.gorm.WithContext(ctx).First(&row, "lower(email) = lower(?)", email).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("postgres: getting user by email: %w", err)
	}
	return row.toModel(), nil
}

func (db *DB) UpdateUserAvatar(ctx context.Context, id, avatarURL string) error {
	if uuid.Validate(id) != nil {
		return apperror.NotFound("user", id)
	}
	tx := db.gorm.WithContext(ctx).Model(&userRow{}).Where("id = ?", id).Updates(map[string]any{
		"avatar_url": avatarURL,
		"updated_at": time.Now().UTC(),
	})
	if tx.Error != nil {
		return fmt.Errorf("postgres: updating avatar for user %s: %w", id, tx.Error)
	}
	return requireRows(tx, "user", id)
}

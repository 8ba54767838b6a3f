package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

func (db *DB) CreateProfile(ctx context.Context, p *model.Profile) error {
	if uuid.Validate(p.ID) != nil {
		return apperror.NotFound("user", p.ID)
	}
	p.UpdatedAt = time.Now().UTC()
	row := profileRowFrom(p)
	if err := db.gorm.WithContext(ctx).Create(&row).Error; err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return apperror.Conflict("profile", p.ID)
		case errors.Is(err, gorm.ErrForeignKeyViolated):
			return apperror.NotFound("user", p.ID)
		}
		return fmt.Errorf("postgres: inserting profile %s: %w", p.ID, err)
	}
	return nil
}

func (db *DB) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if uuid.Validate(userID) != nil {
		return nil, apperror.NotFound("profile", userID)
	}
	var row profileRow
	if err := db.gorm.WithContext(ctx).First(&row, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("profile", userID)
		}
		return nil, fmt.Errorf("postgres: getting profile %s: %w", userID, err)
	}
	return row.toModel(), nil
}

// UpdateProfile writes only the columns set in update. gorm skips zero
// values in struct updates, so the map form is required: clearing a field
// to "" must reach the database.
func (db *DB) UpdateProfile(ctx context.Context, userID string, update model.ProfileUpdate) error {
	cols := update.Columns()
	if len(cols) == 0 {
		return nil
	}
	if uuid.Validate(userID) != nil {
		return apperror.NotFound("profile", userID)
	}
	cols["updated_at"] = time.Now().UTC()

	tx := db.gorm.WithContext(ctx).Model(&profileRow{}).Where("id = ?", userID).Updates(cols)
	if tx.Error != nil {
		if errors.Is(tx.Error, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("profile", userID)
		}
		return fmt.Errorf("postgres: updating profile %s: %w", userID, tx.Error)
	}
	return requireRows(tx, "profile", userID)
}

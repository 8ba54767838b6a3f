package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

func (db *DB) ListSkills(ctx context.Context) ([]model.Skill, error) {
	var rows []skillRow
	if err := db.gorm.WithContext(ctx).Order("lower(name), id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("postgres: listing skills: %w", err)
	}
	return toSkills(rows), nil
}

func (db *DB) CreateSkill(ctx context.Context, skill *model.Skill) error {
	skill.ID = xid.New().String()
	skill.Name = strings.TrimSpace(skill.Name)
	skill.CreatedAt = time.Now().UTC()

	row := skillRow{ID: skill.ID, Name: skill.Name, NameNorm: model.NormalizeSkillName(skill.Name), Category: skill.Category, Description: skill.Description, CreatedAt: skill.CreatedAt}
	if err := db.gorm.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("skill", skill.Name)
		}
		return fmt.Errorf("postgres: inserting skill %q: %w", skill.Name, err)
	}
	return nil
}

func (db *DB) GetSkillByName(ctx context.Context, name string) (*model.Skill, error) {
	var row skillRow
	err := db.gorm.WithContext(ctx).First(&row, "name_norm = ?", model.NormalizeSkillName(name)).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.NotFound("skill", name)
		}
		return nil, fmt.Errorf("postgres: getting skill %q: %w", name, err)
	}
	s := row.toModel()
	return &s, nil
}

func (db *DB) DeleteSkill(ctx context.Context, id string) error {
	tx := db.gorm.WithContext(ctx).Delete(&skillRow{}, "id = ?", id)
	if tx.Error != nil {
		return fmt.Errorf("postgres: deleting skill %s: %w", id, tx.Error)
	}
	return requireRows(tx, "skill", id)
}

func (db *DB) AddUserSkill(ctx context.Context, userID, skillID string) error {
	row := userSkillRow{ID: xid.New().String(), UserID: userID, SkillID: skillID, CreatedAt: time.Now().UTC()}
	err := db.gorm.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return apperror.Conflict("user skill", skillID)
		case errors.Is(err, gorm.ErrForeignKeyViolated):
			return apperror.NotFound("skill", skillID)
		}
		return fmt.Errorf("postgres: linking skill %s to user %s: %w", skillID, userID, err)
	}
	return nil
}

func (db *DB) RemoveUserSkill(ctx context.Context, userID, skillID string) error {
	tx := db.gorm.WithContext(ctx).Delete(&userSkillRow{}, "user_id = ? AND skill_id = ?", userID, skillID)
	if tx.Error != nil {
		return fmt.Errorf("postgres: unlinking skill %s from user %s: %w", skillID, userID, tx.Error)
	}
	return requireRows(tx, "user skill", skillID)
}

func (db *DB) ListUserSkills(ctx context.Context, userID string) ([]model.Skill, error) {
	var rows []skillRow
	err := db.gorm.WithContext(ctx).
		Joins("JOIN user_skills us ON us.skill_id = skills.id").
		Where("us.user_id = ?", userID).
		Order("lower(skills.name), skills.id").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: listing skills for user %s: %w", userID, err)
	}
	return toSkills(rows), nil
}

func toSkills(rows []skillRow) []model.Skill {
	skills := make([]model.Skill, len(rows))
	for i, r := range rows {
		skills[i] = r.toModel()
	}
	return skills
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

func (db *DB) ListSkills(ctx context.Context) ([]model.Skill, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT id, name, category, description, created_at
		 FROM skills ORDER BY lower(name), id`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing skills: %w", err)
	}
	defer rows.Close()

	return scanSkills(rows)
}

// CreateSkill inserts a catalog entry. A name that already exists
// (compared by model.NormalizeSkillName) yields ErrConflict.
func (db *DB) CreateSkill(ctx context.Context, skill *model.Skill) error {
	skill.ID = xid.New().String()
	skill.Name = strings.TrimSpace(skill.Name)
	skill.CreatedAt = time.Now().UTC()

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO skills (id, name, name_norm, category, description, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		skill.ID, skill.Name, model.NormalizeSkillName(skill.Name), skill.Category, skill.Description, skill.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("skill", skill.Name)
		}
		return fmt.Errorf("sqlite: inserting skill %q: %w", skill.Name, err)
	}
	return nil
}

func (db *DB) GetSkillByName(ctx context.Context, name string) (*model.Skill, error) {
	var s model.Skill
	err := db.conn.QueryRowContext(ctx,
		`SELECT id, name, category, description, created_at
		 FROM skills WHERE name_norm = ?`, model.NormalizeSkillName(name),
	).Scan(&s.ID, &s.Name, &s.Category, &s.Description, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("skill", name)
		}
		return nil, fmt.Errorf("sqlite: getting skill %q: %w", name, err)
	}
	return &s, nil
}

// DeleteSkill removes a catalog entry; user_skills rows cascade.
func (db *DB) DeleteSkill(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM skills WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting skill %s: %w", id, err)
	}
	return requireOneRow(res, "skill", id)
}

// AddUserSkill links a skill to a user. A second link for the same pair
// is ErrConflict; an unknown skill or user is ErrNotFound.
func (db *DB) AddUserSkill(ctx context.Context, userID, skillID string) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_skills (id, user_id, skill_id, created_at) VALUES (?, ?, ?, ?)`,
		xid.New().String(), userID, skillID, time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user skill", skillID)
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("skill", skillID)
		}
		return fmt.Errorf("sqlite: linking skill %s to user %s: %w", skillID, userID, err)
	}
	return nil
}

func (db *DB) RemoveUserSkill(ctx context.Context, userID, skillID string) error {
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM user_skills WHERE user_id = ? AND skill_id = ?`, userID, skillID)
	if err != nil {
		return fmt.Errorf("sqlite: unlinking skill %s from user %s: %w", skillID, userID, err)
	}
	return requireOneRow(res, "user skill", skillID)
}

func (db *DB) ListUserSkills(ctx context.Context, userID string) ([]model.Skill, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT s.id, s.name, s.category, s.description, s.created_at
		 FROM user_skills us JOIN skills s ON s.id = us.skill_id
		 WHERE us.user_id = ?
		 ORDER BY lower(s.name), s.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing skills for user %s: %w", userID, err)
	}
	defer rows.Close()

	return scanSkills(rows)
}

func scanSkills(rows *sql.Rows) ([]model.Skill, error) {
	skills := []model.Skill{}
	for rows.Next() {
		var s model.Skill
		if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.Description, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("sqlite: scanning skill row: %w", err)
		}
		skills = append(skills, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating skill rows: %w", err)
	}
	return skills, nil
}

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

func (db *DB) CreateTeam(ctx context.Context, team *model.Team) error {
	scheme, err := json.Marshal(team.ColorScheme)
	if err != nil {
		return fmt.Errorf("postgres: encoding color scheme: %w", err)
	}
	team.ID = xid.New().String()
	team.CreatedAt = time.Now().UTC()

	row := teamRow{
		ID:          team.ID,
		Name:        team.Name,
		Slug:        team.Slug,
		IconName:    team.IconName,
		ColorScheme: datatypes.JSON(scheme),
		CreatedAt:   team.CreatedAt,
	}
	if err := db.gorm.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperror.Conflict("team", team.Slug)
		}
		return fmt.Errorf("postgres: inserting team %q: %w", team.Slug, err)
	}
	return nil
}

func (db *DB) AddTeamMember(ctx context.Context, teamID, userID string, role model.TeamRole) error {
	if !role.Valid() {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown team role %q", role))
	}
	row := membershipRow{TeamID: teamID, UserID: userID, Role: string(role), CreatedAt: time.Now().UTC()}
	err := db.gorm.WithContext(ctx).Omit(clause.Associations).Create(&row).Error
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrDuplicatedKey):
			return apperror.Conflict("team membership", teamID)
		case errors.Is(err, gorm.ErrForeignKeyViolated):
			return apperror.NotFound("team", teamID)
		}
		return fmt.Errorf("postgres: adding user %s to team %s: %w", userID, teamID, err)
	}
	return nil
}

// memberTeamRow is the shape of the membership join.
type memberTeamRow struct {
	teamRow
	Role string
}

func (db *DB) ListUserTeams(ctx context.Context, userID string) ([]model.MemberTeam, error) {
	var rows []memberTeamRow
	err := db.gorm.WithContext(ctx).
		Table("user_team_memberships m").
		Select("t.id, t.name, t.slug, t.icon_name, t.color_scheme, t.created_at, m.role").
		Joins("JOIN teams t ON t.id = m.team_id").
		Where("m.user_id = ?", userID).
		Order("t.name, t.id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("postgres: listing teams for user %s: %w", userID, err)
	}

	teams := make([]model.MemberTeam, 0, len(rows))
	for _, r := range rows {
		t, err := r.toModel()
		if err != nil {
			return nil, fmt.Errorf("postgres: decoding color scheme of team %s: %w", r.ID, err)
		}
		teams = append(teams, model.MemberTeam{Team: t, Role: model.TeamRole(r.Role)})
	}
	return teams, nil
}

package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

// CreateTeam inserts a team. The color scheme is stored as a JSON text
// column; slugs are unique.
func (db *DB) CreateTeam(ctx context.Context, team *model.Team) error {
	scheme, err := json.Marshal(team.ColorScheme)
	if err != nil {
		return fmt.Errorf("sqlite: encoding color scheme: %w", err)
	}

	team.ID = xid.New().String()
	team.CreatedAt = time.Now().UTC()

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO teams (id, name, slug, icon_name, color_scheme, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		team.ID, team.Name, team.Slug, team.IconName, string(scheme), team.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("team", team.Slug)
		}
		return fmt.Errorf("sqlite: inserting team %q: %w", team.Slug, err)
	}
	return nil
}

func (db *DB) AddTeamMember(ctx context.Context, teamID, userID string, role model.TeamRole) error {
	if !role.Valid() {
		return apperror.ValidationFailed("role", fmt.Sprintf("unknown team role %q", role))
	}
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO user_team_memberships (team_id, user_id, role, created_at) VALUES (?, ?, ?, ?)`,
		teamID, userID, string(role), time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("team membership", teamID)
		}
		if isForeignKeyViolation(err) {
			return apperror.NotFound("team", teamID)
		}
		return fmt.Errorf("sqlite: adding user %s to team %s: %w", userID, teamID, err)
	}
	return nil
}

func (db *DB) ListUserTeams(ctx context.Context, userID string) ([]model.MemberTeam, error) {
	rows, err := db.conn.QueryContext(ctx,
		`SELECT t.id, t.name, t.slug, t.icon_name, t.color_scheme, t.created_at, m.role
		 FROM user_team_memberships m JOIN teams t ON t.id = m.team_id
		 WHERE m.user_id = ?
		 ORDER BY t.name, t.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing teams for user %s: %w", userID, err)
	}
	defer rows.Close()

	teams := []model.MemberTeam{}
	for rows.Next() {
		var (
			mt     model.MemberTeam
			scheme string
			role   string
		)
		if err := rows.Scan(&mt.ID, &mt.Name, &mt.Slug, &mt.IconName, &scheme, &mt.CreatedAt, &role); err != nil {
			return nil, fmt.Errorf("sqlite: scanning team row: %w", err)
		}
		if err := json.Unmarshal([]byte(scheme), &mt.ColorScheme); err != nil {
			return nil, fmt.Errorf("sqlite: decoding color scheme of team %s: %w", mt.ID, err)
		}
		mt.Role = model.TeamRole(role)
		teams = append(teams, mt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating team rows: %w", err)
	}
	return teams, nil
}

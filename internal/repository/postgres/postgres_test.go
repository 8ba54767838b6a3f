package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
)

// These tests need a live database:
//
//	POSTGRES_DSN="host=localhost user=postgres password=postgres dbname=opsdash_test sslmode=disable" go test ./internal/repository/postgres/
func newTestDB(t *testing.T) *DB {
	t.Helper()
	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_DSN not set")
	}
	db, err := Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func createTestUser(t *testing.T, db *DB) *model.User {
	t.Helper()
	user := &model.User{Email: uuid.NewString() + "@example.com", PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), user))
	require.NoError(t, db.CreateProfile(context.Background(), &model.Profile{ID: user.ID}))
	return user
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Migrate())
}

func TestProfile_UpdateAndConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	a := createTestUser(t, db)
	b := createTestUser(t, db)

	name := "pg_" + a.ID[:8]
	require.NoError(t, db.UpdateProfile(ctx, a.ID, model.ProfileUpdate{Username: &name}))

	p, err := db.GetProfile(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, name, p.Username)

	err = db.UpdateProfile(ctx, b.ID, model.ProfileUpdate{Username: &name})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	_, err = db.GetProfile(ctx, uuid.NewString())
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestSkills_NormalizedNameConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db)

	name := "Skill " + uuid.NewString()[:8]
	skill := &model.Skill{Name: name, Category: model.CustomSkillCategory}
	require.NoError(t, db.CreateSkill(ctx, skill))
	t.Cleanup(func() { db.DeleteSkill(context.Background(), skill.ID) })

	err := db.CreateSkill(ctx, &model.Skill{Name: "  " + name + " "})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	found, err := db.GetSkillByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, skill.ID, found.ID)

	require.NoError(t, db.AddUserSkill(ctx, user.ID, skill.ID))
	assert.ErrorIs(t, db.AddUserSkill(ctx, user.ID, skill.ID), apperror.ErrConflict)
	assert.ErrorIs(t, db.AddUserSkill(ctx, user.ID, "missing"), apperror.ErrNotFound)

	mine, err := db.ListUserSkills(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, skill.ID, mine[0].ID)
}

func TestSkills_NonASCIINameConflict(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	suffix := uuid.NewString()[:8]
	skill := &model.Skill{Name: "Ñode " + suffix}
	require.NoError(t, db.CreateSkill(ctx, skill))
	t.Cleanup(func() { db.DeleteSkill(context.Background(), skill.ID) })

	err := db.CreateSkill(ctx, &model.Skill{Name: "ñODE " + suffix})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	found, err := db.GetSkillByName(ctx, "ñode "+suffix)
	require.NoError(t, err)
	assert.Equal(t, skill.ID, found.ID)
}

func TestTeams_ListWithRole(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db)

	team := &model.Team{Name: "Ops", Slug: "ops-" + user.ID[:8], ColorScheme: model.ColorScheme{BgColor: "bg-x"}}
	require.NoError(t, db.CreateTeam(ctx, team))
	require.NoError(t, db.AddTeamMember(ctx, team.ID, user.ID, model.TeamRoleOwner))

	teams, err := db.ListUserTeams(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, teams, 1)
	assert.Equal(t, model.TeamRoleOwner, teams[0].Role)
	assert.Equal(t, "bg-x", teams[0].ColorScheme.BgColor)
}

package sqlite

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/opsdash/internal/apperror"

	"github.com/sakif/opsdash/internal/model"
)

// newTestDB opens a fresh in-memory database with all migrations applied.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser creates a password account plus its empty profile.
func createTestUser(t *testing.T, db *DB, email string) *model.User {
	t.Helper()
	user := &model.User{Email: email, PasswordHash: "hash"}
	require.NoError(t, db.CreateUser(context.Background(), user))
	require.NoError(t, db.CreateProfile(context.Background(), &model.Profile{ID: user.ID}))
	return user
}

func TestMigrate_IsIdempotent(t *testing.T) {
	db := newTestDB(t)

	// Running the migrations a second time on the same DB must not fail.
	require.NoError(t, db.migrate())
}

func TestMigrate_BackfillsSkillNameNorm(t *testing.T) {
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	t.Cleanup(func() { conn.Close() })

	// Catalog layout from before name_norm existed.
	_, err = conn.Exec(`
		CREATE TABLE skills (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			category    TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX idx_skills_name_norm ON skills(lower(trim(name)));
		INSERT INTO skills (id, name) VALUES ('s1', ' Ñode ');
	`)
	require.NoError(t, err)

	db := &DB{conn: conn}
	require.NoError(t, db.migrate())

	ctx := context.Background()
	found, err := db.GetSkillByName(ctx, "ñode")
	require.NoError(t, err)
	assert.Equal(t, "s1", found.ID)

	err = db.CreateSkill(ctx, &model.Skill{Name: "ñODE"})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

// Package sqlite implements the repository interfaces using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database: it lives inside the binary as a single file.
// No separate server to run, which makes it the default backend for local
// development and single-node deployments. Use ":memory:" in tests.
//
// modernc.org/sqlite is a pure Go translation of the SQLite C code, so no
// C compiler is needed and cross-compilation just works.
//
// DATABASE/SQL OVERVIEW:
//   - sql.DB      : a connection pool (NOT a single connection!)
//   - sql.Row     : a single result row
//   - sql.Rows    : multiple result rows (must be closed!)
package sqlite

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB wraps a sql.DB connection pool and implements every repository
// interface from repository.go.
type DB struct {
	conn *sql.DB
}

// New opens (or creates) the database at dbPath and runs migrations.
//
// dbPath examples:
//   - "data/opsdash.db"  → file-based database (persistent)
//   - ":memory:"         → in-memory database (tests, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// PRAGMAs are per connection and ":memory:" is per connection too.
	// A single pooled connection keeps both consistent; SQLite allows
	// one writer at a time anyway.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets reads proceed while a write is in progress.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite. user_skills, memberships
	// and tasks all depend on them for cascades.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates every table. CREATE ... IF NOT EXISTS keeps it safe to
// run on each start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL DEFAULT '',
			github_id     INTEGER UNIQUE,
			login         TEXT NOT NULL DEFAULT '',
			password_hash TEXT NOT NULL DEFAULT '',
			avatar_url    TEXT NOT NULL DEFAULT '',
			created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users(lower(email)) WHERE email <> '';
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Empty username is the unset value, so uniqueness only applies to
	// non-empty ones.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profiles (
			id                    TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
			username              TEXT NOT NULL DEFAULT '',
			display_name          TEXT NOT NULL DEFAULT '',
			full_name             TEXT NOT NULL DEFAULT '',
			avatar_url            TEXT NOT NULL DEFAULT '',
			bio                   TEXT NOT NULL DEFAULT '',
			website_url           TEXT NOT NULL DEFAULT '',
			twitter_url           TEXT NOT NULL DEFAULT '',
			linkedin_url          TEXT NOT NULL DEFAULT '',
			github_url            TEXT NOT NULL DEFAULT '',
			instagram_url         TEXT NOT NULL DEFAULT '',
			discord_url           TEXT NOT NULL DEFAULT '',
			phone_whatsapp        TEXT NOT NULL DEFAULT '',
			tiktok_url            TEXT NOT NULL DEFAULT '',
			telegram_url          TEXT NOT NULL DEFAULT '',
			facebook_url          TEXT NOT NULL DEFAULT '',
			dollar_handle         TEXT NOT NULL DEFAULT '',
			token_name            TEXT NOT NULL DEFAULT '',
			supply                TEXT NOT NULL DEFAULT '',
			has_seen_welcome_card INTEGER NOT NULL DEFAULT 0,
			updated_at            DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_username ON profiles(username) WHERE username <> '';
	`)
	if err != nil {
		return fmt.Errorf("creating profiles table: %w", err)
	}

	// name_norm holds model.NormalizeSkillName(name). SQLite's lower() only
	// folds ASCII, so the key is computed in Go and the unique index sits on
	// the column instead of an expression.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS skills (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			name_norm   TEXT NOT NULL DEFAULT '',
			category    TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '',
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS user_skills (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			skill_id   TEXT NOT NULL REFERENCES skills(id) ON DELETE CASCADE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (user_id, skill_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating skills tables: %w", err)
	}

	// Catalogs created before name_norm existed used an expression index.
	if err := db.addColumnIfNotExists("skills", "name_norm", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding name_norm to skills: %w", err)
	}
	if err := db.backfillSkillNameNorm(); err != nil {
		return err
	}
	_, err = db.conn.Exec(`
		DROP INDEX IF EXISTS idx_skills_name_norm;
		CREATE UNIQUE INDEX IF NOT EXISTS idx_skills_name_norm_col ON skills(name_norm);
	`)
	if err != nil {
		return fmt.Errorf("indexing skills.name_norm: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS teams (
			id           TEXT PRIMARY KEY,
			name         TEXT NOT NULL,
			slug         TEXT NOT NULL UNIQUE,
			icon_name    TEXT NOT NULL DEFAULT '',
			color_scheme TEXT NOT NULL DEFAULT '{}',
			created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS user_team_memberships (
			team_id    TEXT NOT NULL REFERENCES teams(id) ON DELETE CASCADE,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role       TEXT NOT NULL DEFAULT 'member',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (team_id, user_id)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating teams tables: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS project_scopes (
			id         TEXT PRIMARY KEY,
			user_id    TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			name       TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS tasks (
			id               TEXT PRIMARY KEY,
			user_id          TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			text             TEXT NOT NULL,
			status           TEXT NOT NULL DEFAULT 'TO_DO',
			notes            TEXT NOT NULL DEFAULT '',
			due_date         DATETIME,
			order_val        INTEGER NOT NULL DEFAULT 0,
			created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tasks_user_id ON tasks(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating task tables: %w", err)
	}

	// Scopes arrived after the first task board release.
	if err := db.addColumnIfNotExists("tasks", "project_scope_id",
		"TEXT REFERENCES project_scopes(id) ON DELETE SET NULL"); err != nil {
		return fmt.Errorf("adding project_scope_id to tasks: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS profile_outbox (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			entity_id   TEXT NOT NULL,
			op          TEXT NOT NULL,
			processed   INTEGER NOT NULL DEFAULT 0,
			attempts    INTEGER NOT NULL DEFAULT 0,
			created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating outbox table: %w", err)
	}

	if err := db.addColumnIfNotExists("profile_outbox", "attempts", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return fmt.Errorf("adding attempts to profile_outbox: %w", err)
	}
	_, err = db.conn.Exec(`
		DROP INDEX IF EXISTS idx_profile_outbox_pending;
		CREATE INDEX IF NOT EXISTS idx_profile_outbox_queue ON profile_outbox(processed, attempts, id);
	`)
	if err != nil {
		return fmt.Errorf("indexing outbox queue: %w", err)
	}

	return nil
}

// backfillSkillNameNorm fills name_norm for rows written before the column
// existed.
func (db *DB) backfillSkillNameNorm() error {
	rows, err := db.conn.Query(`SELECT id, name FROM skills WHERE name_norm = ''`)
	if err != nil {
		return fmt.Errorf("reading skills to backfill: %w", err)
	}
	type pending struct{ id, norm string }
	var todo []pending
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			rows.Close()
			return fmt.Errorf("scanning skill to backfill: %w", err)
		}
		todo = append(todo, pending{id: id, norm: model.NormalizeSkillName(name)})
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("reading skills to backfill: %w", err)
	}
	// One pooled connection: the cursor must be released before the updates.
	rows.Close()

	for _, p := range todo {
		if _, err := db.conn.Exec(`UPDATE skills SET name_norm = ? WHERE id = ?`, p.norm, p.id); err != nil {
			return fmt.Errorf("backfilling name_norm for skill %s: %w", p.id, err)
		}
	}
	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
// Makes ALTER TABLE migrations idempotent, safe to run multiple times.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}

// isUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint. Callers turn it into apperror.Conflict.
func isUniqueViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	}
	// Connections without extended result codes only report SQLITE_CONSTRAINT.
	return strings.Contains(se.Error(), "UNIQUE constraint failed")
}

// isForeignKeyViolation reports a reference to a row that does not exist.
func isForeignKeyViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY ||
		strings.Contains(se.Error(), "FOREIGN KEY constraint failed")
}

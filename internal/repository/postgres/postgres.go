// Package postgres implements the repository interfaces on PostgreSQL
// through gorm. It is the multi-node backend; the sqlite one stays the
// default for local runs and tests.
package postgres

import (
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sakif/opsdash/internal/apperror"
	"github.com/sakif/opsdash/internal/model"
	"github.com/sakif/opsdash/internal/repository"
)

var _ repository.Store = (*DB)(nil)

// DB implements repository.Store on a gorm connection.
type DB struct {
	gorm *gorm.DB
}

// Open connects to dsn and migrates the schema.
func Open(dsn string) (*DB, error) {
	g, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		// Driver errors become gorm.ErrDuplicatedKey / gorm.ErrForeignKeyViolated.
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	db := &DB{gorm: g}
	if err := db.Migrate(); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate creates or updates every table. Safe to run on each start.
func (db *DB) Migrate() error {
	err := db.gorm.AutoMigrate(
		&userRow{},
		&profileRow{},
		&skillRow{},
		&userSkillRow{},
		&teamRow{},
		&membershipRow{},
		&scopeRow{},
		&taskRow{},
		&outboxRow{},
	)
	if err != nil {
		return fmt.Errorf("postgres: migrating: %w", err)
	}

	if err := db.backfillSkillNameNorm(); err != nil {
		return err
	}

	// Expression indexes are out of reach for struct tags. The skills index
	// waits for the backfill, so it is created here too.
	stmts := []string{
		`DROP INDEX IF EXISTS idx_skills_name_norm`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_skills_name_norm_col ON skills (name_norm)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email ON users (lower(email)) WHERE email <> ''`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_profiles_username ON profiles (username) WHERE username <> ''`,
		// profiles.id is both primary key and foreign key, which gorm
		// associations cannot describe.
		`DO $$ BEGIN
			IF NOT EXISTS (SELECT 1 FROM pg_constraint WHERE conname = 'fk_profiles_user') THEN
				ALTER TABLE profiles ADD CONSTRAINT fk_profiles_user
					FOREIGN KEY (id) REFERENCES users(id) ON DELETE CASCADE;
			END IF;
		END $$`,
	}
	for _, stmt := range stmts {
		if err := db.gorm.Exec(stmt).Error; err != nil {
			return fmt.Errorf("postgres: creating index: %w", err)
		}
	}
	return nil
}

// backfillSkillNameNorm keys rows written before name_norm existed with the
// same normalization the application uses.
func (db *DB) backfillSkillNameNorm() error {
	var rows []skillRow
	if err := db.gorm.Where("name_norm = ''").Find(&rows).Error; err != nil {
		return fmt.Errorf("postgres: reading skills to backfill: %w", err)
	}
	for _, r := range rows {
		err := db.gorm.Model(&skillRow{}).Where("id = ?", r.ID).
			Update("name_norm", model.NormalizeSkillName(r.Name)).Error
		if err != nil {
			return fmt.Errorf("postgres: backfilling name_norm for skill %s: %w", r.ID, err)
		}
	}
	return nil
}

func (db *DB) Close() error {
	sqlDB, err := db.gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm's translated errors onto apperror kinds.
func translate(err error, resource, id string) error {
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return apperror.NotFound(resource, id)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return apperror.Conflict(resource, id)
	}
	return err
}

// requireRows turns "UPDATE/DELETE matched nothing" into NotFound.
func requireRows(tx *gorm.DB, resource, id string) error {
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return apperror.NotFound(resource, id)
	}
	return nil
}

// Copyright (c) 2025 Justin Cranford
//
//

package orm

import (
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file" // file-based migration source
	"gorm.io/gorm"

	"mpoauthn/internal/domain"
)

// AutoMigrateSQLite runs GORM's schema reconciliation for the CGO-free
// SQLite test backend, where golang-migrate's Postgres driver does not
// apply.
func AutoMigrateSQLite(db *gorm.DB) error {
	err := db.AutoMigrate(&domain.Credential{}, &domain.Key{}, &domain.KeyAuditEvent{})
	if err != nil {
		return fmt.Errorf("failed to auto-migrate sqlite schema: %w", err)
	}

	return nil
}

// ApplyPostgresMigrations runs the versioned migrations under
// migrationsPath against the production Postgres database, per the
// persisted-state layout of §6 (credentials, jwt_signing_keys,
// jwt_key_audit_log, with a unique partial index over ACTIVE status).
func ApplyPostgresMigrations(sqlDB *sql.DB, migrationsPath string) error {
	driver, err := postgres.WithInstance(sqlDB, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create postgres migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+migrationsPath, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to initialize migrator: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

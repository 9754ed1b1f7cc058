// Copyright (c) 2025 Justin Cranford
//
//

package orm

import (
	"database/sql"
	"fmt"
	"testing"

	googleUuid "github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite" // CGO-free SQLite driver
)

// setupTestDB creates a unique in-memory SQLite database per test,
// grounded on the teacher's repository/orm test harness.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dbID, err := googleUuid.NewV7()
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", dbID.String())

	sqlDB, err := sql.Open("sqlite", dsn)
	require.NoError(t, err)

	_, err = sqlDB.Exec("PRAGMA journal_mode=WAL;")
	require.NoError(t, err)

	_, err = sqlDB.Exec("PRAGMA busy_timeout = 30000;")
	require.NoError(t, err)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)

	gormDB, err := db.DB()
	require.NoError(t, err)
	gormDB.SetMaxOpenConns(5)
	gormDB.SetMaxIdleConns(5)

	require.NoError(t, AutoMigrateSQLite(db))

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	return db
}

// Package dbtest opens migrated databases for tests.
package dbtest

import (
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/AlexanderJKochnev/fast-pg-mongo/internal/db"
)

// SQLite returns a migrated SQLite database in a temp dir with foreign keys
// enforced. It is closed when the test ends.
func SQLite(t testing.TB) *sqlx.DB {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "test.db") + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	database, err := db.Init("sqlite", dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, "sqlite"))
	return database
}

// Open connects to driver/dsn and migrates it. Used by integration tests
// against real servers.
func Open(t testing.TB, driver, dsn string) *sqlx.DB {
	t.Helper()

	database, err := db.Init(driver, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	require.NoError(t, db.RunMigrations(database.DB, driver))
	return database
}

// Package dbtest opens migrated SQLite databases for tests.
package dbtest

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/Simplici0/hppengine/internal/db"
	"github.com/Simplici0/hppengine/internal/migrations"
)

// New returns a migrated database in a temporary directory, closed when the
// test ends.
func New(t testing.TB) *sql.DB {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite database: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	if err := migrations.Up(database, zerolog.Nop()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return database
}

package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"nutriplan/internal/database"
)

// NewTestDB creates a migrated SQLite database in a temp directory.
// The database is closed when the test completes.
func NewTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		db.Close()
	})
	return db.SQL
}

// NewTestUoW creates a UnitOfWork backed by the given test database.
func NewTestUoW(db *sql.DB) database.UnitOfWork {
	return database.NewUnitOfWork(db)
}

// Package testutil provides testing utilities for integration tests.
package testutil

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ohathar/sportarr/internal/database"
	"github.com/ohathar/sportarr/internal/database/store"
)

// TestDB wraps a migrated temp-directory test database.
type TestDB struct {
	DB     *database.DB
	Store  *store.Store
	Conn   *sql.DB
	Path   string
	Logger zerolog.Logger
}

// NewTestDB creates a migrated database in a temp directory. The caller
// should defer Close() to clean up.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "sportarr_test")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := database.New(filepath.Join(tmpDir, "test.db"))
	if err != nil {
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to open database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		db.Close()
		os.RemoveAll(tmpDir)
		t.Fatalf("Failed to run migrations: %v", err)
	}

	return &TestDB{
		DB:     db,
		Store:  store.New(db.Conn()),
		Conn:   db.Conn(),
		Path:   tmpDir,
		Logger: zerolog.New(zerolog.NewTestWriter(t)).Level(zerolog.DebugLevel),
	}
}

// Close closes the database and removes the temp directory.
func (tdb *TestDB) Close() {
	if tdb.DB != nil {
		tdb.DB.Close()
	}
	if tdb.Path != "" {
		os.RemoveAll(tdb.Path)
	}
}

// NopLogger returns a no-op logger for tests that don't need output.
func NopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// Int64Ptr returns a pointer to an int64.
func Int64Ptr(i int64) *int64 {
	return &i
}

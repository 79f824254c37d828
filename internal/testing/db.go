// Package testing provides database and fixture helpers for package tests.
package testing

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/midtierhuman/PortVault-sub000/internal/database"
)

// NewTestDB creates a file-backed portvault database in a temporary directory with the
// schema applied. File-backed databases keep WAL semantics and allow concurrent connections,
// which the recalculation and migration transactions rely on.
// The returned cleanup function is idempotent.
func NewTestDB(t *testing.T) (*database.DB, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "portvault_test_*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, "portvault.db"),
		Profile: database.ProfileStandard,
		Name:    "portvault",
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		t.Fatalf("Failed to create test database: %v", err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.RemoveAll(dir)
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database: %v", err)
		}
		if err := os.RemoveAll(dir); err != nil {
			t.Logf("Warning: Failed to remove temporary directory %s: %v", dir, err)
		}
	}
}

// NewMemoryDB opens an in-memory database through the cgo sqlite3 driver with the schema applied.
// The pool is pinned to one connection because every :memory: connection is a separate database,
// so callers must not hold a transaction while issuing queries on the *sql.DB.
func NewMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	db.SetMaxOpenConns(1)

	schema, _ := database.SchemaFor("portvault")
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to apply schema: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

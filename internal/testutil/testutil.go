// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/lherron/importlink/internal/db"
)

// MigratedDB opens a fresh, fully migrated database in a temp dir. It is
// closed when the test ends.
func MigratedDB(t *testing.T) *db.DB {
	t.Helper()
	database := open(t, filepath.Join(t.TempDir(), "test.db"))
	t.Cleanup(func() { database.Close() })
	return database
}

// MigratedDBPath creates a migrated database at dir/test.db and closes it,
// for code under test that opens the database itself.
func MigratedDBPath(t *testing.T, dir string) string {
	t.Helper()
	dbPath := filepath.Join(dir, "test.db")
	if err := open(t, dbPath).Close(); err != nil {
		t.Fatalf("close test database: %v", err)
	}
	return dbPath
}

func open(t *testing.T, dbPath string) *db.DB {
	t.Helper()
	database, err := db.Open(dbPath)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		t.Fatalf("migrate test database: %v", err)
	}
	return database
}

// WriteFile writes content to dir/filename and returns the path.
func WriteFile(t *testing.T, dir, filename, content string) string {
	t.Helper()
	path := filepath.Join(dir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

package db

import (
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const schemaMigrationsDDL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version TEXT PRIMARY KEY,
		checksum TEXT NOT NULL DEFAULT '',
		applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ','now'))
	)`

// Migration is one embedded schema change. Version is the file name, which
// also fixes the apply order.
type Migration struct {
	Version  string
	Checksum string
	SQL      string
}

// Migrations returns the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		// embed.FS paths always use forward slashes
		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)
		out = append(out, Migration{
			Version:  entry.Name(),
			Checksum: hex.EncodeToString(sum[:]),
			SQL:      string(content),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Migrate runs all pending migrations
func (db *DB) Migrate() error {
	_, err := db.MigrateWithInfo()
	return err
}

// MigrateWithInfo applies every pending migration, each in its own
// transaction together with its schema_migrations row, and returns the
// versions it applied.
func (db *DB) MigrateWithInfo() ([]string, error) {
	if db.readOnly {
		return nil, fmt.Errorf("database %s is open read-only", db.path)
	}

	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaMigrationsDDL); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations table: %w", err)
	}
	done, err := db.appliedChecksums()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range migrations {
		if _, ok := done[m.Version]; ok {
			continue
		}
		if err := db.apply(m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Version)
	}
	return applied, nil
}

func (db *DB) apply(m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for %s: %w", m.Version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %s: %w", m.Version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, checksum) VALUES (?, ?)", m.Version, m.Checksum); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s: %w", m.Version, err)
	}
	return nil
}

// appliedChecksums maps each applied version to the checksum recorded when it
// ran. A missing tracking table means nothing was applied.
func (db *DB) appliedChecksums() (map[string]string, error) {
	var tableExists int
	if err := db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&tableExists); err != nil {
		return nil, fmt.Errorf("failed to check for schema_migrations table: %w", err)
	}
	done := map[string]string{}
	if tableExists == 0 {
		return done, nil
	}

	rows, err := db.Query("SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to query schema_migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var version, checksum string
		if err := rows.Scan(&version, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		done[version] = checksum
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}
	return done, nil
}

// MigrationStatus returns lists of applied and pending migrations
func (db *DB) MigrationStatus() (applied []string, pending []string, err error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, nil, err
	}
	done, err := db.appliedChecksums()
	if err != nil {
		return nil, nil, err
	}

	for version := range done {
		applied = append(applied, version)
	}
	sort.Strings(applied)
	for _, m := range migrations {
		if _, ok := done[m.Version]; !ok {
			pending = append(pending, m.Version)
		}
	}
	return applied, pending, nil
}

// ModifiedMigrations returns applied migrations whose embedded SQL no longer
// matches the checksum recorded when they ran.
func (db *DB) ModifiedMigrations() ([]string, error) {
	migrations, err := Migrations()
	if err != nil {
		return nil, err
	}
	done, err := db.appliedChecksums()
	if err != nil {
		return nil, err
	}

	var modified []string
	for _, m := range migrations {
		if recorded, ok := done[m.Version]; ok && recorded != "" && recorded != m.Checksum {
			modified = append(modified, m.Version)
		}
	}
	return modified, nil
}

// RequiresMigrationError returns a descriptive error naming the database
// path and its current schema version when migrations are pending, nil
// otherwise.
func (db *DB) RequiresMigrationError() error {
	applied, pending, err := db.MigrationStatus()
	if err != nil {
		return fmt.Errorf("failed to check migration status: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	currentVersion := "none"
	if len(applied) > 0 {
		currentVersion = applied[len(applied)-1]
	}
	return fmt.Errorf("database at %s (version: %s) requires migration: %d pending migration(s). Run 'importlinkadm migrate' to update",
		db.path, currentVersion, len(pending))
}

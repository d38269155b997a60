// Package db opens the SQLite database backing the reference host and keeps
// its schema current.
package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const defaultBusyTimeout = 5 * time.Second

// DB wraps the SQLite database backing the reference host
type DB struct {
	*sql.DB
	path     string
	readOnly bool
}

// Options tune how a database is opened.
type Options struct {
	// ReadOnly opens an existing file and rejects every write; nothing is
	// created and the journal mode is left alone.
	ReadOnly bool
	// BusyTimeout bounds how long a statement waits on a locked database.
	// Zero means five seconds.
	BusyTimeout time.Duration
}

// Open opens (creating if needed) a read-write database at path.
func Open(path string) (*DB, error) {
	return OpenWith(path, Options{})
}

// OpenWith opens the database at path with opts.
func OpenWith(path string, opts Options) (*DB, error) {
	if opts.ReadOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
	} else if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	handle, err := sql.Open("sqlite3", dsn(path, opts))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sql.Open is lazy; surface a bad path or a locked file here
	if err := handle.Ping(); err != nil {
		handle.Close()
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	return &DB{DB: handle, path: path, readOnly: opts.ReadOnly}, nil
}

// dsn puts every connection-scoped setting in the URI so each pooled
// connection gets it.
func dsn(path string, opts Options) string {
	timeout := opts.BusyTimeout
	if timeout <= 0 {
		timeout = defaultBusyTimeout
	}

	q := url.Values{}
	q.Set("_foreign_keys", "on")
	q.Set("_busy_timeout", strconv.FormatInt(timeout.Milliseconds(), 10))
	if opts.ReadOnly {
		q.Set("_query_only", "true")
	} else {
		q.Set("_journal_mode", "WAL")
		q.Set("_synchronous", "NORMAL")
	}
	return "file:" + (&url.URL{Path: path}).EscapedPath() + "?" + q.Encode()
}

// Path returns the database file path
func (db *DB) Path() string {
	return db.path
}

// ReadOnly reports whether the database was opened without write access.
func (db *DB) ReadOnly() bool {
	return db.readOnly
}

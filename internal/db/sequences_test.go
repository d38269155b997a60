package db

import (
	"path/filepath"
	"reflect"
	"testing"
)

func migrated(t *testing.T) *DB {
	t.Helper()
	database, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open() = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	if err := database.Migrate(); err != nil {
		t.Fatalf("Migrate() = %v", err)
	}
	return database
}

func exec(t *testing.T, database *DB, query string) {
	t.Helper()
	if _, err := database.Exec(query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func recordsSeq(t *testing.T, database *DB) int64 {
	t.Helper()
	var seq int64
	if err := database.QueryRow(`SELECT seq FROM sqlite_sequence WHERE name = 'records'`).Scan(&seq); err != nil {
		t.Fatalf("read sequence: %v", err)
	}
	return seq
}

func TestSequenceDrifts_RestoredBackup(t *testing.T) {
	database := migrated(t)
	exec(t, database, `INSERT INTO records (id, kind, title) VALUES (42, 'event', 'Launch')`)
	exec(t, database, `UPDATE sqlite_sequence SET seq = 3 WHERE name = 'records'`)

	drifts, err := database.SequenceDrifts()
	if err != nil {
		t.Fatalf("SequenceDrifts() = %v", err)
	}
	want := []SequenceDrift{{Table: "records", MaxID: 42, SeqValue: 3}}
	if !reflect.DeepEqual(drifts, want) {
		t.Fatalf("SequenceDrifts() = %+v, want %+v", drifts, want)
	}
	if got := drifts[0].String(); got != "records: sequence 3, max id 42" {
		t.Errorf("String() = %q", got)
	}

	fixed, err := database.FixSequenceDrifts()
	if err != nil {
		t.Fatalf("FixSequenceDrifts() = %v", err)
	}
	if !reflect.DeepEqual(fixed, want) {
		t.Errorf("FixSequenceDrifts() = %+v, want %+v", fixed, want)
	}
	if seq := recordsSeq(t, database); seq != 42 {
		t.Errorf("sequence = %d, want 42", seq)
	}

	drifts, err = database.SequenceDrifts()
	if err != nil || len(drifts) != 0 {
		t.Errorf("after fix: %+v, %v", drifts, err)
	}
}

func TestFixSequenceDrifts_MissingRow(t *testing.T) {
	database := migrated(t)
	exec(t, database, `INSERT INTO records (id, kind) VALUES (7, 'venue')`)
	exec(t, database, `DELETE FROM sqlite_sequence WHERE name = 'records'`)

	if _, err := database.FixSequenceDrifts(); err != nil {
		t.Fatalf("FixSequenceDrifts() = %v", err)
	}
	if seq := recordsSeq(t, database); seq != 7 {
		t.Errorf("sequence = %d, want 7", seq)
	}

	// the next insert must not reuse a taken id
	res, err := database.Exec(`INSERT INTO records (kind) VALUES ('venue')`)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id, _ := res.LastInsertId(); id != 8 {
		t.Errorf("next id = %d, want 8", id)
	}
}

func TestSequenceDrifts_EmptyDatabase(t *testing.T) {
	drifts, err := migrated(t).SequenceDrifts()
	if err != nil || len(drifts) != 0 {
		t.Errorf("SequenceDrifts() = %+v, %v", drifts, err)
	}
}

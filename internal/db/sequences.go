package db

import (
	"database/sql"
	"fmt"
)

// sequencedTables are the AUTOINCREMENT tables of the host schema. Record
// ids end up as identity store values, so sqlite_sequence must never fall
// below the highest id or a new record could take over a deleted one's id.
var sequencedTables = []string{"records", "attributes", "event_log"}

// SequenceDrift is a table whose sqlite_sequence entry lags its max id.
type SequenceDrift struct {
	Table    string
	MaxID    int64
	SeqValue int64
}

func (d SequenceDrift) String() string {
	return fmt.Sprintf("%s: sequence %d, max id %d", d.Table, d.SeqValue, d.MaxID)
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// SequenceDrifts reports every sequenced table whose counter would hand
// out an id that is already taken.
func (db *DB) SequenceDrifts() ([]SequenceDrift, error) {
	return sequenceDrifts(db.DB)
}

// FixSequenceDrifts raises lagging counters to the max id in one
// transaction and returns what it changed.
func (db *DB) FixSequenceDrifts() ([]SequenceDrift, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	drifts, err := sequenceDrifts(tx)
	if err != nil {
		return nil, err
	}
	for _, d := range drifts {
		if err := raiseSequence(tx, d.Table, d.MaxID); err != nil {
			return nil, fmt.Errorf("raise sequence of %s: %w", d.Table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return drifts, nil
}

func sequenceDrifts(q querier) ([]SequenceDrift, error) {
	var drifts []SequenceDrift
	for _, table := range sequencedTables {
		// table names come from sequencedTables, never from input
		query := fmt.Sprintf(`SELECT
			(SELECT COALESCE(MAX(id), 0) FROM %s),
			COALESCE((SELECT seq FROM sqlite_sequence WHERE name = ?), 0)`, table)
		d := SequenceDrift{Table: table}
		if err := q.QueryRow(query, table).Scan(&d.MaxID, &d.SeqValue); err != nil {
			return nil, fmt.Errorf("read sequence of %s: %w", table, err)
		}
		if d.SeqValue < d.MaxID {
			drifts = append(drifts, d)
		}
	}
	return drifts, nil
}

func raiseSequence(q querier, table string, value int64) error {
	res, err := q.Exec(`UPDATE sqlite_sequence SET seq = ? WHERE name = ?`, value, table)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil || n > 0 {
		return err
	}
	_, err = q.Exec(`INSERT INTO sqlite_sequence (name, seq) VALUES (?, ?)`, table, value)
	return err
}

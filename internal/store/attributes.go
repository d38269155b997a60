package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/events"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/id"
)

// AttributeStore handles the multi-valued attribute rows of records.
type AttributeStore struct {
	store *Store
}

func requireRecord(ctx context.Context, tx *sql.Tx, recordID int64) error {
	var exists int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM records WHERE id = ?", recordID).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("record %d: %w", recordID, host.ErrNotFound)
	}
	return err
}

// Values returns every value of key on a record, in insertion order.
func (as *AttributeStore) Values(ctx context.Context, recordID int64, key string) ([]string, error) {
	rows, err := as.store.db.QueryContext(ctx,
		"SELECT value FROM attributes WHERE record_id = ? AND key = ? ORDER BY id",
		recordID, key,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read attribute %s of record %d: %w", key, recordID, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(values) == 0 {
		// Distinguish "no values" from "no record"
		if _, err := as.store.Records.Kind(ctx, recordID); err != nil {
			return nil, err
		}
	}
	return values, nil
}

// Set replaces every value of key with a single value.
func (as *AttributeStore) Set(ctx context.Context, recordID int64, key, value string) error {
	return as.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := requireRecord(ctx, tx, recordID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM attributes WHERE record_id = ? AND key = ?", recordID, key); err != nil {
			return fmt.Errorf("failed to clear attribute %s: %w", key, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO attributes (record_id, key, value) VALUES (?, ?, ?)",
			recordID, key, value,
		); err != nil {
			return fmt.Errorf("failed to set attribute %s: %w", key, err)
		}
		return ew.LogAttributeSet(tx, recordID, key, value)
	})
}

// Add appends a value to key.
func (as *AttributeStore) Add(ctx context.Context, recordID int64, key, value string) error {
	return as.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := requireRecord(ctx, tx, recordID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO attributes (record_id, key, value) VALUES (?, ?, ?)",
			recordID, key, value,
		); err != nil {
			return fmt.Errorf("failed to add attribute %s: %w", key, err)
		}
		return ew.LogAttributeAdded(tx, recordID, key, value)
	})
}

// AddUnique appends key=value only if no record carries that pair yet.
// Identity keys rely on the partial unique index; other keys use a guarded
// insert. Either way the check and the write are one statement.
func (as *AttributeStore) AddUnique(ctx context.Context, recordID int64, key, value string) (bool, error) {
	var inserted bool
	err := as.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := requireRecord(ctx, tx, recordID); err != nil {
			return err
		}

		var res sql.Result
		var err error
		if id.IsExportHashKey(key) {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO attributes (record_id, key, value) VALUES (?, ?, ?)
				ON CONFLICT DO NOTHING
			`, recordID, key, value)
		} else {
			res, err = tx.ExecContext(ctx, `
				INSERT INTO attributes (record_id, key, value)
				SELECT ?, ?, ?
				WHERE NOT EXISTS (SELECT 1 FROM attributes WHERE key = ? AND value = ?)
			`, recordID, key, value, key, value)
		}
		if err != nil {
			return fmt.Errorf("failed to add unique attribute %s: %w", key, err)
		}

		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if n == 0 {
			// Already present; nothing to log
			return nil
		}
		inserted = true
		return ew.LogAttributeAdded(tx, recordID, key, value)
	})
	return inserted, err
}

// Delete removes every value of key from a record.
func (as *AttributeStore) Delete(ctx context.Context, recordID int64, key string) error {
	return as.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		if err := requireRecord(ctx, tx, recordID); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM attributes WHERE record_id = ? AND key = ?", recordID, key)
		if err != nil {
			return fmt.Errorf("failed to delete attribute %s: %w", key, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return nil
		}
		return ew.LogAttributeDeleted(tx, recordID, key, n)
	})
}

// Find returns the lowest record id carrying key=value.
func (as *AttributeStore) Find(ctx context.Context, key, value string) (int64, error) {
	var recordID int64
	err := as.store.db.QueryRowContext(ctx,
		"SELECT record_id FROM attributes WHERE key = ? AND value = ? ORDER BY record_id LIMIT 1",
		key, value,
	).Scan(&recordID)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("%s=%s: %w", key, value, host.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to look up %s: %w", key, err)
	}
	return recordID, nil
}

// List returns every attribute of a record in insertion order.
func (as *AttributeStore) List(ctx context.Context, recordID int64) ([]domain.Attribute, error) {
	if _, err := as.store.Records.Kind(ctx, recordID); err != nil {
		return nil, err
	}

	rows, err := as.store.db.QueryContext(ctx,
		"SELECT id, record_id, key, value FROM attributes WHERE record_id = ? ORDER BY id",
		recordID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list attributes of record %d: %w", recordID, err)
	}
	defer rows.Close()

	var out []domain.Attribute
	for rows.Next() {
		var a domain.Attribute
		if err := rows.Scan(&a.ID, &a.RecordID, &a.Key, &a.Value); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/events"
	"github.com/lherron/importlink/internal/host"
)

// RecordStore handles record row persistence operations.
type RecordStore struct {
	store *Store
}

// RecordCreateParams contains parameters for creating a new record.
type RecordCreateParams struct {
	Kind   string
	Title  string
	Slug   string
	Status string // defaults to "publish"
	Fields domain.Fields
}

// RecordCreateResult contains the result of record creation.
type RecordCreateResult struct {
	ID         int64
	Attributes int
}

// Create creates a record, stores its "_"-prefixed fields as attributes and
// logs a record.created event.
func (rs *RecordStore) Create(ctx context.Context, params RecordCreateParams) (*RecordCreateResult, error) {
	status := params.Status
	if status == "" {
		status = "publish"
	}

	var result *RecordCreateResult
	err := rs.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO records (kind, title, slug, status)
			VALUES (?, ?, ?, ?)
		`, params.Kind, params.Title, params.Slug, status)
		if err != nil {
			return fmt.Errorf("failed to create record: %w", err)
		}

		recordID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert ID: %w", err)
		}

		count := 0
		for _, name := range params.Fields.Names() {
			if !strings.HasPrefix(name, "_") {
				continue
			}
			values := params.Fields[name]
			if len(values) == 0 {
				values = []string{""}
			}
			for _, v := range values {
				if _, err := tx.ExecContext(ctx,
					"INSERT INTO attributes (record_id, key, value) VALUES (?, ?, ?)",
					recordID, name, v,
				); err != nil {
					return fmt.Errorf("failed to store attribute %s: %w", name, err)
				}
				count++
			}
		}

		if err := ew.LogRecordCreated(tx, recordID, params.Kind, params.Title); err != nil {
			return err
		}

		result = &RecordCreateResult{ID: recordID, Attributes: count}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Get returns the stored record row.
func (rs *RecordStore) Get(ctx context.Context, id int64) (*domain.StoredRecord, error) {
	var rec domain.StoredRecord
	var parentID sql.NullInt64
	var createdAt, updatedAt string
	err := rs.store.db.QueryRowContext(ctx, `
		SELECT id, kind, title, slug, status, parent_id, comment_status, ping_status, created_at, updated_at
		FROM records WHERE id = ?
	`, id).Scan(&rec.ID, &rec.Kind, &rec.Title, &rec.Slug, &rec.Status, &parentID,
		&rec.CommentStatus, &rec.PingStatus, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %d: %w", id, host.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %d: %w", id, err)
	}
	if parentID.Valid {
		rec.ParentID = &parentID.Int64
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// Kind returns the stored kind of a record.
func (rs *RecordStore) Kind(ctx context.Context, id int64) (string, error) {
	var kind string
	err := rs.store.db.QueryRowContext(ctx, "SELECT kind FROM records WHERE id = ?", id).Scan(&kind)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("record %d: %w", id, host.ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("failed to get kind of record %d: %w", id, err)
	}
	return kind, nil
}

// Delete removes a record. Attributes cascade; children keep existing with
// a NULL parent.
func (rs *RecordStore) Delete(ctx context.Context, id int64) error {
	return rs.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		var kind string
		err := tx.QueryRowContext(ctx, "SELECT kind FROM records WHERE id = ?", id).Scan(&kind)
		if err == sql.ErrNoRows {
			return fmt.Errorf("record %d: %w", id, host.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to get record %d: %w", id, err)
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM records WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete record %d: %w", id, err)
		}
		return ew.LogRecordDeleted(tx, id, kind)
	})
}

// UpdateFields updates specified columns on a record and logs a
// record.updated event.
func (rs *RecordStore) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	keys := make([]string, 0, len(fields))
	for key := range fields {
		if !host.Updatable[key] {
			return fmt.Errorf("field %q cannot be updated", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return rs.store.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		var setClauses []string
		var args []interface{}
		for _, key := range keys {
			setClauses = append(setClauses, fmt.Sprintf("%s = ?", key))
			args = append(args, fields[key])
		}
		setClauses = append(setClauses, "updated_at = strftime('%Y-%m-%dT%H:%M:%SZ','now')")
		args = append(args, id)

		query := fmt.Sprintf("UPDATE records SET %s WHERE id = ?", strings.Join(setClauses, ", "))
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update record %d: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("record %d: %w", id, host.ErrNotFound)
		}

		changes := make(map[string]interface{}, len(fields))
		for k, v := range fields {
			changes[k] = v
		}
		return ew.LogRecordUpdated(tx, id, changes)
	})
}

// List returns record rows, optionally filtered by kind, in id order.
func (rs *RecordStore) List(ctx context.Context, kind string, limit int) ([]domain.StoredRecord, error) {
	query := "SELECT id FROM records"
	var args []interface{}
	if kind != "" {
		query += " WHERE kind = ?"
		args = append(args, kind)
	}
	query += " ORDER BY id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := rs.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]domain.StoredRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := rs.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, nil
}

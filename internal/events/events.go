package events

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lherron/importlink/internal/cursor"
	"github.com/lherron/importlink/internal/domain"
)

// Writer handles writing events to the event log
type Writer struct {
	db    *sql.DB
	runID *string
}

// NewWriter creates a new event writer. Events are tagged with runID when
// it is non-empty.
func NewWriter(db *sql.DB, runID string) *Writer {
	w := &Writer{db: db}
	if runID != "" {
		w.runID = &runID
	}
	return w
}

// LogEvent writes an event to the event log
func (w *Writer) LogEvent(tx *sql.Tx, event *domain.Event) error {
	query := `
		INSERT INTO event_log (run_id, resource_type, resource_id, event_type, payload)
		VALUES (?, ?, ?, ?, ?)
	`

	runID := event.RunID
	if runID == nil {
		runID = w.runID
	}

	executor := w.getExecutor(tx)
	_, err := executor.Exec(query, runID, event.ResourceType, event.ResourceID, event.EventType, event.Payload)
	if err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

func (w *Writer) logRecord(tx *sql.Tx, recordID int64, eventType string, payload map[string]interface{}) error {
	event := &domain.Event{
		ResourceType: "record",
		ResourceID:   &recordID,
		EventType:    eventType,
	}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		s := string(data)
		event.Payload = &s
	}
	return w.LogEvent(tx, event)
}

// LogRecordCreated logs a record creation event
func (w *Writer) LogRecordCreated(tx *sql.Tx, recordID int64, kind, title string) error {
	return w.logRecord(tx, recordID, "record.created", map[string]interface{}{
		"kind":  kind,
		"title": title,
	})
}

// LogRecordUpdated logs a record update event
func (w *Writer) LogRecordUpdated(tx *sql.Tx, recordID int64, changes map[string]interface{}) error {
	return w.logRecord(tx, recordID, "record.updated", changes)
}

// LogRecordDeleted logs a record deletion event
func (w *Writer) LogRecordDeleted(tx *sql.Tx, recordID int64, kind string) error {
	return w.logRecord(tx, recordID, "record.deleted", map[string]interface{}{"kind": kind})
}

// LogAttributeSet logs an attribute replacement
func (w *Writer) LogAttributeSet(tx *sql.Tx, recordID int64, key, value string) error {
	return w.logRecord(tx, recordID, "attribute.set", map[string]interface{}{"key": key, "value": value})
}

// LogAttributeAdded logs an appended attribute value
func (w *Writer) LogAttributeAdded(tx *sql.Tx, recordID int64, key, value string) error {
	return w.logRecord(tx, recordID, "attribute.added", map[string]interface{}{"key": key, "value": value})
}

// LogAttributeDeleted logs removal of every value of an attribute
func (w *Writer) LogAttributeDeleted(tx *sql.Tx, recordID int64, key string, removed int64) error {
	return w.logRecord(tx, recordID, "attribute.deleted", map[string]interface{}{"key": key, "removed": removed})
}

// getExecutor returns the appropriate executor (tx or db)
func (w *Writer) getExecutor(tx *sql.Tx) interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
} {
	if tx != nil {
		return tx
	}
	return w.db
}

// Query filters event log reads
type Query struct {
	RunID      string
	ResourceID int64
	EventType  string
	Since      time.Time
	Limit      int
	After      *cursor.Cursor
}

// List returns events matching q, newest first.
func List(db *sql.DB, q Query) ([]domain.Event, error) {
	var where []string
	var args []interface{}

	if q.RunID != "" {
		where = append(where, "run_id = ?")
		args = append(args, q.RunID)
	}
	if q.ResourceID > 0 {
		where = append(where, "resource_id = ?")
		args = append(args, q.ResourceID)
	}
	if q.EventType != "" {
		// "record" matches record.created, record.updated, ...
		if strings.Contains(q.EventType, ".") {
			where = append(where, "event_type = ?")
			args = append(args, q.EventType)
		} else {
			where = append(where, "event_type LIKE ?")
			args = append(args, q.EventType+".%")
		}
	}
	if !q.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, q.Since.UTC().Format(time.RFC3339))
	}

	if q.After != nil {
		cond, params := q.After.Where()
		where = append(where, cond)
		args = append(args, params...)
	}

	query := "SELECT id, timestamp, run_id, resource_type, resource_id, event_type, payload FROM event_log"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if q.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", q.Limit)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query event log: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var e domain.Event
		var ts string
		var runID, payload sql.NullString
		var resourceID sql.NullInt64
		if err := rows.Scan(&e.ID, &ts, &runID, &e.ResourceType, &resourceID, &e.EventType, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Timestamp, _ = time.Parse(time.RFC3339, ts)
		if runID.Valid {
			e.RunID = &runID.String
		}
		if resourceID.Valid {
			e.ResourceID = &resourceID.Int64
		}
		if payload.Valid {
			e.Payload = &payload.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

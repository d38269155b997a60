// Package store is the SQLite reference host: record rows, a multi-valued
// attribute store and an event log, every mutation logged in the same
// transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lherron/importlink/internal/db"
	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/events"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/slug"
)

// Store is the root store that provides access to the record and attribute stores.
type Store struct {
	db    *db.DB
	runID string

	Records    *RecordStore
	Attributes *AttributeStore
}

var (
	_ host.Host                 = (*Store)(nil)
	_ host.UniqueAttributeAdder = (*Store)(nil)
	_ host.AttributeLister      = (*Store)(nil)
)

// New creates a new Store wrapping the given database connection. Events it
// writes are tagged with runID.
func New(database *db.DB, runID string) *Store {
	s := &Store{db: database, runID: runID}
	s.Records = &RecordStore{store: s}
	s.Attributes = &AttributeStore{store: s}
	return s
}

// DB returns the underlying database connection (for read-only queries).
func (s *Store) DB() *db.DB {
	return s.db
}

// withTx executes fn within a transaction. If fn returns nil, the transaction
// is committed; otherwise it is rolled back.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx, ew *events.Writer) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ew := events.NewWriter(s.db.DB, s.runID)
	if err := fn(tx, ew); err != nil {
		return err
	}

	return tx.Commit()
}

// Create inserts a record and one attribute row per "_"-prefixed field value.
func (s *Store) Create(ctx context.Context, kind domain.Kind, fields domain.Fields) (int64, error) {
	res, err := s.Records.Create(ctx, RecordCreateParams{
		Kind:   string(kind),
		Title:  fields.Get("title"),
		Slug:   slug.FromFields(fields.Get("slug"), fields.Get("title")),
		Status: fields.Get("status"),
		Fields: fields,
	})
	if err != nil {
		return 0, err
	}
	return res.ID, nil
}

func (s *Store) Kind(ctx context.Context, id int64) (string, error) {
	return s.Records.Kind(ctx, id)
}

func (s *Store) Delete(ctx context.Context, id int64) error {
	return s.Records.Delete(ctx, id)
}

func (s *Store) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	return s.Records.UpdateFields(ctx, id, fields)
}

func (s *Store) Attribute(ctx context.Context, id int64, key string) ([]string, error) {
	return s.Attributes.Values(ctx, id, key)
}

func (s *Store) SetAttribute(ctx context.Context, id int64, key, value string) error {
	return s.Attributes.Set(ctx, id, key, value)
}

func (s *Store) AddAttribute(ctx context.Context, id int64, key, value string) error {
	return s.Attributes.Add(ctx, id, key, value)
}

func (s *Store) AddUniqueAttribute(ctx context.Context, id int64, key, value string) (bool, error) {
	return s.Attributes.AddUnique(ctx, id, key, value)
}

func (s *Store) DeleteAttribute(ctx context.Context, id int64, key string) error {
	return s.Attributes.Delete(ctx, id, key)
}

func (s *Store) FindByAttribute(ctx context.Context, key, value string) (int64, error) {
	return s.Attributes.Find(ctx, key, value)
}

func (s *Store) ListAttributes(ctx context.Context, id int64) ([]domain.Attribute, error) {
	return s.Attributes.List(ctx, id)
}

package host

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/slug"
)

// AttributeLister is implemented by hosts that can enumerate every attribute
// of a record in insertion order.
type AttributeLister interface {
	ListAttributes(ctx context.Context, id int64) ([]domain.Attribute, error)
}

type memRecord struct {
	stored domain.StoredRecord
	attrs  []domain.Attribute
}

// Memory is an in-process Host. It is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	nextID   int64
	nextAttr int64
	records  map[int64]*memRecord
	coerce   map[domain.Kind]string
}

// MemoryOption configures a Memory host.
type MemoryOption func(*Memory)

// WithStartID makes the first created record receive id start.
func WithStartID(start int64) MemoryOption {
	return func(m *Memory) {
		m.nextID = start
	}
}

// WithCoercion stores records declared as kind under actual instead,
// reproducing hosts whose creation pipeline rewrites the kind.
func WithCoercion(kind domain.Kind, actual string) MemoryOption {
	return func(m *Memory) {
		m.coerce[kind] = actual
	}
}

// NewMemory creates an empty in-memory host.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		nextID:   1,
		nextAttr: 1,
		records:  make(map[int64]*memRecord),
		coerce:   make(map[domain.Kind]string),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create stores a record. Fields prefixed with "_" become attributes; title
// and status populate the record row.
func (m *Memory) Create(ctx context.Context, kind domain.Kind, fields domain.Fields) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := string(kind)
	if actual, ok := m.coerce[kind]; ok {
		stored = actual
	}

	newID := m.nextID
	m.nextID++

	status := fields.Get("status")
	if status == "" {
		status = "publish"
	}

	rec := &memRecord{stored: domain.StoredRecord{
		ID:            newID,
		Kind:          stored,
		Title:         fields.Get("title"),
		Slug:          slug.FromFields(fields.Get("slug"), fields.Get("title")),
		Status:        status,
		CommentStatus: "open",
		PingStatus:    "open",
	}}
	for _, name := range fields.Names() {
		if !strings.HasPrefix(name, "_") {
			continue
		}
		values := fields[name]
		if len(values) == 0 {
			values = []string{""}
		}
		for _, v := range values {
			rec.attrs = append(rec.attrs, m.attr(newID, name, v))
		}
	}
	m.records[newID] = rec
	return newID, nil
}

func (m *Memory) attr(id int64, key, value string) domain.Attribute {
	a := domain.Attribute{ID: m.nextAttr, RecordID: id, Key: key, Value: value}
	m.nextAttr++
	return a
}

func (m *Memory) get(id int64) (*memRecord, error) {
	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return rec, nil
}

// Kind returns the stored kind of a record.
func (m *Memory) Kind(ctx context.Context, id int64) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.get(id)
	if err != nil {
		return "", err
	}
	return rec.stored.Kind, nil
}

func (m *Memory) Attribute(ctx context.Context, id int64, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.get(id)
	if err != nil {
		return nil, err
	}
	var values []string
	for _, a := range rec.attrs {
		if a.Key == key {
			values = append(values, a.Value)
		}
	}
	return values, nil
}

func (m *Memory) SetAttribute(ctx context.Context, id int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.get(id)
	if err != nil {
		return err
	}
	rec.attrs = removeKey(rec.attrs, key)
	rec.attrs = append(rec.attrs, m.attr(id, key, value))
	return nil
}

func (m *Memory) AddAttribute(ctx context.Context, id int64, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.get(id)
	if err != nil {
		return err
	}
	rec.attrs = append(rec.attrs, m.attr(id, key, value))
	return nil
}

// AddUniqueAttribute appends key=value unless some record already carries
// that exact pair.
func (m *Memory) AddUniqueAttribute(ctx context.Context, id int64, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.get(id)
	if err != nil {
		return false, err
	}
	if _, ok := m.find(key, value); ok {
		return false, nil
	}
	rec.attrs = append(rec.attrs, m.attr(id, key, value))
	return true, nil
}

func (m *Memory) DeleteAttribute(ctx context.Context, id int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.get(id)
	if err != nil {
		return err
	}
	rec.attrs = removeKey(rec.attrs, key)
	return nil
}

func (m *Memory) Delete(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.get(id); err != nil {
		return err
	}
	delete(m.records, id)
	return nil
}

// UpdateFields sets record columns. Unknown columns are rejected.
func (m *Memory) UpdateFields(ctx context.Context, id int64, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.get(id)
	if err != nil {
		return err
	}
	for k := range fields {
		if !Updatable[k] {
			return fmt.Errorf("field %q cannot be updated", k)
		}
	}
	for k, v := range fields {
		switch k {
		case "parent_id":
			parent, err := toInt64(v)
			if err != nil {
				return fmt.Errorf("parent_id: %w", err)
			}
			rec.stored.ParentID = &parent
		case "title":
			rec.stored.Title = fmt.Sprint(v)
		case "slug":
			rec.stored.Slug = fmt.Sprint(v)
		case "status":
			rec.stored.Status = fmt.Sprint(v)
		case "comment_status":
			rec.stored.CommentStatus = fmt.Sprint(v)
		case "ping_status":
			rec.stored.PingStatus = fmt.Sprint(v)
		}
	}
	return nil
}

func (m *Memory) FindByAttribute(ctx context.Context, key, value string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.find(key, value)
	if !ok {
		return 0, fmt.Errorf("%s=%s: %w", key, value, ErrNotFound)
	}
	return id, nil
}

// find returns the lowest record id carrying key=value.
func (m *Memory) find(key, value string) (int64, bool) {
	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		for _, a := range m.records[id].attrs {
			if a.Key == key && a.Value == value {
				return id, true
			}
		}
	}
	return 0, false
}

// Get returns a copy of the stored record row.
func (m *Memory) Get(id int64) (domain.StoredRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return domain.StoredRecord{}, false
	}
	return rec.stored, true
}

// ListAttributes returns a copy of every attribute of a record.
func (m *Memory) ListAttributes(ctx context.Context, id int64) ([]domain.Attribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, err := m.get(id)
	if err != nil {
		return nil, err
	}
	out := make([]domain.Attribute, len(rec.attrs))
	copy(out, rec.attrs)
	return out, nil
}

// Len returns the number of live records.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func removeKey(attrs []domain.Attribute, key string) []domain.Attribute {
	out := attrs[:0]
	for _, a := range attrs {
		if a.Key != key {
			out = append(out, a)
		}
	}
	return out
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("unsupported value %v", v)
	}
}

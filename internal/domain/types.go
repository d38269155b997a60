package domain

import (
	"fmt"
	"time"
)

// Kind is the category tag of an imported record (event, ticket, order, ...)
type Kind string

const (
	KindVenue        Kind = "venue"
	KindOrganizer    Kind = "organizer"
	KindEvent        Kind = "event"
	KindRSVPTicket   Kind = "rsvp_ticket"
	KindRSVPAttendee Kind = "rsvp_attendee"
	KindTicket       Kind = "ticket"
	KindOrder        Kind = "order"
	KindAttendee     Kind = "attendee"
)

// Cardinality is how many targets a relation field may carry
type Cardinality string

const (
	CardinalitySingle   Cardinality = "single"
	CardinalityMultiple Cardinality = "multiple"
)

// Status is the lifecycle state of a record within one import run
type Status string

const (
	StatusPending           Status = "pending"
	StatusAdmitted          Status = "admitted"
	StatusRejected          Status = "rejected"
	StatusCreated           Status = "created"
	StatusKindVerified      Status = "kind-verified"
	StatusDeleted           Status = "deleted"
	StatusRelinked          Status = "relinked"
	StatusPartiallyRelinked Status = "partially-relinked"
)

// transitions lists the forward moves allowed from each status.
// Terminal states have no entry.
var transitions = map[Status][]Status{
	StatusPending:      {StatusAdmitted, StatusRejected},
	StatusAdmitted:     {StatusCreated},
	StatusCreated:      {StatusKindVerified, StatusDeleted},
	StatusKindVerified: {StatusRelinked, StatusPartiallyRelinked, StatusDeleted},
	// A deferred pass may finish what the first pass left unresolved.
	StatusPartiallyRelinked: {StatusRelinked},
}

// CanTransition reports whether a record may move from s to next.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

// Record is a unit being imported. Records are transient per-run state.
type Record struct {
	Kind     Kind   `json:"kind"`
	OriginID string `json:"origin_id"`
	NewID    int64  `json:"new_id,omitempty"`
	Title    string `json:"title,omitempty"`
	Fields   Fields `json:"fields"`
	Status   Status `json:"status"`
}

// NewRecord builds a pending record, reading the origin id from the "id"
// field and the title from "title".
func NewRecord(kind Kind, fields Fields) *Record {
	if fields == nil {
		fields = Fields{}
	}
	return &Record{
		Kind:     kind,
		OriginID: fields.Get("id"),
		Title:    fields.Get("title"),
		Fields:   fields,
		Status:   StatusPending,
	}
}

// Advance moves the record to next, refusing backward or skipped moves.
func (r *Record) Advance(next Status) error {
	if !r.Status.CanTransition(next) {
		return fmt.Errorf("invalid status transition for %s %q: %s -> %s", r.Kind, r.OriginID, r.Status, next)
	}
	r.Status = next
	return nil
}

// Label returns a short human-readable reference for log lines.
func (r *Record) Label() string {
	if r.Title != "" {
		return fmt.Sprintf("%s %q (origin %s)", r.Kind, r.Title, r.OriginID)
	}
	return fmt.Sprintf("%s (origin %s)", r.Kind, r.OriginID)
}

// StoredRecord is a record as persisted by a host implementation
type StoredRecord struct {
	ID            int64     `json:"id" db:"id"`
	Kind          string    `json:"kind" db:"kind"`
	Title         string    `json:"title" db:"title"`
	Slug          string    `json:"slug" db:"slug"`
	Status        string    `json:"status" db:"status"`
	ParentID      *int64    `json:"parent_id,omitempty" db:"parent_id"`
	CommentStatus string    `json:"comment_status" db:"comment_status"`
	PingStatus    string    `json:"ping_status" db:"ping_status"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// Attribute is one key/value row of the generic attribute store
type Attribute struct {
	ID       int64  `json:"id" db:"id"`
	RecordID int64  `json:"record_id" db:"record_id"`
	Key      string `json:"key" db:"key"`
	Value    string `json:"value" db:"value"`
}

// Event represents an event in the event log
type Event struct {
	ID           int64     `json:"id" db:"id"`
	Timestamp    time.Time `json:"timestamp" db:"timestamp"`
	RunID        *string   `json:"run_id,omitempty" db:"run_id"`
	ResourceType string    `json:"resource_type" db:"resource_type"`
	ResourceID   *int64    `json:"resource_id,omitempty" db:"resource_id"`
	EventType    string    `json:"event_type" db:"event_type"`
	Payload      *string   `json:"payload,omitempty" db:"payload"` // JSON
}

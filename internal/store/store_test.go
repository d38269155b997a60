package store

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/lherron/importlink/internal/cursor"
	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/events"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/testutil"
)

func orderFields() domain.Fields {
	return domain.NewFields(map[string][]string{
		"id":                 {"9"},
		"title":              {"Order #9"},
		"status":             {"tec-tc-completed"},
		"_tickets_in_order":  {"14", "15"},
		"_order_total_value": {"40"},
		"_refund_reason":     {},
	})
}

func mustCreate(t *testing.T, s *Store, kind domain.Kind, fields domain.Fields) int64 {
	t.Helper()
	newID, err := s.Create(context.Background(), kind, fields)
	if err != nil {
		t.Fatalf("create %s: %v", kind, err)
	}
	return newID
}

func wantValues(t *testing.T, s *Store, recordID int64, key string, want []string) {
	t.Helper()
	values, err := s.Attribute(context.Background(), recordID, key)
	if err != nil {
		t.Fatalf("Attribute(%d, %s) = %v", recordID, key, err)
	}
	if len(values) == 0 && len(want) == 0 {
		return
	}
	if !reflect.DeepEqual(values, want) {
		t.Errorf("%s = %q, want %q", key, values, want)
	}
}

func TestStore_Create(t *testing.T) {
	ctx := context.Background()
	s := New(testutil.MigratedDB(t), "run-1")

	newID := mustCreate(t, s, domain.KindOrder, orderFields())
	if newID <= 0 {
		t.Fatalf("new id = %d", newID)
	}

	kind, err := s.Kind(ctx, newID)
	if err != nil || kind != "order" {
		t.Errorf("Kind() = %q, %v", kind, err)
	}

	rec, err := s.Records.Get(ctx, newID)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if rec.Title != "Order #9" || rec.Slug != "order-9" || rec.Status != "tec-tc-completed" {
		t.Errorf("record = %+v", rec)
	}
	if rec.CommentStatus != "open" {
		t.Errorf("CommentStatus = %q, want open", rec.CommentStatus)
	}
	if rec.ParentID != nil {
		t.Errorf("ParentID = %d, want nil", *rec.ParentID)
	}
	if rec.CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	wantValues(t, s, newID, "_tickets_in_order", []string{"14", "15"})
	// present-but-empty fields are kept as a single empty value
	wantValues(t, s, newID, "_refund_reason", []string{""})

	evs, err := events.List(s.DB().DB, events.Query{RunID: "run-1", EventType: "record.created"})
	if err != nil {
		t.Fatalf("events.List() = %v", err)
	}
	if len(evs) != 1 || evs[0].ResourceID == nil {
		t.Fatalf("events = %+v, want one create event", evs)
	}
	if *evs[0].ResourceID != newID {
		t.Errorf("event resource = %d, want %d", *evs[0].ResourceID, newID)
	}
	if !strings.Contains(*evs[0].Payload, `"kind":"order"`) {
		t.Errorf("payload = %s", *evs[0].Payload)
	}
}

func TestStore_AttributeOperations(t *testing.T) {
	ctx := context.Background()
	s := New(testutil.MigratedDB(t), "")
	newID := mustCreate(t, s, domain.KindEvent, domain.Fields{})

	for _, v := range []string{"3", "4"} {
		if err := s.AddAttribute(ctx, newID, "_EventOrganizerID", v); err != nil {
			t.Fatalf("AddAttribute(%s) = %v", v, err)
		}
	}
	wantValues(t, s, newID, "_EventOrganizerID", []string{"3", "4"})

	if err := s.SetAttribute(ctx, newID, "_EventOrganizerID", "5"); err != nil {
		t.Fatalf("SetAttribute() = %v", err)
	}
	wantValues(t, s, newID, "_EventOrganizerID", []string{"5"})

	if err := s.DeleteAttribute(ctx, newID, "_EventOrganizerID"); err != nil {
		t.Fatalf("DeleteAttribute() = %v", err)
	}
	wantValues(t, s, newID, "_EventOrganizerID", nil)

	// deleting an absent key is not an error
	if err := s.DeleteAttribute(ctx, newID, "_EventOrganizerID"); err != nil {
		t.Errorf("second DeleteAttribute() = %v", err)
	}

	attrs, err := s.ListAttributes(ctx, newID)
	if err != nil || len(attrs) != 0 {
		t.Errorf("ListAttributes() = %v, %v", attrs, err)
	}
}

func TestStore_AddUniqueAttribute(t *testing.T) {
	ctx := context.Background()
	s := New(testutil.MigratedDB(t), "")
	first := mustCreate(t, s, domain.KindTicket, domain.Fields{})
	second := mustCreate(t, s, domain.KindTicket, domain.Fields{})

	steps := []struct {
		name     string
		recordID int64
		key      string
		want     bool
	}{
		{"first claim", first, "_ticket_export_hash", true},
		{"same record, same pair", first, "_ticket_export_hash", false},
		{"other record, same pair", second, "_ticket_export_hash", false},
		// non-identity keys go through the guarded insert
		{"guarded insert", second, "_TcTicketOrigin", true},
		{"guarded insert, taken", first, "_TcTicketOrigin", false},
	}
	for _, st := range steps {
		value := "tok"
		if st.key == "_TcTicketOrigin" {
			value = "import"
		}
		inserted, err := s.AddUniqueAttribute(ctx, st.recordID, st.key, value)
		if err != nil {
			t.Fatalf("%s: AddUniqueAttribute() = %v", st.name, err)
		}
		if inserted != st.want {
			t.Errorf("%s: inserted = %v, want %v", st.name, inserted, st.want)
		}
	}

	owner, err := s.FindByAttribute(ctx, "_ticket_export_hash", "tok")
	if err != nil || owner != first {
		t.Errorf("FindByAttribute() = %d, %v, want %d", owner, err, first)
	}
}

func TestStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := New(testutil.MigratedDB(t), "")

	_, kindErr := s.Kind(ctx, 404)
	_, attrErr := s.Attribute(ctx, 404, "_x")
	_, findErr := s.FindByAttribute(ctx, "_ticket_export_hash", "missing")

	for name, err := range map[string]error{
		"Kind":            kindErr,
		"Attribute":       attrErr,
		"SetAttribute":    s.SetAttribute(ctx, 404, "_x", "1"),
		"Delete":          s.Delete(ctx, 404),
		"UpdateFields":    s.UpdateFields(ctx, 404, map[string]any{"slug": "x"}),
		"FindByAttribute": findErr,
	} {
		if !errors.Is(err, host.ErrNotFound) {
			t.Errorf("%s() = %v, want ErrNotFound", name, err)
		}
	}
}

func TestStore_UpdateFieldsAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New(testutil.MigratedDB(t), "run-2")
	parent := mustCreate(t, s, domain.KindOrder, orderFields())
	child := mustCreate(t, s, domain.KindAttendee, domain.Fields{})

	if err := s.UpdateFields(ctx, child, map[string]any{
		"slug":           "2",
		"parent_id":      parent,
		"comment_status": "closed",
		"ping_status":    "closed",
	}); err != nil {
		t.Fatalf("UpdateFields() = %v", err)
	}

	rec, err := s.Records.Get(ctx, child)
	if err != nil {
		t.Fatalf("Get() = %v", err)
	}
	if rec.Slug != "2" || rec.PingStatus != "closed" {
		t.Errorf("record = %+v", rec)
	}
	if rec.ParentID == nil || *rec.ParentID != parent {
		t.Errorf("ParentID = %v, want %d", rec.ParentID, parent)
	}

	err = s.UpdateFields(ctx, child, map[string]any{"kind": "order"})
	if err == nil || !strings.Contains(err.Error(), "cannot be updated") {
		t.Errorf("updating kind = %v, want a refusal", err)
	}

	if err := s.Delete(ctx, parent); err != nil {
		t.Fatalf("Delete() = %v", err)
	}
	if _, err := s.Kind(ctx, parent); !errors.Is(err, host.ErrNotFound) {
		t.Errorf("Kind() after delete = %v", err)
	}

	// attributes cascade with the record
	var n int
	if err := s.DB().QueryRow("SELECT COUNT(*) FROM attributes WHERE record_id = ?", parent).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("%d attributes survived their record", n)
	}

	// the child survives with its parent cleared
	rec, err = s.Records.Get(ctx, child)
	if err != nil {
		t.Fatalf("Get(child) = %v", err)
	}
	if rec.ParentID != nil {
		t.Errorf("ParentID = %d after parent delete", *rec.ParentID)
	}

	list, err := s.Records.List(ctx, "attendee", 0)
	if err != nil || len(list) != 1 {
		t.Errorf("List(attendee) = %d records, %v", len(list), err)
	}

	evs, err := events.List(s.DB().DB, events.Query{RunID: "run-2", EventType: "record"})
	if err != nil {
		t.Fatalf("events.List() = %v", err)
	}
	// two creates, one update, one delete
	if len(evs) != 4 {
		t.Fatalf("%d record events, want 4", len(evs))
	}
	if evs[0].EventType != "record.deleted" {
		t.Errorf("newest event = %s, want record.deleted", evs[0].EventType)
	}
}

func TestEventLog_Paging(t *testing.T) {
	s := New(testutil.MigratedDB(t), "run-3")
	for i := 0; i < 5; i++ {
		mustCreate(t, s, domain.KindVenue, domain.NewFields(map[string][]string{"title": {"Hall"}}))
	}

	q := events.Query{RunID: "run-3", EventType: "record.created", Limit: 2}
	var seen []int64
	for {
		page, err := events.List(s.DB().DB, q)
		if err != nil {
			t.Fatalf("events.List() = %v", err)
		}
		for _, e := range page {
			seen = append(seen, *e.ResourceID)
		}
		if len(page) < q.Limit {
			break
		}
		next, err := cursor.New(page[len(page)-1].ID, "")
		if err != nil {
			t.Fatalf("cursor.New() = %v", err)
		}
		q.After = next
	}

	if want := []int64{5, 4, 3, 2, 1}; !reflect.DeepEqual(seen, want) {
		t.Errorf("paged ids = %v, want %v", seen, want)
	}
}

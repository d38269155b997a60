package domain

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func TestStatus_CanTransition(t *testing.T) {
	tests := []struct {
		from Status
		to   Status
		want bool
	}{
		{StatusPending, StatusAdmitted, true},
		{StatusPending, StatusRejected, true},
		{StatusPending, StatusCreated, false},
		{StatusAdmitted, StatusCreated, true},
		{StatusCreated, StatusKindVerified, true},
		{StatusCreated, StatusDeleted, true},
		{StatusCreated, StatusRelinked, false},
		{StatusKindVerified, StatusRelinked, true},
		{StatusKindVerified, StatusPartiallyRelinked, true},
		{StatusKindVerified, StatusDeleted, true},
		{StatusPartiallyRelinked, StatusRelinked, true},
		{StatusRelinked, StatusPartiallyRelinked, false},
		{StatusRejected, StatusAdmitted, false},
		{StatusDeleted, StatusCreated, false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s->%s", tt.from, tt.to), func(t *testing.T) {
			if got := tt.from.CanTransition(tt.to); got != tt.want {
				t.Errorf("CanTransition() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	for _, s := range []Status{StatusRejected, StatusDeleted, StatusRelinked} {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []Status{StatusPartiallyRelinked, StatusPending} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestRecord_Advance(t *testing.T) {
	rec := NewRecord(KindTicket, FieldsFromStrings(map[string]string{"id": "99", "title": "GA"}))
	if rec.OriginID != "99" || rec.Status != StatusPending {
		t.Fatalf("NewRecord() = origin %q status %q", rec.OriginID, rec.Status)
	}

	if err := rec.Advance(StatusAdmitted); err != nil {
		t.Fatalf("Advance(admitted) = %v", err)
	}
	if err := rec.Advance(StatusCreated); err != nil {
		t.Fatalf("Advance(created) = %v", err)
	}

	err := rec.Advance(StatusPending)
	if err == nil {
		t.Fatal("moving back to pending should fail")
	}
	if !strings.Contains(err.Error(), "created -> pending") {
		t.Errorf("error = %q, want it to name the transition", err)
	}
	if rec.Status != StatusCreated {
		t.Errorf("status after refused move = %q, want created", rec.Status)
	}
}

func TestRecord_Label(t *testing.T) {
	tests := []struct {
		rec  *Record
		want string
	}{
		{NewRecord(KindTicket, FieldsFromStrings(map[string]string{"id": "99", "title": "GA"})), `ticket "GA" (origin 99)`},
		{NewRecord(KindOrder, FieldsFromStrings(map[string]string{"id": "9"})), "order (origin 9)"},
	}
	for _, tt := range tests {
		if got := tt.rec.Label(); got != tt.want {
			t.Errorf("Label() = %q, want %q", got, tt.want)
		}
	}
}

func TestFields(t *testing.T) {
	f := NewFields(map[string][]string{
		"_Tickets_In_Order": {"14", "15"},
		"_order_total_value": {"  "},
		"status":             {"tec-tc-completed"},
		"_empty":             {},
	})

	v, ok := f.Lookup("_tickets_in_order")
	if !ok || !reflect.DeepEqual(v, []string{"14", "15"}) {
		t.Fatalf("Lookup(_tickets_in_order) = %v, %v", v, ok)
	}
	if got := f.Get("_TICKETS_IN_ORDER"); got != "14,15" {
		t.Errorf("Get() = %q, want 14,15", got)
	}

	if !f.Has("_empty") || f.Has("missing") {
		t.Error("Has() reports the wrong fields")
	}
	for _, name := range []string{"_empty", "_order_total_value", "missing"} {
		if !f.Empty(name) {
			t.Errorf("Empty(%q) = false, want true", name)
		}
	}
	if f.Empty("status") {
		t.Error("Empty(status) = true, want false")
	}

	wantNames := []string{"_empty", "_order_total_value", "_tickets_in_order", "status"}
	if got := f.Names(); !reflect.DeepEqual(got, wantNames) {
		t.Errorf("Names() = %v, want %v", got, wantNames)
	}
	if got := f.Flat()["status"]; got != "tec-tc-completed" {
		t.Errorf("Flat()[status] = %q", got)
	}

	f.Set("Status", "tec-tc-refunded")
	if got := f.Get("status"); got != "tec-tc-refunded" {
		t.Errorf("Get(status) after Set = %q", got)
	}
}

func TestFields_UnmarshalJSON(t *testing.T) {
	var f Fields
	err := json.Unmarshal([]byte(`{
		"ID": 9,
		"title": "Order #9",
		"_tickets_in_order": ["14", 15],
		"_gone": null,
		"_flag": true
	}`), &f)
	if err != nil {
		t.Fatalf("Unmarshal() = %v", err)
	}

	checks := map[string]string{"id": "9", "title": "Order #9", "_flag": "1"}
	for name, want := range checks {
		if got := f.Get(name); got != want {
			t.Errorf("Get(%q) = %q, want %q", name, got, want)
		}
	}
	if !reflect.DeepEqual(f["_tickets_in_order"], []string{"14", "15"}) {
		t.Errorf("_tickets_in_order = %v", f["_tickets_in_order"])
	}
	if !f.Has("_gone") || !f.Empty("_gone") {
		t.Error("a null field should be present and empty")
	}

	err = json.Unmarshal([]byte(`{"bad": {"nested": 1}}`), &f)
	if err == nil || !strings.Contains(err.Error(), `field "bad"`) {
		t.Errorf("nested object error = %v, want it to name the field", err)
	}
}

func TestErrorHelpers(t *testing.T) {
	wrap := func(err error) error { return fmt.Errorf("outer: %w", err) }

	tests := []struct {
		name string
		is   func(error) bool
		err  error
	}{
		{"validation", IsValidationError, &ValidationError{Kind: KindOrder, Code: "order.total_missing"}},
		{"unresolved", IsUnresolvedRelation, &UnresolvedRelationError{Kind: KindTicket, Field: "_ticket_event", TargetKind: KindEvent, OriginID: "42"}},
		{"mismatch", IsKindMismatch, &KindMismatchError{NewID: 5, Declared: KindEvent, Actual: "post"}},
		{"partial", IsPartialRelink, &PartialRelinkError{NewID: 5, Kind: KindOrder, Failed: []string{"_tickets_in_order"}}},
		{"orphan", IsOrphanedDependent, &OrphanedDependentError{NewID: 7, Kind: KindAttendee, ParentKind: KindOrder, ParentOriginID: "9"}},
	}
	for _, tt := range tests {
		if !tt.is(wrap(tt.err)) {
			t.Errorf("%s: helper does not see through wrapping", tt.name)
		}
	}
	if IsKindMismatch(wrap(&ValidationError{})) {
		t.Error("IsKindMismatch matched a validation error")
	}

	msgs := map[string]error{
		`ticket relation _ticket_event: event with origin id "42" not found`: &UnresolvedRelationError{Kind: KindTicket, Field: "_ticket_event", TargetKind: KindEvent, OriginID: "42"},
		"ticket relation _ticket_event: no event identifier present":       &UnresolvedRelationError{Kind: KindTicket, Field: "_ticket_event", TargetKind: KindEvent},
	}
	for want, err := range msgs {
		if got := err.Error(); got != want {
			t.Errorf("Error() = %q, want %q", got, want)
		}
	}
}

package domain

import "testing"

func TestValidateKindName(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		wantErr bool
	}{
		{name: "simple", kind: "event", wantErr: false},
		{name: "underscore", kind: "rsvp_ticket", wantErr: false},
		{name: "digits", kind: "venue2", wantErr: false},
		{name: "empty", kind: "", wantErr: true},
		{name: "uppercase", kind: "Event", wantErr: true},
		{name: "leading digit", kind: "2venue", wantErr: true},
		{name: "dash", kind: "tribe-events", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateKindName(tt.kind)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateKindName(%q) error = %v, wantErr %v", tt.kind, err, tt.wantErr)
			}
		})
	}
}

func TestValidateFieldName(t *testing.T) {
	if err := ValidateFieldName("_tickets_in_order"); err != nil {
		t.Errorf("ValidateFieldName(_tickets_in_order) = %v", err)
	}
	for _, name := range []string{"", "_EventVenueID"} {
		if err := ValidateFieldName(name); err == nil {
			t.Errorf("ValidateFieldName(%q) should fail", name)
		}
	}
}

func TestValidateAttributeKey(t *testing.T) {
	for _, key := range []string{"_EventVenueID", "_event_export_hash"} {
		if err := ValidateAttributeKey(key); err != nil {
			t.Errorf("ValidateAttributeKey(%q) = %v", key, err)
		}
	}
	for _, key := range []string{"", "_event venue"} {
		if err := ValidateAttributeKey(key); err == nil {
			t.Errorf("ValidateAttributeKey(%q) should fail", key)
		}
	}
}

func TestValidateCardinality(t *testing.T) {
	for _, c := range []Cardinality{CardinalitySingle, CardinalityMultiple} {
		if err := ValidateCardinality(c); err != nil {
			t.Errorf("ValidateCardinality(%q) = %v", c, err)
		}
	}
	for _, c := range []Cardinality{"many", ""} {
		if err := ValidateCardinality(c); err == nil {
			t.Errorf("ValidateCardinality(%q) should fail", c)
		}
	}
}

func TestValidateStatus(t *testing.T) {
	for _, s := range []Status{StatusPending, StatusAdmitted, StatusRejected, StatusCreated,
		StatusKindVerified, StatusDeleted, StatusRelinked, StatusPartiallyRelinked} {
		if err := ValidateStatus(s); err != nil {
			t.Errorf("ValidateStatus(%q) = %v", s, err)
		}
	}
	if err := ValidateStatus("imported"); err == nil {
		t.Error("ValidateStatus(imported) should fail")
	}
}

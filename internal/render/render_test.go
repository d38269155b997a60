package render

import (
	"bytes"
	"testing"
)

var kinds = Table{
	Headers: []string{"KIND", "HASH"},
	Rows: [][]string{
		{"venue", "yes"},
		{"rsvp_attendee", "no"},
	},
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatTable},
		{" JSON ", FormatJSON},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseFormat(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseFormat("csv"); err == nil {
		t.Error("ParseFormat(csv) accepted")
	}
}

func render(t *testing.T, format Format, items []any, table Table) string {
	t.Helper()
	var buf bytes.Buffer
	if err := NewRenderer(&buf, format).Render(items, table); err != nil {
		t.Fatalf("Render(%v) = %v", format, err)
	}
	return buf.String()
}

func TestRender_Table(t *testing.T) {
	want := "KIND           HASH\n" +
		"-------------  ----\n" +
		"venue          yes\n" +
		"rsvp_attendee  no\n"
	if got := render(t, FormatTable, nil, kinds); got != want {
		t.Errorf("table output:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_EmptyTable(t *testing.T) {
	if got := render(t, FormatTable, nil, Table{Headers: []string{"A"}}); got != "" {
		t.Errorf("empty table rendered %q", got)
	}
}

func TestRender_TSV(t *testing.T) {
	if got := render(t, FormatTSV, nil, kinds); got != "KIND\tHASH\nvenue\tyes\nrsvp_attendee\tno\n" {
		t.Errorf("TSV output = %q", got)
	}
}

func TestRender_Structured(t *testing.T) {
	items := []any{
		map[string]any{"kind": "venue"},
		map[string]any{"kind": "event"},
	}

	tests := []struct {
		format Format
		items  []any
		want   string
	}{
		{FormatNDJSON, items, "{\"kind\":\"venue\"}\n{\"kind\":\"event\"}\n"},
		{FormatJSON, nil, "[]\n"},
		{FormatYAML, items, "- kind: venue\n- kind: event\n"},
	}
	for _, tt := range tests {
		if got := render(t, tt.format, tt.items, kinds); got != tt.want {
			t.Errorf("%v output = %q, want %q", tt.format, got, tt.want)
		}
	}
}

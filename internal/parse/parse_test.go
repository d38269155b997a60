package parse

import (
	"reflect"
	"testing"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{
			name:  "valid JSON object",
			input: `{"id": "9"}`,
			want:  FormatJSON,
		},
		{
			name:    "invalid JSON returns error",
			input:   `{not valid json}`,
			wantErr: true,
		},
		{
			name:    "JSON array is not a fields document",
			input:   `[1, 2, 3]`,
			wantErr: true,
		},
		{
			name: "YAML mapping",
			input: `id: 9
_tickets_in_order: [14, 15]`,
			want: FormatYAML,
		},
		{
			name:  "YAML with document marker",
			input: "---\nid: 9\n",
			want:  FormatYAML,
		},
		{
			name:    "plain text",
			input:   "Just some plain text",
			wantErr: true,
		},
		{
			name:    "whitespace only",
			input:   "   \n\n  ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectFormat([]byte(tt.input))
			if (err != nil) != tt.wantErr {
				t.Errorf("DetectFormat() error = %v, wantErr %v", err, tt.wantErr)
				return
			}
			if got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFields(t *testing.T) {
	want := map[string][]string{
		"id":                {"9"},
		"_tickets_in_order": {"14", "15"},
		"_refund_reason":    nil,
	}

	tests := []struct {
		name   string
		input  string
		format string
	}{
		{
			name:  "JSON detected",
			input: `{"ID": "9", "_tickets_in_order": ["14", 15], "_refund_reason": null}`,
		},
		{
			name: "YAML detected",
			input: `ID: 9
_tickets_in_order:
  - "14"
  - 15
_refund_reason:
`,
		},
		{
			name:   "YAML forced",
			input:  `{ID: 9, _tickets_in_order: [14, 15], _refund_reason: null}`,
			format: "yml",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Fields([]byte(tt.input), tt.format)
			if err != nil {
				t.Fatalf("Fields() error = %v", err)
			}
			if !reflect.DeepEqual(map[string][]string(got), want) {
				t.Errorf("Fields() = %v, want %v", got, want)
			}
		})
	}
}

func TestFields_Errors(t *testing.T) {
	if _, err := Fields([]byte(`{"id": {"nested": 1}}`), ""); err == nil {
		t.Error("expected error for nested object")
	}
	if _, err := Fields([]byte("id: {nested: 1}"), ""); err == nil {
		t.Error("expected error for nested YAML mapping")
	}
	if _, err := Fields([]byte(`{}`), "toml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

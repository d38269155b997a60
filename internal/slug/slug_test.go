package slug

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{name: "simple lowercase", input: "hello", want: "hello"},
		{name: "uppercase to lowercase", input: "Hello", want: "hello"},
		{name: "spaces to hyphens", input: "Summer Jazz Night", want: "summer-jazz-night"},
		{name: "punctuation collapses", input: "Order #9 -- VIP!", want: "order-9-vip"},
		{name: "underscores to hyphens", input: "early_bird", want: "early-bird"},
		{name: "accents folded", input: "Café Olé", want: "cafe-ole"},
		{name: "leading and trailing junk", input: "  -Main Hall- ", want: "main-hall"},
		{name: "nothing usable", input: "!!!", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Normalize(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
			if err := Validate(got); err != nil {
				t.Errorf("Validate(%q) = %v", got, err)
			}
		})
	}
}

func TestNormalize_TruncatesAtHyphen(t *testing.T) {
	got, err := Normalize(strings.Repeat("abcdefghi ", 30))
	if err != nil {
		t.Fatalf("Normalize() = %v", err)
	}
	if len(got) > maxSlugLen {
		t.Errorf("len = %d, want at most %d", len(got), maxSlugLen)
	}
	if !strings.HasSuffix(got, "abcdefghi") {
		t.Errorf("Normalize() = %q, want a cut at a hyphen", got)
	}
}

func TestFromFields(t *testing.T) {
	tests := []struct {
		explicit, title, want string
	}{
		{"given", "Some Title", "given"},
		{"", "Some Title", "some-title"},
		{"", "", ""},
		{"", "???", ""},
	}
	for _, tt := range tests {
		if got := FromFields(tt.explicit, tt.title); got != tt.want {
			t.Errorf("FromFields(%q, %q) = %q, want %q", tt.explicit, tt.title, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	if err := Validate("summer-jazz-night"); err != nil {
		t.Errorf("Validate() = %v", err)
	}
	for _, bad := range []string{"", "-leading", "Upper", strings.Repeat("a", maxSlugLen+1)} {
		if err := Validate(bad); err == nil {
			t.Errorf("Validate(%q) should fail", bad)
		}
	}
}

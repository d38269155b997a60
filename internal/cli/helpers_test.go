package cli

import (
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/lherron/importlink/internal/domain"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, 0},
		{errors.New("boom"), 1},
		{exitError(5, errors.New("partial")), 5},
		{fmt.Errorf("wrapped: %w", exitError(2, errors.New("usage"))), 2},
	}
	for _, tt := range tests {
		if got := ExitCode(tt.err); got != tt.want {
			t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestExitError_Unwraps(t *testing.T) {
	err := exitError(1, &domain.KindMismatchError{NewID: 3, Declared: domain.KindEvent, Actual: "post"})
	if !domain.IsKindMismatch(err) {
		t.Error("IsKindMismatch() = false through exitError")
	}
	if want := "kind mismatch for record 3: declared event, stored as post"; err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestReadFieldFlags(t *testing.T) {
	fields, err := readFieldFlags([]string{"ID=9", "_tickets_in_order=14", "_tickets_in_order=15", "title=a=b"})
	if err != nil {
		t.Fatalf("readFieldFlags() = %v", err)
	}
	if !reflect.DeepEqual(fields["id"], []string{"9"}) {
		t.Errorf("id = %v, want lower-cased key", fields["id"])
	}
	if !reflect.DeepEqual(fields["_tickets_in_order"], []string{"14", "15"}) {
		t.Errorf("_tickets_in_order = %v", fields["_tickets_in_order"])
	}
	if got := fields.Get("title"); got != "a=b" {
		t.Errorf("title = %q, want a=b", got)
	}

	if _, err := readFieldFlags([]string{"novalue"}); ExitCode(err) != 2 {
		t.Errorf("missing '=' exit code = %d, want 2", ExitCode(err))
	}
	if _, err := readFieldFlags([]string{"=x"}); err == nil {
		t.Error("empty key accepted")
	}
}

func TestParseSince(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	got, err := parseSince("2h", now)
	if err != nil || !got.Equal(now.Add(-2*time.Hour)) {
		t.Errorf("parseSince(2h) = %v, %v", got, err)
	}

	got, err = parseSince("2025-02-28T00:00:00Z", now)
	if err != nil || !got.Equal(time.Date(2025, 2, 28, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("parseSince(RFC3339) = %v, %v", got, err)
	}

	got, err = parseSince("yesterday", now)
	if err != nil {
		t.Fatalf("parseSince(yesterday) = %v", err)
	}
	if !got.Before(now) || !got.After(now.Add(-48*time.Hour)) {
		t.Errorf("parseSince(yesterday) = %v", got)
	}

	for _, bad := range []string{"-1h", "zzz"} {
		if _, err := parseSince(bad, now); err == nil {
			t.Errorf("parseSince(%q) accepted", bad)
		}
	}
}

func TestFormatCounts(t *testing.T) {
	if got := formatCounts(nil); got != "nothing imported" {
		t.Errorf("formatCounts(nil) = %q", got)
	}
	got := formatCounts(map[domain.Status]int{
		domain.StatusRejected: 1,
		domain.StatusRelinked: 3,
	})
	if got != "3 relinked, 1 rejected" {
		t.Errorf("formatCounts() = %q", got)
	}
}

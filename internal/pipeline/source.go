package pipeline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/lherron/importlink/internal/domain"
)

// maxLineSize bounds one JSON Lines entry.
const maxLineSize = 16 * 1024 * 1024

// Source yields records in import order. Next returns io.EOF when done.
type Source interface {
	Next() (*domain.Record, error)
}

// entry is the JSON Lines shape of one record.
type entry struct {
	Kind   domain.Kind   `json:"kind"`
	Fields domain.Fields `json:"fields"`
}

// JSONLSource reads one {"kind": ..., "fields": {...}} object per line.
// Blank lines are skipped.
type JSONLSource struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLSource creates a source reading r.
func NewJSONLSource(r io.Reader) *JSONLSource {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 64*1024), maxLineSize)
	return &JSONLSource{scanner: s}
}

func (s *JSONLSource) Next() (*domain.Record, error) {
	for s.scanner.Scan() {
		s.line++
		raw := bytes.TrimSpace(s.scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", s.line, err)
		}
		if err := domain.ValidateKindName(string(e.Kind)); err != nil {
			return nil, fmt.Errorf("line %d: %w", s.line, err)
		}
		return domain.NewRecord(e.Kind, e.Fields), nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", s.line+1, err)
	}
	return nil, io.EOF
}

// SliceSource yields records from memory.
type SliceSource struct {
	records []*domain.Record
	pos     int
}

// NewSliceSource creates a source over records.
func NewSliceSource(records ...*domain.Record) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next() (*domain.Record, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

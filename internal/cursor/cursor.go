// Package cursor implements opaque keyset cursors for paging through
// listings ordered by id, newest first.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Cursor marks the last row of a page and the filter the page was read with.
type Cursor struct {
	LastID int64  `json:"last_id"`
	Filter string `json:"filter,omitempty"`
}

// New returns a cursor positioned after lastID.
func New(lastID int64, filter string) (*Cursor, error) {
	if lastID <= 0 {
		return nil, fmt.Errorf("last ID required")
	}
	return &Cursor{LastID: lastID, Filter: filter}, nil
}

// Encode serializes the cursor to an opaque base64 string
func (c *Cursor) Encode() (string, error) {
	jsonData, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to marshal cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(jsonData), nil
}

// Decode deserializes a cursor from an opaque base64 string
func Decode(encoded string) (*Cursor, error) {
	if encoded == "" {
		return nil, fmt.Errorf("empty cursor string")
	}

	jsonData, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	var c Cursor
	if err := json.Unmarshal(jsonData, &c); err != nil {
		return nil, fmt.Errorf("invalid cursor format: %w", err)
	}
	if c.LastID <= 0 {
		return nil, fmt.Errorf("cursor missing last ID")
	}
	return &c, nil
}

// Check rejects a cursor that was issued for a different filter.
func (c *Cursor) Check(filter string) error {
	if c.Filter != filter {
		return fmt.Errorf("cursor was issued for a different query")
	}
	return nil
}

// Where returns the keyset condition selecting rows after the cursor.
func (c *Cursor) Where() (string, []interface{}) {
	return "id < ?", []interface{}{c.LastID}
}

// Package host defines the storage collaborator the engine drives: record
// creation and deletion, and a generic attribute store keyed by record id.
package host

import (
	"context"
	"errors"

	"github.com/lherron/importlink/internal/domain"
)

// ErrNotFound is returned when a record or attribute lookup has no match.
var ErrNotFound = errors.New("not found")

// Host is the destination store records are imported into.
//
// Attribute keys may hold several values; SetAttribute replaces them all
// with one value and AddAttribute appends another.
type Host interface {
	Create(ctx context.Context, kind domain.Kind, fields domain.Fields) (int64, error)
	Kind(ctx context.Context, id int64) (string, error)
	Attribute(ctx context.Context, id int64, key string) ([]string, error)
	SetAttribute(ctx context.Context, id int64, key, value string) error
	AddAttribute(ctx context.Context, id int64, key, value string) error
	DeleteAttribute(ctx context.Context, id int64, key string) error
	Delete(ctx context.Context, id int64) error
	UpdateFields(ctx context.Context, id int64, fields map[string]any) error
	// FindByAttribute returns the record owning key=value, or ErrNotFound.
	FindByAttribute(ctx context.Context, key, value string) (int64, error)
}

// UniqueAttributeAdder is implemented by hosts that can add an attribute
// atomically only when no record already carries the same key and value.
type UniqueAttributeAdder interface {
	AddUniqueAttribute(ctx context.Context, id int64, key, value string) (bool, error)
}

// First returns the first value of an attribute, or "" when it has none.
func First(ctx context.Context, h Host, id int64, key string) (string, error) {
	values, err := h.Attribute(ctx, id, key)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", nil
	}
	return values[0], nil
}

// Updatable lists the record columns UpdateFields accepts.
var Updatable = map[string]bool{
	"title":          true,
	"slug":           true,
	"status":         true,
	"parent_id":      true,
	"comment_status": true,
	"ping_status":    true,
}

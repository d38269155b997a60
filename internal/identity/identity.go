// Package identity maps (kind, origin identifier) pairs to the record ids
// the destination assigned them. Entries are insert-only: a second write of
// the same pair is a no-op, never an overwrite.
package identity

import (
	"context"
	"errors"

	"github.com/lherron/importlink/internal/domain"
)

// ErrNotFound is returned by Get when no entry exists for the pair.
var ErrNotFound = errors.New("identity not found")

// ErrEmptyOrigin is returned by Put for an empty origin identifier.
var ErrEmptyOrigin = errors.New("empty origin identifier")

// Store is the identity lookup shared by the gate and the relinker.
type Store interface {
	// Put records newID for (kind, origin) unless an entry already exists.
	// inserted is false when the pair was already present.
	Put(ctx context.Context, kind domain.Kind, origin string, newID int64) (inserted bool, err error)
	// Get returns the record id for (kind, origin), or ErrNotFound.
	Get(ctx context.Context, kind domain.Kind, origin string) (int64, error)
}

// Resolve looks up every origin identifier and returns the resolved ids in
// input order. Unresolvable identifiers are returned separately; an empty
// identifier is always unresolvable.
func Resolve(ctx context.Context, s Store, kind domain.Kind, origins []string) (resolved map[string]int64, missing []string, err error) {
	resolved = make(map[string]int64, len(origins))
	for _, origin := range origins {
		if origin == "" {
			missing = append(missing, origin)
			continue
		}
		newID, err := s.Get(ctx, kind, origin)
		if errors.Is(err, ErrNotFound) {
			missing = append(missing, origin)
			continue
		}
		if err != nil {
			return resolved, missing, err
		}
		resolved[origin] = newID
	}
	return resolved, missing, nil
}

package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/id"
)

// AttributeStore keeps identity entries in the host's attribute store as
// "_<kind>_export_hash" = token on the owning record.
//
// When the host implements host.UniqueAttributeAdder the check and the
// write are atomic. Otherwise Put is a lookup followed by an append, and two
// writers stamping the same pair concurrently can both succeed; entries are
// then duplicated but point at the record each writer created, and Get
// resolves to the lowest id.
type AttributeStore struct {
	host host.Host
}

// NewAttributeStore creates an identity store on top of h.
func NewAttributeStore(h host.Host) *AttributeStore {
	return &AttributeStore{host: h}
}

func (s *AttributeStore) Put(ctx context.Context, kind domain.Kind, origin string, newID int64) (bool, error) {
	if origin == "" {
		return false, ErrEmptyOrigin
	}
	key := id.ExportHashKey(string(kind))
	token := id.Token(string(kind), origin)

	if u, ok := s.host.(host.UniqueAttributeAdder); ok {
		inserted, err := u.AddUniqueAttribute(ctx, newID, key, token)
		if err != nil {
			return false, fmt.Errorf("stamp %s %q: %w", kind, origin, err)
		}
		return inserted, nil
	}

	_, err := s.host.FindByAttribute(ctx, key, token)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, host.ErrNotFound) {
		return false, fmt.Errorf("look up %s %q: %w", kind, origin, err)
	}
	if err := s.host.AddAttribute(ctx, newID, key, token); err != nil {
		return false, fmt.Errorf("stamp %s %q: %w", kind, origin, err)
	}
	return true, nil
}

func (s *AttributeStore) Get(ctx context.Context, kind domain.Kind, origin string) (int64, error) {
	if origin == "" {
		return 0, ErrNotFound
	}
	newID, err := s.host.FindByAttribute(ctx, id.ExportHashKey(string(kind)), id.Token(string(kind), origin))
	if errors.Is(err, host.ErrNotFound) {
		return 0, fmt.Errorf("%s %q: %w", kind, origin, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("look up %s %q: %w", kind, origin, err)
	}
	return newID, nil
}

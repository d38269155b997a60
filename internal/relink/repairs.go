package relink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/id"
	"github.com/lherron/importlink/internal/relation"
)

// Attribute keys touched by the built-in repairs.
const (
	TicketProviderKey = "_tribe_default_ticket_provider"
	OrderItemsKey     = "_order_items"
)

// ErrNothingToRepair is returned by a repair that found no input to act
// on. The step is reported as skipped.
var ErrNothingToRepair = errors.New("nothing to repair")

// RepairContext is the explicit state a repair may read. Pairs holds the
// identifiers resolved for the repair's relation by the current call only.
type RepairContext struct {
	Host   host.Host
	NewID  int64
	Kind   domain.Kind
	Fields domain.Fields
	Pairs  []Pair
	Logger *slog.Logger
}

// Repair fixes data whose embedded identifiers are invalidated by the id
// reassignment.
type Repair struct {
	Name string
	// Relation names the relation field the repair depends on. The repair
	// only runs when that relation resolved at least one identifier.
	Relation string
	Apply    func(ctx context.Context, rc RepairContext) error
}

// Registry holds repairs by name.
type Registry struct {
	repairs map[string]Repair
}

// NewRegistry creates a registry holding repairs.
func NewRegistry(repairs ...Repair) *Registry {
	r := &Registry{repairs: make(map[string]Repair, len(repairs))}
	for _, rep := range repairs {
		r.Register(rep)
	}
	return r
}

// DefaultRegistry holds the built-in repairs.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Repair{Name: relation.RepairTicketProvider, Apply: repairTicketProvider},
		Repair{Name: relation.RepairRekeyItems, Relation: "_tickets_in_order", Apply: repairRekeyItems},
	)
}

// Register adds or replaces a repair.
func (r *Registry) Register(rep Repair) {
	r.repairs[rep.Name] = rep
}

// Lookup returns the repair called name.
func (r *Registry) Lookup(name string) (Repair, bool) {
	rep, ok := r.repairs[name]
	return rep, ok
}

// Names returns the registered repair names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.repairs))
	for name := range r.repairs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// repairTicketProvider re-asserts the raw provider value; the host stores a
// copy with its backslashes stripped.
func repairTicketProvider(ctx context.Context, rc RepairContext) error {
	if rc.Fields.Empty(TicketProviderKey) {
		return ErrNothingToRepair
	}
	return rc.Host.SetAttribute(ctx, rc.NewID, TicketProviderKey, rc.Fields.Get(TicketProviderKey))
}

// repairRekeyItems moves every order-items entry keyed by an old ticket id
// to the new ticket id and updates the embedded ticket_id. Moves that would
// overwrite an entry staying in place are refused and reported as a failure
// after the other moves are written.
func repairRekeyItems(ctx context.Context, rc RepairContext) error {
	doc, err := host.First(ctx, rc.Host, rc.NewID, OrderItemsKey)
	if err != nil {
		return err
	}
	if doc == "" {
		return ErrNothingToRepair
	}
	rekeyed, moved, err := RekeyItems(doc, rc.Pairs)
	var conflict *KeyConflictError
	if err != nil && !errors.As(err, &conflict) {
		return err
	}
	if moved > 0 {
		rc.Logger.Debug("order items re-keyed", "moved", moved)
		if serr := rc.Host.SetAttribute(ctx, rc.NewID, OrderItemsKey, rekeyed); serr != nil {
			return serr
		}
	}
	if conflict != nil {
		return conflict
	}
	if moved == 0 {
		return ErrNothingToRepair
	}
	return nil
}

// KeyConflictError lists the pairs whose new key is held by an entry that
// is not moving. Their entries stay under the old key.
type KeyConflictError struct {
	Pairs []Pair
}

func (e *KeyConflictError) Error() string {
	parts := make([]string, 0, len(e.Pairs))
	for _, p := range e.Pairs {
		parts = append(parts, fmt.Sprintf("%s->%d", p.Old, p.New))
	}
	return fmt.Sprintf("%s: target key already taken, left in place: %s", OrderItemsKey, strings.Join(parts, ", "))
}

// RekeyItems rewrites a JSON object keyed by ticket id. All old entries are
// lifted out before any new key is written, so a pair whose new id equals
// another pair's old id cannot clobber it. A pair whose new key belongs to
// an entry that stays put is not applied and comes back in a
// *KeyConflictError together with the document holding the other moves.
// Entries without a matching pair are left untouched. It returns the number
// of entries changed.
func RekeyItems(doc string, pairs []Pair) (string, int, error) {
	root := gjson.Parse(doc)
	if !root.IsObject() {
		return "", 0, fmt.Errorf("%s is not a JSON object", OrderItemsKey)
	}

	type move struct {
		pair  Pair
		key   string
		entry gjson.Result
	}
	var moves []move
	for _, p := range pairs {
		if entry := root.Get(gjson.Escape(p.Old)); entry.Exists() {
			moves = append(moves, move{pair: p, key: id.FormatNewID(p.New), entry: entry})
		}
	}

	// Refusing one move keeps its old key occupied, which can block another,
	// so repeat until the set is stable.
	var blocked []Pair
	for {
		vacated := make(map[string]bool, len(moves))
		for _, m := range moves {
			if m.key != m.pair.Old {
				vacated[m.pair.Old] = true
			}
		}
		taken := make(map[string]bool, len(moves))
		kept := moves[:0:0]
		for _, m := range moves {
			occupied := m.key != m.pair.Old && root.Get(gjson.Escape(m.key)).Exists() && !vacated[m.key]
			if occupied || taken[m.key] {
				blocked = append(blocked, m.pair)
				continue
			}
			taken[m.key] = true
			kept = append(kept, m)
		}
		if len(kept) == len(moves) {
			break
		}
		moves = kept
	}

	var err error
	for _, m := range moves {
		if m.key != m.pair.Old {
			if doc, err = sjson.Delete(doc, sjsonKey(m.pair.Old)); err != nil {
				return "", 0, fmt.Errorf("remove %s[%s]: %w", OrderItemsKey, m.pair.Old, err)
			}
		}
	}
	for _, m := range moves {
		raw := m.entry.Raw
		if m.entry.IsObject() {
			if raw, err = setTicketID(raw, m.pair.New); err != nil {
				return "", 0, fmt.Errorf("rewrite %s[%s]: %w", OrderItemsKey, m.pair.Old, err)
			}
		}
		if doc, err = sjson.SetRaw(doc, sjsonKey(m.key), raw); err != nil {
			return "", 0, fmt.Errorf("set %s[%s]: %w", OrderItemsKey, m.key, err)
		}
	}
	if len(blocked) > 0 {
		return doc, len(moves), &KeyConflictError{Pairs: blocked}
	}
	return doc, len(moves), nil
}

// sjsonKey escapes path syntax in an object key. A digits-only key would be
// read as an array index when the object is empty, so it is forced to a key.
func sjsonKey(key string) string {
	return ":" + gjson.Escape(key)
}

// setTicketID writes newID into entry.ticket_id, keeping a string-typed
// value a string.
func setTicketID(entry string, newID int64) (string, error) {
	if gjson.Get(entry, "ticket_id").Type == gjson.String {
		return sjson.Set(entry, "ticket_id", strconv.FormatInt(newID, 10))
	}
	return sjson.Set(entry, "ticket_id", newID)
}

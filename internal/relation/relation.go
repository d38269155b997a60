// Package relation holds the per-kind descriptor table: which relations a
// kind must satisfy before creation, which it rewrites afterwards, and the
// structural checks and repairs that apply to it.
package relation

import (
	"fmt"
	"sort"

	"github.com/lherron/importlink/internal/domain"
)

// Descriptor declares one relation from a kind to a target kind.
type Descriptor struct {
	Field       string             `yaml:"field" json:"field"`
	Target      domain.Kind        `yaml:"target" json:"target"`
	Cardinality domain.Cardinality `yaml:"cardinality" json:"cardinality"`
	Required    bool               `yaml:"required" json:"required"`
	// Rewrite is the attribute resolved ids are written to. Empty means Field.
	Rewrite string `yaml:"rewrite,omitempty" json:"rewrite,omitempty"`
}

// RewriteField returns the attribute key resolved ids are written to.
func (d Descriptor) RewriteField() string {
	if d.Rewrite == "" {
		return d.Field
	}
	return d.Rewrite
}

// Multiple reports whether the relation carries several targets.
func (d Descriptor) Multiple() bool {
	return d.Cardinality == domain.CardinalityMultiple
}

// Parent declares a dedicated parent relation: the record's parent
// reference is resolved from Field and, failing that, the record is deleted.
type Parent struct {
	Field  string      `yaml:"field" json:"field"`
	Target domain.Kind `yaml:"target" json:"target"`
}

// Check rules
const (
	RuleNonEmpty = "non_empty"
	RulePresent  = "present"
	RulePrefix   = "prefix"
)

// Check is one structural validity rule, reported under its own code.
type Check struct {
	Code   string `yaml:"code" json:"code"`
	Field  string `yaml:"field" json:"field"`
	Rule   string `yaml:"rule" json:"rule"`
	Prefix string `yaml:"prefix,omitempty" json:"prefix,omitempty"`
	// Message is logged when the check fails.
	Message string `yaml:"message" json:"message"`
}

// Failed reports whether fields violate the check.
func (c Check) Failed(fields domain.Fields) bool {
	switch c.Rule {
	case RulePresent:
		return !fields.Has(c.Field)
	case RulePrefix:
		if !fields.Has(c.Field) {
			// absence is reported by a separate "present" check
			return false
		}
		v := fields.Get(c.Field)
		return len(v) < len(c.Prefix) || v[:len(c.Prefix)] != c.Prefix
	default:
		return fields.Empty(c.Field)
	}
}

// Profile is everything the engine knows about one kind.
type Profile struct {
	Kind       domain.Kind  `yaml:"kind" json:"kind"`
	CreateHash bool         `yaml:"create_hash" json:"create_hash"`
	Provenance string       `yaml:"provenance" json:"provenance"`
	Relations  []Descriptor `yaml:"relations,omitempty" json:"relations,omitempty"`
	Parent     *Parent      `yaml:"parent,omitempty" json:"parent,omitempty"`
	Checks     []Check      `yaml:"checks,omitempty" json:"checks,omitempty"`
	// Repairs names post-relink repair functions, run in order.
	Repairs []string `yaml:"repairs,omitempty" json:"repairs,omitempty"`
}

// Required returns the relations gating admission.
func (p *Profile) Required() []Descriptor {
	var out []Descriptor
	for _, d := range p.Relations {
		if d.Required {
			out = append(out, d)
		}
	}
	return out
}

// Relation returns the descriptor reading field.
func (p *Profile) Relation(field string) (Descriptor, bool) {
	for _, d := range p.Relations {
		if d.Field == field {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Validate checks a profile for configuration mistakes.
func (p *Profile) Validate() error {
	if err := domain.ValidateKindName(string(p.Kind)); err != nil {
		return err
	}
	if p.Provenance != "" {
		if err := domain.ValidateAttributeKey(p.Provenance); err != nil {
			return fmt.Errorf("kind %s provenance: %w", p.Kind, err)
		}
	}

	seen := make(map[string]bool)
	for _, d := range p.Relations {
		if err := domain.ValidateFieldName(d.Field); err != nil {
			return fmt.Errorf("kind %s: %w", p.Kind, err)
		}
		if seen[d.Field] {
			return fmt.Errorf("kind %s: relation field %q declared twice", p.Kind, d.Field)
		}
		seen[d.Field] = true
		if err := domain.ValidateKindName(string(d.Target)); err != nil {
			return fmt.Errorf("kind %s relation %s: %w", p.Kind, d.Field, err)
		}
		if err := domain.ValidateCardinality(d.Cardinality); err != nil {
			return fmt.Errorf("kind %s relation %s: %w", p.Kind, d.Field, err)
		}
		if err := domain.ValidateAttributeKey(d.RewriteField()); err != nil {
			return fmt.Errorf("kind %s relation %s: %w", p.Kind, d.Field, err)
		}
	}

	if p.Parent != nil {
		if err := domain.ValidateFieldName(p.Parent.Field); err != nil {
			return fmt.Errorf("kind %s parent: %w", p.Kind, err)
		}
		if err := domain.ValidateKindName(string(p.Parent.Target)); err != nil {
			return fmt.Errorf("kind %s parent: %w", p.Kind, err)
		}
	}

	for _, c := range p.Checks {
		if c.Code == "" {
			return fmt.Errorf("kind %s: check on %q has no code", p.Kind, c.Field)
		}
		switch c.Rule {
		case "", RuleNonEmpty, RulePresent:
		case RulePrefix:
			if c.Prefix == "" {
				return fmt.Errorf("kind %s check %s: prefix rule needs a prefix", p.Kind, c.Code)
			}
		default:
			return fmt.Errorf("kind %s check %s: unknown rule %q", p.Kind, c.Code, c.Rule)
		}
	}
	return nil
}

// Table maps kinds to their profiles. Kinds absent from the table are not
// managed by the engine.
type Table struct {
	profiles map[domain.Kind]*Profile
}

// NewTable builds a table from profiles, validating each.
func NewTable(profiles ...*Profile) (*Table, error) {
	t := &Table{profiles: make(map[domain.Kind]*Profile, len(profiles))}
	for _, p := range profiles {
		if err := t.Put(p); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Put adds or replaces the profile of a kind.
func (t *Table) Put(p *Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	t.profiles[p.Kind] = p
	return nil
}

// Lookup returns the profile of kind.
func (t *Table) Lookup(kind domain.Kind) (*Profile, bool) {
	p, ok := t.profiles[kind]
	return p, ok
}

// Manages reports whether the engine handles kind at all.
func (t *Table) Manages(kind domain.Kind) bool {
	_, ok := t.profiles[kind]
	return ok
}

// Kinds returns the managed kinds in sorted order.
func (t *Table) Kinds() []domain.Kind {
	kinds := make([]domain.Kind, 0, len(t.profiles))
	for k := range t.profiles {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Profiles returns the profiles in kind order.
func (t *Table) Profiles() []*Profile {
	out := make([]*Profile, 0, len(t.profiles))
	for _, k := range t.Kinds() {
		out = append(out, t.profiles[k])
	}
	return out
}

// Package policy holds the operator extension points consulted by the gate,
// the mismatch guard and the post-creation attribute cleanup.
package policy

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/cel-go/cel"

	"github.com/lherron/importlink/internal/domain"
)

// Policy answers the three driver extension points.
type Policy interface {
	// ForceImport reports whether a record whose required relations do not
	// resolve is created anyway.
	ForceImport(kind domain.Kind, fields domain.Fields) bool
	// DeleteMismatched reports whether a record the host stored under a
	// different kind is deleted.
	DeleteMismatched(newID int64, declared domain.Kind, actual string) bool
	// StripEmpty reports whether empty attributes of kind are removed after
	// creation.
	StripEmpty(kind domain.Kind) bool
	// EmptyExempt reports whether key is kept even when empty.
	EmptyExempt(key string) bool
}

// Hooks override individual decisions programmatically. A nil hook falls
// back to the configured rule.
type Hooks struct {
	ForceImport      func(kind domain.Kind, fields domain.Fields) bool
	DeleteMismatched func(newID int64, declared domain.Kind, actual string) bool
	StripEmpty       func(kind domain.Kind) bool
	EmptyExempt      func(key string) bool
}

// Config is the declarative form of the policy.
type Config struct {
	// ForceImport maps a kind to a CEL expression over `kind` (string) and
	// `fields` (map of lowercase field name to value). "true" always forces.
	ForceImport      map[string]string
	DeleteMismatched bool
	StripEmpty       bool
	EmptyExempt      []string
}

// DefaultConfig never forces, deletes mismatched records and strips empty
// attributes.
func DefaultConfig() Config {
	return Config{DeleteMismatched: true, StripEmpty: true}
}

// Rules is the configured Policy.
type Rules struct {
	Hooks Hooks

	force            map[domain.Kind]cel.Program
	sources          map[domain.Kind]string
	deleteMismatched bool
	stripEmpty       bool
	exempt           map[string]bool
	logger           *slog.Logger
}

var _ Policy = (*Rules)(nil)

// New compiles cfg. Every force expression must type-check to bool.
func New(cfg Config, logger *slog.Logger) (*Rules, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Rules{
		force:            make(map[domain.Kind]cel.Program),
		sources:          make(map[domain.Kind]string),
		deleteMismatched: cfg.DeleteMismatched,
		stripEmpty:       cfg.StripEmpty,
		exempt:           make(map[string]bool),
		logger:           logger,
	}
	for _, key := range cfg.EmptyExempt {
		r.exempt[key] = true
	}
	if len(cfg.ForceImport) == 0 {
		return r, nil
	}

	env, err := cel.NewEnv(
		cel.Variable("kind", cel.StringType),
		cel.Variable("fields", cel.MapType(cel.StringType, cel.StringType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create expression environment: %w", err)
	}

	kinds := make([]string, 0, len(cfg.ForceImport))
	for k := range cfg.ForceImport {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)

	for _, k := range kinds {
		expr := cfg.ForceImport[k]
		if err := domain.ValidateKindName(k); err != nil {
			return nil, fmt.Errorf("force_import: %w", err)
		}
		ast, iss := env.Compile(expr)
		if iss != nil && iss.Err() != nil {
			return nil, fmt.Errorf("force_import[%s]: %w", k, iss.Err())
		}
		if ast.OutputType() != cel.BoolType {
			return nil, fmt.Errorf("force_import[%s]: expression must be bool, got %s", k, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("force_import[%s]: %w", k, err)
		}
		r.force[domain.Kind(k)] = prg
		r.sources[domain.Kind(k)] = expr
	}
	return r, nil
}

// Default returns the rules of DefaultConfig.
func Default() *Rules {
	r, _ := New(DefaultConfig(), nil)
	return r
}

func (r *Rules) ForceImport(kind domain.Kind, fields domain.Fields) bool {
	if r.Hooks.ForceImport != nil {
		return r.Hooks.ForceImport(kind, fields)
	}
	prg, ok := r.force[kind]
	if !ok {
		return false
	}

	flat := map[string]string{}
	if fields != nil {
		flat = fields.Flat()
	}
	out, _, err := prg.Eval(map[string]any{
		"kind":   string(kind),
		"fields": flat,
	})
	if err != nil {
		// A missing map key is the common case; treat as "do not force"
		r.logger.Warn("force_import expression failed",
			"kind", kind, "expr", r.sources[kind], "error", err)
		return false
	}
	forced, _ := out.Value().(bool)
	return forced
}

func (r *Rules) DeleteMismatched(newID int64, declared domain.Kind, actual string) bool {
	if r.Hooks.DeleteMismatched != nil {
		return r.Hooks.DeleteMismatched(newID, declared, actual)
	}
	return r.deleteMismatched
}

func (r *Rules) StripEmpty(kind domain.Kind) bool {
	if r.Hooks.StripEmpty != nil {
		return r.Hooks.StripEmpty(kind)
	}
	return r.stripEmpty
}

func (r *Rules) EmptyExempt(key string) bool {
	if r.Hooks.EmptyExempt != nil {
		return r.Hooks.EmptyExempt(key)
	}
	return r.exempt[key]
}

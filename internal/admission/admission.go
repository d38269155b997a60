// Package admission decides, before creation, whether a candidate record may
// be created at all.
package admission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/id"
	"github.com/lherron/importlink/internal/identity"
	"github.com/lherron/importlink/internal/policy"
	"github.com/lherron/importlink/internal/relation"
)

// Decision is the outcome of admission.
type Decision string

const (
	Admit      Decision = "admit"
	Reject     Decision = "reject"
	ForceAdmit Decision = "force-admit"
)

// Result carries the decision and every reason behind a non-plain admit.
// Reasons hold *domain.ValidationError and *domain.UnresolvedRelationError
// values, one per failing check or identifier.
type Result struct {
	Decision Decision
	Reasons  []error
}

// Admitted reports whether the record may be created.
func (r Result) Admitted() bool {
	return r.Decision == Admit || r.Decision == ForceAdmit
}

// Err joins the reasons, or returns nil.
func (r Result) Err() error {
	return errors.Join(r.Reasons...)
}

// Gate is the pre-creation check. It never mutates the host or the identity
// store.
type Gate struct {
	table  *relation.Table
	ids    identity.Store
	policy policy.Policy
	logger *slog.Logger
}

// New creates a gate. A nil policy never forces; a nil logger uses the
// default logger.
func New(table *relation.Table, ids identity.Store, pol policy.Policy, logger *slog.Logger) *Gate {
	if pol == nil {
		pol = policy.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{table: table, ids: ids, policy: pol, logger: logger}
}

// Admit decides for one record. The error is reserved for identity store
// failures; rejections are reported through Result.
func (g *Gate) Admit(ctx context.Context, kind domain.Kind, fields domain.Fields) (Result, error) {
	if fields == nil {
		fields = domain.Fields{}
	}
	log := g.logger.With("kind", kind, "origin_id", fields.Get("id"))

	profile, ok := g.table.Lookup(kind)
	if !ok {
		log.Debug("kind not managed, admitting")
		return Result{Decision: Admit}, nil
	}

	var invalid []error
	for _, c := range profile.Checks {
		if !c.Failed(fields) {
			continue
		}
		ve := &domain.ValidationError{Kind: kind, Code: c.Code, Message: c.Message}
		log.Warn("structural check failed", "code", c.Code, "field", c.Field, "message", c.Message)
		invalid = append(invalid, ve)
	}
	if len(invalid) > 0 {
		log.Info("record rejected", "decision", Reject, "reasons", len(invalid))
		return Result{Decision: Reject, Reasons: invalid}, nil
	}

	var unresolved []error
	for _, d := range profile.Required() {
		errs, err := g.resolveRequired(ctx, kind, d, fields)
		if err != nil {
			return Result{}, err
		}
		for _, ue := range errs {
			log.Warn("required relation unresolved",
				"relation", d.Field, "target", d.Target, "target_origin_id", ue.OriginID)
			unresolved = append(unresolved, ue)
		}
	}

	if len(unresolved) == 0 {
		log.Debug("record admitted", "decision", Admit)
		return Result{Decision: Admit}, nil
	}
	if g.policy.ForceImport(kind, fields) {
		log.Warn("record force-admitted despite unresolved relations",
			"decision", ForceAdmit, "reasons", len(unresolved))
		return Result{Decision: ForceAdmit, Reasons: unresolved}, nil
	}
	log.Info("record rejected", "decision", Reject, "reasons", len(unresolved))
	return Result{Decision: Reject, Reasons: unresolved}, nil
}

// resolveRequired returns one error per identifier of d that does not
// resolve. A field absent from the input fails as a whole.
func (g *Gate) resolveRequired(ctx context.Context, kind domain.Kind, d relation.Descriptor, fields domain.Fields) ([]*domain.UnresolvedRelationError, error) {
	if !fields.Has(d.Field) {
		return []*domain.UnresolvedRelationError{{Kind: kind, Field: d.Field, TargetKind: d.Target}}, nil
	}

	_, missing, err := identity.Resolve(ctx, g.ids, d.Target, id.Split(fields.Get(d.Field)))
	if err != nil {
		return nil, fmt.Errorf("admit %s: resolve %s: %w", kind, d.Field, err)
	}
	out := make([]*domain.UnresolvedRelationError, 0, len(missing))
	for _, origin := range missing {
		out = append(out, &domain.UnresolvedRelationError{
			Kind:       kind,
			Field:      d.Field,
			TargetKind: d.Target,
			OriginID:   origin,
		})
	}
	return out, nil
}

// Package relink rewrites a freshly created record's relations from origin
// identifiers to the ids the destination assigned, and repairs embedded
// copies of the old identifiers.
package relink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/id"
	"github.com/lherron/importlink/internal/identity"
	"github.com/lherron/importlink/internal/relation"
)

// DefaultProvenanceMarker is written to a kind's provenance attribute.
const DefaultProvenanceMarker = "importlink"

// Step names
const (
	StepIdentity   = "identity"
	StepProvenance = "provenance"
)

// Engine relinks records of the kinds in its table.
type Engine struct {
	table    *relation.Table
	host     host.Host
	ids      identity.Store
	registry *Registry
	marker   string
	logger   *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithRegistry replaces the built-in repair registry.
func WithRegistry(r *Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithProvenanceMarker changes the value stamped on provenance attributes.
func WithProvenanceMarker(marker string) Option {
	return func(e *Engine) { e.marker = marker }
}

// New creates an engine. Every repair named by the table must be present in
// the registry.
func New(table *relation.Table, h host.Host, ids identity.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		table:    table,
		host:     h,
		ids:      ids,
		registry: DefaultRegistry(),
		marker:   DefaultProvenanceMarker,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	for _, p := range table.Profiles() {
		for _, name := range p.Repairs {
			if _, ok := e.registry.Lookup(name); !ok {
				return nil, fmt.Errorf("kind %s: unknown repair %q", p.Kind, name)
			}
		}
	}
	return e, nil
}

// Relink runs the self stamp, the provenance stamp, parent resolution, the
// relation rewrite and the repairs for one record. Every step is attempted
// and reported independently, except that an unresolvable parent deletes the
// record and ends the call.
func (e *Engine) Relink(ctx context.Context, newID int64, kind domain.Kind, fields domain.Fields) *Report {
	if fields == nil {
		fields = domain.Fields{}
	}
	report := &Report{NewID: newID, Kind: kind, OriginID: fields.Get("id")}
	log := e.logger.With("kind", kind, "origin_id", report.OriginID, "new_id", newID)

	profile, ok := e.table.Lookup(kind)
	if !ok {
		log.Debug("kind not managed, nothing to relink")
		return report
	}

	report.Steps = append(report.Steps, e.stampIdentity(ctx, log, profile, newID, report.OriginID))
	report.Steps = append(report.Steps, e.stampProvenance(ctx, log, profile, newID))

	if profile.Parent != nil {
		step, orphan := e.resolveParent(ctx, log, profile, newID, fields)
		report.Steps = append(report.Steps, step)
		if orphan != nil {
			report.Orphan = orphan
			return report
		}
	}

	for _, d := range profile.Relations {
		report.Relations = append(report.Relations, e.rewrite(ctx, log, kind, d, newID, fields, id.Split(fields.Get(d.Field)), true))
	}

	report.Repairs = e.runRepairs(ctx, log, profile, newID, fields, report.Relations)
	e.logReport(log, report)
	return report
}

// RetryUnresolved re-resolves only the identifiers prev left missing and
// reruns the repairs that depend on relations that gained pairs. Steps that
// already ran are not repeated.
func (e *Engine) RetryUnresolved(ctx context.Context, prev *Report, fields domain.Fields) *Report {
	report := &Report{NewID: prev.NewID, Kind: prev.Kind, OriginID: prev.OriginID}
	if prev.Deleted() {
		return report
	}
	log := e.logger.With("kind", prev.Kind, "origin_id", prev.OriginID, "new_id", prev.NewID, "retry", true)

	profile, ok := e.table.Lookup(prev.Kind)
	if !ok {
		return report
	}

	for _, before := range prev.Unresolved() {
		d, ok := profile.Relation(before.Field)
		if !ok {
			continue
		}
		// raw values are still in place when the first pass resolved nothing
		clearRaw := len(before.Pairs) == 0
		report.Relations = append(report.Relations, e.rewrite(ctx, log, prev.Kind, d, prev.NewID, fields, before.Missing, clearRaw))
	}
	if len(report.Relations) == 0 {
		return report
	}

	report.Repairs = e.runRepairs(ctx, log, profile, prev.NewID, fields, report.Relations)
	e.logReport(log, report)
	return report
}

func (e *Engine) stampIdentity(ctx context.Context, log *slog.Logger, p *relation.Profile, newID int64, origin string) Step {
	step := Step{Name: StepIdentity}
	if !p.CreateHash {
		step.Outcome = Skipped
		return step
	}
	inserted, err := e.ids.Put(ctx, p.Kind, origin, newID)
	if err != nil {
		log.Error("identity stamp failed", "error", err)
		step.Outcome, step.Err = Failure, err
		return step
	}
	step.Outcome = Success
	if !inserted {
		// Insert-only: the first mapping for this origin id wins.
		step.Detail = "already present"
		log.Warn("identity already stamped for origin id, keeping existing entry")
		return step
	}
	log.Debug("identity stamped")
	return step
}

func (e *Engine) stampProvenance(ctx context.Context, log *slog.Logger, p *relation.Profile, newID int64) Step {
	step := Step{Name: StepProvenance}
	if p.Provenance == "" {
		step.Outcome = Skipped
		return step
	}
	current, err := host.First(ctx, e.host, newID, p.Provenance)
	if err != nil {
		log.Error("provenance read failed", "key", p.Provenance, "error", err)
		step.Outcome, step.Err = Failure, err
		return step
	}
	if current != "" {
		step.Outcome, step.Detail = Skipped, "already set"
		return step
	}
	if err := e.host.SetAttribute(ctx, newID, p.Provenance, e.marker); err != nil {
		log.Error("provenance stamp failed", "key", p.Provenance, "error", err)
		step.Outcome, step.Err = Failure, err
		return step
	}
	step.Outcome = Success
	return step
}

// resolveParent links a dependent record to its parent, or deletes it.
func (e *Engine) resolveParent(ctx context.Context, log *slog.Logger, p *relation.Profile, newID int64, fields domain.Fields) (Step, *domain.OrphanedDependentError) {
	step := Step{Name: string(p.Kind) + ".parent"}
	origin := id.Split(fields.Get(p.Parent.Field))[0]
	log = log.With("relation", p.Parent.Field, "target_origin_id", origin)

	parentID, err := e.ids.Get(ctx, p.Parent.Target, origin)
	if err != nil {
		orphan := &domain.OrphanedDependentError{
			NewID:          newID,
			Kind:           p.Kind,
			ParentKind:     p.Parent.Target,
			ParentOriginID: origin,
		}
		step.Outcome, step.Err = Failure, orphan
		if !errors.Is(err, identity.ErrNotFound) {
			step.Err = fmt.Errorf("%w: %v", orphan, err)
		}
		if derr := e.host.Delete(ctx, newID); derr != nil {
			log.Error("orphaned record could not be deleted", "error", derr)
			step.Err = fmt.Errorf("%w: delete failed: %v", orphan, derr)
			return step, orphan
		}
		log.Error("parent not found, record deleted", "error", orphan)
		return step, orphan
	}

	err = e.host.UpdateFields(ctx, newID, map[string]any{
		"slug":           id.FormatNewID(newID),
		"parent_id":      parentID,
		"comment_status": "closed",
		"ping_status":    "closed",
	})
	if err != nil {
		log.Error("parent link failed", "parent_id", parentID, "error", err)
		step.Outcome, step.Err = Failure, err
		return step, nil
	}
	log.Debug("parent linked", "parent_id", parentID)
	step.Outcome = Success
	return step, nil
}

// rewrite resolves origins for one relation and writes the resolved ids.
// For a multiple relation whose rewrite key is the raw field, the raw values
// are cleared once before the first append when clearRaw is set.
func (e *Engine) rewrite(ctx context.Context, log *slog.Logger, kind domain.Kind, d relation.Descriptor, newID int64, fields domain.Fields, origins []string, clearRaw bool) RelationResult {
	res := RelationResult{Field: d.Field, Target: d.Target, Rewrite: d.RewriteField()}
	log = log.With("relation", d.Field, "target", d.Target)

	if fields.Empty(d.Field) {
		res.Outcome = Skipped
		log.Debug("relation empty, skipped")
		return res
	}

	if !d.Multiple() {
		origins = origins[:1]
	}
	resolved, missing, err := identity.Resolve(ctx, e.ids, d.Target, origins)
	if err != nil {
		log.Error("relation lookup failed", "error", err)
		res.Outcome, res.Err = Failure, err
		res.Missing = origins
		return res
	}
	for _, origin := range missing {
		log.Warn("relation target not found", "target_origin_id", origin,
			"error", &domain.UnresolvedRelationError{Kind: kind, Field: d.Field, TargetKind: d.Target, OriginID: origin})
	}

	cleared := !clearRaw || d.RewriteField() != d.Field
	var writeErrs []error
	for _, origin := range origins {
		newTarget, ok := resolved[origin]
		if !ok {
			continue
		}
		value := id.FormatNewID(newTarget)

		var werr error
		switch {
		case !d.Multiple():
			werr = e.host.SetAttribute(ctx, newID, d.RewriteField(), value)
		case !cleared:
			if werr = e.host.DeleteAttribute(ctx, newID, d.RewriteField()); werr == nil {
				cleared = true
				werr = e.host.AddAttribute(ctx, newID, d.RewriteField(), value)
			}
		default:
			werr = e.host.AddAttribute(ctx, newID, d.RewriteField(), value)
		}
		if werr != nil {
			log.Error("relation write failed", "target_origin_id", origin, "error", werr)
			writeErrs = append(writeErrs, fmt.Errorf("%s %s: %w", d.Field, origin, werr))
			missing = append(missing, origin)
			continue
		}
		log.Debug("relation resolved", "target_origin_id", origin, "target_id", newTarget)
		res.Pairs = append(res.Pairs, Pair{Old: origin, New: newTarget})
	}

	res.Missing = missing
	res.Err = errors.Join(writeErrs...)
	switch {
	case len(res.Missing) == 0:
		res.Outcome = Success
	case len(res.Pairs) == 0:
		res.Outcome = Failure
	default:
		res.Outcome = Partial
	}
	return res
}

func (e *Engine) runRepairs(ctx context.Context, log *slog.Logger, p *relation.Profile, newID int64, fields domain.Fields, relations []RelationResult) []Step {
	var steps []Step
	for _, name := range p.Repairs {
		rep, _ := e.registry.Lookup(name)
		step := Step{Name: name}
		rlog := log.With("repair", name)

		var pairs []Pair
		if rep.Relation != "" {
			found := false
			for _, rel := range relations {
				if rel.Field == rep.Relation {
					pairs, found = rel.Pairs, true
				}
			}
			if !found || len(pairs) == 0 {
				step.Outcome, step.Detail = Skipped, "relation "+rep.Relation+" not resolved"
				rlog.Debug("repair skipped", "detail", step.Detail)
				steps = append(steps, step)
				continue
			}
		}

		err := rep.Apply(ctx, RepairContext{
			Host:   e.host,
			NewID:  newID,
			Kind:   p.Kind,
			Fields: fields,
			Pairs:  pairs,
			Logger: rlog,
		})
		switch {
		case errors.Is(err, ErrNothingToRepair):
			step.Outcome = Skipped
			rlog.Debug("repair skipped", "detail", err)
		case err != nil:
			step.Outcome, step.Err = Failure, err
			rlog.Error("repair failed", "error", err)
		default:
			step.Outcome = Success
			rlog.Debug("repair applied")
		}
		steps = append(steps, step)
	}
	return steps
}

func (e *Engine) logReport(log *slog.Logger, r *Report) {
	if err := r.Err(); err != nil {
		log.Warn("record partially relinked", "failed", r.Failed(), "error", err)
		return
	}
	log.Info("record relinked", "relations", len(r.Relations), "repairs", len(r.Repairs))
}

// Package pipeline drives records through admission, creation, the
// mismatch guard and relinking, one record at a time.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/lherron/importlink/internal/admission"
	"github.com/lherron/importlink/internal/bulk"
	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/guard"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/identity"
	"github.com/lherron/importlink/internal/policy"
	"github.com/lherron/importlink/internal/relation"
	"github.com/lherron/importlink/internal/relink"
	"github.com/lherron/importlink/internal/telemetry"
)

const meterScope = "github.com/lherron/importlink/pipeline"

// Options configures a Pipeline.
type Options struct {
	// RetryUnresolved enables the deferred pass over records left
	// partially relinked.
	RetryUnresolved bool
	// Jobs is the worker count of the deferred pass; 0 means one per CPU.
	Jobs   int
	RunID  string
	Logger *slog.Logger
	// Relink options, e.g. a custom repair registry.
	Relink []relink.Option
}

// Outcome is everything that happened to one record.
type Outcome struct {
	Record    *domain.Record
	Admission admission.Result
	Stripped  []string
	// Mismatch holds the *domain.KindMismatchError when the host changed
	// the record's kind.
	Mismatch error
	Report   *relink.Report
	Retry    *relink.Report
	// Err holds a host or identity store failure that stopped the record.
	Err error
}

// Summary is the result of a run.
type Summary struct {
	RunID    string
	Outcomes []*Outcome
	// Retry is nil when the deferred pass did not run.
	Retry *bulk.Result
}

// Counts tallies final statuses.
func (s *Summary) Counts() map[domain.Status]int {
	counts := make(map[domain.Status]int)
	for _, o := range s.Outcomes {
		counts[o.Record.Status]++
	}
	return counts
}

// Errors returns the outcomes that stopped on a host or store failure.
func (s *Summary) Errors() []*Outcome {
	var out []*Outcome
	for _, o := range s.Outcomes {
		if o.Err != nil {
			out = append(out, o)
		}
	}
	return out
}

// Pipeline composes the gate, the guard and the relink engine over a host.
type Pipeline struct {
	host   host.Host
	table  *relation.Table
	gate   *admission.Gate
	guard  *guard.Guard
	engine *relink.Engine
	policy policy.Policy
	opts   Options
	logger *slog.Logger

	records   metric.Int64Counter
	decisions metric.Int64Counter
	relations metric.Int64Counter
}

// New creates a pipeline. A nil policy uses policy.Default.
func New(h host.Host, table *relation.Table, ids identity.Store, pol policy.Policy, opts Options) (*Pipeline, error) {
	if pol == nil {
		pol = policy.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.RunID != "" {
		logger = logger.With("run_id", opts.RunID)
	}

	relinkOpts := append([]relink.Option{relink.WithLogger(logger)}, opts.Relink...)
	engine, err := relink.New(table, h, ids, relinkOpts...)
	if err != nil {
		return nil, err
	}

	records, decisions, relations, err := newCounters(telemetry.Meter(meterScope))
	if err != nil {
		return nil, err
	}

	return &Pipeline{
		host:      h,
		table:     table,
		gate:      admission.New(table, ids, pol, logger),
		guard:     guard.New(h, pol, logger),
		engine:    engine,
		policy:    pol,
		opts:      opts,
		logger:    logger,
		records:   records,
		decisions: decisions,
		relations: relations,
	}, nil
}

func newCounters(m metric.Meter) (records, decisions, relations metric.Int64Counter, err error) {
	var errs []error
	counter := func(name, desc string) metric.Int64Counter {
		c, cerr := m.Int64Counter(name, metric.WithDescription(desc))
		if cerr != nil {
			errs = append(errs, fmt.Errorf("create counter %s: %w", name, cerr))
		}
		return c
	}
	records = counter("importlink.records", "Records processed by final status")
	decisions = counter("importlink.admission.decisions", "Admission decisions")
	relations = counter("importlink.relink.relations", "Relation rewrite outcomes")
	return records, decisions, relations, errors.Join(errs...)
}

// Gate returns the admission gate.
func (p *Pipeline) Gate() *admission.Gate { return p.gate }

// Engine returns the relink engine.
func (p *Pipeline) Engine() *relink.Engine { return p.engine }

// Process runs one record to a terminal or stopping state. The record's
// status is advanced in place.
func (p *Pipeline) Process(ctx context.Context, rec *domain.Record) *Outcome {
	out := &Outcome{Record: rec}
	log := p.logger.With("kind", rec.Kind, "origin_id", rec.OriginID)
	defer func() { p.count(ctx, rec) }()

	res, err := p.gate.Admit(ctx, rec.Kind, rec.Fields)
	if err != nil {
		out.Err = err
		log.Error("admission failed", "error", err)
		return out
	}
	out.Admission = res
	p.decisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("importlink.kind", string(rec.Kind)),
		attribute.String("importlink.decision", string(res.Decision)),
	))
	if !res.Admitted() {
		p.advance(log, rec, domain.StatusRejected)
		return out
	}
	p.advance(log, rec, domain.StatusAdmitted)

	newID, err := p.host.Create(ctx, rec.Kind, rec.Fields)
	if err != nil {
		out.Err = fmt.Errorf("create %s: %w", rec.Label(), err)
		log.Error("host create failed", "error", err)
		return out
	}
	rec.NewID = newID
	p.advance(log, rec, domain.StatusCreated)
	log = log.With("new_id", newID)

	out.Stripped = p.stripEmpty(ctx, log, rec)

	outcome, err := p.guard.Verify(ctx, newID, rec.Kind)
	switch {
	case domain.IsKindMismatch(err):
		out.Mismatch = err
		if outcome == guard.Deleted {
			p.advance(log, rec, domain.StatusDeleted)
			return out
		}
	case err != nil:
		out.Err = err
		return out
	}
	p.advance(log, rec, domain.StatusKindVerified)

	report := p.engine.Relink(ctx, newID, rec.Kind, rec.Fields)
	out.Report = report
	p.countRelations(ctx, rec.Kind, report)
	switch {
	case report.Deleted():
		p.advance(log, rec, domain.StatusDeleted)
	case report.Complete():
		p.advance(log, rec, domain.StatusRelinked)
	default:
		p.advance(log, rec, domain.StatusPartiallyRelinked)
	}
	return out
}

// Run processes every record of src in order, then runs the deferred pass
// when enabled. A source error stops the run and is returned together with
// the outcomes so far.
func (p *Pipeline) Run(ctx context.Context, src Source) (*Summary, error) {
	summary := &Summary{RunID: p.opts.RunID}
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, fmt.Errorf("read records: %w", err)
		}
		summary.Outcomes = append(summary.Outcomes, p.Process(ctx, rec))
	}

	if p.opts.RetryUnresolved {
		summary.Retry = p.retry(ctx, summary.Outcomes)
	}

	counts := summary.Counts()
	p.logger.Info("import finished",
		"records", len(summary.Outcomes),
		"relinked", counts[domain.StatusRelinked],
		"partially_relinked", counts[domain.StatusPartiallyRelinked],
		"rejected", counts[domain.StatusRejected],
		"deleted", counts[domain.StatusDeleted],
	)
	return summary, nil
}

// retry re-resolves the relations left missing by the first pass. Every
// identity stamp of the run has already happened, so records are
// independent and may be retried in parallel.
func (p *Pipeline) retry(ctx context.Context, outcomes []*Outcome) *bulk.Result {
	var pending []*Outcome
	for _, o := range outcomes {
		if o.Record.Status == domain.StatusPartiallyRelinked && len(o.Report.Unresolved()) > 0 {
			pending = append(pending, o)
		}
	}
	if len(pending) == 0 {
		return &bulk.Result{}
	}
	p.logger.Info("retrying unresolved relations", "records", len(pending))

	op := &bulk.Operation{Jobs: p.opts.Jobs, ContinueOnError: true, Logger: p.logger}
	return bulk.Execute(ctx, op, pending, func(o *Outcome) string { return o.Record.Label() },
		func(ctx context.Context, o *Outcome) error {
			retry := p.engine.RetryUnresolved(ctx, o.Report, o.Record.Fields)
			o.Retry = retry
			p.countRelations(ctx, o.Record.Kind, retry)

			remaining := append(nonRelationFailures(o.Report), retry.Failed()...)
			if len(remaining) > 0 {
				return &domain.PartialRelinkError{NewID: o.Record.NewID, Kind: o.Record.Kind, Failed: remaining}
			}
			log := p.logger.With("kind", o.Record.Kind, "origin_id", o.Record.OriginID, "new_id", o.Record.NewID)
			p.advance(log, o.Record, domain.StatusRelinked)
			p.records.Add(ctx, 1, metric.WithAttributes(
				attribute.String("importlink.kind", string(o.Record.Kind)),
				attribute.String("importlink.status", string(domain.StatusRelinked)),
				attribute.Bool("importlink.retry", true),
			))
			return nil
		})
}

// nonRelationFailures names the failed steps and repairs of r.
func nonRelationFailures(r *relink.Report) []string {
	var out []string
	for _, s := range r.Steps {
		if s.Outcome == relink.Failure {
			out = append(out, s.Name)
		}
	}
	for _, s := range r.Repairs {
		if s.Outcome == relink.Failure {
			out = append(out, s.Name)
		}
	}
	return out
}

// stripEmpty removes attributes the host stored for empty "_" fields,
// unless exempt.
func (p *Pipeline) stripEmpty(ctx context.Context, log *slog.Logger, rec *domain.Record) []string {
	if !p.table.Manages(rec.Kind) || !p.policy.StripEmpty(rec.Kind) {
		return nil
	}
	var stripped []string
	for _, name := range rec.Fields.Names() {
		if !strings.HasPrefix(name, "_") || !rec.Fields.Empty(name) || p.policy.EmptyExempt(name) {
			continue
		}
		if err := p.host.DeleteAttribute(ctx, rec.NewID, name); err != nil {
			log.Warn("strip empty attribute failed", "key", name, "error", err)
			continue
		}
		stripped = append(stripped, name)
	}
	if len(stripped) > 0 {
		log.Debug("empty attributes stripped", "keys", stripped)
	}
	return stripped
}

func (p *Pipeline) advance(log *slog.Logger, rec *domain.Record, next domain.Status) {
	if err := rec.Advance(next); err != nil {
		// only reachable through a programming error in this package
		log.Error("status transition refused", "error", err)
		return
	}
	log.Debug("status", "status", next)
}

func (p *Pipeline) count(ctx context.Context, rec *domain.Record) {
	p.records.Add(ctx, 1, metric.WithAttributes(
		attribute.String("importlink.kind", string(rec.Kind)),
		attribute.String("importlink.status", string(rec.Status)),
	))
}

func (p *Pipeline) countRelations(ctx context.Context, kind domain.Kind, r *relink.Report) {
	for _, rel := range r.Relations {
		p.relations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("importlink.kind", string(kind)),
			attribute.String("importlink.relation", rel.Field),
			attribute.String("importlink.outcome", string(rel.Outcome)),
		))
	}
}

package relink

import (
	"github.com/lherron/importlink/internal/domain"
)

// Outcome of one relink step.
type Outcome string

const (
	Success Outcome = "success"
	// Partial is only reported for multiple relations where some
	// identifiers resolved and others did not.
	Partial Outcome = "partial"
	Failure Outcome = "failure"
	Skipped Outcome = "skipped"
)

// Step is the outcome of a stamp, parent resolution or repair.
type Step struct {
	Name    string  `json:"name"`
	Outcome Outcome `json:"outcome"`
	Err     error   `json:"-"`
	Detail  string  `json:"detail,omitempty"`
}

// Pair maps one origin identifier to the id it resolved to.
type Pair struct {
	Old string `json:"old"`
	New int64  `json:"new"`
}

// RelationResult is the outcome of rewriting one relation.
type RelationResult struct {
	Field   string      `json:"field"`
	Target  domain.Kind `json:"target"`
	Rewrite string      `json:"rewrite"`
	Outcome Outcome     `json:"outcome"`
	// Pairs are the identifiers resolved by this call, in input order.
	Pairs   []Pair   `json:"pairs,omitempty"`
	Missing []string `json:"missing,omitempty"`
	Err     error    `json:"-"`
}

// Report enumerates every step of one relink call.
type Report struct {
	NewID     int64            `json:"new_id"`
	Kind      domain.Kind      `json:"kind"`
	OriginID  string           `json:"origin_id"`
	Steps     []Step           `json:"steps"`
	Relations []RelationResult `json:"relations"`
	Repairs   []Step           `json:"repairs"`
	// Orphan is set when the record's parent did not resolve and the
	// record was deleted.
	Orphan *domain.OrphanedDependentError `json:"-"`
}

// Deleted reports whether the record no longer exists.
func (r *Report) Deleted() bool {
	return r.Orphan != nil
}

// Failed names every step, relation and repair that did not fully succeed.
func (r *Report) Failed() []string {
	var out []string
	for _, s := range r.Steps {
		if s.Outcome == Failure {
			out = append(out, s.Name)
		}
	}
	for _, rel := range r.Relations {
		if rel.Outcome == Failure || rel.Outcome == Partial {
			out = append(out, rel.Field)
		}
	}
	for _, s := range r.Repairs {
		if s.Outcome == Failure {
			out = append(out, s.Name)
		}
	}
	return out
}

// Complete reports whether the record was relinked without failures.
func (r *Report) Complete() bool {
	return r.Orphan == nil && len(r.Failed()) == 0
}

// Unresolved returns the relations that still have identifiers missing.
func (r *Report) Unresolved() []RelationResult {
	var out []RelationResult
	for _, rel := range r.Relations {
		if len(rel.Missing) > 0 {
			out = append(out, rel)
		}
	}
	return out
}

// Relation returns the result for field.
func (r *Report) Relation(field string) (RelationResult, bool) {
	for _, rel := range r.Relations {
		if rel.Field == field {
			return rel, true
		}
	}
	return RelationResult{}, false
}

// Err returns an *domain.OrphanedDependentError when the record was deleted,
// a *domain.PartialRelinkError when anything failed, or nil.
func (r *Report) Err() error {
	if r.Orphan != nil {
		return r.Orphan
	}
	if failed := r.Failed(); len(failed) > 0 {
		return &domain.PartialRelinkError{NewID: r.NewID, Kind: r.Kind, Failed: failed}
	}
	return nil
}

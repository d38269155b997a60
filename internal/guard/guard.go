// Package guard verifies after creation that the host kept the declared kind.
package guard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lherron/importlink/internal/domain"
	"github.com/lherron/importlink/internal/host"
	"github.com/lherron/importlink/internal/policy"
)

// Outcome of verification.
type Outcome string

const (
	Keep    Outcome = "keep"
	Deleted Outcome = "deleted"
)

// Guard compares the stored kind of a freshly created record with the kind
// it was imported as.
type Guard struct {
	host   host.Host
	policy policy.Policy
	logger *slog.Logger
}

// New creates a guard. A nil policy deletes every mismatched record.
func New(h host.Host, pol policy.Policy, logger *slog.Logger) *Guard {
	if pol == nil {
		pol = policy.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Guard{host: h, policy: pol, logger: logger}
}

// Verify returns Keep when the kinds match. On a mismatch it returns the
// outcome together with a *domain.KindMismatchError; the record is deleted
// unless the policy refuses.
func (g *Guard) Verify(ctx context.Context, newID int64, declared domain.Kind) (Outcome, error) {
	actual, err := g.host.Kind(ctx, newID)
	if err != nil {
		return Keep, fmt.Errorf("verify %s %d: %w", declared, newID, err)
	}
	if actual == string(declared) {
		return Keep, nil
	}

	mismatch := &domain.KindMismatchError{NewID: newID, Declared: declared, Actual: actual}
	log := g.logger.With("kind", declared, "new_id", newID, "actual_kind", actual)

	if !g.policy.DeleteMismatched(newID, declared, actual) {
		log.Error("kind mismatch kept by policy", "error", mismatch)
		return Keep, mismatch
	}
	if err := g.host.Delete(ctx, newID); err != nil {
		log.Error("kind mismatch: delete failed", "error", err)
		return Keep, fmt.Errorf("%w: delete failed: %v", mismatch, err)
	}
	log.Error("kind mismatch, record deleted", "error", mismatch)
	return Deleted, mismatch
}

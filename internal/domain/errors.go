package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError is returned when a structural check on the raw fields
// fails. The record is never created.
type ValidationError struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %s (%s): %s", e.Kind, e.Code, e.Message)
}

// UnresolvedRelationError is returned when a relation target has no entry in
// the identity store.
type UnresolvedRelationError struct {
	Kind       Kind
	Field      string
	TargetKind Kind
	OriginID   string
}

func (e *UnresolvedRelationError) Error() string {
	if e.OriginID == "" {
		return fmt.Sprintf("%s relation %s: no %s identifier present", e.Kind, e.Field, e.TargetKind)
	}
	return fmt.Sprintf("%s relation %s: %s with origin id %q not found", e.Kind, e.Field, e.TargetKind, e.OriginID)
}

// KindMismatchError is returned when the host stored a record under a
// different kind than the one declared on import.
type KindMismatchError struct {
	NewID    int64
	Declared Kind
	Actual   string
}

func (e *KindMismatchError) Error() string {
	return fmt.Sprintf("kind mismatch for record %d: declared %s, stored as %s", e.NewID, e.Declared, e.Actual)
}

// PartialRelinkError summarises the relations and repairs that did not
// succeed for one record. It is reported, never fatal.
type PartialRelinkError struct {
	NewID  int64
	Kind   Kind
	Failed []string
}

func (e *PartialRelinkError) Error() string {
	return fmt.Sprintf("partial relink of %s %d: failed %s", e.Kind, e.NewID, strings.Join(e.Failed, ", "))
}

// OrphanedDependentError is returned when a dependent record's parent could
// not be resolved after creation. The dependent is deleted.
type OrphanedDependentError struct {
	NewID          int64
	Kind           Kind
	ParentKind     Kind
	ParentOriginID string
}

func (e *OrphanedDependentError) Error() string {
	return fmt.Sprintf("%s %d is orphaned: parent %s %q not found", e.Kind, e.NewID, e.ParentKind, e.ParentOriginID)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUnresolvedRelation reports whether err wraps an UnresolvedRelationError.
func IsUnresolvedRelation(err error) bool {
	var ue *UnresolvedRelationError
	return errors.As(err, &ue)
}

// IsKindMismatch reports whether err wraps a KindMismatchError.
func IsKindMismatch(err error) bool {
	var ke *KindMismatchError
	return errors.As(err, &ke)
}

// IsPartialRelink reports whether err wraps a PartialRelinkError.
func IsPartialRelink(err error) bool {
	var pe *PartialRelinkError
	return errors.As(err, &pe)
}

// IsOrphanedDependent reports whether err wraps an OrphanedDependentError.
func IsOrphanedDependent(err error) bool {
	var oe *OrphanedDependentError
	return errors.As(err, &oe)
}

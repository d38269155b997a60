package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// KindNameRegex validates kind names: lowercase, starting with a letter
var KindNameRegex = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// AttributeKeyRegex validates host attribute keys
var AttributeKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// ValidateKindName validates a kind name
func ValidateKindName(kind string) error {
	if !KindNameRegex.MatchString(kind) {
		return fmt.Errorf("invalid kind %q: must be lowercase letters, digits and underscores", kind)
	}
	return nil
}

// ValidateFieldName validates a raw input field name. Raw names are compared
// lowercase, so mixed case is rejected to catch configuration typos early.
func ValidateFieldName(name string) error {
	if name == "" {
		return fmt.Errorf("invalid field name: must not be empty")
	}
	if name != strings.ToLower(name) {
		return fmt.Errorf("invalid field name %q: raw field names are lowercase", name)
	}
	return nil
}

// ValidateAttributeKey validates a host attribute key
func ValidateAttributeKey(key string) error {
	if !AttributeKeyRegex.MatchString(key) {
		return fmt.Errorf("invalid attribute key %q: must be letters, digits and underscores", key)
	}
	return nil
}

// ValidateCardinality validates a relation cardinality
func ValidateCardinality(c Cardinality) error {
	switch c {
	case CardinalitySingle, CardinalityMultiple:
		return nil
	default:
		return fmt.Errorf("invalid cardinality: must be one of: single, multiple")
	}
}

// ValidateStatus validates a record lifecycle status
func ValidateStatus(s Status) error {
	switch s {
	case StatusPending, StatusAdmitted, StatusRejected, StatusCreated, StatusKindVerified,
		StatusDeleted, StatusRelinked, StatusPartiallyRelinked:
		return nil
	default:
		return fmt.Errorf("invalid status: must be one of: pending, admitted, rejected, created, kind-verified, deleted, relinked, partially-relinked")
	}
}

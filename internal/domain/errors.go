package domain

import (
	"fmt"
	"time"
)

// IdentityMismatchError is returned when two identities (or histories) with
// different names are merged.
type IdentityMismatchError struct {
	Expected string
	Got      string
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("identity mismatch: expected name %q, got %q", e.Expected, e.Got)
}

// IdConflictError is returned when both sides of a merge carry different
// persisted identifiers.
type IdConflictError struct {
	Current int64
	Other   int64
}

func (e *IdConflictError) Error() string {
	return fmt.Sprintf("conflicting ids: %d and %d", e.Current, e.Other)
}

// TimestampConflictError is returned when a sample with different content
// already occupies the same instant.
type TimestampConflictError struct {
	Kind    string // "metric" or "test"
	SavedAt time.Time
}

func (e *TimestampConflictError) Error() string {
	return fmt.Sprintf("different %s sample already exists at %s", e.Kind, e.SavedAt.Format(time.RFC3339Nano))
}

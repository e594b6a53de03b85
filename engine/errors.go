/*
errors.go - Centralized error types for the attendance engine

PURPOSE:
  All engine error types in one place. The taxonomy follows how callers must
  react:
    - unresolvable identity: record skipped, batch continues
    - malformed punch:       record rejected, nothing written, batch continues
    - duplicate event:       silently skipped, NOT an error for callers
    - store write failure:   per-record error, batch continues
    - invalid override:      rejected synchronously, nothing written

USAGE:
  if errors.Is(err, engine.ErrDuplicateEvent) {
      // already ingested, safe to ignore
  }

SEE ALSO:
  - store.go: Store contract that surfaces these errors
  - override.go: Validation that produces InvalidOverrideError
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDuplicateEvent is returned when an event with the same
	// (user, timestamp, kind) already exists. Expected under re-ingestion;
	// callers skip and continue.
	ErrDuplicateEvent = errors.New("duplicate event")

	// ErrDuplicateEntry is returned by stores on a (user, date) collision
	// outside the upsert path. Should not occur in normal operation.
	ErrDuplicateEntry = errors.New("duplicate day entry")

	// ErrUnresolvedIdentity is returned when a provider record has no
	// matching internal user.
	ErrUnresolvedIdentity = errors.New("unresolved identity")

	// ErrMalformedRecord is returned when a provider record cannot be parsed.
	ErrMalformedRecord = errors.New("malformed provider record")

	// ErrInvalidOverride is returned when a manual override submission is
	// rejected. Nothing is written.
	ErrInvalidOverride = errors.New("invalid override")

	// ErrUserNotFound is returned when a referenced user doesn't exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrMappingNotFound is returned when no active identity mapping exists
	// for an external code.
	ErrMappingNotFound = errors.New("identity mapping not found")

	// ErrEntryNotFound is returned when no day entry exists for (user, date).
	ErrEntryNotFound = errors.New("day entry not found")

	// ErrInvalidRange is returned when a date range is malformed (to before from).
	ErrInvalidRange = errors.New("invalid range: to before from")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidOverrideError explains why an override submission was rejected.
type InvalidOverrideError struct {
	UserID string
	Date   Date
	Reason string
}

func (e *InvalidOverrideError) Error() string {
	return fmt.Sprintf("invalid override for %s on %s: %s", e.UserID, e.Date, e.Reason)
}

func (e *InvalidOverrideError) Unwrap() error { return ErrInvalidOverride }

// UnresolvedIdentityError identifies the provider record that could not be
// matched to an internal user.
type UnresolvedIdentityError struct {
	ExternalCode string
	ExternalName string
}

func (e *UnresolvedIdentityError) Error() string {
	return fmt.Sprintf("no internal user for external employee %q (%s)", e.ExternalCode, e.ExternalName)
}

func (e *UnresolvedIdentityError) Unwrap() error { return ErrUnresolvedIdentity }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input rather than
// an engine or store failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidOverride) ||
		errors.Is(err, ErrMalformedRecord) ||
		errors.Is(err, ErrInvalidRange)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrMappingNotFound) ||
		errors.Is(err, ErrEntryNotFound)
}

// IsDuplicate returns true for dedup-key collisions, which batch callers
// treat as a silent skip.
func IsDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateEvent) || errors.Is(err, ErrDuplicateEntry)
}

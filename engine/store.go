/*
store.go - Persistence interfaces for the attendance engine

PURPOSE:
  Defines the interface between the domain logic and the database. Three
  logical tables plus the operation audit log:
    events            append-only canonical punch log (deduplicated)
    day_entries       one row per (user, date), maintained by upsert
    identity_mappings external code <-> internal user
    operation_runs    audit of every sweep/backfill/ingest invocation

APPEND-ONLY CONTRACT (events):
  - AppendEvent is the ONLY write on the event log
  - No Update or Delete methods exist
  - The dedup key (user, timestamp, kind) is enforced before insert;
    violations surface as ErrDuplicateEvent

UPSERT CONTRACT (day entries):
  - UpsertEntry is keyed on (user, date) and never creates a second row
  - Re-running any operation converges instead of duplicating state

CONCURRENCY:
  The engine holds no locks of its own. Correctness under concurrent callers
  (two admins triggering a sweep at once) rests entirely on these two
  contracts: dedup-by-key insert and per-row transactional upsert.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: Production SQLite
  - engine/store/memory.go: In-memory for testing

SEE ALSO:
  - derive.go, sweep.go, backfill.go: Consumers of these interfaces
*/
package engine

import (
	"context"
	"time"
)

// =============================================================================
// EVENT STORE - Append-only, deduplicated punch log
// =============================================================================

// EventStore persists canonical events. Append-only: no Update, no Delete.
type EventStore interface {
	// AppendEvent persists an event. Returns ErrDuplicateEvent if an event
	// with the same (user, timestamp, kind) already exists.
	AppendEvent(ctx context.Context, ev Event) error

	// EventsForDay returns all events for a user whose timestamp falls on
	// the given calendar day, ordered by timestamp.
	EventsForDay(ctx context.Context, userID string, day Date) ([]Event, error)

	// HasEvent checks the dedup key without writing.
	HasEvent(ctx context.Context, userID string, at time.Time, kind EventKind) (bool, error)
}

// =============================================================================
// DAY ENTRY STORE - One row per (user, date)
// =============================================================================

type DayEntryStore interface {
	// UpsertEntry inserts or updates the single row for (entry.UserID,
	// entry.Date). CreatedAt is preserved on update.
	UpsertEntry(ctx context.Context, entry DayEntry) error

	// GetEntry returns the entry for (user, date), or ErrEntryNotFound.
	GetEntry(ctx context.Context, userID string, day Date) (*DayEntry, error)

	// EntriesInRange returns a user's entries with dates in [from, to],
	// ordered by date. Empty userID means all users.
	EntriesInRange(ctx context.Context, userID string, from, to Date) ([]DayEntry, error)

	// OpenEntries returns entries in [from, to] that are candidates for
	// auto-checkout: check-in set, check-out null, status in_progress,
	// no manual override.
	OpenEntries(ctx context.Context, from, to Date) ([]DayEntry, error)

	// EntriesWithStatus returns entries in [from, to] with the given derived
	// status, across all users.
	EntriesWithStatus(ctx context.Context, status Status, from, to Date) ([]DayEntry, error)
}

// =============================================================================
// USER / MAPPING STORES
// =============================================================================

type UserStore interface {
	SaveUser(ctx context.Context, u User) error
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
}

// MappingStore persists identity mappings. Mappings are deactivated, never
// hard-deleted: the event log references their users.
type MappingStore interface {
	// SaveMapping writes a mapping. Saving an active mapping deactivates any
	// previously active mapping for the same external code (at most one
	// active mapping per code).
	SaveMapping(ctx context.Context, m IdentityMapping) error

	// ActiveMapping returns the active mapping for an external code, or
	// ErrMappingNotFound.
	ActiveMapping(ctx context.Context, externalCode string) (*IdentityMapping, error)

	ListMappings(ctx context.Context, includeInactive bool) ([]IdentityMapping, error)

	// DeactivateMapping soft-deletes the active mapping for a code.
	DeactivateMapping(ctx context.Context, externalCode string) error
}

// =============================================================================
// OPERATION LOG - Batch invocation audit
// =============================================================================

type OperationLog interface {
	RecordRun(ctx context.Context, run OperationRun) error

	// ListRuns returns the most recent runs, newest first.
	ListRuns(ctx context.Context, limit int) ([]OperationRun, error)
}

// =============================================================================
// STORE - Everything the engine needs
// =============================================================================

type Store interface {
	EventStore
	DayEntryStore
	UserStore
	MappingStore
	OperationLog
}

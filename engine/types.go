/*
Package engine provides the core attendance reconciliation engine.

PURPOSE:
  This package contains the domain types and algorithms that turn raw punch
  events into authoritative per-day attendance records: the canonical event
  log, the day-entry deriver, the late classifier, the auto-checkout sweeper,
  the absence/holiday backfiller, and the manual override layer.

KEY CONCEPTS IN THIS FILE (types.go):
  - Event: One normalized check-in or check-out, deduplicated and immutable
  - DayEntry: The single authoritative record per (user, calendar date)
  - Status: Day-entry lifecycle (not_started -> in_progress -> completed, ...)
  - WorkWeek: Per-user working-day configuration (drives absent vs holiday)
  - IdentityMapping: External employee code <-> internal user association
  - OperationRun/OperationReport: Audit records for batch invocations

DESIGN PRINCIPLES:
  1. Immutability: Events are never modified once written
  2. Single row: Exactly one DayEntry per (user, date), maintained by upsert
  3. Re-run safety: Every operation is safe under at-least-once invocation
  4. Override precedence: Manual overrides win at the read/compose boundary,
     never by suppressing derivation

SEE ALSO:
  - derive.go: Folds events into day entries
  - sweep.go: Auto-checkout for open entries
  - backfill.go: Absent/holiday generation and reclassification
  - override.go: Manual correction layer
*/
package engine

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// DATE - Calendar day (UTC midnight)
// =============================================================================

// Date is a calendar day. The underlying time is always UTC midnight so
// dates compare and map-key cleanly.
type Date struct {
	Time time.Time
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates a timestamp to its calendar day.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses "2006-01-02".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool  { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool  { return d.Time.Equal(other.Time) }
func (d Date) IsZero() bool           { return d.Time.IsZero() }

// Arithmetic and properties
func (d Date) AddDays(n int) Date        { return DateOf(d.Time.AddDate(0, 0, n)) }
func (d Date) Weekday() time.Weekday     { return d.Time.Weekday() }
func (d Date) String() string            { return d.Time.Format("2006-01-02") }

// EachDay calls fn for every day in [from, to] inclusive.
func EachDay(from, to Date, fn func(Date) error) error {
	for d := from; !d.After(to); d = d.AddDays(1) {
		if err := fn(d); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// TIME OF DAY - Minutes past midnight
// =============================================================================

// TimeOfDay is a clock time with minute precision, independent of any date.
// Used for workday start, grace thresholds, default checkout, and punch times.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// ParseTimeOfDay parses "15:04", with a "15:04:05" fallback because some
// providers include seconds. Seconds are discarded.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		t, err = time.Parse("15:04:05", s)
		if err != nil {
			return 0, fmt.Errorf("invalid time of day %q: %w", s, err)
		}
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

// TimeOfDayOf extracts the clock time from a timestamp.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return NewTimeOfDay(t.Hour(), t.Minute())
}

func (td TimeOfDay) Hour() int   { return int(td) / 60 }
func (td TimeOfDay) Minute() int { return int(td) % 60 }

func (td TimeOfDay) AddMinutes(n int) TimeOfDay { return td + TimeOfDay(n) }

// At anchors the clock time on a calendar day.
func (td TimeOfDay) At(d Date) time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), td.Hour(), td.Minute(), 0, 0, time.UTC)
}

func (td TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", td.Hour(), td.Minute())
}

// =============================================================================
// CANONICAL EVENT - One normalized punch
// =============================================================================

type EventKind string

const (
	EventCheckIn  EventKind = "check-in"
	EventCheckOut EventKind = "check-out"
	EventUnknown  EventKind = "unknown"
)

type EventSource string

const (
	SourceProvider EventSource = "external-provider"
	SourceManual   EventSource = "manual"
)

// Event is a canonical punch event. Immutable once written.
//
// UNIQUENESS INVARIANT: no two events may share (UserID, At, Kind). Stores
// enforce this before insert and report violations as ErrDuplicateEvent;
// ingestion treats a duplicate as a silent skip, never as an update.
type Event struct {
	ID         string
	UserID     string
	At         time.Time
	Kind       EventKind
	Source     EventSource
	DeviceRef  string
	RawPayload string // opaque provider payload, kept for audit, never parsed
	CreatedAt  time.Time
}

// DedupKey is the uniqueness key for the event log.
func (e Event) DedupKey() string {
	return e.UserID + "|" + e.At.UTC().Format(time.RFC3339) + "|" + string(e.Kind)
}

// =============================================================================
// DAY ENTRY STATUS
// =============================================================================

type Status string

const (
	StatusNotStarted Status = "not_started" // no punches, date not yet processed
	StatusInProgress Status = "in_progress" // check-in present, check-out absent
	StatusCompleted  Status = "completed"   // both ends present
	StatusAbsent     Status = "absent"      // work day, backfilled, no punches
	StatusHoliday    Status = "holiday"     // non-work day, backfilled

	// Override-only display statuses.
	StatusPresent      Status = "present"
	StatusLeaveGranted Status = "leave_granted"
)

func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted, StatusAbsent,
		StatusHoliday, StatusPresent, StatusLeaveGranted:
		return true
	}
	return false
}

// ValidOverride reports whether s may be set as a manual override status.
func (s Status) ValidOverride() bool {
	switch s {
	case StatusCompleted, StatusAbsent, StatusHoliday, StatusPresent, StatusLeaveGranted:
		return true
	}
	return false
}

// IsBackfilled reports whether s was produced by the backfiller rather than
// by actual punches.
func (s Status) IsBackfilled() bool {
	return s == StatusAbsent || s == StatusHoliday
}

// IsAttendance reports whether s reflects attendance that actually happened.
// Backfill must never overwrite an entry in one of these states.
func (s Status) IsAttendance() bool {
	return s == StatusInProgress || s == StatusCompleted
}

// ClearsTimes reports whether an override with this status wipes the entry's
// check-in/check-out/worked fields.
func (s Status) ClearsTimes() bool {
	return s == StatusAbsent || s == StatusHoliday || s == StatusLeaveGranted
}

// =============================================================================
// DAY ENTRY - The single authoritative row per (user, date)
// =============================================================================

// DayEntry is the authoritative attendance record for one user on one day.
//
// INVARIANT: exactly one row per (UserID, Date); all writes are upserts keyed
// on that pair. Entries are never deleted in normal operation.
type DayEntry struct {
	UserID        string
	Date          Date
	CheckInAt     *time.Time
	CheckOutAt    *time.Time
	WorkedMinutes *int
	Status        Status
	IsLate        bool

	// Manual override. When ManualStatus is set the displayed status (and for
	// time-clearing statuses, the displayed times) come from the override.
	// Derivation keeps running underneath; precedence is applied in View().
	ManualStatus         *Status
	ManualOverrideBy     string
	ManualOverrideAt     *time.Time
	ManualOverrideReason string

	ModificationReason string // free text, e.g. "provider remark: ...", "auto checkout"

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (e *DayEntry) HasOverride() bool { return e.ManualStatus != nil }

// DayView is the composed, consumer-facing view of a day entry. Downstream
// consumers (payroll, dashboards) must read through this, never the raw row.
type DayView struct {
	UserID        string
	Date          Date
	Status        Status
	CheckInAt     *time.Time
	CheckOutAt    *time.Time
	WorkedMinutes *int
	IsLate        bool
	Overridden    bool
}

// View composes the override precedence rule at read time: if a manual status
// is present it is authoritative; otherwise the derived fields are returned.
// This is the single place the precedence rule lives.
func (e *DayEntry) View() DayView {
	v := DayView{
		UserID:        e.UserID,
		Date:          e.Date,
		Status:        e.Status,
		CheckInAt:     e.CheckInAt,
		CheckOutAt:    e.CheckOutAt,
		WorkedMinutes: e.WorkedMinutes,
		IsLate:        e.IsLate,
	}
	if e.ManualStatus == nil {
		return v
	}
	v.Status = *e.ManualStatus
	v.Overridden = true
	if e.ManualStatus.ClearsTimes() {
		v.CheckInAt = nil
		v.CheckOutAt = nil
		v.WorkedMinutes = nil
		v.IsLate = false
	}
	return v
}

// =============================================================================
// WORK WEEK - Per-user working-day configuration
// =============================================================================

// WorkWeek holds one boolean per weekday, indexed by time.Weekday
// (Sunday = 0). A false entry means days with no punches backfill as holiday
// instead of absent.
type WorkWeek [7]bool

// DefaultWorkWeek is Monday through Friday.
func DefaultWorkWeek() WorkWeek {
	var w WorkWeek
	for wd := time.Monday; wd <= time.Friday; wd++ {
		w[wd] = true
	}
	return w
}

func (w WorkWeek) IsWorkDay(d Date) bool { return w[d.Weekday()] }

// =============================================================================
// USER
// =============================================================================

type User struct {
	ID        string
	Name      string
	WorkWeek  WorkWeek
	CreatedAt time.Time
}

// =============================================================================
// IDENTITY MAPPING - External employee code <-> internal user
// =============================================================================

// IdentityMapping associates an external provider employee code with an
// internal user. At most one active mapping per external code. Mappings are
// deactivated, never hard-deleted, while events still reference the user.
type IdentityMapping struct {
	ExternalCode string
	ExternalName string
	UserID       string
	MatchScore   decimal.Decimal // confidence in [0,1]
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// =============================================================================
// OPERATION AUDIT - Runs and reports for batch invocations
// =============================================================================

type OperationKind string

const (
	OpIngest   OperationKind = "ingest"
	OpSweep    OperationKind = "auto_checkout"
	OpBackfill OperationKind = "backfill"
)

// RecordError is one per-record failure inside a batch operation.
type RecordError struct {
	Ref string // what failed, e.g. "E1042/2024-03-01"
	Err string
}

func (e RecordError) String() string { return e.Ref + ": " + e.Err }

// OperationReport accumulates the outcome of a batch operation. Batches
// continue past per-record failures and collect errors here instead of
// aborting.
type OperationReport struct {
	Kind      OperationKind
	Scope     string
	Attempted int
	Succeeded int
	Failed    int
	Errors    []RecordError
	StartedAt time.Time
}

func NewOperationReport(kind OperationKind, scope string) *OperationReport {
	return &OperationReport{Kind: kind, Scope: scope, StartedAt: time.Now().UTC()}
}

func (r *OperationReport) Success() { r.Attempted++; r.Succeeded++ }

func (r *OperationReport) Failure(ref string, err error) {
	r.Attempted++
	r.Failed++
	r.Errors = append(r.Errors, RecordError{Ref: ref, Err: err.Error()})
}

// Run converts the report into a persistable audit row.
func (r *OperationReport) Run(id string) OperationRun {
	errs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e.String()
	}
	return OperationRun{
		ID:          id,
		Kind:        r.Kind,
		Scope:       r.Scope,
		Attempted:   r.Attempted,
		Succeeded:   r.Succeeded,
		Failed:      r.Failed,
		Errors:      errs,
		OK:          r.Failed == 0,
		StartedAt:   r.StartedAt,
		CompletedAt: time.Now().UTC(),
	}
}

// OperationRun is the persisted audit record for one sweep/backfill/ingest
// invocation.
type OperationRun struct {
	ID          string
	Kind        OperationKind
	Scope       string
	Attempted   int
	Succeeded   int
	Failed      int
	Errors      []string
	OK          bool
	StartedAt   time.Time
	CompletedAt time.Time
}

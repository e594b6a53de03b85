/*
sweep.go - Auto-checkout sweeper

PURPOSE:
  Closes out open day entries (checked in, never checked out) with a
  configured default checkout time. Runs scheduled at end of day or manually
  for today, one date, or a date range.

IDEMPOTENCE:
  The selection predicate (check-out null, status in_progress) no longer
  matches a swept entry, so running the sweep twice converges: the second run
  reports zero affected records.

AUDIT:
  Every invocation persists an OperationRun with scope, counts, and the
  per-record error list.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SWEEP SCOPE
// =============================================================================

// SweepScope is the date range a sweep covers, inclusive.
type SweepScope struct {
	From Date
	To   Date
}

// SweepToday scopes the sweep to the current date.
func SweepToday() SweepScope {
	today := Today()
	return SweepScope{From: today, To: today}
}

// SweepDate scopes the sweep to one explicit date.
func SweepDate(d Date) SweepScope {
	return SweepScope{From: d, To: d}
}

func (s SweepScope) Validate() error {
	if s.To.Before(s.From) {
		return ErrInvalidRange
	}
	return nil
}

func (s SweepScope) String() string {
	if s.From.Equal(s.To) {
		return s.From.String()
	}
	return fmt.Sprintf("%s..%s", s.From, s.To)
}

// =============================================================================
// SWEEPER
// =============================================================================

// SweepConfig holds the default checkout clock time stamped on swept entries.
type SweepConfig struct {
	DefaultCheckout TimeOfDay
}

func DefaultSweepConfig() SweepConfig {
	return SweepConfig{DefaultCheckout: NewTimeOfDay(17, 0)}
}

type Sweeper struct {
	Entries DayEntryStore
	Ops     OperationLog
	Config  SweepConfig
}

func NewSweeper(entries DayEntryStore, ops OperationLog, cfg SweepConfig) *Sweeper {
	return &Sweeper{Entries: entries, Ops: ops, Config: cfg}
}

// Preview returns the entries a sweep over the scope would touch, without
// writing anything. This backs the dry-run listing before destructive
// batch actions.
func (s *Sweeper) Preview(ctx context.Context, scope SweepScope) ([]DayEntry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	open, err := s.Entries.OpenEntries(ctx, scope.From, scope.To)
	if err != nil {
		return nil, err
	}
	closable := open[:0]
	for _, entry := range open {
		if s.closable(entry) {
			closable = append(closable, entry)
		}
	}
	return closable, nil
}

// closable reports whether the default checkout lands strictly after the
// entry's check-in. An entry checked in at or past the default checkout
// cannot be closed by the sweep: the synthesized check-out would precede the
// check-in. Such entries stay in_progress for manual handling.
func (s *Sweeper) closable(entry DayEntry) bool {
	return entry.CheckInAt == nil || s.Config.DefaultCheckout.At(entry.Date).After(*entry.CheckInAt)
}

// Sweep closes every closable open entry in scope: check-out set to the
// default checkout time on the entry's own date, worked minutes recomputed,
// status completed, modification reason "auto checkout". Entries checked in
// at or after the default checkout are left open. Continues past per-entry
// failures and records the run.
func (s *Sweeper) Sweep(ctx context.Context, scope SweepScope) (*OperationReport, error) {
	open, err := s.Preview(ctx, scope)
	if err != nil {
		return nil, err
	}

	report := NewOperationReport(OpSweep, scope.String())

	for _, entry := range open {
		if err := s.sweepOne(ctx, entry); err != nil {
			report.Failure(fmt.Sprintf("%s/%s", entry.UserID, entry.Date), err)
			continue
		}
		report.Success()
	}

	if err := s.Ops.RecordRun(ctx, report.Run(uuid.NewString())); err != nil {
		return report, fmt.Errorf("failed to record sweep run: %w", err)
	}
	return report, nil
}

func (s *Sweeper) sweepOne(ctx context.Context, entry DayEntry) error {
	checkOut := s.Config.DefaultCheckout.At(entry.Date)
	entry.CheckOutAt = &checkOut
	if entry.CheckInAt != nil {
		worked := workedMinutes(*entry.CheckInAt, checkOut)
		entry.WorkedMinutes = &worked
	}
	entry.Status = StatusCompleted
	entry.ModificationReason = "auto checkout"
	entry.UpdatedAt = time.Now().UTC()
	return s.Entries.UpsertEntry(ctx, entry)
}

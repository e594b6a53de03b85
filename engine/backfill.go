/*
backfill.go - Absence/holiday backfiller

PURPOSE:
  Two cooperating passes over a date range:
    1. Generation: every (user, date) with no existing entry gets one,
       absent on configured work days, holiday otherwise.
    2. Reclassification: existing absent entries whose weekday is no longer a
       work day flip to holiday, correcting drift after a work-week
       configuration change.

  The reverse direction (holiday -> absent) is deliberately not automatic:
  a backfilled holiday is sticky, and undoing one requires a manual override.
  Reversing it silently could erase legitimate administrative intent.

NON-DESTRUCTIVENESS:
  Both passes skip dates that carry a manual override or real attendance
  (completed, in_progress). Backfill never overwrites attendance that
  actually happened.
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// BACKFILL SCOPE
// =============================================================================

// BackfillScope is a date range plus an optional user selection. Empty
// UserIDs means all users.
type BackfillScope struct {
	From    Date
	To      Date
	UserIDs []string
}

func (s BackfillScope) Validate() error {
	if s.To.Before(s.From) {
		return ErrInvalidRange
	}
	return nil
}

func (s BackfillScope) String() string {
	scope := fmt.Sprintf("%s..%s", s.From, s.To)
	if len(s.UserIDs) > 0 {
		scope += fmt.Sprintf(" (%d users)", len(s.UserIDs))
	}
	return scope
}

// =============================================================================
// BACKFILLER
// =============================================================================

type Backfiller struct {
	Entries DayEntryStore
	Users   UserStore
	Ops     OperationLog
}

func NewBackfiller(entries DayEntryStore, users UserStore, ops OperationLog) *Backfiller {
	return &Backfiller{Entries: entries, Users: users, Ops: ops}
}

// Preview returns the entries a backfill over the scope would create or
// reclassify, without writing anything.
func (b *Backfiller) Preview(ctx context.Context, scope BackfillScope) ([]DayEntry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	var planned []DayEntry
	err := b.each(ctx, scope, func(u User, day Date, existing *DayEntry) error {
		if entry, changed := b.plan(u, day, existing); changed {
			planned = append(planned, entry)
		}
		return nil
	})
	return planned, err
}

// Backfill runs both passes over the scope. Continues past per-day failures
// and records the run.
func (b *Backfiller) Backfill(ctx context.Context, scope BackfillScope) (*OperationReport, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}

	report := NewOperationReport(OpBackfill, scope.String())

	err := b.each(ctx, scope, func(u User, day Date, existing *DayEntry) error {
		entry, changed := b.plan(u, day, existing)
		if !changed {
			return nil
		}
		if err := b.Entries.UpsertEntry(ctx, entry); err != nil {
			report.Failure(fmt.Sprintf("%s/%s", u.ID, day), err)
			return nil
		}
		report.Success()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := b.Ops.RecordRun(ctx, report.Run(uuid.NewString())); err != nil {
		return report, fmt.Errorf("failed to record backfill run: %w", err)
	}
	return report, nil
}

// plan decides what, if anything, backfill does for one (user, day).
// Returns the entry to write and whether a write is needed.
func (b *Backfiller) plan(u User, day Date, existing *DayEntry) (DayEntry, bool) {
	if existing == nil {
		// Generation pass: create the missing entry.
		status := StatusHoliday
		if u.WorkWeek.IsWorkDay(day) {
			status = StatusAbsent
		}
		now := time.Now().UTC()
		return DayEntry{
			UserID:             u.ID,
			Date:               day,
			Status:             status,
			ModificationReason: "backfill",
			CreatedAt:          now,
			UpdatedAt:          now,
		}, true
	}

	// Reclassification pass: absent -> holiday only, and never on top of an
	// override or real attendance.
	if existing.HasOverride() || existing.Status.IsAttendance() {
		return DayEntry{}, false
	}
	if existing.Status == StatusAbsent && !u.WorkWeek.IsWorkDay(day) {
		entry := *existing
		entry.Status = StatusHoliday
		entry.ModificationReason = "backfill reclassification"
		entry.UpdatedAt = time.Now().UTC()
		return entry, true
	}
	return DayEntry{}, false
}

// each visits every (user, day) pair in scope with the existing entry, if any.
func (b *Backfiller) each(ctx context.Context, scope BackfillScope, fn func(User, Date, *DayEntry) error) error {
	users, err := b.selectUsers(ctx, scope)
	if err != nil {
		return err
	}

	for _, u := range users {
		entries, err := b.Entries.EntriesInRange(ctx, u.ID, scope.From, scope.To)
		if err != nil {
			return err
		}
		byDate := make(map[Date]*DayEntry, len(entries))
		for i := range entries {
			byDate[entries[i].Date] = &entries[i]
		}

		user := u
		if err := EachDay(scope.From, scope.To, func(day Date) error {
			return fn(user, day, byDate[day])
		}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Backfiller) selectUsers(ctx context.Context, scope BackfillScope) ([]User, error) {
	if len(scope.UserIDs) == 0 {
		return b.Users.ListUsers(ctx)
	}
	users := make([]User, 0, len(scope.UserIDs))
	for _, id := range scope.UserIDs {
		u, err := b.Users.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, nil
}

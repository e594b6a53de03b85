/*
derive.go - Day entry derivation

PURPOSE:
  Folds the canonical event log for one (user, date) into the single
  authoritative DayEntry: earliest check-in, latest valid check-out, worked
  minutes, lateness, and lifecycle status.

ORDERING GUARANTEE:
  The day's boundary is a min/max over the event set, not a most-recent-write
  rule, so derivation is deterministic regardless of the insertion order of
  the underlying events.

OVERRIDE INTERACTION:
  Derivation always runs, even when a manual override exists, so the
  underlying data stays current. Precedence is applied at the read/compose
  boundary (DayEntry.View), never by skipping derivation here.
*/
package engine

import (
	"context"
	"time"
)

// Deriver computes day entries from the event log.
type Deriver struct {
	Events  EventStore
	Entries DayEntryStore
	Late    LatePolicy
}

func NewDeriver(events EventStore, entries DayEntryStore, late LatePolicy) *Deriver {
	return &Deriver{Events: events, Entries: entries, Late: late}
}

// Derive recomputes the entry for (user, day) from the event log and upserts
// it. Re-deriving a date that already has a row updates it in place; a
// duplicate row is never created.
//
// If there are no events and no existing entry, nothing is written and
// (nil, nil) is returned: not_started days have no row by definition.
func (d *Deriver) Derive(ctx context.Context, userID string, day Date) (*DayEntry, error) {
	return d.DeriveWithReason(ctx, userID, day, "")
}

// DeriveWithReason is Derive with a modification reason to stamp on the
// entry, e.g. "provider remark: forgot badge". An empty reason leaves any
// existing reason untouched.
func (d *Deriver) DeriveWithReason(ctx context.Context, userID string, day Date, reason string) (*DayEntry, error) {
	events, err := d.Events.EventsForDay(ctx, userID, day)
	if err != nil {
		return nil, err
	}

	existing, err := d.Entries.GetEntry(ctx, userID, day)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}

	checkIn, checkOut := dayBoundary(events)

	if checkIn == nil {
		// No usable punches. Leave backfilled or overridden entries alone;
		// without an existing row there is nothing to record yet.
		return existing, nil
	}

	entry := DayEntry{UserID: userID, Date: day, CreatedAt: time.Now().UTC()}
	if existing != nil {
		entry = *existing
	}

	entry.CheckInAt = checkIn
	entry.IsLate = d.Late.IsLate(*checkIn)
	entry.CheckOutAt = checkOut
	if checkOut != nil {
		worked := workedMinutes(*checkIn, *checkOut)
		entry.WorkedMinutes = &worked
		entry.Status = StatusCompleted
	} else {
		entry.WorkedMinutes = nil
		entry.Status = StatusInProgress
	}
	if reason != "" {
		entry.ModificationReason = reason
	}
	entry.UpdatedAt = time.Now().UTC()

	if err := d.Entries.UpsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// dayBoundary selects the earliest check-in and the latest check-out that is
// strictly after it. Unknown-kind events are kept in the log for audit but
// carry no attendance meaning.
func dayBoundary(events []Event) (checkIn, checkOut *time.Time) {
	for i := range events {
		ev := events[i]
		if ev.Kind != EventCheckIn {
			continue
		}
		if checkIn == nil || ev.At.Before(*checkIn) {
			at := ev.At
			checkIn = &at
		}
	}
	if checkIn == nil {
		return nil, nil
	}
	for i := range events {
		ev := events[i]
		if ev.Kind != EventCheckOut || !ev.At.After(*checkIn) {
			continue
		}
		if checkOut == nil || ev.At.After(*checkOut) {
			at := ev.At
			checkOut = &at
		}
	}
	return checkIn, checkOut
}

// workedMinutes is checkout minus checkin in whole minutes, floored at zero.
// Negative spans cannot occur given the normalizer's ordering guarantee, but
// a manual event could violate it.
func workedMinutes(checkIn, checkOut time.Time) int {
	m := int(checkOut.Sub(checkIn).Minutes())
	if m < 0 {
		return 0
	}
	return m
}

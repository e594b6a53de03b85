/*
override.go - Manual override layer

PURPOSE:
  Administrative correction path. An override freezes a day entry's displayed
  status (and, for time-clearing statuses, its displayed times) independent
  of the derivation pipeline, with full audit: who, when, why, and what the
  entry looked like before.

PRECEDENCE:
  The override is authoritative for display and for every downstream
  consumer until cleared. Derivation keeps running underneath; the precedence
  rule itself lives in DayEntry.View().
*/
package engine

import (
	"context"
	"fmt"
	"time"
)

// OverrideRequest is an admin-submitted correction for one (user, date).
type OverrideRequest struct {
	UserID     string
	Date       Date
	Status     Status
	CheckInAt  *time.Time
	CheckOutAt *time.Time
	Reason     string
	AppliedBy  string
}

// Validate rejects inconsistent submissions synchronously; nothing is
// written on failure.
func (r OverrideRequest) Validate() error {
	reject := func(reason string) error {
		return &InvalidOverrideError{UserID: r.UserID, Date: r.Date, Reason: reason}
	}
	if r.UserID == "" {
		return reject("user is required")
	}
	if r.Reason == "" {
		return reject("reason is required")
	}
	if r.AppliedBy == "" {
		return reject("applying admin is required")
	}
	if !r.Status.ValidOverride() {
		return reject(fmt.Sprintf("status %q cannot be set manually", r.Status))
	}
	if r.Status.ClearsTimes() && (r.CheckInAt != nil || r.CheckOutAt != nil) {
		return reject(fmt.Sprintf("status %q does not take times", r.Status))
	}
	if r.Status == StatusCompleted && (r.CheckInAt == nil || r.CheckOutAt == nil) {
		return reject("completed requires both check-in and check-out")
	}
	if r.CheckInAt != nil && r.CheckOutAt != nil && !r.CheckOutAt.After(*r.CheckInAt) {
		return reject("check-out must be after check-in")
	}
	return nil
}

// Overrides applies and clears manual overrides on day entries.
type Overrides struct {
	Entries DayEntryStore
}

func NewOverrides(entries DayEntryStore) *Overrides {
	return &Overrides{Entries: entries}
}

// Apply validates and applies an override, creating the day entry on the fly
// when none exists. Submitted times are taken as-is, with no re-derivation;
// time-clearing statuses wipe the entry's times instead.
func (o *Overrides) Apply(ctx context.Context, req OverrideRequest) (*DayEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()

	entry := DayEntry{
		UserID:    req.UserID,
		Date:      req.Date,
		Status:    StatusNotStarted,
		CreatedAt: now,
	}
	existing, err := o.Entries.GetEntry(ctx, req.UserID, req.Date)
	if err != nil && !IsNotFound(err) {
		return nil, err
	}
	if existing != nil {
		entry = *existing
	}

	// Keep the pre-override view in the audit trail.
	entry.ModificationReason = fmt.Sprintf("override applied; previous: %s", describeEntry(entry))

	status := req.Status
	entry.ManualStatus = &status
	entry.ManualOverrideBy = req.AppliedBy
	entry.ManualOverrideAt = &now
	entry.ManualOverrideReason = req.Reason

	if status.ClearsTimes() {
		entry.CheckInAt = nil
		entry.CheckOutAt = nil
		entry.WorkedMinutes = nil
		entry.IsLate = false
	} else {
		if req.CheckInAt != nil {
			entry.CheckInAt = req.CheckInAt
		}
		if req.CheckOutAt != nil {
			entry.CheckOutAt = req.CheckOutAt
		}
		if entry.CheckInAt != nil && entry.CheckOutAt != nil {
			worked := workedMinutes(*entry.CheckInAt, *entry.CheckOutAt)
			entry.WorkedMinutes = &worked
		}
	}
	entry.UpdatedAt = now

	if err := o.Entries.UpsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// Clear removes the override from an entry, returning it to the derived
// view. The derived fields are already current because derivation never
// stopped running.
func (o *Overrides) Clear(ctx context.Context, userID string, day Date, clearedBy string) (*DayEntry, error) {
	existing, err := o.Entries.GetEntry(ctx, userID, day)
	if err != nil {
		return nil, err
	}
	if !existing.HasOverride() {
		return existing, nil
	}

	entry := *existing
	entry.ManualStatus = nil
	entry.ManualOverrideBy = ""
	entry.ManualOverrideAt = nil
	entry.ManualOverrideReason = ""
	entry.ModificationReason = fmt.Sprintf("override cleared by %s", clearedBy)
	entry.UpdatedAt = time.Now().UTC()

	if err := o.Entries.UpsertEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

func describeEntry(e DayEntry) string {
	desc := string(e.Status)
	if e.CheckInAt != nil {
		desc += " in=" + e.CheckInAt.Format("15:04")
	}
	if e.CheckOutAt != nil {
		desc += " out=" + e.CheckOutAt.Format("15:04")
	}
	return desc
}

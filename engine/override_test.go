package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestOverrides() (*engine.Overrides, *store.Memory) {
	mem := store.NewMemory()
	return engine.NewOverrides(mem), mem
}

func overrideReq(status engine.Status) engine.OverrideRequest {
	return engine.OverrideRequest{
		UserID:    "emp-1",
		Date:      march2,
		Status:    status,
		Reason:    "correction",
		AppliedBy: "admin-1",
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestOverride_Validation(t *testing.T) {
	in := engine.NewTimeOfDay(9, 0).At(march2)
	out := engine.NewTimeOfDay(17, 0).At(march2)

	cases := []struct {
		name   string
		mutate func(*engine.OverrideRequest)
		valid  bool
	}{
		{"valid present", func(r *engine.OverrideRequest) {}, true},
		{"missing reason", func(r *engine.OverrideRequest) { r.Reason = "" }, false},
		{"missing admin", func(r *engine.OverrideRequest) { r.AppliedBy = "" }, false},
		{"missing user", func(r *engine.OverrideRequest) { r.UserID = "" }, false},
		{"in_progress not settable", func(r *engine.OverrideRequest) { r.Status = engine.StatusInProgress }, false},
		{"not_started not settable", func(r *engine.OverrideRequest) { r.Status = engine.StatusNotStarted }, false},
		{"bogus status", func(r *engine.OverrideRequest) { r.Status = "vacationing" }, false},
		{"absent with times", func(r *engine.OverrideRequest) {
			r.Status = engine.StatusAbsent
			r.CheckInAt = &in
		}, false},
		{"completed without times", func(r *engine.OverrideRequest) { r.Status = engine.StatusCompleted }, false},
		{"completed with both times", func(r *engine.OverrideRequest) {
			r.Status = engine.StatusCompleted
			r.CheckInAt = &in
			r.CheckOutAt = &out
		}, true},
		{"check-out before check-in", func(r *engine.OverrideRequest) {
			r.Status = engine.StatusCompleted
			r.CheckInAt = &out
			r.CheckOutAt = &in
		}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := overrideReq(engine.StatusPresent)
			tc.mutate(&req)

			err := req.Validate()
			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, engine.ErrInvalidOverride)
				var ioe *engine.InvalidOverrideError
				assert.ErrorAs(t, err, &ioe)
			}
		})
	}
}

// =============================================================================
// APPLY
// =============================================================================

func TestOverride_Apply_WinsOverDerived(t *testing.T) {
	// GIVEN: A derived absent entry
	// WHEN: Overriding to present
	// THEN: The view shows present while the derived status survives underneath

	o, mem := newTestOverrides()
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: march2, Status: engine.StatusAbsent,
	}))

	entry, err := o.Apply(ctx, overrideReq(engine.StatusPresent))
	require.NoError(t, err)

	view := entry.View()
	assert.Equal(t, engine.StatusPresent, view.Status)
	assert.True(t, view.Overridden)
	assert.Equal(t, engine.StatusAbsent, entry.Status, "derived status is untouched")
	assert.Equal(t, "admin-1", entry.ManualOverrideBy)
	assert.NotNil(t, entry.ManualOverrideAt)
	assert.Equal(t, "correction", entry.ManualOverrideReason)
}

func TestOverride_Apply_CreatesMissingEntry(t *testing.T) {
	// An override may target a day that has no row yet.

	o, mem := newTestOverrides()
	ctx := context.Background()

	_, err := o.Apply(ctx, overrideReq(engine.StatusLeaveGranted))
	require.NoError(t, err)

	entry, err := mem.GetEntry(ctx, "emp-1", march2)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusLeaveGranted, entry.View().Status)
}

func TestOverride_Apply_ClearingStatusWipesTimes(t *testing.T) {
	// GIVEN: A completed entry with times
	// WHEN: Overriding to leave_granted
	// THEN: Times and lateness are wiped, in the row and in the view

	o, mem := newTestOverrides()
	ctx := context.Background()
	in := engine.NewTimeOfDay(11, 0).At(march2)
	out := engine.NewTimeOfDay(17, 0).At(march2)
	worked := 360
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: march2, Status: engine.StatusCompleted,
		CheckInAt: &in, CheckOutAt: &out, WorkedMinutes: &worked, IsLate: true,
	}))

	entry, err := o.Apply(ctx, overrideReq(engine.StatusLeaveGranted))
	require.NoError(t, err)

	assert.Nil(t, entry.CheckInAt)
	assert.Nil(t, entry.CheckOutAt)
	assert.Nil(t, entry.WorkedMinutes)
	assert.False(t, entry.IsLate)

	view := entry.View()
	assert.Nil(t, view.CheckInAt)
	assert.False(t, view.IsLate)
}

func TestOverride_Apply_CompletedSetsTimes(t *testing.T) {
	// GIVEN: No entry for the day
	// WHEN: Overriding to completed with explicit times
	// THEN: Times are taken as submitted and worked minutes computed

	o, _ := newTestOverrides()
	ctx := context.Background()

	req := overrideReq(engine.StatusCompleted)
	in := engine.NewTimeOfDay(8, 30).At(march2)
	out := engine.NewTimeOfDay(16, 30).At(march2)
	req.CheckInAt = &in
	req.CheckOutAt = &out

	entry, err := o.Apply(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, in, *entry.CheckInAt)
	assert.Equal(t, out, *entry.CheckOutAt)
	assert.Equal(t, 480, *entry.WorkedMinutes)
}

func TestOverride_Apply_KeepsPreviousStateInAudit(t *testing.T) {
	o, mem := newTestOverrides()
	ctx := context.Background()
	in := engine.NewTimeOfDay(9, 15).At(march2)
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: march2, Status: engine.StatusInProgress, CheckInAt: &in,
	}))

	entry, err := o.Apply(ctx, overrideReq(engine.StatusPresent))
	require.NoError(t, err)
	assert.Contains(t, entry.ModificationReason, "override applied")
	assert.Contains(t, entry.ModificationReason, "in_progress")
	assert.Contains(t, entry.ModificationReason, "09:15")
}

// =============================================================================
// CLEAR
// =============================================================================

func TestOverride_Clear_RestoresDerivedView(t *testing.T) {
	// GIVEN: An overridden entry
	// WHEN: Clearing the override
	// THEN: The view falls back to the derived status

	o, mem := newTestOverrides()
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: march2, Status: engine.StatusAbsent,
	}))
	_, err := o.Apply(ctx, overrideReq(engine.StatusPresent))
	require.NoError(t, err)

	entry, err := o.Clear(ctx, "emp-1", march2, "admin-2")
	require.NoError(t, err)

	assert.False(t, entry.HasOverride())
	view := entry.View()
	assert.Equal(t, engine.StatusAbsent, view.Status)
	assert.False(t, view.Overridden)
	assert.Equal(t, "override cleared by admin-2", entry.ModificationReason)
}

func TestOverride_Clear_WithoutOverride_NoOp(t *testing.T) {
	o, mem := newTestOverrides()
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: march2, Status: engine.StatusCompleted,
	}))

	entry, err := o.Clear(ctx, "emp-1", march2, "admin-2")
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, entry.Status)
	assert.Empty(t, entry.ModificationReason)
}

func TestOverride_Clear_MissingEntry(t *testing.T) {
	o, _ := newTestOverrides()

	_, err := o.Clear(context.Background(), "emp-1", march2, "admin-2")
	assert.True(t, engine.IsNotFound(err))
}

func TestView_WithoutOverride(t *testing.T) {
	// Sanity: the plain view passes the derived fields through.

	in := engine.NewTimeOfDay(9, 0).At(march2)
	worked := 60
	entry := engine.DayEntry{
		UserID: "emp-1", Date: march2, Status: engine.StatusInProgress,
		CheckInAt: &in, WorkedMinutes: &worked, IsLate: false,
		UpdatedAt: time.Now().UTC(),
	}

	view := entry.View()
	assert.Equal(t, engine.StatusInProgress, view.Status)
	assert.Equal(t, &in, view.CheckInAt)
	assert.False(t, view.Overridden)
}

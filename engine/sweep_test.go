package engine_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/engine/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestSweeper() (*engine.Sweeper, *store.Memory) {
	mem := store.NewMemory()
	return engine.NewSweeper(mem, mem, engine.DefaultSweepConfig()), mem
}

func openEntry(userID string, day engine.Date, checkIn string) engine.DayEntry {
	tod, _ := engine.ParseTimeOfDay(checkIn)
	at := tod.At(day)
	return engine.DayEntry{
		UserID:    userID,
		Date:      day,
		CheckInAt: &at,
		Status:    engine.StatusInProgress,
	}
}

// =============================================================================
// SWEEP TESTS
// =============================================================================

func TestSweep_ClosesOpenEntry(t *testing.T) {
	// GIVEN: An open entry checked in at 09:00
	// WHEN: Sweeping that date
	// THEN: Check-out 17:00, 480 worked minutes, completed, reason stamped

	s, mem := newTestSweeper()
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-1", march2, "09:00")))

	report, err := s.Sweep(ctx, engine.SweepDate(march2))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 0, report.Failed)

	entry, err := mem.GetEntry(ctx, "emp-1", march2)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, entry.Status)
	assert.Equal(t, engine.NewTimeOfDay(17, 0).At(march2), *entry.CheckOutAt)
	require.NotNil(t, entry.WorkedMinutes)
	assert.Equal(t, 480, *entry.WorkedMinutes)
	assert.Equal(t, "auto checkout", entry.ModificationReason)
}

func TestSweep_SecondRunIsNoOp(t *testing.T) {
	// GIVEN: A date that was already swept
	// WHEN: Sweeping again
	// THEN: Zero affected records; the sweep converges

	s, mem := newTestSweeper()
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-1", march2, "09:00")))

	_, err := s.Sweep(ctx, engine.SweepDate(march2))
	require.NoError(t, err)

	report, err := s.Sweep(ctx, engine.SweepDate(march2))
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
}

func TestSweep_SkipsCompletedAndOverridden(t *testing.T) {
	// GIVEN: A completed entry, an overridden entry, and an open one
	// WHEN: Sweeping
	// THEN: Only the open entry is touched

	s, mem := newTestSweeper()
	ctx := context.Background()

	completed := openEntry("emp-1", march2, "09:00")
	out := engine.NewTimeOfDay(16, 0).At(march2)
	completed.CheckOutAt = &out
	completed.Status = engine.StatusCompleted
	require.NoError(t, mem.UpsertEntry(ctx, completed))

	overridden := openEntry("emp-2", march2, "09:00")
	leave := engine.StatusLeaveGranted
	overridden.ManualStatus = &leave
	require.NoError(t, mem.UpsertEntry(ctx, overridden))

	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-3", march2, "10:00")))

	report, err := s.Sweep(ctx, engine.SweepDate(march2))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	untouched, err := mem.GetEntry(ctx, "emp-2", march2)
	require.NoError(t, err)
	assert.Nil(t, untouched.CheckOutAt, "overridden open entries are left alone")
}

func TestSweep_EveningCheckInStaysOpen(t *testing.T) {
	// GIVEN: An open entry checked in after the default checkout time
	// WHEN: Sweeping that date
	// THEN: The entry is untouched; a check-out before the check-in is
	//       never synthesized

	s, mem := newTestSweeper()
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-1", march2, "18:30")))
	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-2", march2, "17:00")))
	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-3", march2, "16:59")))

	preview, err := s.Preview(ctx, engine.SweepDate(march2))
	require.NoError(t, err)
	require.Len(t, preview, 1, "only the pre-checkout entry is sweepable")
	assert.Equal(t, "emp-3", preview[0].UserID)

	report, err := s.Sweep(ctx, engine.SweepDate(march2))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Attempted)
	assert.Equal(t, 1, report.Succeeded)

	for _, userID := range []string{"emp-1", "emp-2"} {
		entry, err := mem.GetEntry(ctx, userID, march2)
		require.NoError(t, err)
		assert.Equal(t, engine.StatusInProgress, entry.Status)
		assert.Nil(t, entry.CheckOutAt)
	}

	closed, err := mem.GetEntry(ctx, "emp-3", march2)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, closed.Status)
	assert.True(t, closed.CheckOutAt.After(*closed.CheckInAt),
		"completed entries always check out after checking in")
}

func TestSweep_RangeCoversMultipleDays(t *testing.T) {
	// GIVEN: Open entries on two consecutive days
	// WHEN: Sweeping the range
	// THEN: Both are closed on their own date

	s, mem := newTestSweeper()
	ctx := context.Background()
	march3 := march2.AddDays(1)
	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-1", march2, "09:00")))
	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-1", march3, "09:30")))

	report, err := s.Sweep(ctx, engine.SweepScope{From: march2, To: march3})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)

	day2, err := mem.GetEntry(ctx, "emp-1", march3)
	require.NoError(t, err)
	assert.Equal(t, engine.NewTimeOfDay(17, 0).At(march3), *day2.CheckOutAt,
		"checkout is stamped on the entry's own date")
}

func TestSweep_InvalidRange(t *testing.T) {
	s, _ := newTestSweeper()

	_, err := s.Sweep(context.Background(), engine.SweepScope{From: march2, To: march2.AddDays(-1)})
	assert.ErrorIs(t, err, engine.ErrInvalidRange)
}

func TestSweep_Preview_DoesNotWrite(t *testing.T) {
	// Dry run lists the open entries without closing them.

	s, mem := newTestSweeper()
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, openEntry("emp-1", march2, "09:00")))

	entries, err := s.Preview(ctx, engine.SweepDate(march2))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	entry, err := mem.GetEntry(ctx, "emp-1", march2)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusInProgress, entry.Status)
	assert.Nil(t, entry.CheckOutAt)
}

func TestSweep_RecordsRun(t *testing.T) {
	// Every invocation leaves an audit record, even an empty one.

	s, mem := newTestSweeper()
	ctx := context.Background()

	_, err := s.Sweep(ctx, engine.SweepDate(march2))
	require.NoError(t, err)

	runs, err := mem.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, engine.OpSweep, runs[0].Kind)
	assert.Equal(t, march2.String(), runs[0].Scope)
	assert.True(t, runs[0].OK)
	assert.False(t, runs[0].CompletedAt.IsZero())
}

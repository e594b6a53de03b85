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

func newTestBackfiller(t *testing.T, users ...engine.User) (*engine.Backfiller, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	for _, u := range users {
		require.NoError(t, mem.SaveUser(context.Background(), u))
	}
	return engine.NewBackfiller(mem, mem, mem), mem
}

func weekdayUser(id string) engine.User {
	return engine.User{ID: id, Name: id, WorkWeek: engine.DefaultWorkWeek()}
}

// March 2026: the 2nd is a Monday, the 7th a Saturday, the 8th a Sunday.
var (
	monday   = engine.NewDate(2026, time.March, 2)
	tuesday  = engine.NewDate(2026, time.March, 3)
	saturday = engine.NewDate(2026, time.March, 7)
	sunday   = engine.NewDate(2026, time.March, 8)
)

// =============================================================================
// GENERATION PASS
// =============================================================================

func TestBackfill_MissingDays_AbsentOrHoliday(t *testing.T) {
	// GIVEN: A Mon-Fri user with no entries over a week
	// WHEN: Backfilling Monday through Sunday
	// THEN: Work days become absent, weekend days become holiday

	b, mem := newTestBackfiller(t, weekdayUser("emp-1"))
	ctx := context.Background()

	report, err := b.Backfill(ctx, engine.BackfillScope{From: monday, To: sunday})
	require.NoError(t, err)
	assert.Equal(t, 7, report.Succeeded)

	entry, err := mem.GetEntry(ctx, "emp-1", tuesday)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusAbsent, entry.Status)
	assert.Equal(t, "backfill", entry.ModificationReason)

	entry, err = mem.GetEntry(ctx, "emp-1", saturday)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusHoliday, entry.Status)
}

func TestBackfill_SkipsRealAttendance(t *testing.T) {
	// GIVEN: A completed Monday and an in-progress Tuesday
	// WHEN: Backfilling the range
	// THEN: Both survive untouched; only the empty days are filled

	b, mem := newTestBackfiller(t, weekdayUser("emp-1"))
	ctx := context.Background()

	in := engine.NewTimeOfDay(9, 0).At(monday)
	out := engine.NewTimeOfDay(17, 0).At(monday)
	worked := 480
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: monday, Status: engine.StatusCompleted,
		CheckInAt: &in, CheckOutAt: &out, WorkedMinutes: &worked,
	}))
	inTue := engine.NewTimeOfDay(9, 30).At(tuesday)
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: tuesday, Status: engine.StatusInProgress, CheckInAt: &inTue,
	}))

	report, err := b.Backfill(ctx, engine.BackfillScope{From: monday, To: tuesday})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)

	entry, err := mem.GetEntry(ctx, "emp-1", monday)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusCompleted, entry.Status)
	assert.Equal(t, 480, *entry.WorkedMinutes)
}

func TestBackfill_SkipsOverriddenDays(t *testing.T) {
	// Overridden entries are administrative intent; backfill never touches them.

	b, mem := newTestBackfiller(t, weekdayUser("emp-1"))
	ctx := context.Background()

	leave := engine.StatusLeaveGranted
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: monday, Status: engine.StatusNotStarted, ManualStatus: &leave,
	}))

	report, err := b.Backfill(ctx, engine.BackfillScope{From: monday, To: monday})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
}

func TestBackfill_Idempotent(t *testing.T) {
	// GIVEN: A backfilled range
	// WHEN: Backfilling again
	// THEN: Nothing changes

	b, _ := newTestBackfiller(t, weekdayUser("emp-1"))
	ctx := context.Background()
	scope := engine.BackfillScope{From: monday, To: sunday}

	_, err := b.Backfill(ctx, scope)
	require.NoError(t, err)

	report, err := b.Backfill(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)
}

// =============================================================================
// RECLASSIFICATION PASS
// =============================================================================

func TestBackfill_AbsentOnNonWorkDay_BecomesHoliday(t *testing.T) {
	// GIVEN: Saturday marked absent under an old work-week configuration,
	//        and the user's Saturday is no longer a work day
	// WHEN: Backfilling
	// THEN: The entry reclassifies to holiday

	b, mem := newTestBackfiller(t, weekdayUser("emp-1"))
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: saturday, Status: engine.StatusAbsent,
	}))

	report, err := b.Backfill(ctx, engine.BackfillScope{From: saturday, To: saturday})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	entry, err := mem.GetEntry(ctx, "emp-1", saturday)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusHoliday, entry.Status)
	assert.Equal(t, "backfill reclassification", entry.ModificationReason)
}

func TestBackfill_HolidayOnWorkDay_StaysHoliday(t *testing.T) {
	// The reverse direction is manual-only: a holiday on a work day is never
	// silently flipped back to absent.

	b, mem := newTestBackfiller(t, weekdayUser("emp-1"))
	ctx := context.Background()
	require.NoError(t, mem.UpsertEntry(ctx, engine.DayEntry{
		UserID: "emp-1", Date: monday, Status: engine.StatusHoliday,
	}))

	report, err := b.Backfill(ctx, engine.BackfillScope{From: monday, To: monday})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Attempted)

	entry, err := mem.GetEntry(ctx, "emp-1", monday)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusHoliday, entry.Status)
}

// =============================================================================
// SCOPE AND SELECTION
// =============================================================================

func TestBackfill_UserSelection(t *testing.T) {
	// GIVEN: Two users
	// WHEN: Backfilling only one
	// THEN: The other gets no entries

	b, mem := newTestBackfiller(t, weekdayUser("emp-1"), weekdayUser("emp-2"))
	ctx := context.Background()

	_, err := b.Backfill(ctx, engine.BackfillScope{From: monday, To: monday, UserIDs: []string{"emp-1"}})
	require.NoError(t, err)

	_, err = mem.GetEntry(ctx, "emp-1", monday)
	assert.NoError(t, err)
	_, err = mem.GetEntry(ctx, "emp-2", monday)
	assert.True(t, engine.IsNotFound(err))
}

func TestBackfill_UnknownUser(t *testing.T) {
	b, _ := newTestBackfiller(t)

	_, err := b.Backfill(context.Background(), engine.BackfillScope{
		From: monday, To: monday, UserIDs: []string{"nope"},
	})
	assert.True(t, engine.IsNotFound(err))
}

func TestBackfill_Preview_DoesNotWrite(t *testing.T) {
	b, mem := newTestBackfiller(t, weekdayUser("emp-1"))
	ctx := context.Background()

	planned, err := b.Preview(ctx, engine.BackfillScope{From: monday, To: sunday})
	require.NoError(t, err)
	assert.Len(t, planned, 7)

	_, err = mem.GetEntry(ctx, "emp-1", monday)
	assert.True(t, engine.IsNotFound(err))
}

func TestBackfill_RecordsRun(t *testing.T) {
	b, mem := newTestBackfiller(t, weekdayUser("emp-1"))
	ctx := context.Background()

	_, err := b.Backfill(ctx, engine.BackfillScope{From: monday, To: tuesday})
	require.NoError(t, err)

	runs, err := mem.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, engine.OpBackfill, runs[0].Kind)
	assert.Equal(t, 2, runs[0].Succeeded)
}

package engine_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/warp/attendance-engine/engine"
)

// =============================================================================
// LATE CLASSIFIER TESTS
// =============================================================================
// lateVector is the equivalence contract for the lateness rule: any other
// evaluation of the policy (e.g. pushed into the datastore) must agree with
// every row here.

var lateVector = []struct {
	name    string
	checkIn string // clock time on an arbitrary day
	late    bool
}{
	{"well before start", "08:00", false},
	{"exactly at workday start", "10:30", false},
	{"inside grace window", "10:40", false},
	{"exactly at threshold", "10:45", false},
	{"one minute past threshold", "10:46", true},
	{"five minutes past threshold", "10:50", true},
	{"late afternoon", "15:12", true},
	{"just before midnight", "23:59", true},
	{"midnight", "00:00", false},
}

func TestLatePolicy_DefaultThreshold(t *testing.T) {
	// GIVEN: The default policy (10:30 start, 15 minute grace)
	// THEN: The threshold is 10:45

	p := engine.DefaultLatePolicy()
	assert.Equal(t, engine.NewTimeOfDay(10, 45), p.Threshold())
}

func TestLatePolicy_Vector(t *testing.T) {
	p := engine.DefaultLatePolicy()
	day := engine.NewDate(2026, time.March, 2)

	for _, tc := range lateVector {
		t.Run(tc.name, func(t *testing.T) {
			tod, err := engine.ParseTimeOfDay(tc.checkIn)
			assert.NoError(t, err)
			assert.Equal(t, tc.late, p.IsLate(tod.At(day)), "check-in at %s", tc.checkIn)
		})
	}
}

func TestLatePolicy_ZeroGrace(t *testing.T) {
	// GIVEN: A policy with no grace window
	// WHEN: Checking in one minute after the workday start
	// THEN: The check-in is late

	p := engine.LatePolicy{WorkdayStart: engine.NewTimeOfDay(9, 0), GraceMinutes: 0}
	day := engine.NewDate(2026, time.March, 2)

	assert.False(t, p.IsLate(engine.NewTimeOfDay(9, 0).At(day)))
	assert.True(t, p.IsLate(engine.NewTimeOfDay(9, 1).At(day)))
}

func TestLatePolicy_IndependentOfDate(t *testing.T) {
	// The rule compares clock time only; the calendar day never matters.

	p := engine.DefaultLatePolicy()
	tod := engine.NewTimeOfDay(11, 0)

	assert.True(t, p.IsLate(tod.At(engine.NewDate(2026, time.January, 5))))
	assert.True(t, p.IsLate(tod.At(engine.NewDate(2026, time.August, 29))))
}

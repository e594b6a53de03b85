package engine

import "time"

// =============================================================================
// LATE CLASSIFIER - Pure policy function
// =============================================================================

// LatePolicy classifies a check-in as late when its clock time is strictly
// later than WorkdayStart plus GraceMinutes, evaluated on the check-in's own
// calendar day.
//
// This is the single implementation of the lateness policy. Deployments that
// prefer evaluating it in the datastore must encode exactly this rule; the
// shared test vector in late_test.go is the equivalence contract.
type LatePolicy struct {
	WorkdayStart TimeOfDay
	GraceMinutes int
}

// DefaultLatePolicy is a 10:30 workday start with a 15 minute grace window.
func DefaultLatePolicy() LatePolicy {
	return LatePolicy{WorkdayStart: NewTimeOfDay(10, 30), GraceMinutes: 15}
}

// Threshold is the latest non-late check-in clock time.
func (p LatePolicy) Threshold() TimeOfDay {
	return p.WorkdayStart.AddMinutes(p.GraceMinutes)
}

// IsLate reports whether a check-in at the given instant is late. Pure; safe
// to call arbitrarily often.
func (p LatePolicy) IsLate(checkIn time.Time) bool {
	return TimeOfDayOf(checkIn) > p.Threshold()
}

/*
Package provider is the boundary to the external biometric/time-clock API.

PURPOSE:
  The provider delivers one record per employee per day, with locale-formatted
  date and time-of-day strings. This package normalizes those records into
  canonical events (record.go, normalize.go) and orchestrates batch ingestion
  into the engine (ingest.go).

SEE ALSO:
  - engine: canonical events and day entry derivation
  - identity: external code -> internal user resolution
*/
package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/warp/attendance-engine/engine"
)

// =============================================================================
// RAW PROVIDER RECORD
// =============================================================================

// Record is one raw per-employee daily record as delivered by the provider.
// Only Date, InTime, OutTime and the identity fields are interpreted; the
// rest rides along into the event's raw payload for audit.
type Record struct {
	EmployeeCode string `json:"employee_code"`
	EmployeeName string `json:"employee_name"`
	InTime       string `json:"in_time"`  // "15:04" or "15:04:05"
	OutTime      string `json:"out_time"` // same formats; may echo InTime for open days
	TotalWorked  string `json:"total_worked,omitempty"`
	Overtime     string `json:"overtime,omitempty"`
	BreakTime    string `json:"break_time,omitempty"`
	StatusCode   string `json:"status_code,omitempty"`
	Date         string `json:"date"` // "02/01/2006", day/month/year
	Remark       string `json:"remark,omitempty"`
	EarlyOut     bool   `json:"early_out,omitempty"`
	LateIn       bool   `json:"late_in,omitempty"`
	Device       string `json:"device,omitempty"`
}

// Ref identifies the record in error lists: employee code + date string.
func (r Record) Ref() string {
	return fmt.Sprintf("%s/%s", r.EmployeeCode, r.Date)
}

// MalformedRecordError rejects a whole record, keyed to employee+date.
type MalformedRecordError struct {
	EmployeeCode string
	Date         string
	Field        string
	Reason       string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed record for %s on %s: %s %s", e.EmployeeCode, e.Date, e.Field, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return engine.ErrMalformedRecord }

// =============================================================================
// PUNCH NORMALIZER
// =============================================================================

// providerDateLayout is the provider's day/month/year format.
const providerDateLayout = "02/01/2006"

// Normalize turns a raw record into zero, one, or two canonical events for
// the given internal user.
//
// Rules:
//   - The date and in-time must parse or the whole record is rejected.
//   - The out-time becomes a checkout event only if it parses, differs from
//     the in-time, and is strictly after it. Anything else means the
//     employee has not checked out yet: no checkout event, no error. The
//     strictly-after rule guards against providers that echo the check-in
//     time into both fields for an open day.
func Normalize(rec Record, userID string) ([]engine.Event, error) {
	day, err := time.Parse(providerDateLayout, rec.Date)
	if err != nil {
		return nil, &MalformedRecordError{
			EmployeeCode: rec.EmployeeCode, Date: rec.Date,
			Field: "date", Reason: fmt.Sprintf("%q does not parse as day/month/year", rec.Date),
		}
	}
	date := engine.DateOf(day)

	inTOD, err := engine.ParseTimeOfDay(rec.InTime)
	if err != nil {
		return nil, &MalformedRecordError{
			EmployeeCode: rec.EmployeeCode, Date: rec.Date,
			Field: "in_time", Reason: fmt.Sprintf("%q does not parse", rec.InTime),
		}
	}
	checkIn := inTOD.At(date)

	payload, _ := json.Marshal(rec)
	now := time.Now().UTC()

	events := []engine.Event{{
		ID:         uuid.NewString(),
		UserID:     userID,
		At:         checkIn,
		Kind:       engine.EventCheckIn,
		Source:     engine.SourceProvider,
		DeviceRef:  rec.Device,
		RawPayload: string(payload),
		CreatedAt:  now,
	}}

	if checkOut, ok := parseCheckOut(rec.OutTime, rec.InTime, date, checkIn); ok {
		events = append(events, engine.Event{
			ID:         uuid.NewString(),
			UserID:     userID,
			At:         checkOut,
			Kind:       engine.EventCheckOut,
			Source:     engine.SourceProvider,
			DeviceRef:  rec.Device,
			RawPayload: string(payload),
			CreatedAt:  now,
		})
	}

	return events, nil
}

// parseCheckOut applies the checkout acceptance rules. A failure here is
// "not checked out yet", never an error.
func parseCheckOut(outTime, inTime string, date engine.Date, checkIn time.Time) (time.Time, bool) {
	if outTime == "" || outTime == inTime {
		return time.Time{}, false
	}
	outTOD, err := engine.ParseTimeOfDay(outTime)
	if err != nil {
		return time.Time{}, false
	}
	checkOut := outTOD.At(date)
	if !checkOut.After(checkIn) {
		return time.Time{}, false
	}
	return checkOut, true
}

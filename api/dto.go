/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  JSON structures for the admin API. These decouple the engine's domain
  model from the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers (dates, times, statuses); DTOs are pure
  data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/identity"
	"github.com/warp/attendance-engine/provider"
)

// =============================================================================
// DAY ENTRIES
// =============================================================================

// DayViewDTO is the composed, consumer-facing view of one day entry.
// manual_status, when present, is authoritative for downstream consumers.
type DayViewDTO struct {
	UserID        string `json:"user_id"`
	Date          string `json:"date"`
	Status        string `json:"status"`
	CheckInAt     string `json:"check_in_at,omitempty"`
	CheckOutAt    string `json:"check_out_at,omitempty"`
	WorkedMinutes *int   `json:"worked_minutes,omitempty"`
	IsLate        bool   `json:"is_late"`
	Overridden    bool   `json:"overridden"`
}

// DayEntryDTO exposes the underlying row, derived fields and override audit
// included. Used by the single-entry admin endpoint.
type DayEntryDTO struct {
	View DayViewDTO `json:"view"`

	DerivedStatus        string `json:"derived_status"`
	CheckInAt            string `json:"check_in_at,omitempty"`
	CheckOutAt           string `json:"check_out_at,omitempty"`
	WorkedMinutes        *int   `json:"worked_minutes,omitempty"`
	IsLate               bool   `json:"is_late"`
	ManualStatus         string `json:"manual_status,omitempty"`
	ManualOverrideBy     string `json:"manual_override_by,omitempty"`
	ManualOverrideAt     string `json:"manual_override_at,omitempty"`
	ManualOverrideReason string `json:"manual_override_reason,omitempty"`
	ModificationReason   string `json:"modification_reason,omitempty"`
	CreatedAt            string `json:"created_at,omitempty"`
	UpdatedAt            string `json:"updated_at,omitempty"`
}

// OverrideRequestDTO submits a manual override.
type OverrideRequestDTO struct {
	Status     string `json:"status"`
	CheckInAt  string `json:"check_in_at,omitempty"`  // RFC3339
	CheckOutAt string `json:"check_out_at,omitempty"` // RFC3339
	Reason     string `json:"reason"`
	AppliedBy  string `json:"applied_by"`
}

// =============================================================================
// BATCH OPERATIONS
// =============================================================================

// SweepRequest scopes an auto-checkout sweep. Omitting all date fields
// means "today".
type SweepRequest struct {
	Date   string `json:"date,omitempty"`
	From   string `json:"from,omitempty"`
	To     string `json:"to,omitempty"`
	DryRun bool   `json:"dry_run,omitempty"`
}

// BackfillRequest scopes an absence/holiday backfill.
type BackfillRequest struct {
	From    string   `json:"from"`
	To      string   `json:"to"`
	UserIDs []string `json:"user_ids,omitempty"`
	DryRun  bool     `json:"dry_run,omitempty"`
}

// ReportDTO is the outcome of a batch operation.
type ReportDTO struct {
	Kind      string   `json:"kind"`
	Scope     string   `json:"scope"`
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// PreviewDTO is the dry-run listing of what a batch operation would touch.
type PreviewDTO struct {
	Count   int          `json:"count"`
	Entries []DayViewDTO `json:"entries"`
}

// IngestRequest carries a batch of raw provider records.
type IngestRequest struct {
	Records []provider.Record `json:"records"`
}

// OperationRunDTO is one persisted batch audit record.
type OperationRunDTO struct {
	ID          string   `json:"id"`
	Kind        string   `json:"kind"`
	Scope       string   `json:"scope"`
	Attempted   int      `json:"attempted"`
	Succeeded   int      `json:"succeeded"`
	Failed      int      `json:"failed"`
	Errors      []string `json:"errors,omitempty"`
	OK          bool     `json:"ok"`
	StartedAt   string   `json:"started_at"`
	CompletedAt string   `json:"completed_at"`
}

// =============================================================================
// USERS AND MAPPINGS
// =============================================================================

type UserDTO struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	WorkWeek  [7]bool `json:"work_week"` // Sunday first
	CreatedAt string  `json:"created_at,omitempty"`
}

type CreateUserRequest struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	WorkWeek *[7]bool `json:"work_week,omitempty"` // default Mon-Fri
}

type WorkWeekRequest struct {
	WorkWeek [7]bool `json:"work_week"`
}

type MappingDTO struct {
	ExternalCode string `json:"external_code"`
	ExternalName string `json:"external_name"`
	UserID       string `json:"user_id"`
	MatchScore   string `json:"match_score"`
	IsActive     bool   `json:"is_active"`
	CreatedAt    string `json:"created_at,omitempty"`
}

type CreateMappingRequest struct {
	ExternalCode string `json:"external_code"`
	ExternalName string `json:"external_name"`
	UserID       string `json:"user_id"`
}

// PendingMappingDTO is a fuzzy-match candidate awaiting confirmation.
type PendingMappingDTO struct {
	ExternalCode string `json:"external_code"`
	ExternalName string `json:"external_name"`
	UserID       string `json:"user_id"`
	UserName     string `json:"user_name"`
	Score        string `json:"score"`
	ProposedAt   string `json:"proposed_at"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toDayViewDTO(v engine.DayView) DayViewDTO {
	return DayViewDTO{
		UserID:        v.UserID,
		Date:          v.Date.String(),
		Status:        string(v.Status),
		CheckInAt:     fmtTime(v.CheckInAt),
		CheckOutAt:    fmtTime(v.CheckOutAt),
		WorkedMinutes: v.WorkedMinutes,
		IsLate:        v.IsLate,
		Overridden:    v.Overridden,
	}
}

func toDayEntryDTO(e engine.DayEntry) DayEntryDTO {
	dto := DayEntryDTO{
		View:                 toDayViewDTO(e.View()),
		DerivedStatus:        string(e.Status),
		CheckInAt:            fmtTime(e.CheckInAt),
		CheckOutAt:           fmtTime(e.CheckOutAt),
		WorkedMinutes:        e.WorkedMinutes,
		IsLate:               e.IsLate,
		ManualOverrideBy:     e.ManualOverrideBy,
		ManualOverrideAt:     fmtTime(e.ManualOverrideAt),
		ManualOverrideReason: e.ManualOverrideReason,
		ModificationReason:   e.ModificationReason,
		CreatedAt:            e.CreatedAt.Format(time.RFC3339),
		UpdatedAt:            e.UpdatedAt.Format(time.RFC3339),
	}
	if e.ManualStatus != nil {
		dto.ManualStatus = string(*e.ManualStatus)
	}
	return dto
}

func toReportDTO(r *engine.OperationReport) ReportDTO {
	errs := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e.String()
	}
	return ReportDTO{
		Kind:      string(r.Kind),
		Scope:     r.Scope,
		Attempted: r.Attempted,
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Errors:    errs,
	}
}

func toPreviewDTO(entries []engine.DayEntry) PreviewDTO {
	views := make([]DayViewDTO, len(entries))
	for i, e := range entries {
		views[i] = toDayViewDTO(e.View())
	}
	return PreviewDTO{Count: len(views), Entries: views}
}

func toRunDTO(run engine.OperationRun) OperationRunDTO {
	return OperationRunDTO{
		ID:          run.ID,
		Kind:        string(run.Kind),
		Scope:       run.Scope,
		Attempted:   run.Attempted,
		Succeeded:   run.Succeeded,
		Failed:      run.Failed,
		Errors:      run.Errors,
		OK:          run.OK,
		StartedAt:   run.StartedAt.Format(time.RFC3339),
		CompletedAt: run.CompletedAt.Format(time.RFC3339),
	}
}

func toUserDTO(u engine.User) UserDTO {
	return UserDTO{
		ID:        u.ID,
		Name:      u.Name,
		WorkWeek:  [7]bool(u.WorkWeek),
		CreatedAt: u.CreatedAt.Format(time.RFC3339),
	}
}

func toMappingDTO(m engine.IdentityMapping) MappingDTO {
	return MappingDTO{
		ExternalCode: m.ExternalCode,
		ExternalName: m.ExternalName,
		UserID:       m.UserID,
		MatchScore:   m.MatchScore.String(),
		IsActive:     m.IsActive,
		CreatedAt:    m.CreatedAt.Format(time.RFC3339),
	}
}

func toPendingDTO(c identity.Candidate) PendingMappingDTO {
	return PendingMappingDTO{
		ExternalCode: c.ExternalCode,
		ExternalName: c.ExternalName,
		UserID:       c.UserID,
		UserName:     c.UserName,
		Score:        c.Score.String(),
		ProposedAt:   c.ProposedAt.Format(time.RFC3339),
	}
}

func fmtTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}

/*
handlers.go - HTTP API handlers for the attendance engine

PURPOSE:
  Exposes the reconciliation engine via REST. Handles HTTP request/response
  and JSON serialization, and delegates to the engine components.

ENDPOINTS:
  Provider:
    POST   /api/provider/ingest           Ingest a batch of raw records

  Day entries:
    GET    /api/entries                   List day views (override-composed)
    GET    /api/entries/{user}/{date}     One entry, derived + override detail
    POST   /api/entries/{user}/{date}/override   Submit manual override
    DELETE /api/entries/{user}/{date}/override   Clear manual override

  Batch operations:
    POST   /api/sweep                     Auto-checkout (supports dry_run)
    POST   /api/backfill                  Absence/holiday backfill (dry_run)
    GET    /api/operations                Operation-run audit log

  Identity:
    GET    /api/mappings                  List mappings
    POST   /api/mappings                  Create/confirm a mapping manually
    DELETE /api/mappings/{code}           Deactivate a mapping
    GET    /api/mappings/pending          Fuzzy candidates awaiting review
    POST   /api/mappings/{code}/accept    Accept a pending candidate

  Users:
    GET    /api/users                     List users
    POST   /api/users                     Create user
    PUT    /api/users/{id}/workweek       Update work-week configuration

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, malformed records
  - 404: Missing user/entry/mapping
  - 409: Duplicate events/entries
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/identity"
	"github.com/warp/attendance-engine/provider"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      engine.Store
	Resolver   *identity.Resolver
	Ingestor   *provider.Ingestor
	Deriver    *engine.Deriver
	Sweeper    *engine.Sweeper
	Backfiller *engine.Backfiller
	Overrides  *engine.Overrides
}

// Config bundles the policy knobs the handler wires into the engine.
type Config struct {
	LatePolicy engine.LatePolicy
	Sweep      engine.SweepConfig
	Identity   identity.Config
}

func DefaultConfig() Config {
	return Config{
		LatePolicy: engine.DefaultLatePolicy(),
		Sweep:      engine.DefaultSweepConfig(),
		Identity:   identity.DefaultConfig(),
	}
}

// NewHandler wires the engine components onto the given store.
func NewHandler(store engine.Store, cfg Config) *Handler {
	resolver := identity.NewResolver(store, store, cfg.Identity)
	deriver := engine.NewDeriver(store, store, cfg.LatePolicy)
	return &Handler{
		Store:      store,
		Resolver:   resolver,
		Ingestor:   provider.NewIngestor(resolver, store, deriver, store),
		Deriver:    deriver,
		Sweeper:    engine.NewSweeper(store, store, cfg.Sweep),
		Backfiller: engine.NewBackfiller(store, store, store),
		Overrides:  engine.NewOverrides(store),
	}
}

// =============================================================================
// PROVIDER INGESTION
// =============================================================================

func (h *Handler) IngestProviderBatch(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "no records", nil)
		return
	}

	report, err := h.Ingestor.Ingest(r.Context(), req.Records)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "ingestion failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// =============================================================================
// DAY ENTRIES
// =============================================================================

func (h *Handler) ListEntries(w http.ResponseWriter, r *http.Request) {
	from, err := engine.ParseDate(r.URL.Query().Get("from"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date", err)
		return
	}
	to, err := engine.ParseDate(r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date", err)
		return
	}
	userID := r.URL.Query().Get("user")

	entries, err := h.Store.EntriesInRange(r.Context(), userID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load entries", err)
		return
	}

	views := make([]DayViewDTO, len(entries))
	for i := range entries {
		views[i] = toDayViewDTO(entries[i].View())
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	date, err := engine.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	entry, err := h.Store.GetEntry(r.Context(), userID, date)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayEntryDTO(*entry))
}

func (h *Handler) ApplyOverride(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	date, err := engine.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	var dto OverrideRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	req := engine.OverrideRequest{
		UserID:    userID,
		Date:      date,
		Status:    engine.Status(dto.Status),
		Reason:    dto.Reason,
		AppliedBy: dto.AppliedBy,
	}
	if req.CheckInAt, err = parseOptionalTime(dto.CheckInAt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid check_in_at", err)
		return
	}
	if req.CheckOutAt, err = parseOptionalTime(dto.CheckOutAt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid check_out_at", err)
		return
	}

	entry, err := h.Overrides.Apply(r.Context(), req)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayEntryDTO(*entry))
}

func (h *Handler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "user")
	date, err := engine.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date", err)
		return
	}

	clearedBy := r.URL.Query().Get("by")
	if clearedBy == "" {
		clearedBy = "admin"
	}

	entry, err := h.Overrides.Clear(r.Context(), userID, date, clearedBy)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayEntryDTO(*entry))
}

// =============================================================================
// BATCH OPERATIONS
// =============================================================================

func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	scope, err := sweepScope(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid sweep scope", err)
		return
	}

	if req.DryRun {
		entries, err := h.Sweeper.Preview(r.Context(), scope)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPreviewDTO(entries))
		return
	}

	report, err := h.Sweeper.Sweep(r.Context(), scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

func (h *Handler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	from, err := engine.ParseDate(req.From)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid from date", err)
		return
	}
	to, err := engine.ParseDate(req.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid to date", err)
		return
	}
	scope := engine.BackfillScope{From: from, To: to, UserIDs: req.UserIDs}

	if req.DryRun {
		entries, err := h.Backfiller.Preview(r.Context(), scope)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPreviewDTO(entries))
		return
	}

	report, err := h.Backfiller.Backfill(r.Context(), scope)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(report))
}

func (h *Handler) ListOperations(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load operation runs", err)
		return
	}
	dtos := make([]OperationRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func sweepScope(req SweepRequest) (engine.SweepScope, error) {
	switch {
	case req.Date != "":
		d, err := engine.ParseDate(req.Date)
		if err != nil {
			return engine.SweepScope{}, err
		}
		return engine.SweepDate(d), nil
	case req.From != "" || req.To != "":
		from, err := engine.ParseDate(req.From)
		if err != nil {
			return engine.SweepScope{}, err
		}
		to, err := engine.ParseDate(req.To)
		if err != nil {
			return engine.SweepScope{}, err
		}
		return engine.SweepScope{From: from, To: to}, nil
	default:
		return engine.SweepToday(), nil
	}
}

// =============================================================================
// IDENTITY MAPPINGS
// =============================================================================

func (h *Handler) ListMappings(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	mappings, err := h.Store.ListMappings(r.Context(), includeInactive)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load mappings", err)
		return
	}
	dtos := make([]MappingDTO, len(mappings))
	for i, m := range mappings {
		dtos[i] = toMappingDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateMapping(w http.ResponseWriter, r *http.Request) {
	var req CreateMappingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ExternalCode == "" || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "external_code and user_id are required", nil)
		return
	}
	if _, err := h.Store.GetUser(r.Context(), req.UserID); err != nil {
		writeEngineError(w, err)
		return
	}

	// Manual mappings carry full confidence.
	if err := h.Resolver.Accept(r.Context(), req.ExternalCode, req.ExternalName, req.UserID, decimal.NewFromInt(1)); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save mapping", err)
		return
	}

	mapping, err := h.Store.ActiveMapping(r.Context(), req.ExternalCode)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMappingDTO(*mapping))
}

func (h *Handler) DeactivateMapping(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.Store.DeactivateMapping(r.Context(), code); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListPendingMappings(w http.ResponseWriter, r *http.Request) {
	pending := h.Resolver.Pending()
	dtos := make([]PendingMappingDTO, len(pending))
	for i, c := range pending {
		dtos[i] = toPendingDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) AcceptPendingMapping(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	for _, c := range h.Resolver.Pending() {
		if c.ExternalCode != code {
			continue
		}
		if err := h.Resolver.Accept(r.Context(), c.ExternalCode, c.ExternalName, c.UserID, c.Score); err != nil {
			writeError(w, http.StatusInternalServerError, "failed to accept mapping", err)
			return
		}
		mapping, err := h.Store.ActiveMapping(r.Context(), code)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toMappingDTO(*mapping))
		return
	}
	writeError(w, http.StatusNotFound, "no pending candidate for code", nil)
}

// =============================================================================
// USERS
// =============================================================================

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Store.ListUsers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load users", err)
		return
	}
	dtos := make([]UserDTO, len(users))
	for i, u := range users {
		dtos[i] = toUserDTO(u)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	workWeek := engine.DefaultWorkWeek()
	if req.WorkWeek != nil {
		workWeek = engine.WorkWeek(*req.WorkWeek)
	}

	u := engine.User{ID: req.ID, Name: req.Name, WorkWeek: workWeek, CreatedAt: time.Now().UTC()}
	if err := h.Store.SaveUser(r.Context(), u); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save user", err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserDTO(u))
}

func (h *Handler) UpdateWorkWeek(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req WorkWeekRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	u, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	u.WorkWeek = engine.WorkWeek(req.WorkWeek)
	if err := h.Store.SaveUser(r.Context(), *u); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to save user", err)
		return
	}
	writeJSON(w, http.StatusOK, toUserDTO(*u))
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	detail := message
	if err != nil {
		detail = fmt.Sprintf("%s: %v", message, err)
	}
	writeJSON(w, status, map[string]string{"error": detail})
}

// writeEngineError maps engine error categories onto HTTP statuses.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case engine.IsNotFound(err):
		writeError(w, http.StatusNotFound, "not found", err)
	case engine.IsDuplicate(err):
		writeError(w, http.StatusConflict, "conflict", err)
	case engine.IsClientError(err):
		writeError(w, http.StatusBadRequest, "invalid input", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}

func parseOptionalTime(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

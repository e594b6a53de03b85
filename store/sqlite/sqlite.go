/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.Store using SQLite. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  users             Internal users with their work-week configuration
  identity_mappings External employee code <-> internal user (soft-deleted)
  events            Append-only canonical punch log
  day_entries       One row per (user, date), maintained by upsert
  operation_runs    Audit of every sweep/backfill/ingest invocation

DEDUP / UPSERT ENFORCEMENT:
  - idx_events_dedup: UNIQUE(user_id, at, kind) is the event dedup key;
    violations map to engine.ErrDuplicateEvent
  - day_entries PRIMARY KEY(user_id, entry_date) plus ON CONFLICT DO UPDATE
    guarantees the one-row-per-day invariant under concurrent re-runs
  - idx_mappings_active: at most one active mapping per external code

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, single writer at a time.

USAGE:
  store, err := sqlite.New("./data/attendance.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool with versioned migrations.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/attendance-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Compile-time check.
var _ engine.Store = (*Store)(nil)

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Internal users
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		work_week_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Identity mappings (soft-deleted, never hard-deleted)
	CREATE TABLE IF NOT EXISTS identity_mappings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		external_code TEXT NOT NULL,
		external_name TEXT NOT NULL,
		user_id TEXT NOT NULL,
		match_score TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- CRITICAL: at most one active mapping per external code
	CREATE UNIQUE INDEX IF NOT EXISTS idx_mappings_active
		ON identity_mappings(external_code) WHERE is_active = 1;
	CREATE INDEX IF NOT EXISTS idx_mappings_user
		ON identity_mappings(user_id);

	-- Canonical events (append-only punch log)
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		at TEXT NOT NULL,
		kind TEXT NOT NULL,
		source TEXT NOT NULL,
		device_ref TEXT,
		raw_payload TEXT,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: the dedup key. Re-ingested punches violate this index and
	-- are skipped, never updated.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_events_dedup
		ON events(user_id, at, kind);
	CREATE INDEX IF NOT EXISTS idx_events_user_at
		ON events(user_id, at);

	-- Day entries (one row per user per date)
	CREATE TABLE IF NOT EXISTS day_entries (
		user_id TEXT NOT NULL,
		entry_date TEXT NOT NULL,
		check_in_at TEXT,
		check_out_at TEXT,
		worked_minutes INTEGER,
		status TEXT NOT NULL,
		is_late INTEGER NOT NULL DEFAULT 0,
		manual_status TEXT,
		manual_override_by TEXT,
		manual_override_at TEXT,
		manual_override_reason TEXT,
		modification_reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, entry_date)
	);

	CREATE INDEX IF NOT EXISTS idx_entries_date
		ON day_entries(entry_date);
	-- Sweep selection hot path
	CREATE INDEX IF NOT EXISTS idx_entries_open
		ON day_entries(entry_date, status)
		WHERE check_out_at IS NULL AND manual_status IS NULL;
	CREATE INDEX IF NOT EXISTS idx_entries_status
		ON day_entries(status, entry_date);

	-- Operation runs (batch invocation audit)
	CREATE TABLE IF NOT EXISTS operation_runs (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		scope TEXT NOT NULL,
		attempted INTEGER NOT NULL,
		succeeded INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		errors_json TEXT,
		ok INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_started
		ON operation_runs(started_at DESC);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EVENT STORE (engine.EventStore interface)
// =============================================================================

// AppendEvent adds an event to the punch log. Append-only.
func (s *Store) AppendEvent(ctx context.Context, ev engine.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO events (id, user_id, at, kind, source, device_ref, raw_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		ev.ID,
		ev.UserID,
		ev.At.UTC().Format(time.RFC3339),
		ev.Kind,
		ev.Source,
		nullString(ev.DeviceRef),
		nullString(ev.RawPayload),
		time.Now().UTC().Format(time.RFC3339),
	)

	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.ErrDuplicateEvent
		}
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// EventsForDay returns a user's events on one calendar day, ordered by time.
func (s *Store) EventsForDay(ctx context.Context, userID string, day engine.Date) ([]engine.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	from := day.Time.Format(time.RFC3339)
	to := day.AddDays(1).Time.Format(time.RFC3339)

	query := `
		SELECT id, user_id, at, kind, source, device_ref, raw_payload, created_at
		FROM events
		WHERE user_id = ? AND at >= ? AND at < ?
		ORDER BY at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []engine.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// HasEvent checks the dedup key without writing.
func (s *Store) HasEvent(ctx context.Context, userID string, at time.Time, kind engine.EventKind) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE user_id = ? AND at = ? AND kind = ?",
		userID, at.UTC().Format(time.RFC3339), kind,
	).Scan(&count)
	return count > 0, err
}

func scanEvent(rows *sql.Rows) (engine.Event, error) {
	var (
		ev         engine.Event
		at         string
		deviceRef  sql.NullString
		rawPayload sql.NullString
		createdAt  string
	)

	err := rows.Scan(&ev.ID, &ev.UserID, &at, &ev.Kind, &ev.Source, &deviceRef, &rawPayload, &createdAt)
	if err != nil {
		return ev, fmt.Errorf("failed to scan event: %w", err)
	}

	ev.At, _ = time.Parse(time.RFC3339, at)
	ev.DeviceRef = deviceRef.String
	ev.RawPayload = rawPayload.String
	ev.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return ev, nil
}

// =============================================================================
// DAY ENTRY STORE (engine.DayEntryStore interface)
// =============================================================================

// UpsertEntry inserts or updates the single row for (user, date). The
// ON CONFLICT clause keeps the invariant under concurrent re-runs and
// preserves created_at on update.
func (s *Store) UpsertEntry(ctx context.Context, entry engine.DayEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO day_entries
		(user_id, entry_date, check_in_at, check_out_at, worked_minutes, status, is_late,
		 manual_status, manual_override_by, manual_override_at, manual_override_reason,
		 modification_reason, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, entry_date) DO UPDATE SET
			check_in_at = excluded.check_in_at,
			check_out_at = excluded.check_out_at,
			worked_minutes = excluded.worked_minutes,
			status = excluded.status,
			is_late = excluded.is_late,
			manual_status = excluded.manual_status,
			manual_override_by = excluded.manual_override_by,
			manual_override_at = excluded.manual_override_at,
			manual_override_reason = excluded.manual_override_reason,
			modification_reason = excluded.modification_reason,
			updated_at = excluded.updated_at
	`

	var manualStatus sql.NullString
	if entry.ManualStatus != nil {
		manualStatus = sql.NullString{String: string(*entry.ManualStatus), Valid: true}
	}

	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, query,
		entry.UserID,
		entry.Date.String(),
		nullTime(entry.CheckInAt),
		nullTime(entry.CheckOutAt),
		nullInt(entry.WorkedMinutes),
		entry.Status,
		boolToInt(entry.IsLate),
		manualStatus,
		nullString(entry.ManualOverrideBy),
		nullTime(entry.ManualOverrideAt),
		nullString(entry.ManualOverrideReason),
		nullString(entry.ModificationReason),
		createdAt.UTC().Format(time.RFC3339),
		entry.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert day entry: %w", err)
	}
	return nil
}

// GetEntry returns the entry for (user, date).
func (s *Store) GetEntry(ctx context.Context, userID string, day engine.Date) (*engine.DayEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := entrySelect + " WHERE user_id = ? AND entry_date = ?"
	entries, err := s.queryEntries(ctx, query, userID, day.String())
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, engine.ErrEntryNotFound
	}
	return &entries[0], nil
}

// EntriesInRange returns entries in [from, to], optionally for one user.
func (s *Store) EntriesInRange(ctx context.Context, userID string, from, to engine.Date) ([]engine.DayEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if userID == "" {
		query := entrySelect + " WHERE entry_date >= ? AND entry_date <= ? ORDER BY entry_date ASC, user_id ASC"
		return s.queryEntries(ctx, query, from.String(), to.String())
	}
	query := entrySelect + " WHERE user_id = ? AND entry_date >= ? AND entry_date <= ? ORDER BY entry_date ASC"
	return s.queryEntries(ctx, query, userID, from.String(), to.String())
}

// OpenEntries returns auto-checkout candidates in [from, to]: check-in set,
// check-out null, status in_progress, no override.
func (s *Store) OpenEntries(ctx context.Context, from, to engine.Date) ([]engine.DayEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := entrySelect + `
	WHERE entry_date >= ? AND entry_date <= ?
	  AND status = ? AND check_in_at IS NOT NULL AND check_out_at IS NULL
	  AND manual_status IS NULL
	ORDER BY entry_date ASC, user_id ASC`
	return s.queryEntries(ctx, query, from.String(), to.String(), engine.StatusInProgress)
}

// EntriesWithStatus returns entries with a derived status in [from, to].
func (s *Store) EntriesWithStatus(ctx context.Context, status engine.Status, from, to engine.Date) ([]engine.DayEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := entrySelect + `
	WHERE status = ? AND entry_date >= ? AND entry_date <= ?
	ORDER BY entry_date ASC, user_id ASC`
	return s.queryEntries(ctx, query, status, from.String(), to.String())
}

const entrySelect = `
	SELECT user_id, entry_date, check_in_at, check_out_at, worked_minutes, status, is_late,
	       manual_status, manual_override_by, manual_override_at, manual_override_reason,
	       modification_reason, created_at, updated_at
	FROM day_entries`

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]engine.DayEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query day entries: %w", err)
	}
	defer rows.Close()

	var entries []engine.DayEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (engine.DayEntry, error) {
	var (
		entry          engine.DayEntry
		entryDate      string
		checkInAt      sql.NullString
		checkOutAt     sql.NullString
		workedMinutes  sql.NullInt64
		isLate         int
		manualStatus   sql.NullString
		overrideBy     sql.NullString
		overrideAt     sql.NullString
		overrideReason sql.NullString
		modReason      sql.NullString
		createdAt      string
		updatedAt      string
	)

	err := rows.Scan(
		&entry.UserID, &entryDate, &checkInAt, &checkOutAt, &workedMinutes,
		&entry.Status, &isLate, &manualStatus, &overrideBy, &overrideAt,
		&overrideReason, &modReason, &createdAt, &updatedAt,
	)
	if err != nil {
		return entry, fmt.Errorf("failed to scan day entry: %w", err)
	}

	entry.Date, _ = engine.ParseDate(entryDate)
	entry.CheckInAt = parseNullTime(checkInAt)
	entry.CheckOutAt = parseNullTime(checkOutAt)
	if workedMinutes.Valid {
		m := int(workedMinutes.Int64)
		entry.WorkedMinutes = &m
	}
	entry.IsLate = isLate != 0
	if manualStatus.Valid {
		ms := engine.Status(manualStatus.String)
		entry.ManualStatus = &ms
	}
	entry.ManualOverrideBy = overrideBy.String
	entry.ManualOverrideAt = parseNullTime(overrideAt)
	entry.ManualOverrideReason = overrideReason.String
	entry.ModificationReason = modReason.String
	entry.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	entry.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return entry, nil
}

// =============================================================================
// USER STORE (engine.UserStore interface)
// =============================================================================

func (s *Store) SaveUser(ctx context.Context, u engine.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	workWeekJSON, _ := json.Marshal(u.WorkWeek)

	createdAt := u.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO users (id, name, work_week_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			work_week_json = excluded.work_week_json
	`
	_, err := s.db.ExecContext(ctx, query, u.ID, u.Name, string(workWeekJSON), createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, id string) (*engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, name, work_week_json, created_at FROM users WHERE id = ?", id)

	u, err := scanUser(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, engine.ErrUserNotFound
		}
		return nil, err
	}
	return u, nil
}

func (s *Store) ListUsers(ctx context.Context) ([]engine.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, work_week_json, created_at FROM users ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []engine.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*engine.User, error) {
	var (
		u            engine.User
		workWeekJSON string
		createdAt    string
	)
	if err := row.Scan(&u.ID, &u.Name, &workWeekJSON, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	if err := json.Unmarshal([]byte(workWeekJSON), &u.WorkWeek); err != nil {
		u.WorkWeek = engine.DefaultWorkWeek()
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &u, nil
}

// =============================================================================
// MAPPING STORE (engine.MappingStore interface)
// =============================================================================

// SaveMapping writes a mapping. An incoming active mapping deactivates the
// previously active one for the same code in the same transaction, keeping
// the at-most-one-active invariant.
func (s *Store) SaveMapping(ctx context.Context, m engine.IdentityMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if m.IsActive {
		_, err = tx.ExecContext(ctx,
			"UPDATE identity_mappings SET is_active = 0, updated_at = ? WHERE external_code = ? AND is_active = 1",
			time.Now().UTC().Format(time.RFC3339), m.ExternalCode)
		if err != nil {
			return fmt.Errorf("failed to deactivate previous mapping: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO identity_mappings
		(external_code, external_name, user_id, match_score, is_active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ExternalCode,
		m.ExternalName,
		m.UserID,
		m.MatchScore.String(),
		boolToInt(m.IsActive),
		m.CreatedAt.UTC().Format(time.RFC3339),
		m.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}

	return tx.Commit()
}

func (s *Store) ActiveMapping(ctx context.Context, externalCode string) (*engine.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	mappings, err := s.queryMappings(ctx,
		mappingSelect+" WHERE external_code = ? AND is_active = 1", externalCode)
	if err != nil {
		return nil, err
	}
	if len(mappings) == 0 {
		return nil, engine.ErrMappingNotFound
	}
	return &mappings[0], nil
}

func (s *Store) ListMappings(ctx context.Context, includeInactive bool) ([]engine.IdentityMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := mappingSelect
	if !includeInactive {
		query += " WHERE is_active = 1"
	}
	query += " ORDER BY external_code ASC"
	return s.queryMappings(ctx, query)
}

func (s *Store) DeactivateMapping(ctx context.Context, externalCode string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE identity_mappings SET is_active = 0, updated_at = ? WHERE external_code = ? AND is_active = 1",
		time.Now().UTC().Format(time.RFC3339), externalCode)
	if err != nil {
		return fmt.Errorf("failed to deactivate mapping: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return engine.ErrMappingNotFound
	}
	return nil
}

const mappingSelect = `
	SELECT external_code, external_name, user_id, match_score, is_active, created_at, updated_at
	FROM identity_mappings`

func (s *Store) queryMappings(ctx context.Context, query string, args ...any) ([]engine.IdentityMapping, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query mappings: %w", err)
	}
	defer rows.Close()

	var mappings []engine.IdentityMapping
	for rows.Next() {
		var (
			m         engine.IdentityMapping
			score     string
			isActive  int
			createdAt string
			updatedAt string
		)
		if err := rows.Scan(&m.ExternalCode, &m.ExternalName, &m.UserID, &score, &isActive, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan mapping: %w", err)
		}
		m.MatchScore, _ = decimal.NewFromString(score)
		m.IsActive = isActive != 0
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		m.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

// =============================================================================
// OPERATION LOG (engine.OperationLog interface)
// =============================================================================

func (s *Store) RecordRun(ctx context.Context, run engine.OperationRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errorsJSON, _ := json.Marshal(run.Errors)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operation_runs
		(id, kind, scope, attempted, succeeded, failed, errors_json, ok, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.Kind,
		run.Scope,
		run.Attempted,
		run.Succeeded,
		run.Failed,
		string(errorsJSON),
		boolToInt(run.OK),
		run.StartedAt.UTC().Format(time.RFC3339),
		run.CompletedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record operation run: %w", err)
	}
	return nil
}

func (s *Store) ListRuns(ctx context.Context, limit int) ([]engine.OperationRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, kind, scope, attempted, succeeded, failed, errors_json, ok, started_at, completed_at
		FROM operation_runs
		ORDER BY started_at DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation runs: %w", err)
	}
	defer rows.Close()

	var runs []engine.OperationRun
	for rows.Next() {
		var (
			run         engine.OperationRun
			errorsJSON  sql.NullString
			ok          int
			startedAt   string
			completedAt string
		)
		if err := rows.Scan(&run.ID, &run.Kind, &run.Scope, &run.Attempted, &run.Succeeded,
			&run.Failed, &errorsJSON, &ok, &startedAt, &completedAt); err != nil {
			return nil, fmt.Errorf("failed to scan operation run: %w", err)
		}
		if errorsJSON.Valid && errorsJSON.String != "" {
			json.Unmarshal([]byte(errorsJSON.String), &run.Errors)
		}
		run.OK = ok != 0
		run.StartedAt, _ = time.Parse(time.RFC3339, startedAt)
		run.CompletedAt, _ = time.Parse(time.RFC3339, completedAt)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullInt(n *int) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*n), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

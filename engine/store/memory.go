// Package store provides engine.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/attendance-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements engine.Store entirely in memory. Safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	events   map[dayKey][]engine.Event
	dedup    map[string]bool
	entries  map[dayKey]engine.DayEntry
	users    map[string]engine.User
	mappings map[string][]engine.IdentityMapping // by external code, newest active last
	runs     []engine.OperationRun
}

type dayKey struct {
	UserID string
	Date   engine.Date
}

func NewMemory() *Memory {
	return &Memory{
		events:   make(map[dayKey][]engine.Event),
		dedup:    make(map[string]bool),
		entries:  make(map[dayKey]engine.DayEntry),
		users:    make(map[string]engine.User),
		mappings: make(map[string][]engine.IdentityMapping),
	}
}

// Compile-time check.
var _ engine.Store = (*Memory)(nil)

// =============================================================================
// EVENT STORE
// =============================================================================

// AppendEvent adds an event. Append-only; duplicates by (user, at, kind) are
// rejected with engine.ErrDuplicateEvent.
func (m *Memory) AppendEvent(_ context.Context, ev engine.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := ev.DedupKey()
	if m.dedup[key] {
		return engine.ErrDuplicateEvent
	}

	k := dayKey{UserID: ev.UserID, Date: engine.DateOf(ev.At)}
	evs := m.events[k]

	// Insert sorted by timestamp.
	i := sort.Search(len(evs), func(i int) bool { return evs[i].At.After(ev.At) })
	evs = append(evs, engine.Event{})
	copy(evs[i+1:], evs[i:])
	evs[i] = ev
	m.events[k] = evs

	m.dedup[key] = true
	return nil
}

func (m *Memory) EventsForDay(_ context.Context, userID string, day engine.Date) ([]engine.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	k := dayKey{UserID: userID, Date: day}
	result := make([]engine.Event, len(m.events[k]))
	copy(result, m.events[k])
	return result, nil
}

func (m *Memory) HasEvent(_ context.Context, userID string, at time.Time, kind engine.EventKind) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.dedup[engine.Event{UserID: userID, At: at, Kind: kind}.DedupKey()], nil
}

// =============================================================================
// DAY ENTRY STORE
// =============================================================================

func (m *Memory) UpsertEntry(_ context.Context, entry engine.DayEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := dayKey{UserID: entry.UserID, Date: entry.Date}
	if existing, ok := m.entries[k]; ok {
		entry.CreatedAt = existing.CreatedAt
	}
	m.entries[k] = entry
	return nil
}

func (m *Memory) GetEntry(_ context.Context, userID string, day engine.Date) (*engine.DayEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[dayKey{UserID: userID, Date: day}]
	if !ok {
		return nil, engine.ErrEntryNotFound
	}
	return &entry, nil
}

func (m *Memory) EntriesInRange(_ context.Context, userID string, from, to engine.Date) ([]engine.DayEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.DayEntry
	for k, entry := range m.entries {
		if userID != "" && k.UserID != userID {
			continue
		}
		if k.Date.Before(from) || k.Date.After(to) {
			continue
		}
		result = append(result, entry)
	}
	sortEntries(result)
	return result, nil
}

func (m *Memory) OpenEntries(_ context.Context, from, to engine.Date) ([]engine.DayEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.DayEntry
	for k, entry := range m.entries {
		if k.Date.Before(from) || k.Date.After(to) {
			continue
		}
		if entry.Status != engine.StatusInProgress || entry.CheckInAt == nil ||
			entry.CheckOutAt != nil || entry.HasOverride() {
			continue
		}
		result = append(result, entry)
	}
	sortEntries(result)
	return result, nil
}

func (m *Memory) EntriesWithStatus(_ context.Context, status engine.Status, from, to engine.Date) ([]engine.DayEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.DayEntry
	for k, entry := range m.entries {
		if k.Date.Before(from) || k.Date.After(to) || entry.Status != status {
			continue
		}
		result = append(result, entry)
	}
	sortEntries(result)
	return result, nil
}

func sortEntries(entries []engine.DayEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Date.Equal(entries[j].Date) {
			return entries[i].Date.Before(entries[j].Date)
		}
		return entries[i].UserID < entries[j].UserID
	})
}

// =============================================================================
// USER STORE
// =============================================================================

func (m *Memory) SaveUser(_ context.Context, u engine.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) GetUser(_ context.Context, id string) (*engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return nil, engine.ErrUserNotFound
	}
	return &u, nil
}

func (m *Memory) ListUsers(_ context.Context) ([]engine.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.User, 0, len(m.users))
	for _, u := range m.users {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// =============================================================================
// MAPPING STORE
// =============================================================================

// SaveMapping writes a mapping. An incoming active mapping deactivates any
// previously active mapping for the same code. Codes are stored verbatim,
// matching the sqlite store.
func (m *Memory) SaveMapping(_ context.Context, mapping engine.IdentityMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	history := m.mappings[mapping.ExternalCode]
	if mapping.IsActive {
		for i := range history {
			history[i].IsActive = false
		}
	}
	m.mappings[mapping.ExternalCode] = append(history, mapping)
	return nil
}

func (m *Memory) ActiveMapping(_ context.Context, externalCode string) (*engine.IdentityMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, mapping := range m.mappings[externalCode] {
		if mapping.IsActive {
			result := mapping
			return &result, nil
		}
	}
	return nil, engine.ErrMappingNotFound
}

func (m *Memory) ListMappings(_ context.Context, includeInactive bool) ([]engine.IdentityMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []engine.IdentityMapping
	for _, history := range m.mappings {
		for _, mapping := range history {
			if mapping.IsActive || includeInactive {
				result = append(result, mapping)
			}
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ExternalCode < result[j].ExternalCode })
	return result, nil
}

func (m *Memory) DeactivateMapping(_ context.Context, externalCode string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	found := false
	history := m.mappings[externalCode]
	for i := range history {
		if history[i].IsActive {
			history[i].IsActive = false
			found = true
		}
	}
	if !found {
		return engine.ErrMappingNotFound
	}
	return nil
}

// =============================================================================
// OPERATION LOG
// =============================================================================

func (m *Memory) RecordRun(_ context.Context, run engine.OperationRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *Memory) ListRuns(_ context.Context, limit int) ([]engine.OperationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]engine.OperationRun, len(m.runs))
	copy(result, m.runs)
	// Newest first.
	sort.Slice(result, func(i, j int) bool { return result[i].StartedAt.After(result[j].StartedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

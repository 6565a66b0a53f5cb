// Package memory provides an in-memory store implementation used by the
// test suites and by demo deployments that do not need persistence.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"medcab/internal/catalog"
	"medcab/internal/identity"
	"medcab/internal/store"
)

// Store keeps everything in maps guarded by one RWMutex. Safe for
// concurrent use.
type Store struct {
	mu         sync.RWMutex
	identities map[string]identity.Identity
	entries    map[string]catalog.Entry
	checkouts  []store.Checkout
	warnings   map[string]store.Warning
	events     []store.AuditEvent
	movements  []store.InventoryLog
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		identities: make(map[string]identity.Identity),
		entries:    make(map[string]catalog.Entry),
		warnings:   make(map[string]store.Warning),
	}
}

func (s *Store) SaveIdentity(_ context.Context, id identity.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[id.ID] = id
	return nil
}

func (s *Store) Identities(_ context.Context) (identity.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(identity.Snapshot, 0, len(s.identities))
	for _, id := range s.identities {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) DeleteIdentity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.identities, id)
	return nil
}

func (s *Store) SaveEntry(_ context.Context, entry catalog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.ID] = entry
	return nil
}

func (s *Store) Entries(_ context.Context) (catalog.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(catalog.Snapshot, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) EntryByID(_ context.Context, id string) (catalog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return catalog.Entry{}, store.ErrNotFound
	}
	return e, nil
}

func (s *Store) AdjustQuantity(_ context.Context, id string, delta int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return 0, store.ErrNotFound
	}
	next := e.Quantity + delta
	if next < 0 {
		return e.Quantity, store.ErrInsufficientStock
	}
	e.Quantity = next
	s.entries[id] = e
	return next, nil
}

func (s *Store) RecordCheckout(_ context.Context, c store.Checkout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkouts = append(s.checkouts, c)
	return nil
}

func (s *Store) TotalForDay(_ context.Context, medicationID, subjectID string, at time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	y, m, d := at.Date()
	total := 0
	for _, c := range s.checkouts {
		cy, cm, cd := c.CreatedAt.Date()
		if c.MedicationID == medicationID && c.SubjectID == subjectID &&
			cy == y && cm == m && cd == d {
			total += c.Quantity
		}
	}
	return total, nil
}

func (s *Store) RecordWarning(_ context.Context, w store.Warning) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.warnings[w.ID] = w
	return nil
}

func (s *Store) UnacknowledgedWarnings(_ context.Context) ([]store.Warning, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []store.Warning
	for _, w := range s.warnings {
		if !w.Acknowledged {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) AcknowledgeWarning(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.warnings[id]
	if !ok {
		return store.ErrNotFound
	}
	w.Acknowledged = true
	s.warnings[id] = w
	return nil
}

func (s *Store) RecordEvent(_ context.Context, e store.AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *Store) RecentEvents(_ context.Context, limit int) ([]store.AuditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]store.AuditEvent, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.events[len(s.events)-1-i]
	}
	return out, nil
}

func (s *Store) RecordMovement(_ context.Context, l store.InventoryLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.movements = append(s.movements, l)
	return nil
}

// Movements returns every recorded stock movement, oldest first.
func (s *Store) Movements() []store.InventoryLog {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]store.InventoryLog, len(s.movements))
	copy(out, s.movements)
	return out
}

func (s *Store) Close() error { return nil }

package findings

import (
	"errors"
	"sync"

	"alchemist/internal/domain"
)

var ErrNotFound = errors.New("finding not found")

// Store holds the most recent finding list for display. Dismissing a finding
// only changes this list, never the data that produced it.
type Store struct {
	mu    sync.RWMutex
	items []domain.Finding
}

// Replace swaps in a whole new finding list.
func (s *Store) Replace(list []domain.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append([]domain.Finding(nil), list...)
}

// ReplaceFor drops every finding for the given record and appends fresh ones.
// Findings for all other records keep their position.
func (s *Store) ReplaceFor(et domain.EntityType, entityID string, fresh []domain.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.items[:0:0]
	for _, f := range s.items {
		if f.EntityType == et && f.EntityID == entityID {
			continue
		}
		kept = append(kept, f)
	}
	s.items = append(kept, fresh...)
}

// Dismiss removes one finding by id.
func (s *Store) Dismiss(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.items {
		if f.ID == id {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

// List returns a copy of the findings matching flt.
func (s *Store) List(flt Filter) []domain.Finding {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return flt.Apply(s.items)
}

func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

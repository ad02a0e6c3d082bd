package alerts

import (
	"sync"
	"time"

	"hivetrust/internal/model"
)

// Store keeps the most recent signals in a fixed-size ring.
type Store struct {
	mu    sync.RWMutex
	ring  []model.AlertSignal
	next  int
	full  bool
	limit int
}

func NewStore(limit int) *Store {
	if limit <= 0 {
		limit = 1000
	}
	return &Store{ring: make([]model.AlertSignal, limit), limit: limit}
}

func (s *Store) Add(signals ...model.AlertSignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sig := range signals {
		s.ring[s.next] = sig
		s.next = (s.next + 1) % s.limit
		if s.next == 0 {
			s.full = true
		}
	}
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size()
}

// List returns up to limit signals, oldest first. limit <= 0 returns all.
func (s *Store) List(limit int) []model.AlertSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.ordered()
	if limit > 0 && limit < len(all) {
		all = all[len(all)-limit:]
	}
	return all
}

func (s *Store) Since(ts time.Time) []model.AlertSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AlertSignal, 0)
	for _, sig := range s.ordered() {
		if !sig.At.Before(ts) {
			out = append(out, sig)
		}
	}
	return out
}

func (s *Store) ForRule(ruleID string) []model.AlertSignal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AlertSignal, 0)
	for _, sig := range s.ordered() {
		if sig.RuleID == ruleID {
			out = append(out, sig)
		}
	}
	return out
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ring = make([]model.AlertSignal, s.limit)
	s.next = 0
	s.full = false
}

func (s *Store) size() int {
	if s.full {
		return s.limit
	}
	return s.next
}

func (s *Store) ordered() []model.AlertSignal {
	out := make([]model.AlertSignal, 0, s.size())
	if s.full {
		out = append(out, s.ring[s.next:]...)
	}
	return append(out, s.ring[:s.next]...)
}

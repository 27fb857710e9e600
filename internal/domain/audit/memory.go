package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps entries in insert order. It backs tests and local
// development without Postgres.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *MemoryStore) LatestEntry(_ context.Context) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	entry := s.entries[len(s.entries)-1]
	return &entry, nil
}

func (s *MemoryStore) EntryBefore(_ context.Context, t time.Time) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].CreatedAt.Before(t) {
			entry := s.entries[i]
			return &entry, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListSince(_ context.Context, t time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if !e.CreatedAt.Before(t) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListOlderThan(_ context.Context, cutoff time.Time) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Entry
	for _, e := range s.entries {
		if e.CreatedAt.Before(cutoff) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeleteByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryStore) DeleteByTeam(_ context.Context, teamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []Entry
	var deleted int64
	for _, e := range s.entries {
		if e.TeamID == teamID {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	return deleted, nil
}

// Tamper overwrites a stored entry's fields in place. Only tests use
// this; the production stores have no update path.
func (s *MemoryStore) Tamper(id string, mutate func(*Entry)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.entries {
		if s.entries[i].ID == id {
			mutate(&s.entries[i])
			return true
		}
	}
	return false
}

func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

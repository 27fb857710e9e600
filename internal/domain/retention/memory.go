package retention

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store used by unit tests.
type MemoryStore struct {
	mu       sync.Mutex
	policies map[string]*Policy
	holds    map[string]*LegalHold
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		policies: make(map[string]*Policy),
		holds:    make(map[string]*LegalHold),
		now:      time.Now,
	}
}

func (s *MemoryStore) SavePolicy(_ context.Context, p *Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.policies[p.Name]; ok {
		p.ID = existing.ID
		p.CreatedAt = existing.CreatedAt
	} else {
		p.ID = uuid.NewString()
		p.CreatedAt = s.now()
	}
	p.UpdatedAt = s.now()
	stored := *p
	s.policies[p.Name] = &stored
	return nil
}

func (s *MemoryStore) ListPolicies(_ context.Context) ([]Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var policies []Policy
	for _, p := range s.policies {
		policies = append(policies, *p)
	}
	sort.Slice(policies, func(i, j int) bool { return policies[i].Name < policies[j].Name })
	return policies, nil
}

func (s *MemoryStore) DeletePolicy(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.policies[name]; !ok {
		return ErrNotFound
	}
	delete(s.policies, name)
	return nil
}

func (s *MemoryStore) AddHold(_ context.Context, h *LegalHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.ID = uuid.NewString()
	if h.CreatedAt.IsZero() {
		h.CreatedAt = s.now()
	}
	stored := *h
	s.holds[h.ID] = &stored
	return nil
}

func (s *MemoryStore) RemoveHold(_ context.Context, id string) (*LegalHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.holds[id]
	if !ok {
		return nil, ErrNotFound
	}
	delete(s.holds, id)
	removed := *h
	return &removed, nil
}

func (s *MemoryStore) ListHolds(_ context.Context) ([]LegalHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var holds []LegalHold
	for _, h := range s.holds {
		holds = append(holds, *h)
	}
	sort.Slice(holds, func(i, j int) bool { return holds[i].CreatedAt.Before(holds[j].CreatedAt) })
	return holds, nil
}

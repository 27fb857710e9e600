package tokens

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore backs tests and local development without Postgres.
type MemoryStore struct {
	mu     sync.RWMutex
	teams  map[string]*Team
	tokens map[string]*Token
	order  []string
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		teams:  make(map[string]*Team),
		tokens: make(map[string]*Token),
		now:    time.Now,
	}
}

// SetClock overrides the store's notion of now. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) SaveOAuthGrant(_ context.Context, team *Team, toks []*Token, supersedeReason string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()

	existing, ok := s.teams[team.ID]
	if ok {
		existing.Name = team.Name
		existing.Domain = team.Domain
		existing.EnterpriseID = team.EnterpriseID
		existing.EnterpriseName = team.EnterpriseName
		existing.Active = true
		existing.UpdatedAt = now
	} else {
		copied := *team
		copied.Active = true
		copied.CreatedAt = now
		copied.UpdatedAt = now
		s.teams[team.ID] = &copied
	}

	var superseded int64
	for _, tok := range s.tokens {
		if tok.TeamID == team.ID && !tok.Revoked {
			at := now
			tok.Revoked = true
			tok.RevokedReason = supersedeReason
			tok.RevokedAt = &at
			tok.UpdatedAt = now
			superseded++
		}
	}

	for _, tok := range toks {
		tok.ID = uuid.NewString()
		tok.CreatedAt = now
		tok.UpdatedAt = now
		copied := *tok
		s.tokens[tok.ID] = &copied
		s.order = append(s.order, tok.ID)
	}
	return superseded, nil
}

func (s *MemoryStore) GetTeam(_ context.Context, teamID string) (*Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	team, ok := s.teams[teamID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *team
	return &copied, nil
}

func (s *MemoryStore) DeactivateTeam(_ context.Context, teamID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if team, ok := s.teams[teamID]; ok {
		team.Active = false
		team.UpdatedAt = s.now().UTC()
	}
	return nil
}

func (s *MemoryStore) DeleteTeam(_ context.Context, teamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.teams[teamID]; !ok {
		return 0, nil
	}
	delete(s.teams, teamID)
	return 1, nil
}

func (s *MemoryStore) GetToken(_ context.Context, tokenID string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tok, ok := s.tokens[tokenID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *tok
	return &copied, nil
}

func (s *MemoryStore) LatestActiveToken(_ context.Context, teamID string, typ TokenType, userID string) (*Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *Token
	for _, id := range s.order {
		tok := s.tokens[id]
		if tok == nil || tok.Revoked || tok.TeamID != teamID || tok.Type != typ || tok.UserID != userID {
			continue
		}
		if best == nil || tok.CreatedAt.After(best.CreatedAt) || (tok.CreatedAt.Equal(best.CreatedAt) && laterInOrder(s.order, tok.ID, best.ID)) {
			best = tok
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	copied := *best
	return &copied, nil
}

func (s *MemoryStore) ListActiveTokens(_ context.Context, teamID string) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Token
	for _, id := range s.order {
		tok := s.tokens[id]
		if tok == nil || tok.Revoked {
			continue
		}
		if teamID != "" && tok.TeamID != teamID {
			continue
		}
		out = append(out, *tok)
	}
	return out, nil
}

func (s *MemoryStore) ListRevokedBefore(_ context.Context, cutoff time.Time) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Token
	for _, id := range s.order {
		tok := s.tokens[id]
		if tok == nil || !tok.Revoked || tok.RevokedAt == nil {
			continue
		}
		if tok.RevokedAt.Before(cutoff) {
			out = append(out, *tok)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkRevoked(_ context.Context, tokenID, reason string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[tokenID]
	if !ok {
		return false, ErrNotFound
	}
	if tok.Revoked {
		return false, nil
	}
	tok.Revoked = true
	tok.RevokedReason = reason
	stamped := at
	tok.RevokedAt = &stamped
	tok.UpdatedAt = s.now().UTC()
	return true, nil
}

func (s *MemoryStore) RevokeActiveTokens(_ context.Context, teamID, reason string, at time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	for _, tok := range s.tokens {
		if tok.TeamID == teamID && !tok.Revoked {
			tok.Revoked = true
			tok.RevokedReason = reason
			stamped := at
			tok.RevokedAt = &stamped
			tok.UpdatedAt = s.now().UTC()
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) DeleteToken(_ context.Context, tokenID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, tokenID)
	return nil
}

func (s *MemoryStore) DeleteTeamTokens(_ context.Context, teamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for id, tok := range s.tokens {
		if tok.TeamID == teamID {
			delete(s.tokens, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) ListTokensByKeyID(_ context.Context, keyID string, limit int) ([]Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Token
	for _, id := range s.order {
		tok := s.tokens[id]
		if tok == nil || tok.KeyID != keyID {
			continue
		}
		out = append(out, *tok)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) UpdateCiphertext(_ context.Context, tokenID, ciphertext, algorithm, keyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.tokens[tokenID]
	if !ok {
		return ErrNotFound
	}
	tok.Ciphertext = ciphertext
	tok.Algorithm = algorithm
	tok.KeyID = keyID
	tok.UpdatedAt = s.now().UTC()
	return nil
}

func laterInOrder(order []string, a, b string) bool {
	ai, bi := -1, -1
	for i, id := range order {
		if id == a {
			ai = i
		}
		if id == b {
			bi = i
		}
	}
	return ai > bi
}

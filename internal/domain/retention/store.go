package retention

import (
	"context"
	"errors"
)

// ErrNotFound is the normal empty result for policy/hold lookups.
var ErrNotFound = errors.New("not found")

// Store persists retention policies and legal holds so neither is lost
// on restart. The service layers an in-memory cache on top and treats
// the store as the source of truth.
type Store interface {
	SavePolicy(ctx context.Context, p *Policy) error
	ListPolicies(ctx context.Context) ([]Policy, error)
	DeletePolicy(ctx context.Context, name string) error

	AddHold(ctx context.Context, h *LegalHold) error
	RemoveHold(ctx context.Context, id string) (*LegalHold, error)
	ListHolds(ctx context.Context) ([]LegalHold, error)
}

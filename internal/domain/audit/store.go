package audit

import (
	"context"
	"time"
)

// Store persists audit entries. Entries are append-only; the only
// deletion paths are retention cleanup and GDPR erasure.
type Store interface {
	Append(ctx context.Context, entry *Entry) error
	// LatestEntry returns the newest entry or nil when the log is empty.
	LatestEntry(ctx context.Context) (*Entry, error)
	// EntryBefore returns the newest entry created strictly before t,
	// or nil. Used as the chain boundary when verifying a window.
	EntryBefore(ctx context.Context, t time.Time) (*Entry, error)
	// ListSince returns entries created at or after t in chain order.
	ListSince(ctx context.Context, t time.Time) ([]Entry, error)
	// ListOlderThan returns entries created strictly before the cutoff
	// in chain order.
	ListOlderThan(ctx context.Context, cutoff time.Time) ([]Entry, error)
	DeleteByID(ctx context.Context, id string) error
	DeleteByTeam(ctx context.Context, teamID string) (int64, error)
}

package synclog

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is the empty lookup result for channel configs and
// backfill records.
var ErrNotFound = errors.New("not found")

// HoldScope narrows a bulk delete for active legal holds: rows of the
// listed teams are kept, except rows every hold explicitly exempts.
type HoldScope struct {
	Teams     []string
	ExemptIDs []string
}

// Store persists forwarding outcomes, backfill progress and channel
// opt-in state. Retention and GDPR deletion drive the bulk-delete
// methods; the forwarder drives the writes.
type Store interface {
	RecordSync(ctx context.Context, log *SyncLog) error
	// ListSyncLogs returns a team's logs, newest first.
	ListSyncLogs(ctx context.Context, teamID string, limit int) ([]SyncLog, error)
	CountSyncLogs(ctx context.Context, teamID string) (int64, error)
	// DeleteSyncLogsOlderThan removes rows created strictly before the
	// cutoff, keeping at least preserveCount of the newest rows
	// regardless of age (0 means no floor) and honoring the hold scope.
	// dryRun counts without deleting.
	DeleteSyncLogsOlderThan(ctx context.Context, cutoff time.Time, preserveCount int, holds HoldScope, dryRun bool) (int64, error)
	DeleteTeamSyncLogs(ctx context.Context, teamID string) (int64, error)

	CreateBackfill(ctx context.Context, rec *BackfillRecord) error
	UpdateBackfill(ctx context.Context, id string, status BackfillStatus, messagesSynced int) error
	ListBackfills(ctx context.Context, teamID string) ([]BackfillRecord, error)
	DeleteBackfillsOlderThan(ctx context.Context, cutoff time.Time, preserveCount int, holds HoldScope, dryRun bool) (int64, error)
	DeleteTeamBackfills(ctx context.Context, teamID string) (int64, error)

	UpsertChannelConfig(ctx context.Context, cfg *ChannelConfig) error
	GetChannelConfig(ctx context.Context, teamID, channelID string) (*ChannelConfig, error)
	ListChannelConfigs(ctx context.Context, teamID string) ([]ChannelConfig, error)
	DeleteTeamChannelConfigs(ctx context.Context, teamID string) (int64, error)
}

package synclog

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	DB *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{DB: db}
}

func (s *PostgresStore) RecordSync(ctx context.Context, log *SyncLog) error {
	return s.DB.QueryRow(ctx, `
    INSERT INTO sync_logs (team_id, channel_id, message_ts, status, error_message)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id, created_at
  `, log.TeamID, log.ChannelID, log.MessageTS, log.Status, nullable(log.ErrorMessage)).
		Scan(&log.ID, &log.CreatedAt)
}

func (s *PostgresStore) ListSyncLogs(ctx context.Context, teamID string, limit int) ([]SyncLog, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, team_id, channel_id, message_ts, status, error_message, created_at
    FROM sync_logs
    WHERE team_id = $1
    ORDER BY created_at DESC
    LIMIT $2
  `, teamID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []SyncLog
	for rows.Next() {
		var l SyncLog
		var errMsg *string
		if err := rows.Scan(&l.ID, &l.TeamID, &l.ChannelID, &l.MessageTS, &l.Status, &errMsg, &l.CreatedAt); err != nil {
			return nil, err
		}
		l.ErrorMessage = deref(errMsg)
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

func (s *PostgresStore) CountSyncLogs(ctx context.Context, teamID string) (int64, error) {
	var n int64
	err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM sync_logs WHERE team_id = $1`, teamID).Scan(&n)
	return n, err
}

func (s *PostgresStore) DeleteSyncLogsOlderThan(ctx context.Context, cutoff time.Time, preserveCount int, holds HoldScope, dryRun bool) (int64, error) {
	// The preserve floor keeps the newest rows globally, age aside.
	// Held teams are skipped except rows the holds exempt by id.
	const where = `
    created_at < $1
      AND (NOT (team_id = ANY($3)) OR id = ANY($4))
      AND id NOT IN (
        SELECT id FROM sync_logs ORDER BY created_at DESC LIMIT $2
      )`
	teams, exempt := orEmptySlice(holds.Teams), orEmptySlice(holds.ExemptIDs)
	if dryRun {
		var n int64
		err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM sync_logs WHERE`+where,
			cutoff, preserveCount, teams, exempt).Scan(&n)
		return n, err
	}
	tag, err := s.DB.Exec(ctx, `DELETE FROM sync_logs WHERE`+where,
		cutoff, preserveCount, teams, exempt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteTeamSyncLogs(ctx context.Context, teamID string) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM sync_logs WHERE team_id = $1`, teamID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) CreateBackfill(ctx context.Context, rec *BackfillRecord) error {
	return s.DB.QueryRow(ctx, `
    INSERT INTO backfill_records (team_id, channel_id, status, messages_synced)
    VALUES ($1,$2,$3,$4)
    RETURNING id, created_at
  `, rec.TeamID, rec.ChannelID, rec.Status, rec.MessagesSynced).
		Scan(&rec.ID, &rec.CreatedAt)
}

func (s *PostgresStore) UpdateBackfill(ctx context.Context, id string, status BackfillStatus, messagesSynced int) error {
	completed := status == BackfillCompleted || status == BackfillFailed
	tag, err := s.DB.Exec(ctx, `
    UPDATE backfill_records
    SET status = $2, messages_synced = $3,
        completed_at = CASE WHEN $4 THEN now() ELSE completed_at END
    WHERE id = $1
  `, id, status, messagesSynced, completed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListBackfills(ctx context.Context, teamID string) ([]BackfillRecord, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, team_id, channel_id, status, messages_synced, created_at, completed_at
    FROM backfill_records
    WHERE team_id = $1
    ORDER BY created_at DESC
  `, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []BackfillRecord
	for rows.Next() {
		var r BackfillRecord
		if err := rows.Scan(&r.ID, &r.TeamID, &r.ChannelID, &r.Status, &r.MessagesSynced, &r.CreatedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) DeleteBackfillsOlderThan(ctx context.Context, cutoff time.Time, preserveCount int, holds HoldScope, dryRun bool) (int64, error) {
	const where = `
    created_at < $1
      AND (NOT (team_id = ANY($3)) OR id = ANY($4))
      AND id NOT IN (
        SELECT id FROM backfill_records ORDER BY created_at DESC LIMIT $2
      )`
	teams, exempt := orEmptySlice(holds.Teams), orEmptySlice(holds.ExemptIDs)
	if dryRun {
		var n int64
		err := s.DB.QueryRow(ctx, `SELECT COUNT(*) FROM backfill_records WHERE`+where,
			cutoff, preserveCount, teams, exempt).Scan(&n)
		return n, err
	}
	tag, err := s.DB.Exec(ctx, `DELETE FROM backfill_records WHERE`+where,
		cutoff, preserveCount, teams, exempt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) DeleteTeamBackfills(ctx context.Context, teamID string) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM backfill_records WHERE team_id = $1`, teamID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) UpsertChannelConfig(ctx context.Context, cfg *ChannelConfig) error {
	return s.DB.QueryRow(ctx, `
    INSERT INTO channel_configs (team_id, channel_id, enabled)
    VALUES ($1,$2,$3)
    ON CONFLICT (team_id, channel_id) DO UPDATE SET
      enabled = EXCLUDED.enabled,
      updated_at = now()
    RETURNING id, created_at, updated_at
  `, cfg.TeamID, cfg.ChannelID, cfg.Enabled).
		Scan(&cfg.ID, &cfg.CreatedAt, &cfg.UpdatedAt)
}

func (s *PostgresStore) GetChannelConfig(ctx context.Context, teamID, channelID string) (*ChannelConfig, error) {
	var cfg ChannelConfig
	err := s.DB.QueryRow(ctx, `
    SELECT id, team_id, channel_id, enabled, created_at, updated_at
    FROM channel_configs
    WHERE team_id = $1 AND channel_id = $2
  `, teamID, channelID).
		Scan(&cfg.ID, &cfg.TeamID, &cfg.ChannelID, &cfg.Enabled, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *PostgresStore) ListChannelConfigs(ctx context.Context, teamID string) ([]ChannelConfig, error) {
	rows, err := s.DB.Query(ctx, `
    SELECT id, team_id, channel_id, enabled, created_at, updated_at
    FROM channel_configs
    WHERE team_id = $1
    ORDER BY channel_id
  `, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cfgs []ChannelConfig
	for rows.Next() {
		var c ChannelConfig
		if err := rows.Scan(&c.ID, &c.TeamID, &c.ChannelID, &c.Enabled, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		cfgs = append(cfgs, c)
	}
	return cfgs, rows.Err()
}

func (s *PostgresStore) DeleteTeamChannelConfigs(ctx context.Context, teamID string) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM channel_configs WHERE team_id = $1`, teamID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func orEmptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

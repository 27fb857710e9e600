package synclog

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store used by unit tests.
type MemoryStore struct {
	mu        sync.Mutex
	syncLogs  []SyncLog
	backfills []BackfillRecord
	channels  map[string]*ChannelConfig // teamID + "/" + channelID
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		channels: make(map[string]*ChannelConfig),
		now:      time.Now,
	}
}

// SetClock overrides the store's notion of now. Test helper.
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) RecordSync(_ context.Context, log *SyncLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log.ID = uuid.NewString()
	if log.CreatedAt.IsZero() {
		log.CreatedAt = s.now()
	}
	s.syncLogs = append(s.syncLogs, *log)
	return nil
}

func (s *MemoryStore) ListSyncLogs(_ context.Context, teamID string, limit int) ([]SyncLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var logs []SyncLog
	for _, l := range s.syncLogs {
		if l.TeamID == teamID {
			logs = append(logs, l)
		}
	}
	sort.Slice(logs, func(i, j int) bool { return logs[i].CreatedAt.After(logs[j].CreatedAt) })
	if limit > 0 && len(logs) > limit {
		logs = logs[:limit]
	}
	return logs, nil
}

func (s *MemoryStore) CountSyncLogs(_ context.Context, teamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, l := range s.syncLogs {
		if l.TeamID == teamID {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteSyncLogsOlderThan(_ context.Context, cutoff time.Time, preserveCount int, holds HoldScope, dryRun bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, exempt := toSet(holds.Teams), toSet(holds.ExemptIDs)
	preserved := newestIDs(len(s.syncLogs), preserveCount, func(i int) (string, time.Time) {
		return s.syncLogs[i].ID, s.syncLogs[i].CreatedAt
	})
	var kept []SyncLog
	var deleted int64
	for _, l := range s.syncLogs {
		if l.CreatedAt.Before(cutoff) && !preserved[l.ID] && (!held[l.TeamID] || exempt[l.ID]) {
			deleted++
			if dryRun {
				kept = append(kept, l)
			}
			continue
		}
		kept = append(kept, l)
	}
	s.syncLogs = kept
	return deleted, nil
}

func (s *MemoryStore) DeleteTeamSyncLogs(_ context.Context, teamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []SyncLog
	var deleted int64
	for _, l := range s.syncLogs {
		if l.TeamID == teamID {
			deleted++
			continue
		}
		kept = append(kept, l)
	}
	s.syncLogs = kept
	return deleted, nil
}

func (s *MemoryStore) CreateBackfill(_ context.Context, rec *BackfillRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.ID = uuid.NewString()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = s.now()
	}
	s.backfills = append(s.backfills, *rec)
	return nil
}

func (s *MemoryStore) UpdateBackfill(_ context.Context, id string, status BackfillStatus, messagesSynced int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.backfills {
		if s.backfills[i].ID != id {
			continue
		}
		s.backfills[i].Status = status
		s.backfills[i].MessagesSynced = messagesSynced
		if status == BackfillCompleted || status == BackfillFailed {
			done := s.now()
			s.backfills[i].CompletedAt = &done
		}
		return nil
	}
	return ErrNotFound
}

func (s *MemoryStore) ListBackfills(_ context.Context, teamID string) ([]BackfillRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []BackfillRecord
	for _, r := range s.backfills {
		if r.TeamID == teamID {
			recs = append(recs, r)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].CreatedAt.After(recs[j].CreatedAt) })
	return recs, nil
}

func (s *MemoryStore) DeleteBackfillsOlderThan(_ context.Context, cutoff time.Time, preserveCount int, holds HoldScope, dryRun bool) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	held, exempt := toSet(holds.Teams), toSet(holds.ExemptIDs)
	preserved := newestIDs(len(s.backfills), preserveCount, func(i int) (string, time.Time) {
		return s.backfills[i].ID, s.backfills[i].CreatedAt
	})
	var kept []BackfillRecord
	var deleted int64
	for _, r := range s.backfills {
		if r.CreatedAt.Before(cutoff) && !preserved[r.ID] && (!held[r.TeamID] || exempt[r.ID]) {
			deleted++
			if dryRun {
				kept = append(kept, r)
			}
			continue
		}
		kept = append(kept, r)
	}
	s.backfills = kept
	return deleted, nil
}

func (s *MemoryStore) DeleteTeamBackfills(_ context.Context, teamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []BackfillRecord
	var deleted int64
	for _, r := range s.backfills {
		if r.TeamID == teamID {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	s.backfills = kept
	return deleted, nil
}

func (s *MemoryStore) UpsertChannelConfig(_ context.Context, cfg *ChannelConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := cfg.TeamID + "/" + cfg.ChannelID
	if existing, ok := s.channels[key]; ok {
		existing.Enabled = cfg.Enabled
		existing.UpdatedAt = s.now()
		*cfg = *existing
		return nil
	}
	cfg.ID = uuid.NewString()
	cfg.CreatedAt = s.now()
	cfg.UpdatedAt = cfg.CreatedAt
	stored := *cfg
	s.channels[key] = &stored
	return nil
}

func (s *MemoryStore) GetChannelConfig(_ context.Context, teamID, channelID string) (*ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.channels[teamID+"/"+channelID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *cfg
	return &copied, nil
}

func (s *MemoryStore) ListChannelConfigs(_ context.Context, teamID string) ([]ChannelConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var cfgs []ChannelConfig
	for _, c := range s.channels {
		if c.TeamID == teamID {
			cfgs = append(cfgs, *c)
		}
	}
	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].ChannelID < cfgs[j].ChannelID })
	return cfgs, nil
}

func (s *MemoryStore) DeleteTeamChannelConfigs(_ context.Context, teamID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var deleted int64
	for key, c := range s.channels {
		if c.TeamID == teamID {
			delete(s.channels, key)
			deleted++
		}
	}
	return deleted, nil
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[it] = true
	}
	return set
}

// newestIDs returns the ids of the preserveCount newest rows.
func newestIDs(n, preserveCount int, at func(i int) (string, time.Time)) map[string]bool {
	preserved := make(map[string]bool, preserveCount)
	if preserveCount <= 0 {
		return preserved
	}
	type stamp struct {
		id string
		at time.Time
	}
	all := make([]stamp, 0, n)
	for i := 0; i < n; i++ {
		id, t := at(i)
		all = append(all, stamp{id, t})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.After(all[j].at) })
	for i := 0; i < len(all) && i < preserveCount; i++ {
		preserved[all[i].id] = true
	}
	return preserved
}

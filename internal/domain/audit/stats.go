package audit

import (
	"context"
	"sort"
	"time"
)

type TeamEventCount struct {
	TeamID string `json:"teamId"`
	Count  int    `json:"count"`
}

type Statistics struct {
	TotalEvents      int              `json:"totalEvents"`
	EventsByType     map[string]int   `json:"eventsByType"`
	EventsByActor    map[string]int   `json:"eventsByActor"`
	SuccessRate      float64          `json:"successRate"`
	AlertsLast24h    int              `json:"alertsLast24h"`
	FailuresLast24h  int              `json:"failuresLast24h"`
	TopTeams         []TeamEventCount `json:"topTeams"`
	SuspiciousEvents int              `json:"suspiciousEvents"`
}

// GetStatistics aggregates events from the last `days` days, optionally
// restricted to one team.
func (s *Service) GetStatistics(ctx context.Context, teamID string, days int) (Statistics, error) {
	if days <= 0 {
		days = 30
	}
	now := s.now().UTC()
	since := now.AddDate(0, 0, -days)
	dayAgo := now.Add(-24 * time.Hour)

	entries, err := s.store.ListSince(ctx, since)
	if err != nil {
		return Statistics{}, err
	}

	stats := Statistics{
		EventsByType:  map[string]int{},
		EventsByActor: map[string]int{},
	}
	teamCounts := map[string]int{}
	successes := 0
	for i := range entries {
		entry := &entries[i]
		if entry.TeamID != "" {
			teamCounts[entry.TeamID]++
		}
		if teamID != "" && entry.TeamID != teamID {
			continue
		}
		stats.TotalEvents++
		stats.EventsByType[string(entry.EventType)]++
		stats.EventsByActor[string(entry.ActorType)]++
		if entry.Success {
			successes++
		}
		if entry.EventType == EventSuspiciousActivity {
			stats.SuspiciousEvents++
		}
		if !entry.CreatedAt.Before(dayAgo) {
			if !entry.Success {
				stats.FailuresLast24h++
			}
			if entry.Severity == SeverityHigh || entry.Severity == SeverityCritical {
				stats.AlertsLast24h++
			}
		}
	}
	if stats.TotalEvents > 0 {
		stats.SuccessRate = float64(successes) / float64(stats.TotalEvents)
	}

	for team, count := range teamCounts {
		stats.TopTeams = append(stats.TopTeams, TeamEventCount{TeamID: team, Count: count})
	}
	sort.Slice(stats.TopTeams, func(i, j int) bool {
		if stats.TopTeams[i].Count != stats.TopTeams[j].Count {
			return stats.TopTeams[i].Count > stats.TopTeams[j].Count
		}
		return stats.TopTeams[i].TeamID < stats.TopTeams[j].TeamID
	})
	if len(stats.TopTeams) > 10 {
		stats.TopTeams = stats.TopTeams[:10]
	}
	return stats, nil
}

// DeleteTeamLogs removes every entry referencing a team. Used by the
// GDPR erasure path only.
func (s *Service) DeleteTeamLogs(ctx context.Context, teamID string) (int64, error) {
	return s.store.DeleteByTeam(ctx, teamID)
}

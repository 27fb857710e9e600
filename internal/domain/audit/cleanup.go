package audit

import (
	"context"
	"fmt"

	"slackmemory/internal/platform/metrics"
)

type CleanupResult struct {
	Deleted          int      `json:"deleted"`
	RetainedCritical int      `json:"retainedCritical"`
	DryRun           bool     `json:"dryRun"`
	Errors           []string `json:"errors,omitempty"`
}

// CleanupOldLogs deletes entries created strictly before the retention
// cutoff. Critical entries get a doubled retention window. Deleting
// mid-chain necessarily breaks hash verification across the deletion
// boundary; verification windows that start after the boundary are
// unaffected. Per-row failures are collected, never fatal.
func (s *Service) CleanupOldLogs(ctx context.Context, retentionDays int, dryRun bool) (CleanupResult, error) {
	if retentionDays <= 0 {
		return CleanupResult{}, fmt.Errorf("retentionDays must be positive")
	}
	now := s.now().UTC()
	cutoff := now.AddDate(0, 0, -retentionDays)
	criticalCutoff := now.AddDate(0, 0, -2*retentionDays)

	candidates, err := s.store.ListOlderThan(ctx, cutoff)
	if err != nil {
		return CleanupResult{}, err
	}

	result := CleanupResult{DryRun: dryRun}
	for i := range candidates {
		entry := &candidates[i]
		if entry.Severity == SeverityCritical && !entry.CreatedAt.Before(criticalCutoff) {
			result.RetainedCritical++
			continue
		}
		if dryRun {
			result.Deleted++
			continue
		}
		if err := s.store.DeleteByID(ctx, entry.ID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", entry.ID, err))
			continue
		}
		result.Deleted++
	}

	if !dryRun && result.Deleted > 0 {
		metrics.RetentionDeletionsTotal.WithLabelValues("audit_logs").Add(float64(result.Deleted))
	}
	s.LogEvent(ctx, Event{
		Type:      EventAuditLogCleanup,
		ActorType: ActorScheduledJob,
		Success:   len(result.Errors) == 0,
		Details: &Details{
			Operation: "cleanup_old_logs",
			Count:     result.Deleted,
			Extra: map[string]string{
				"retainedCritical": fmt.Sprint(result.RetainedCritical),
				"dryRun":           fmt.Sprint(dryRun),
			},
		},
	})
	return result, nil
}

package retention

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/domain/synclog"
	"slackmemory/internal/domain/tokens"
	"slackmemory/internal/platform/metrics"
)

// Rough per-row storage estimates for the bytes-freed counter.
const (
	tokenRowOverhead   = 256
	syncLogRowEstimate = 200
)

// Service runs policy-driven purges across the data classes, honoring
// legal holds. Policies and holds live in the Store; the service keeps
// an in-memory cache refreshed from it so a restart never loses a hold.
type Service struct {
	store  Store
	tokens tokens.Store
	audit  *audit.Service
	sync   synclog.Store

	mu      sync.Mutex
	holds   []LegalHold
	lastRun map[string]time.Time

	now func() time.Time
}

// NewService loads the hold cache and seeds default policies when the
// store is empty.
func NewService(ctx context.Context, store Store, tokenStore tokens.Store, auditSvc *audit.Service, syncStore synclog.Store, auditRetentionDays int) (*Service, error) {
	s := &Service{
		store:   store,
		tokens:  tokenStore,
		audit:   auditSvc,
		sync:    syncStore,
		lastRun: make(map[string]time.Time),
		now:     time.Now,
	}
	if err := s.seedDefaults(ctx, auditRetentionDays); err != nil {
		return nil, fmt.Errorf("seed retention policies: %w", err)
	}
	if err := s.refreshHolds(ctx); err != nil {
		return nil, fmt.Errorf("load legal holds: %w", err)
	}
	return s, nil
}

func (s *Service) seedDefaults(ctx context.Context, auditRetentionDays int) error {
	existing, err := s.store.ListPolicies(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	if auditRetentionDays <= 0 {
		auditRetentionDays = 365
	}
	defaults := []Policy{
		{Name: "revoked-token-cleanup", DataClass: ClassTokens, RetentionDays: 90, Schedule: ScheduleDaily, Enabled: true},
		{Name: "audit-log-retention", DataClass: ClassAuditLogs, RetentionDays: auditRetentionDays, CriticalRetentionDays: auditRetentionDays * 2, Schedule: ScheduleDaily, Enabled: true},
		{Name: "sync-log-retention", DataClass: ClassSyncLogs, RetentionDays: 30, PreserveCount: 1000, Schedule: ScheduleDaily, Enabled: true},
		{Name: "backfill-retention", DataClass: ClassBackfills, RetentionDays: 90, PreserveCount: 100, Schedule: ScheduleWeekly, Enabled: true},
	}
	for i := range defaults {
		if err := s.store.SavePolicy(ctx, &defaults[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) refreshHolds(ctx context.Context) error {
	holds, err := s.store.ListHolds(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.holds = holds
	s.mu.Unlock()
	return nil
}

// SetPolicy creates or replaces a named policy.
func (s *Service) SetPolicy(ctx context.Context, p *Policy) error {
	if p.Name == "" || p.DataClass == "" || p.RetentionDays <= 0 {
		return fmt.Errorf("policy needs a name, data class and positive retention window")
	}
	if p.Schedule == "" {
		p.Schedule = ScheduleDaily
	}
	if err := s.store.SavePolicy(ctx, p); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventConfigChanged,
		ActorType: audit.ActorAdmin,
		Success:   true,
		Details: &audit.Details{
			Operation: "set_retention_policy",
			Extra:     map[string]string{"policy": p.Name, "dataClass": string(p.DataClass)},
		},
	})
	return nil
}

func (s *Service) ListPolicies(ctx context.Context) ([]Policy, error) {
	return s.store.ListPolicies(ctx)
}

// ExecuteRetentionPolicies runs every enabled policy and returns one
// report each. Per-policy failures are isolated; the pass continues.
func (s *Service) ExecuteRetentionPolicies(ctx context.Context, dryRun bool) ([]PolicyReport, error) {
	if err := s.refreshHolds(ctx); err != nil {
		return nil, err
	}
	policies, err := s.store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}

	var reports []PolicyReport
	var errs *multierror.Error
	for _, p := range policies {
		if !p.Enabled {
			continue
		}
		report := s.executePolicy(ctx, &p, dryRun)
		reports = append(reports, report)
		if !dryRun && !report.Skipped {
			metrics.RetentionDeletionsTotal.WithLabelValues(string(p.DataClass)).Add(float64(report.Deleted))
			s.mu.Lock()
			s.lastRun[p.Name] = s.now()
			s.mu.Unlock()
		}
		if len(report.Errors) > 0 {
			errs = multierror.Append(errs, fmt.Errorf("policy %s: %d row errors", p.Name, len(report.Errors)))
		}
	}

	var totalDeleted int64
	for _, r := range reports {
		totalDeleted += r.Deleted
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventRetentionExecuted,
		ActorType: audit.ActorScheduledJob,
		Success:   errs.ErrorOrNil() == nil,
		Details: &audit.Details{
			Operation: "execute_retention_policies",
			Count:     int(totalDeleted),
			Extra: map[string]string{
				"policies": fmt.Sprint(len(reports)),
				"dryRun":   fmt.Sprint(dryRun),
			},
		},
	})
	return reports, errs.ErrorOrNil()
}

func (s *Service) executePolicy(ctx context.Context, p *Policy, dryRun bool) PolicyReport {
	report := PolicyReport{
		PolicyName: p.Name,
		DataClass:  p.DataClass,
		DryRun:     dryRun,
		ExecutedAt: s.now(),
	}
	switch p.DataClass {
	case ClassTokens:
		s.runTokenPolicy(ctx, p, dryRun, &report)
	case ClassAuditLogs:
		s.runAuditPolicy(ctx, p, dryRun, &report)
	case ClassSyncLogs, ClassBackfills:
		s.runSyncPolicy(ctx, p, dryRun, &report)
	default:
		report.Skipped = true
		report.SkipReason = fmt.Sprintf("unknown data class %q", p.DataClass)
	}
	return report
}

func (s *Service) runTokenPolicy(ctx context.Context, p *Policy, dryRun bool, report *PolicyReport) {
	cutoff := s.now().AddDate(0, 0, -p.RetentionDays)
	candidates, err := s.tokens.ListRevokedBefore(ctx, cutoff)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("list candidates: %v", err))
		return
	}
	for _, tok := range candidates {
		if !p.LegalHoldExempt && s.heldFor(tok.TeamID, ClassTokens, tok.ID) {
			report.RetainedByHold++
			continue
		}
		if days, ok := p.TeamOverrides[tok.TeamID]; ok {
			teamCutoff := s.now().AddDate(0, 0, -days)
			if revokedStamp(&tok).After(teamCutoff) {
				report.RetainedByRule++
				continue
			}
		}
		if !dryRun {
			if err := s.tokens.DeleteToken(ctx, tok.ID); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("%s: %v", tok.ID, err))
				continue
			}
		}
		report.Deleted++
		report.BytesFreedEst += int64(len(tok.Ciphertext)) + tokenRowOverhead
	}
}

func (s *Service) runAuditPolicy(ctx context.Context, p *Policy, dryRun bool, report *PolicyReport) {
	// Audit cleanup deletes across all teams, so any active hold on the
	// class suspends the whole pass rather than risking a held row.
	if !p.LegalHoldExempt {
		if teams := s.heldTeams(ClassAuditLogs); len(teams) > 0 {
			report.Skipped = true
			report.SkipReason = fmt.Sprintf("%d active legal hold(s) on audit logs", len(teams))
			return
		}
	}
	res, err := s.audit.CleanupOldLogs(ctx, p.RetentionDays, dryRun)
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("audit cleanup: %v", err))
		return
	}
	report.Deleted = int64(res.Deleted)
	report.RetainedByRule = int64(res.RetainedCritical)
	report.Errors = append(report.Errors, res.Errors...)
}

func (s *Service) runSyncPolicy(ctx context.Context, p *Policy, dryRun bool, report *PolicyReport) {
	cutoff := s.now().AddDate(0, 0, -p.RetentionDays)
	var holds synclog.HoldScope
	if !p.LegalHoldExempt {
		holds = s.heldScope(p.DataClass)
	}

	var deleted int64
	var err error
	if p.DataClass == ClassBackfills {
		deleted, err = s.sync.DeleteBackfillsOlderThan(ctx, cutoff, p.PreserveCount, holds, dryRun)
	} else {
		deleted, err = s.sync.DeleteSyncLogsOlderThan(ctx, cutoff, p.PreserveCount, holds, dryRun)
	}
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("delete: %v", err))
		return
	}
	report.Deleted = deleted
	report.BytesFreedEst = deleted * syncLogRowEstimate
}

func (s *Service) heldFor(teamID string, class DataClass, rowID string) bool {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.holds {
		h := &s.holds[i]
		if h.TeamID == teamID && h.DataClass == class && h.ActiveAt(now) && !h.Exempts(rowID) {
			return true
		}
	}
	return false
}

func (s *Service) heldTeams(class DataClass) []string {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[string]bool)
	var teams []string
	for i := range s.holds {
		h := &s.holds[i]
		if h.DataClass == class && h.ActiveAt(now) && !seen[h.TeamID] {
			seen[h.TeamID] = true
			teams = append(teams, h.TeamID)
		}
	}
	return teams
}

// heldScope flattens the active holds on a class into the team list plus
// the row ids safe to delete anyway. An id is exempt only when every
// active hold on its team lists it.
func (s *Service) heldScope(class DataClass) synclog.HoldScope {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	perTeam := make(map[string][]*LegalHold)
	for i := range s.holds {
		h := &s.holds[i]
		if h.DataClass == class && h.ActiveAt(now) {
			perTeam[h.TeamID] = append(perTeam[h.TeamID], h)
		}
	}
	var scope synclog.HoldScope
	for team, holds := range perTeam {
		scope.Teams = append(scope.Teams, team)
		counts := make(map[string]int)
		for _, h := range holds {
			for _, id := range h.ExemptIDs {
				counts[id]++
			}
		}
		for id, n := range counts {
			if n == len(holds) {
				scope.ExemptIDs = append(scope.ExemptIDs, id)
			}
		}
	}
	return scope
}

// AddLegalHold records a deletion-suspending hold. Holds are themselves
// security-relevant configuration changes and are audited as such.
func (s *Service) AddLegalHold(ctx context.Context, hold *LegalHold) error {
	if hold.TeamID == "" || hold.DataClass == "" || hold.Reason == "" {
		return fmt.Errorf("legal hold needs a team, data class and reason")
	}
	if err := s.store.AddHold(ctx, hold); err != nil {
		return err
	}
	if err := s.refreshHolds(ctx); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventLegalHoldAdded,
		TeamID:    hold.TeamID,
		ActorType: audit.ActorAdmin,
		Success:   true,
		Details: &audit.Details{
			Operation:   "add_legal_hold",
			Reason:      hold.Reason,
			RequestedBy: hold.CreatedBy,
			Extra:       map[string]string{"dataClass": string(hold.DataClass), "holdId": hold.ID},
		},
	})
	return nil
}

// RemoveLegalHold lifts a hold by id.
func (s *Service) RemoveLegalHold(ctx context.Context, holdID, removedBy string) error {
	removed, err := s.store.RemoveHold(ctx, holdID)
	if err != nil {
		return err
	}
	if err := s.refreshHolds(ctx); err != nil {
		return err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventLegalHoldRemoved,
		TeamID:    removed.TeamID,
		ActorType: audit.ActorAdmin,
		Success:   true,
		Details: &audit.Details{
			Operation:   "remove_legal_hold",
			RequestedBy: removedBy,
			Extra:       map[string]string{"dataClass": string(removed.DataClass), "holdId": holdID},
		},
	})
	return nil
}

func (s *Service) ListLegalHolds(ctx context.Context) ([]LegalHold, error) {
	return s.store.ListHolds(ctx)
}

// GetRetentionSummary rolls policies and holds up into a compliance
// status with operator-readable issue strings.
func (s *Service) GetRetentionSummary(ctx context.Context) (*Summary, error) {
	policies, err := s.store.ListPolicies(ctx)
	if err != nil {
		return nil, err
	}
	holds, err := s.store.ListHolds(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	summary := &Summary{GeneratedAt: now}

	s.mu.Lock()
	lastRun := make(map[string]time.Time, len(s.lastRun))
	for name, at := range s.lastRun {
		lastRun[name] = at
	}
	s.mu.Unlock()

	severelyOverdue := 0
	for _, p := range policies {
		if !p.Enabled {
			summary.Issues = append(summary.Issues, fmt.Sprintf("policy %q is disabled", p.Name))
			continue
		}
		summary.EnabledPolicies++
		ran, ok := lastRun[p.Name]
		if !ok {
			continue
		}
		overdueBy := now.Sub(ran) - p.Schedule.Period()
		if overdueBy <= 0 {
			continue
		}
		summary.OverduePolicies++
		summary.Issues = append(summary.Issues,
			fmt.Sprintf("policy %q last ran %s ago (schedule %s)", p.Name, now.Sub(ran).Round(time.Hour), p.Schedule))
		if overdueBy > 3*p.Schedule.Period() {
			severelyOverdue++
		}
	}

	for _, h := range holds {
		if !h.ActiveAt(now) {
			continue
		}
		summary.ActiveHolds++
		if h.ExpiresAt == nil && now.Sub(h.CreatedAt) > 90*24*time.Hour {
			summary.Issues = append(summary.Issues,
				fmt.Sprintf("legal hold %s on team %s (%s) has no expiry and is %d days old",
					h.ID, h.TeamID, h.DataClass, int(now.Sub(h.CreatedAt).Hours()/24)))
		}
	}

	switch {
	case severelyOverdue > 0:
		summary.Status = StatusViolation
	case len(summary.Issues) > 0:
		summary.Status = StatusWarning
	default:
		summary.Status = StatusCompliant
	}
	return summary, nil
}

func revokedStamp(tok *tokens.Token) time.Time {
	if tok.RevokedAt != nil {
		return *tok.RevokedAt
	}
	return tok.CreatedAt
}

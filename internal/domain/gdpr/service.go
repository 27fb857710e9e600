package gdpr

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/domain/synclog"
	"slackmemory/internal/domain/tokens"
)

// DeletionRequest is a compliance-driven erase of one workspace. The
// reason is mandatory; an erase with no documented cause is rejected
// before anything is touched.
type DeletionRequest struct {
	TeamID          string `json:"teamId"`
	Reason          string `json:"reason"`
	RequestedBy     string `json:"requestedBy"`
	RetainAuditLogs bool   `json:"retainAuditLogs"`
}

type StepResult struct {
	Step    string `json:"step"`
	Deleted int64  `json:"deleted"`
	Error   string `json:"error,omitempty"`
}

// DeletionResult summarizes one erase. Success means every step
// completed; a partial erase still reports what it removed.
type DeletionResult struct {
	TeamID       string       `json:"teamId"`
	Success      bool         `json:"success"`
	Steps        []StepResult `json:"steps"`
	TotalDeleted int64        `json:"totalDeleted"`
	CompletedAt  time.Time    `json:"completedAt"`
}

// Service orchestrates the irreversible multi-table erase for a tenant.
// There is no soft-delete and no undo.
type Service struct {
	tokens *tokens.Service
	audit  *audit.Service
	sync   synclog.Store
	now    func() time.Time
}

func NewService(tokenSvc *tokens.Service, auditSvc *audit.Service, syncStore synclog.Store) *Service {
	return &Service{
		tokens: tokenSvc,
		audit:  auditSvc,
		sync:   syncStore,
		now:    time.Now,
	}
}

// ProcessGDPRDeletion runs the ordered erase. Steps are best-effort: a
// failed step is recorded and the sequence continues, since partial
// deletion is still progress toward compliance.
func (s *Service) ProcessGDPRDeletion(ctx context.Context, req DeletionRequest) (*DeletionResult, error) {
	if req.TeamID == "" {
		return nil, fmt.Errorf("team id is required")
	}
	if req.Reason == "" {
		return nil, fmt.Errorf("a non-empty reason is required for GDPR deletion")
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventGDPRDeleteRequested,
		TeamID:    req.TeamID,
		ActorType: audit.ActorAdmin,
		Success:   true,
		Details: &audit.Details{
			Operation:   "gdpr_deletion",
			Reason:      req.Reason,
			RequestedBy: req.RequestedBy,
			Extra:       map[string]string{"retainAuditLogs": fmt.Sprint(req.RetainAuditLogs)},
		},
	})

	result := &DeletionResult{TeamID: req.TeamID}
	var errs *multierror.Error
	record := func(step string, deleted int64, err error) {
		sr := StepResult{Step: step, Deleted: deleted}
		if err != nil {
			sr.Error = err.Error()
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", step, err))
		}
		result.Steps = append(result.Steps, sr)
		result.TotalDeleted += deleted
	}

	store := s.tokens.Store()

	// 1. Revoke active tokens individually so each gets its audit entry.
	revoked, err := s.tokens.RevokeTeamTokens(ctx, req.TeamID, "gdpr_deletion: "+req.Reason)
	record("revoke_tokens", revoked, err)

	// 2. Forwarding history and channel state.
	n, err := s.sync.DeleteTeamSyncLogs(ctx, req.TeamID)
	record("delete_sync_logs", n, err)
	n, err = s.sync.DeleteTeamBackfills(ctx, req.TeamID)
	record("delete_backfill_records", n, err)
	n, err = s.sync.DeleteTeamChannelConfigs(ctx, req.TeamID)
	record("delete_channel_configs", n, err)

	// 3. Token rows go physically, revoked or not.
	n, err = store.DeleteTeamTokens(ctx, req.TeamID)
	record("delete_tokens", n, err)

	// 4. Audit history, unless the requester wants it kept for compliance.
	if req.RetainAuditLogs {
		record("retain_audit_logs", 0, nil)
	} else {
		n, err = s.audit.DeleteTeamLogs(ctx, req.TeamID)
		record("delete_audit_logs", n, err)
	}

	// 5. The team row last, so a failed earlier step stays attributable.
	n, err = store.DeleteTeam(ctx, req.TeamID)
	record("delete_team", n, err)

	result.Success = errs.ErrorOrNil() == nil
	result.CompletedAt = s.now()

	outcome := audit.EventGDPRDeleteCompleted
	if !result.Success {
		outcome = audit.EventGDPRDeleteFailed
	}
	extra := stepCounts(result.Steps)
	// When audit history was erased, the closing event must not put a
	// queryable team reference back; the id survives only inside the
	// encrypted detail blob.
	finalTeamID := req.TeamID
	if !req.RetainAuditLogs {
		finalTeamID = ""
		extra["teamId"] = req.TeamID
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      outcome,
		TeamID:    finalTeamID,
		ActorType: audit.ActorAdmin,
		Success:   result.Success,
		Details: &audit.Details{
			Operation:   "gdpr_deletion",
			Reason:      req.Reason,
			RequestedBy: req.RequestedBy,
			Count:       int(result.TotalDeleted),
			Extra:       extra,
		},
	})
	return result, errs.ErrorOrNil()
}

func stepCounts(steps []StepResult) map[string]string {
	counts := make(map[string]string, len(steps))
	for _, st := range steps {
		counts[st.Step] = fmt.Sprint(st.Deleted)
	}
	return counts
}

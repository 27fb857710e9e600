package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/domain/tokens"
	"slackmemory/internal/platform/slackclient"
)

// Service handles explicit token invalidation requested by admins or
// compliance flows. Notification side effects never change the outcome
// of the revocation itself.
type Service struct {
	tokens        *tokens.Service
	audit         *audit.Service
	slack         slackclient.API
	notifyChannel string
}

func NewService(tokenSvc *tokens.Service, auditLog *audit.Service, slack slackclient.API, notifyChannel string) *Service {
	return &Service{tokens: tokenSvc, audit: auditLog, slack: slack, notifyChannel: notifyChannel}
}

type RevokeResult struct {
	Success          bool   `json:"success"`
	TokenID          string `json:"tokenId"`
	AlreadyRevoked   bool   `json:"alreadyRevoked"`
	NotificationSent bool   `json:"notificationSent"`
	Error            string `json:"error,omitempty"`
}

// RevokeToken invalidates one token. Already-revoked is success, not an
// error; a missing token is reported in the result rather than thrown.
func (s *Service) RevokeToken(ctx context.Context, tokenID, reason, requestedBy string, notifySlack bool) (*RevokeResult, error) {
	if reason == "" {
		return nil, fmt.Errorf("revocation reason is required")
	}

	tok, err := s.tokens.Store().GetToken(ctx, tokenID)
	if errors.Is(err, tokens.ErrNotFound) {
		return &RevokeResult{Success: false, TokenID: tokenID, Error: "token not found"}, nil
	}
	if err != nil {
		return nil, err
	}

	if tok.Revoked {
		s.audit.LogEvent(ctx, audit.Event{
			Type:      audit.EventTokenRevoked,
			TeamID:    tok.TeamID,
			TokenID:   tokenID,
			ActorType: audit.ActorAdmin,
			Success:   true,
			Details: &audit.Details{
				Operation:   "revoke_token",
				Reason:      reason,
				RequestedBy: requestedBy,
				Extra:       map[string]string{"alreadyRevoked": "true"},
			},
		})
		return &RevokeResult{Success: true, TokenID: tokenID, AlreadyRevoked: true}, nil
	}

	// Fetch the delivery credential fresh, before the revocation can
	// take it away.
	var botToken string
	if notifySlack && s.slack != nil && s.notifyChannel != "" {
		if cred, err := s.tokens.GetTeamBotToken(ctx, tok.TeamID); err == nil {
			botToken = cred.Value
		} else {
			slog.Warn("revocation notice skipped, no usable bot token", "teamId", tok.TeamID, "err", err)
		}
	}

	if _, err := s.tokens.RevokeToken(ctx, tokenID, reason, string(audit.ActorAdmin), requestedBy); err != nil {
		return nil, err
	}

	result := &RevokeResult{Success: true, TokenID: tokenID}
	if botToken != "" {
		result.NotificationSent = s.notify(ctx, tok.TeamID, botToken, reason)
	}
	return result, nil
}

type TeamRevokeResult struct {
	Success      bool   `json:"success"`
	TeamID       string `json:"teamId"`
	RevokedCount int    `json:"revokedCount"`
	ErrorCount   int    `json:"errorCount"`
	Errors       string `json:"errors,omitempty"`
}

// RevokeTeamTokens revokes each active token individually so every one
// gets its own audit entry. Overall success requires zero failures.
func (s *Service) RevokeTeamTokens(ctx context.Context, teamID, reason, requestedBy string, notifySlack bool) (*TeamRevokeResult, error) {
	if reason == "" {
		return nil, fmt.Errorf("revocation reason is required")
	}

	active, err := s.tokens.Store().ListActiveTokens(ctx, teamID)
	if err != nil {
		return nil, err
	}

	// Fetch the bot token before revoking anything; it is the only
	// credential able to deliver the notice.
	var botToken string
	if notifySlack {
		if cred, err := s.tokens.GetTeamBotToken(ctx, teamID); err == nil {
			botToken = cred.Value
		}
	}

	result := &TeamRevokeResult{TeamID: teamID}
	var errs *multierror.Error
	for _, tok := range active {
		if _, err := s.tokens.RevokeToken(ctx, tok.ID, reason, string(audit.ActorAdmin), requestedBy); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("token %s: %w", tok.ID, err))
			result.ErrorCount++
			continue
		}
		result.RevokedCount++
	}
	result.Success = result.ErrorCount == 0
	if errs != nil {
		result.Errors = errs.Error()
	}

	if notifySlack && botToken != "" && s.slack != nil && s.notifyChannel != "" {
		notifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		text := fmt.Sprintf("Workspace access tokens were revoked (%s). Re-install the app to reconnect.", reason)
		if err := s.slack.PostMessage(notifyCtx, teamID, botToken, s.notifyChannel, text); err != nil {
			slog.Warn("revocation notice failed", "teamId", teamID, "err", err)
		}
	}
	return result, nil
}

// notify sends the revocation notice. Returns whether the notice went
// out; failure is logged and otherwise ignored.
func (s *Service) notify(ctx context.Context, teamID, botToken, reason string) bool {
	notifyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	text := fmt.Sprintf("An access token for this workspace was revoked (%s).", reason)
	if err := s.slack.PostMessage(notifyCtx, teamID, botToken, s.notifyChannel, text); err != nil {
		slog.Warn("revocation notice failed", "teamId", teamID, "err", err)
		return false
	}
	return true
}

type RevocationStatus struct {
	IsRevoked bool   `json:"isRevoked"`
	CanBeUsed bool   `json:"canBeUsed"`
	Reason    string `json:"reason,omitempty"`
}

// CheckRevocationStatus reports token usability. A token that cannot be
// found is treated as revoked: when status is uncertain, fail closed.
func (s *Service) CheckRevocationStatus(ctx context.Context, tokenID string) (*RevocationStatus, error) {
	tok, err := s.tokens.Store().GetToken(ctx, tokenID)
	if errors.Is(err, tokens.ErrNotFound) {
		return &RevocationStatus{IsRevoked: true, CanBeUsed: false, Reason: "token not found"}, nil
	}
	if err != nil {
		return nil, err
	}
	if tok.Revoked {
		return &RevocationStatus{IsRevoked: true, CanBeUsed: false, Reason: tok.RevokedReason}, nil
	}
	return &RevocationStatus{IsRevoked: false, CanBeUsed: true}, nil
}

type ValidationResult struct {
	CanProceed bool   `json:"canProceed"`
	Reason     string `json:"reason,omitempty"`
}

// ValidateTokenForUse gates an operation on a token's revocation state.
// Any attempt to use a revoked token is recorded as suspicious activity,
// distinct from an ordinary auth failure.
func (s *Service) ValidateTokenForUse(ctx context.Context, tokenID, operation string) (*ValidationResult, error) {
	status, err := s.CheckRevocationStatus(ctx, tokenID)
	if err != nil {
		return nil, err
	}

	if !status.CanBeUsed {
		s.audit.LogEvent(ctx, audit.Event{
			Type:    audit.EventSuspiciousActivity,
			TokenID: tokenID,
			Success: false,
			Details: &audit.Details{
				Operation: operation,
				Reason:    "attempted use of revoked token",
			},
		})
		return &ValidationResult{CanProceed: false, Reason: status.Reason}, nil
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:    audit.EventTokenValidation,
		TokenID: tokenID,
		Success: true,
		Details: &audit.Details{Operation: operation},
	})
	return &ValidationResult{CanProceed: true}, nil
}

package tokens

import (
	"context"
	"errors"
	"fmt"
	"time"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/platform/crypto"
	"slackmemory/internal/platform/metrics"
)

// Service is the token store: the only component that handles credential
// plaintext, and then only transiently. Every access and mutation leaves
// an audit entry.
type Service struct {
	store  Store
	crypto *crypto.Service
	audit  *audit.Service
	now    func() time.Time
}

func NewService(store Store, crypt *crypto.Service, auditLog *audit.Service) *Service {
	return &Service{store: store, crypto: crypt, audit: auditLog, now: time.Now}
}

// SetClock overrides the service's notion of now. Test helper.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// Store exposes the underlying row store for the maintenance services
// (rotation re-encryption, retention, GDPR erasure).
func (s *Service) Store() Store {
	return s.store
}

// StoreOAuthData persists the outcome of a completed OAuth exchange.
// All previously-active tokens for the team are superseded; the new bot
// token (and user token, when present) become the only active rows.
func (s *Service) StoreOAuthData(ctx context.Context, res OAuthResult, actor ActorContext) (*StoreOAuthOutcome, error) {
	if res.TeamID == "" || res.AccessToken == "" {
		return nil, fmt.Errorf("oauth result missing team id or access token")
	}

	team := &Team{
		ID:             res.TeamID,
		Name:           res.TeamName,
		Domain:         res.TeamDomain,
		EnterpriseID:   res.EnterpriseID,
		EnterpriseName: res.EnterpriseName,
	}

	botEnv, err := s.crypto.Encrypt(res.AccessToken)
	if err != nil {
		s.logFailure(ctx, audit.EventTokenCreated, res.TeamID, actor, "bot token encryption failed", err)
		return nil, fmt.Errorf("encrypt bot token: %w", err)
	}
	toks := []*Token{{
		TeamID:     res.TeamID,
		UserID:     "",
		Type:       TypeBot,
		Ciphertext: botEnv.Ciphertext,
		Algorithm:  botEnv.Algorithm,
		KeyID:      botEnv.KeyID,
		Scope:      res.Scope,
	}}

	if res.UserToken != "" {
		userEnv, err := s.crypto.Encrypt(res.UserToken)
		if err != nil {
			s.logFailure(ctx, audit.EventTokenCreated, res.TeamID, actor, "user token encryption failed", err)
			return nil, fmt.Errorf("encrypt user token: %w", err)
		}
		toks = append(toks, &Token{
			TeamID:     res.TeamID,
			UserID:     res.AuthedUserID,
			Type:       TypeUser,
			Ciphertext: userEnv.Ciphertext,
			Algorithm:  userEnv.Algorithm,
			KeyID:      userEnv.KeyID,
			Scope:      res.UserScope,
		})
	}

	superseded, err := s.store.SaveOAuthGrant(ctx, team, toks, ReasonReplacedByOAuth)
	if err != nil {
		// Partial failure must surface, not silently diverge.
		s.audit.LogEvent(ctx, audit.Event{
			Type:      audit.EventTokenCreated,
			TeamID:    res.TeamID,
			ActorType: audit.ActorType(actor.ActorType),
			Success:   false,
			Severity:  audit.SeverityHigh,
			Error:     err.Error(),
			IPAddress: actor.IPAddress,
			UserAgent: actor.UserAgent,
			Details:   &audit.Details{Operation: "store_oauth_data"},
		})
		metrics.TokenOperationsTotal.WithLabelValues("store_oauth", "error").Inc()
		return nil, fmt.Errorf("save oauth grant: %w", err)
	}

	outcome := &StoreOAuthOutcome{TeamID: res.TeamID, Superseded: superseded, BotTokenID: toks[0].ID}
	if len(toks) > 1 {
		outcome.UserTokenID = toks[1].ID
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventOAuthCompleted,
		TeamID:    res.TeamID,
		TokenID:   outcome.BotTokenID,
		ActorType: audit.ActorType(actor.ActorType),
		Success:   true,
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Details: &audit.Details{
			Operation: "store_oauth_data",
			Count:     int(superseded),
			Extra:     map[string]string{"botUserId": res.BotUserID, "appId": res.AppID},
		},
	})
	metrics.TokenOperationsTotal.WithLabelValues("store_oauth", "ok").Inc()
	return outcome, nil
}

// GetTeamBotToken returns the team's newest active bot credential. A
// revoked token is never returned, even when nothing replaced it.
func (s *Service) GetTeamBotToken(ctx context.Context, teamID string) (*Credential, error) {
	return s.getToken(ctx, teamID, TypeBot, "")
}

// GetUserToken returns the newest active credential for one principal.
func (s *Service) GetUserToken(ctx context.Context, teamID, userID string) (*Credential, error) {
	return s.getToken(ctx, teamID, TypeUser, userID)
}

func (s *Service) getToken(ctx context.Context, teamID string, typ TokenType, userID string) (*Credential, error) {
	tok, err := s.store.LatestActiveToken(ctx, teamID, typ, userID)
	if errors.Is(err, ErrNotFound) {
		metrics.TokenOperationsTotal.WithLabelValues("get", "not_found").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.TokenOperationsTotal.WithLabelValues("get", "error").Inc()
		return nil, err
	}

	plain, err := s.crypto.Decrypt(crypto.Envelope{
		Ciphertext: tok.Ciphertext,
		Algorithm:  tok.Algorithm,
		KeyID:      tok.KeyID,
	})
	if err != nil {
		s.audit.LogEvent(ctx, audit.Event{
			Type:    audit.EventTokenAccessed,
			TeamID:  teamID,
			TokenID: tok.ID,
			Success: false,
			Error:   err.Error(),
			Details: &audit.Details{Operation: "decrypt"},
		})
		metrics.TokenOperationsTotal.WithLabelValues("get", "decrypt_error").Inc()
		return nil, fmt.Errorf("decrypt token %s: %w", tok.ID, err)
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:    audit.EventTokenAccessed,
		TeamID:  teamID,
		TokenID: tok.ID,
		Success: true,
	})
	metrics.TokenOperationsTotal.WithLabelValues("get", "ok").Inc()
	return &Credential{
		TokenID: tok.ID,
		TeamID:  tok.TeamID,
		UserID:  tok.UserID,
		Type:    tok.Type,
		Value:   plain,
		Scope:   tok.Scope,
	}, nil
}

// RevokeToken flips the revoked flag. Idempotent: revoking an already
// revoked token succeeds without touching the original stamp, and the
// repeat is still audit-logged as such.
func (s *Service) RevokeToken(ctx context.Context, tokenID, reason, actorType, requestedBy string) (*RevokeOutcome, error) {
	newlyRevoked, err := s.store.MarkRevoked(ctx, tokenID, reason, s.now().UTC())
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		metrics.TokenOperationsTotal.WithLabelValues("revoke", "error").Inc()
		return nil, err
	}

	outcome := &RevokeOutcome{TokenID: tokenID, AlreadyRevoked: !newlyRevoked}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventTokenRevoked,
		TokenID:   tokenID,
		ActorType: audit.ActorType(actorType),
		Success:   true,
		Details: &audit.Details{
			Operation:   "revoke_token",
			Reason:      reason,
			RequestedBy: requestedBy,
			Extra:       map[string]string{"alreadyRevoked": fmt.Sprint(outcome.AlreadyRevoked)},
		},
	})
	metrics.TokenOperationsTotal.WithLabelValues("revoke", "ok").Inc()
	return outcome, nil
}

// RevokeTeamTokens bulk-revokes every active token of a team and returns
// the count.
func (s *Service) RevokeTeamTokens(ctx context.Context, teamID, reason string) (int64, error) {
	count, err := s.store.RevokeActiveTokens(ctx, teamID, reason, s.now().UTC())
	if err != nil {
		metrics.TokenOperationsTotal.WithLabelValues("revoke_team", "error").Inc()
		return 0, err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:    audit.EventTokenRevoked,
		TeamID:  teamID,
		Success: true,
		Details: &audit.Details{Operation: "revoke_team_tokens", Reason: reason, Count: int(count)},
	})
	metrics.TokenOperationsTotal.WithLabelValues("revoke_team", "ok").Inc()
	return count, nil
}

func (s *Service) logFailure(ctx context.Context, eventType audit.EventType, teamID string, actor ActorContext, op string, cause error) {
	s.audit.LogEvent(ctx, audit.Event{
		Type:      eventType,
		TeamID:    teamID,
		ActorType: audit.ActorType(actor.ActorType),
		Success:   false,
		Error:     cause.Error(),
		IPAddress: actor.IPAddress,
		UserAgent: actor.UserAgent,
		Details:   &audit.Details{Operation: op},
	})
}

package rotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/domain/tokens"
	"slackmemory/internal/platform/crypto"
	"slackmemory/internal/platform/metrics"
	"slackmemory/internal/platform/slackclient"
)

const (
	healthCheckBatchSize = 5
	interBatchDelay      = 500 * time.Millisecond
	probeTimeout         = 10 * time.Second
)

// Config controls when tokens are considered due and what happens to
// unhealthy ones.
type Config struct {
	MaxTokenAge     time.Duration
	RotateOnFailure bool
}

// Service health-checks stored tokens and invalidates the ones that are
// stale or dead. It cannot mint replacements: new credentials only come
// from a fresh OAuth authorization, so rotation always ends in a
// reauthorization request.
type Service struct {
	tokens     *tokens.Service
	audit      *audit.Service
	slack      slackclient.API
	cfg        Config
	cryptoFor  func(keyID string) (*crypto.Service, error)
	now        func() time.Time
	batchDelay time.Duration
}

func NewService(tokenSvc *tokens.Service, auditLog *audit.Service, slack slackclient.API, cfg Config, cryptoFor func(keyID string) (*crypto.Service, error)) *Service {
	if cfg.MaxTokenAge <= 0 {
		cfg.MaxTokenAge = 30 * 24 * time.Hour
	}
	return &Service{
		tokens:     tokenSvc,
		audit:      auditLog,
		slack:      slack,
		cfg:        cfg,
		cryptoFor:  cryptoFor,
		now:        time.Now,
		batchDelay: interBatchDelay,
	}
}

// IsRotationDue reports whether a token has outlived the configured
// rotation interval.
func (s *Service) IsRotationDue(tok *tokens.Token) bool {
	return s.now().Sub(tok.CreatedAt) >= s.cfg.MaxTokenAge
}

type RotationResult struct {
	Success                 bool   `json:"success"`
	TeamID                  string `json:"teamId"`
	Rotated                 bool   `json:"rotated"`
	RequiresReauthorization bool   `json:"requiresReauthorization"`
	Reason                  string `json:"reason,omitempty"`
}

// RotateTeamToken conditionally invalidates a team's bot token. Without
// force, a healthy token that is not yet due is left alone.
func (s *Service) RotateTeamToken(ctx context.Context, teamID, reason string, force bool) (*RotationResult, error) {
	tok, err := s.tokens.Store().LatestActiveToken(ctx, teamID, tokens.TypeBot, "")
	if errors.Is(err, tokens.ErrNotFound) {
		return &RotationResult{Success: false, TeamID: teamID, Reason: "no active bot token"}, nil
	}
	if err != nil {
		return nil, err
	}

	if !force {
		due := s.IsRotationDue(tok)
		healthy := s.probe(ctx, teamID)
		if healthy && !due {
			return &RotationResult{Success: true, TeamID: teamID, Reason: "token healthy and not due"}, nil
		}
		if !healthy {
			reason = fmt.Sprintf("%s (health check failed)", reason)
		}
	}

	if _, err := s.tokens.RevokeToken(ctx, tok.ID, reason, string(audit.ActorScheduledJob), ""); err != nil {
		return nil, err
	}
	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventTokenRotated,
		TeamID:    teamID,
		TokenID:   tok.ID,
		ActorType: audit.ActorScheduledJob,
		Success:   true,
		Details:   &audit.Details{Operation: "rotate_team_token", Reason: reason},
	})
	return &RotationResult{
		Success:                 true,
		TeamID:                  teamID,
		Rotated:                 true,
		RequiresReauthorization: true,
		Reason:                  reason,
	}, nil
}

type HealthCheckReport struct {
	TotalChecked  int      `json:"totalChecked"`
	Healthy       int      `json:"healthy"`
	Unhealthy     int      `json:"unhealthy"`
	RotatedTokens []string `json:"rotatedTokens"`
	Errors        []string `json:"errors,omitempty"`
}

// PerformHealthChecks probes every active bot token in fixed-size
// concurrent batches with a delay between batches, to stay inside the
// Slack API's rate limits. Each failure is isolated; an unhealthy token
// is force-rotated when the policy says so.
func (s *Service) PerformHealthChecks(ctx context.Context) (*HealthCheckReport, error) {
	active, err := s.tokens.Store().ListActiveTokens(ctx, "")
	if err != nil {
		return nil, err
	}

	var bots []tokens.Token
	for _, tok := range active {
		if tok.Type == tokens.TypeBot {
			bots = append(bots, tok)
		}
	}

	report := &HealthCheckReport{}
	var mu sync.Mutex

	for start := 0; start < len(bots); start += healthCheckBatchSize {
		end := min(start+healthCheckBatchSize, len(bots))
		var wg sync.WaitGroup
		for _, tok := range bots[start:end] {
			wg.Add(1)
			go func(tok tokens.Token) {
				defer wg.Done()
				healthy := s.probe(ctx, tok.TeamID)

				mu.Lock()
				defer mu.Unlock()
				report.TotalChecked++
				if healthy {
					report.Healthy++
					metrics.HealthChecksTotal.WithLabelValues("healthy").Inc()
					return
				}
				report.Unhealthy++
				metrics.HealthChecksTotal.WithLabelValues("unhealthy").Inc()
				if !s.cfg.RotateOnFailure {
					return
				}
				result, err := s.RotateTeamToken(ctx, tok.TeamID, "health check failed", true)
				if err != nil {
					report.Errors = append(report.Errors, fmt.Sprintf("team %s: %v", tok.TeamID, err))
					return
				}
				if result.Rotated {
					report.RotatedTokens = append(report.RotatedTokens, tok.ID)
				}
			}(tok)
		}
		wg.Wait()
		if end < len(bots) && s.batchDelay > 0 {
			select {
			case <-ctx.Done():
				return report, ctx.Err()
			case <-time.After(s.batchDelay):
			}
		}
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventHealthCheckPerformed,
		ActorType: audit.ActorScheduledJob,
		Success:   len(report.Errors) == 0,
		Details: &audit.Details{
			Operation: "perform_health_checks",
			Count:     report.TotalChecked,
			Extra: map[string]string{
				"unhealthy": fmt.Sprint(report.Unhealthy),
				"rotated":   fmt.Sprint(len(report.RotatedTokens)),
			},
		},
	})
	return report, nil
}

// probe checks token health against the live API. Any failure, timeout
// included, means unhealthy.
func (s *Service) probe(ctx context.Context, teamID string) bool {
	if s.slack == nil {
		return true
	}
	cred, err := s.tokens.GetTeamBotToken(ctx, teamID)
	if err != nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := s.slack.CheckTokenHealth(probeCtx, teamID, cred.Value); err != nil {
		slog.Warn("token health probe failed", "teamId", teamID, "err", err)
		return false
	}
	return true
}

type KeyRotationResult struct {
	Success     bool     `json:"success"`
	OldKeyID    string   `json:"oldKeyId"`
	NewKeyID    string   `json:"newKeyId"`
	Reencrypted int      `json:"reencrypted"`
	Errors      []string `json:"errors,omitempty"`
}

// RotateEncryptionKeys re-encrypts every token row stored under the old
// key, one row at a time so an interruption leaves each row under
// exactly one valid key. Key distribution (making the new key id the
// default for writes) is an operational step outside this service.
func (s *Service) RotateEncryptionKeys(ctx context.Context, reason, oldKeyID, newKeyID string) (*KeyRotationResult, error) {
	if s.cryptoFor == nil {
		return nil, fmt.Errorf("key rotation not configured")
	}
	oldCrypto, err := s.cryptoFor(oldKeyID)
	if err != nil {
		return nil, fmt.Errorf("derive old key %s: %w", oldKeyID, err)
	}
	newCrypto, err := s.cryptoFor(newKeyID)
	if err != nil {
		return nil, fmt.Errorf("derive new key %s: %w", newKeyID, err)
	}

	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventEncryptionKeyRotation,
		ActorType: audit.ActorAdmin,
		Success:   true,
		Details: &audit.Details{
			Operation: "rotate_encryption_keys_started",
			Reason:    reason,
			Extra:     map[string]string{"oldKeyId": oldKeyID, "newKeyId": newKeyID},
		},
	})

	result := &KeyRotationResult{OldKeyID: oldKeyID, NewKeyID: newKeyID}
	store := s.tokens.Store()
	failed := make(map[string]bool)
	const batchSize = 100
	for {
		batch, err := store.ListTokensByKeyID(ctx, oldKeyID, batchSize)
		if err != nil {
			return result, err
		}
		progressed := false
		for _, tok := range batch {
			if failed[tok.ID] {
				continue
			}
			plain, err := oldCrypto.Decrypt(crypto.Envelope{
				Ciphertext: tok.Ciphertext,
				Algorithm:  tok.Algorithm,
				KeyID:      tok.KeyID,
			})
			if err != nil {
				failed[tok.ID] = true
				result.Errors = append(result.Errors, fmt.Sprintf("%s: decrypt: %v", tok.ID, err))
				continue
			}
			env, err := newCrypto.Encrypt(plain)
			if err != nil {
				failed[tok.ID] = true
				result.Errors = append(result.Errors, fmt.Sprintf("%s: encrypt: %v", tok.ID, err))
				continue
			}
			if err := store.UpdateCiphertext(ctx, tok.ID, env.Ciphertext, env.Algorithm, env.KeyID); err != nil {
				failed[tok.ID] = true
				result.Errors = append(result.Errors, fmt.Sprintf("%s: update: %v", tok.ID, err))
				continue
			}
			result.Reencrypted++
			progressed = true
		}
		if !progressed {
			break
		}
	}

	result.Success = len(result.Errors) == 0
	s.audit.LogEvent(ctx, audit.Event{
		Type:      audit.EventEncryptionKeyRotation,
		ActorType: audit.ActorAdmin,
		Success:   result.Success,
		Details: &audit.Details{
			Operation: "rotate_encryption_keys_completed",
			Reason:    reason,
			Count:     result.Reencrypted,
			Extra:     map[string]string{"errors": fmt.Sprint(len(result.Errors))},
		},
	})
	return result, nil
}

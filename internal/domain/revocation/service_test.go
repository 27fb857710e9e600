package revocation

import (
	"context"
	"errors"
	"testing"
	"time"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/domain/tokens"
	"slackmemory/internal/platform/crypto"
)

const testSecret = "unit-test-master-secret-0123456789ab"

type fakeSlack struct {
	posted  int
	failing bool
}

func (f *fakeSlack) CheckTokenHealth(context.Context, string, string) error { return nil }

func (f *fakeSlack) PostMessage(_ context.Context, _, _, _, _ string) error {
	if f.failing {
		return errors.New("slack unreachable")
	}
	f.posted++
	return nil
}

func newTestService(t *testing.T, slack *fakeSlack) (*Service, *tokens.Service, *audit.MemoryStore) {
	t.Helper()
	crypt, err := crypto.New(testSecret)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	auditStore := audit.NewMemoryStore()
	auditSvc := audit.NewService(auditStore, crypt)
	tokenSvc := tokens.NewService(tokens.NewMemoryStore(), crypt, auditSvc)
	return NewService(tokenSvc, auditSvc, slack, "#security"), tokenSvc, auditStore
}

func storeToken(t *testing.T, tokenSvc *tokens.Service, teamID string) string {
	t.Helper()
	outcome, err := tokenSvc.StoreOAuthData(context.Background(), tokens.OAuthResult{
		TeamID:      teamID,
		TeamName:    "Acme",
		AccessToken: "xoxb-" + teamID,
	}, tokens.ActorContext{})
	if err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}
	return outcome.BotTokenID
}

func TestRevokeTokenSendsNotification(t *testing.T) {
	slack := &fakeSlack{}
	svc, tokenSvc, _ := newTestService(t, slack)
	id := storeToken(t, tokenSvc, "T1")

	result, err := svc.RevokeToken(context.Background(), id, "compromised", "ops", true)
	if err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if !result.Success || result.AlreadyRevoked {
		t.Fatalf("unexpected result: %+v", result)
	}
	if !result.NotificationSent || slack.posted != 1 {
		t.Fatalf("expected one notification, got %+v posted=%d", result, slack.posted)
	}
}

func TestRevokeTokenNotificationFailureDoesNotFailRevocation(t *testing.T) {
	slack := &fakeSlack{failing: true}
	svc, tokenSvc, _ := newTestService(t, slack)
	id := storeToken(t, tokenSvc, "T1")

	result, err := svc.RevokeToken(context.Background(), id, "compromised", "ops", true)
	if err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if !result.Success {
		t.Fatal("notification failure must not fail the revocation")
	}
	if result.NotificationSent {
		t.Fatal("notification misreported as sent")
	}

	status, err := svc.CheckRevocationStatus(context.Background(), id)
	if err != nil {
		t.Fatalf("CheckRevocationStatus: %v", err)
	}
	if !status.IsRevoked {
		t.Fatal("token not actually revoked")
	}
}

func TestRevokeAlreadyRevokedToken(t *testing.T) {
	svc, tokenSvc, _ := newTestService(t, &fakeSlack{})
	id := storeToken(t, tokenSvc, "T1")
	ctx := context.Background()

	if _, err := svc.RevokeToken(ctx, id, "first", "ops", false); err != nil {
		t.Fatalf("first RevokeToken: %v", err)
	}
	result, err := svc.RevokeToken(ctx, id, "second", "ops", false)
	if err != nil {
		t.Fatalf("second RevokeToken: %v", err)
	}
	if !result.Success || !result.AlreadyRevoked {
		t.Fatalf("expected already-revoked success, got %+v", result)
	}
}

func TestRevokeMissingTokenIsResultNotError(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSlack{})
	result, err := svc.RevokeToken(context.Background(), "no-such-id", "x", "ops", false)
	if err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if result.Success {
		t.Fatalf("expected failure result for missing token: %+v", result)
	}
}

func TestRevokeTeamTokensIndividually(t *testing.T) {
	svc, tokenSvc, auditStore := newTestService(t, &fakeSlack{})
	ctx := context.Background()

	if _, err := tokenSvc.StoreOAuthData(ctx, tokens.OAuthResult{
		TeamID:       "T1",
		AccessToken:  "xoxb-bot",
		UserToken:    "xoxp-user",
		AuthedUserID: "U42",
	}, tokens.ActorContext{}); err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}

	before := countEvents(t, auditStore, audit.EventTokenRevoked)
	result, err := svc.RevokeTeamTokens(ctx, "T1", "offboarding", "ops", false)
	if err != nil {
		t.Fatalf("RevokeTeamTokens: %v", err)
	}
	if !result.Success || result.RevokedCount != 2 || result.ErrorCount != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	// One audit entry per token, not one bulk entry.
	if got := countEvents(t, auditStore, audit.EventTokenRevoked) - before; got != 2 {
		t.Fatalf("expected 2 revocation audit entries, got %d", got)
	}
}

func TestRevokeTeamTokensRecordsAdminActor(t *testing.T) {
	svc, tokenSvc, auditStore := newTestService(t, &fakeSlack{})
	ctx := context.Background()
	storeToken(t, tokenSvc, "T1")

	if _, err := svc.RevokeTeamTokens(ctx, "T1", "offboarding", "alice@example.com", false); err != nil {
		t.Fatalf("RevokeTeamTokens: %v", err)
	}

	entries, err := auditStore.ListSince(ctx, time.Time{})
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	// The requesting human lives in the entry details; the actor field
	// stays within the closed classification.
	for _, e := range entries {
		if e.EventType != audit.EventTokenRevoked {
			continue
		}
		if e.ActorType != audit.ActorAdmin {
			t.Fatalf("revocation entry actor = %q, want %q", e.ActorType, audit.ActorAdmin)
		}
	}
}

func TestCheckRevocationStatusFailsClosed(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSlack{})
	status, err := svc.CheckRevocationStatus(context.Background(), "unknown-token")
	if err != nil {
		t.Fatalf("CheckRevocationStatus: %v", err)
	}
	if !status.IsRevoked || status.CanBeUsed {
		t.Fatalf("unknown token must be unusable: %+v", status)
	}
}

func TestValidateRevokedTokenLogsSuspiciousActivity(t *testing.T) {
	svc, tokenSvc, auditStore := newTestService(t, &fakeSlack{})
	ctx := context.Background()
	id := storeToken(t, tokenSvc, "T1")

	if _, err := svc.RevokeToken(ctx, id, "compromised", "ops", false); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}

	result, err := svc.ValidateTokenForUse(ctx, id, "chat.postMessage")
	if err != nil {
		t.Fatalf("ValidateTokenForUse: %v", err)
	}
	if result.CanProceed {
		t.Fatal("revoked token validated for use")
	}
	if countEvents(t, auditStore, audit.EventSuspiciousActivity) != 1 {
		t.Fatal("revoked-token use not logged as suspicious activity")
	}
}

func TestValidateActiveToken(t *testing.T) {
	svc, tokenSvc, _ := newTestService(t, &fakeSlack{})
	id := storeToken(t, tokenSvc, "T1")

	result, err := svc.ValidateTokenForUse(context.Background(), id, "chat.postMessage")
	if err != nil {
		t.Fatalf("ValidateTokenForUse: %v", err)
	}
	if !result.CanProceed {
		t.Fatalf("active token rejected: %+v", result)
	}
}

func countEvents(t *testing.T, store *audit.MemoryStore, eventType audit.EventType) int {
	t.Helper()
	entries, err := store.ListSince(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	count := 0
	for _, e := range entries {
		if e.EventType == eventType {
			count++
		}
	}
	return count
}

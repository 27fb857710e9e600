package tokens

import (
	"context"
	"errors"
	"testing"
	"time"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/platform/crypto"
)

const testSecret = "unit-test-master-secret-0123456789ab"

func newTestService(t *testing.T) (*Service, *MemoryStore, *audit.MemoryStore) {
	t.Helper()
	crypt, err := crypto.New(testSecret)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	auditStore := audit.NewMemoryStore()
	store := NewMemoryStore()
	return NewService(store, crypt, audit.NewService(auditStore, crypt)), store, auditStore
}

func oauthResult(teamID, botToken string) OAuthResult {
	return OAuthResult{
		TeamID:      teamID,
		TeamName:    "Acme",
		TeamDomain:  "acme",
		AccessToken: botToken,
		Scope:       "chat:write,channels:history",
		BotUserID:   "U0BOT",
		AppID:       "A123",
	}
}

func TestStoreOAuthDataAndGetBotToken(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	outcome, err := svc.StoreOAuthData(ctx, oauthResult("T1", "xoxb-first"), ActorContext{ActorType: "external_webhook"})
	if err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}
	if outcome.BotTokenID == "" {
		t.Fatal("missing bot token id")
	}

	// Plaintext must not be persisted anywhere.
	stored, err := store.GetToken(ctx, outcome.BotTokenID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if stored.Ciphertext == "xoxb-first" || stored.Ciphertext == "" {
		t.Fatalf("token stored without encryption: %q", stored.Ciphertext)
	}
	if stored.Algorithm != crypto.Algorithm || stored.KeyID != crypto.KeyID {
		t.Fatalf("envelope tags not recorded: %+v", stored)
	}

	cred, err := svc.GetTeamBotToken(ctx, "T1")
	if err != nil {
		t.Fatalf("GetTeamBotToken: %v", err)
	}
	if cred.Value != "xoxb-first" {
		t.Fatalf("decrypted value mismatch: %q", cred.Value)
	}
}

func TestStoreOAuthDataStoresUserToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res := oauthResult("T1", "xoxb-bot")
	res.UserToken = "xoxp-user"
	res.AuthedUserID = "U42"
	res.UserScope = "search:read"

	outcome, err := svc.StoreOAuthData(ctx, res, ActorContext{})
	if err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}
	if outcome.UserTokenID == "" {
		t.Fatal("user token not stored")
	}

	cred, err := svc.GetUserToken(ctx, "T1", "U42")
	if err != nil {
		t.Fatalf("GetUserToken: %v", err)
	}
	if cred.Value != "xoxp-user" || cred.Scope != "search:read" {
		t.Fatalf("user credential mismatch: %+v", cred)
	}
}

func TestReauthorizationSupersedes(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.StoreOAuthData(ctx, oauthResult("T1", "xoxb-old"), ActorContext{})
	if err != nil {
		t.Fatalf("first StoreOAuthData: %v", err)
	}
	second, err := svc.StoreOAuthData(ctx, oauthResult("T1", "xoxb-new"), ActorContext{})
	if err != nil {
		t.Fatalf("second StoreOAuthData: %v", err)
	}
	if second.Superseded != 1 {
		t.Fatalf("expected 1 superseded token, got %d", second.Superseded)
	}

	old, err := store.GetToken(ctx, first.BotTokenID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if !old.Revoked || old.RevokedReason != ReasonReplacedByOAuth {
		t.Fatalf("old token not superseded: %+v", old)
	}

	cred, err := svc.GetTeamBotToken(ctx, "T1")
	if err != nil {
		t.Fatalf("GetTeamBotToken: %v", err)
	}
	if cred.TokenID != second.BotTokenID || cred.Value != "xoxb-new" {
		t.Fatalf("expected the replacement token, got %+v", cred)
	}
}

func TestGetTeamBotTokenNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.GetTeamBotToken(context.Background(), "T-missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokedTokenNeverReturned(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	outcome, err := svc.StoreOAuthData(ctx, oauthResult("T1", "xoxb-only"), ActorContext{})
	if err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}
	if _, err := svc.RevokeToken(ctx, outcome.BotTokenID, "compromised", "admin", "sec-ops"); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := svc.GetTeamBotToken(ctx, "T1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("revoked token must not be returned, got err=%v", err)
	}
}

func TestRevokeTokenIdempotent(t *testing.T) {
	svc, store, _ := newTestService(t)
	ctx := context.Background()

	outcome, err := svc.StoreOAuthData(ctx, oauthResult("T1", "xoxb-x"), ActorContext{})
	if err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}

	first, err := svc.RevokeToken(ctx, outcome.BotTokenID, "admin_request", "admin", "sec-ops")
	if err != nil {
		t.Fatalf("first RevokeToken: %v", err)
	}
	if first.AlreadyRevoked {
		t.Fatal("first revocation misreported as already revoked")
	}

	stamped, _ := store.GetToken(ctx, outcome.BotTokenID)
	firstStamp := *stamped.RevokedAt

	time.Sleep(2 * time.Millisecond)
	second, err := svc.RevokeToken(ctx, outcome.BotTokenID, "admin_request_again", "admin", "sec-ops")
	if err != nil {
		t.Fatalf("second RevokeToken: %v", err)
	}
	if !second.AlreadyRevoked {
		t.Fatal("second revocation must report already revoked")
	}

	after, _ := store.GetToken(ctx, outcome.BotTokenID)
	if !after.RevokedAt.Equal(firstStamp) || after.RevokedReason != "admin_request" {
		t.Fatalf("repeat revocation overwrote the original stamp: %+v", after)
	}
}

func TestRevokeUnknownTokenIsNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.RevokeToken(context.Background(), "no-such-id", "x", "admin", ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRevokeTeamTokensCountsAll(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	res := oauthResult("T1", "xoxb-bot")
	res.UserToken = "xoxp-user"
	res.AuthedUserID = "U42"
	if _, err := svc.StoreOAuthData(ctx, res, ActorContext{}); err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}

	count, err := svc.RevokeTeamTokens(ctx, "T1", "gdpr_request")
	if err != nil {
		t.Fatalf("RevokeTeamTokens: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 revoked, got %d", count)
	}
}

func TestAccessesAreAudited(t *testing.T) {
	svc, _, auditStore := newTestService(t)
	ctx := context.Background()

	if _, err := svc.StoreOAuthData(ctx, oauthResult("T1", "xoxb-a"), ActorContext{}); err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}
	if _, err := svc.GetTeamBotToken(ctx, "T1"); err != nil {
		t.Fatalf("GetTeamBotToken: %v", err)
	}

	entries, _ := auditStore.ListSince(ctx, time.Time{})
	var sawOAuth, sawAccess bool
	for _, e := range entries {
		switch e.EventType {
		case audit.EventOAuthCompleted:
			sawOAuth = true
		case audit.EventTokenAccessed:
			sawAccess = true
		}
	}
	if !sawOAuth || !sawAccess {
		t.Fatalf("expected oauth and access audit events, got %d entries", len(entries))
	}
}

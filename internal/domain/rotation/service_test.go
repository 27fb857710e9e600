package rotation

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
	unhealthyTeams map[string]bool
	probes         int
}

func (f *fakeSlack) CheckTokenHealth(_ context.Context, teamID, _ string) error {
	f.probes++
	if f.unhealthyTeams[teamID] {
		return errors.New("invalid_auth")
	}
	return nil
}

func (f *fakeSlack) PostMessage(context.Context, string, string, string, string) error {
	return nil
}

func newTestService(t *testing.T, slack *fakeSlack, cfg Config) (*Service, *tokens.Service, *audit.MemoryStore) {
	t.Helper()
	crypt, err := crypto.New(testSecret)
	if err != nil {
		t.Fatalf("crypto.New: %v", err)
	}
	auditStore := audit.NewMemoryStore()
	auditSvc := audit.NewService(auditStore, crypt)
	tokenSvc := tokens.NewService(tokens.NewMemoryStore(), crypt, auditSvc)
	cryptoFor := func(keyID string) (*crypto.Service, error) {
		return crypto.NewWithKeyID(testSecret, keyID)
	}
	svc := NewService(tokenSvc, auditSvc, slack, cfg, cryptoFor)
	svc.batchDelay = 0
	return svc, tokenSvc, auditStore
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

func TestRotateHealthyTokenNotDue(t *testing.T) {
	svc, tokenSvc, _ := newTestService(t, &fakeSlack{}, Config{MaxTokenAge: 30 * 24 * time.Hour})
	tokenID := storeToken(t, tokenSvc, "T1")

	result, err := svc.RotateTeamToken(context.Background(), "T1", "scheduled", false)
	if err != nil {
		t.Fatalf("RotateTeamToken: %v", err)
	}
	if !result.Success || result.Rotated {
		t.Fatalf("healthy token should be left alone: %+v", result)
	}

	tok, err := tokenSvc.Store().GetToken(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Revoked {
		t.Fatal("token was revoked despite being healthy and not due")
	}
}

func TestRotateTokenPastMaxAge(t *testing.T) {
	svc, tokenSvc, _ := newTestService(t, &fakeSlack{}, Config{MaxTokenAge: 30 * 24 * time.Hour})
	tokenID := storeToken(t, tokenSvc, "T1")

	svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }

	result, err := svc.RotateTeamToken(context.Background(), "T1", "scheduled rotation", false)
	if err != nil {
		t.Fatalf("RotateTeamToken: %v", err)
	}
	if !result.Rotated || !result.RequiresReauthorization {
		t.Fatalf("overdue token should be rotated: %+v", result)
	}

	tok, err := tokenSvc.Store().GetToken(context.Background(), tokenID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if !tok.Revoked {
		t.Fatal("rotated token was not revoked")
	}
}

func TestForceRotationSkipsHealthProbe(t *testing.T) {
	slack := &fakeSlack{}
	svc, tokenSvc, auditStore := newTestService(t, slack, Config{MaxTokenAge: 30 * 24 * time.Hour})
	storeToken(t, tokenSvc, "T1")

	result, err := svc.RotateTeamToken(context.Background(), "T1", "incident response", true)
	if err != nil {
		t.Fatalf("RotateTeamToken: %v", err)
	}
	if !result.Rotated {
		t.Fatalf("force rotation did not rotate: %+v", result)
	}
	if slack.probes != 0 {
		t.Fatalf("force rotation probed the API %d times", slack.probes)
	}

	entries, err := auditStore.ListSince(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("ListSince: %v", err)
	}
	found := false
	for _, e := range entries {
		if e.EventType == audit.EventTokenRotated {
			found = true
		}
	}
	if !found {
		t.Fatal("rotation not recorded in the audit trail")
	}
}

func TestRotateWithoutActiveToken(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeSlack{}, Config{})

	result, err := svc.RotateTeamToken(context.Background(), "T-missing", "scheduled", false)
	if err != nil {
		t.Fatalf("RotateTeamToken: %v", err)
	}
	if result.Success {
		t.Fatalf("rotation without a token should not report success: %+v", result)
	}
}

func TestHealthChecksRotateUnhealthyTokens(t *testing.T) {
	slack := &fakeSlack{unhealthyTeams: map[string]bool{"T2": true}}
	svc, tokenSvc, _ := newTestService(t, slack, Config{MaxTokenAge: 30 * 24 * time.Hour, RotateOnFailure: true})
	storeToken(t, tokenSvc, "T1")
	badID := storeToken(t, tokenSvc, "T2")
	storeToken(t, tokenSvc, "T3")

	report, err := svc.PerformHealthChecks(context.Background())
	if err != nil {
		t.Fatalf("PerformHealthChecks: %v", err)
	}
	if report.TotalChecked != 3 || report.Healthy != 2 || report.Unhealthy != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.RotatedTokens) != 1 || report.RotatedTokens[0] != badID {
		t.Fatalf("expected %s rotated, got %v", badID, report.RotatedTokens)
	}

	tok, err := tokenSvc.Store().GetToken(context.Background(), badID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if !tok.Revoked {
		t.Fatal("unhealthy token still active")
	}
}

func TestHealthCheckFailureDoesNotAbortBatch(t *testing.T) {
	slack := &fakeSlack{unhealthyTeams: map[string]bool{"T1": true, "T2": true}}
	svc, tokenSvc, _ := newTestService(t, slack, Config{RotateOnFailure: false})
	storeToken(t, tokenSvc, "T1")
	storeToken(t, tokenSvc, "T2")
	okID := storeToken(t, tokenSvc, "T3")

	report, err := svc.PerformHealthChecks(context.Background())
	if err != nil {
		t.Fatalf("PerformHealthChecks: %v", err)
	}
	if report.Unhealthy != 2 || report.Healthy != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.RotatedTokens) != 0 {
		t.Fatalf("rotate-on-failure disabled but tokens rotated: %v", report.RotatedTokens)
	}

	tok, err := tokenSvc.Store().GetToken(context.Background(), okID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if tok.Revoked {
		t.Fatal("healthy token was revoked")
	}
}

func TestRotateEncryptionKeys(t *testing.T) {
	svc, tokenSvc, _ := newTestService(t, &fakeSlack{}, Config{})
	ctx := context.Background()
	storeToken(t, tokenSvc, "T1")
	storeToken(t, tokenSvc, "T2")

	result, err := svc.RotateEncryptionKeys(ctx, "annual rotation", crypto.KeyID, "v2")
	if err != nil {
		t.Fatalf("RotateEncryptionKeys: %v", err)
	}
	if !result.Success || result.Reencrypted != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}

	remaining, err := tokenSvc.Store().ListTokensByKeyID(ctx, crypto.KeyID, 10)
	if err != nil {
		t.Fatalf("ListTokensByKeyID: %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("%d rows still under the old key", len(remaining))
	}

	// Re-encrypted rows must decrypt under the new key.
	newCrypto, err := crypto.NewWithKeyID(testSecret, "v2")
	if err != nil {
		t.Fatalf("NewWithKeyID: %v", err)
	}
	rotated, err := tokenSvc.Store().ListTokensByKeyID(ctx, "v2", 10)
	if err != nil {
		t.Fatalf("ListTokensByKeyID: %v", err)
	}
	if len(rotated) != 2 {
		t.Fatalf("expected 2 rows under v2, got %d", len(rotated))
	}
	for _, tok := range rotated {
		plain, err := newCrypto.Decrypt(crypto.Envelope{
			Ciphertext: tok.Ciphertext,
			Algorithm:  tok.Algorithm,
			KeyID:      tok.KeyID,
		})
		if err != nil {
			t.Fatalf("decrypt after rotation: %v", err)
		}
		if plain != "xoxb-"+tok.TeamID {
			t.Fatalf("plaintext corrupted by rotation: %q", plain)
		}
	}
}

func TestRotateEncryptionKeysIsolatesBadRows(t *testing.T) {
	svc, tokenSvc, _ := newTestService(t, &fakeSlack{}, Config{})
	ctx := context.Background()
	goodID := storeToken(t, tokenSvc, "T1")
	badID := storeToken(t, tokenSvc, "T2")

	// Corrupt one row's ciphertext; the other must still be rotated.
	if err := tokenSvc.Store().UpdateCiphertext(ctx, badID, "not-a-valid-envelope", crypto.Algorithm, crypto.KeyID); err != nil {
		t.Fatalf("UpdateCiphertext: %v", err)
	}

	result, err := svc.RotateEncryptionKeys(ctx, "annual rotation", crypto.KeyID, "v2")
	if err != nil {
		t.Fatalf("RotateEncryptionKeys: %v", err)
	}
	if result.Success {
		t.Fatal("rotation with a corrupt row should not report success")
	}
	if result.Reencrypted != 1 {
		t.Fatalf("expected 1 re-encrypted row, got %d", result.Reencrypted)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}

	good, err := tokenSvc.Store().GetToken(ctx, goodID)
	if err != nil {
		t.Fatalf("GetToken: %v", err)
	}
	if good.KeyID != "v2" {
		t.Fatalf("good row not rotated: key id %s", good.KeyID)
	}
}

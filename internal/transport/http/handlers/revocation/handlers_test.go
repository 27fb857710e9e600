package revocationhandler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/domain/revocation"
	"slackmemory/internal/domain/tokens"
	"slackmemory/internal/platform/crypto"
)

const testSecret = "handler-test-master-secret-32b!!"

type fakeSlack struct {
	posted int
}

func (f *fakeSlack) CheckTokenHealth(context.Context, string, string) error { return nil }

func (f *fakeSlack) PostMessage(context.Context, string, string, string, string) error {
	f.posted++
	return nil
}

func newTestRouter(t *testing.T, notifyDefault bool) (chi.Router, *fakeSlack, string) {
	t.Helper()
	crypt, err := crypto.New(testSecret)
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	auditSvc := audit.NewService(audit.NewMemoryStore(), crypt)
	tokenSvc := tokens.NewService(tokens.NewMemoryStore(), crypt, auditSvc)
	slack := &fakeSlack{}
	svc := revocation.NewService(tokenSvc, auditSvc, slack, "#security")

	outcome, err := tokenSvc.StoreOAuthData(context.Background(), tokens.OAuthResult{
		TeamID:      "T1",
		AccessToken: "xoxb-T1",
	}, tokens.ActorContext{})
	if err != nil {
		t.Fatalf("StoreOAuthData: %v", err)
	}

	r := chi.NewRouter()
	NewHandler(svc, notifyDefault).RegisterRoutes(r)
	return r, slack, outcome.BotTokenID
}

func TestRevokeNotifyDefaults(t *testing.T) {
	tests := []struct {
		name          string
		notifyDefault bool
		body          string
		wantPosted    int
	}{
		{name: "omitted uses enabled default", notifyDefault: true, body: `{"reason":"compromised"}`, wantPosted: 1},
		{name: "omitted uses disabled default", notifyDefault: false, body: `{"reason":"compromised"}`, wantPosted: 0},
		{name: "explicit false overrides default", notifyDefault: true, body: `{"reason":"compromised","notifySlack":false}`, wantPosted: 0},
		{name: "explicit true overrides default", notifyDefault: false, body: `{"reason":"compromised","notifySlack":true}`, wantPosted: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			router, slack, tokenID := newTestRouter(t, tc.notifyDefault)
			req := httptest.NewRequest(http.MethodPost, "/revocation/tokens/"+tokenID, strings.NewReader(tc.body))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if slack.posted != tc.wantPosted {
				t.Fatalf("notices sent = %d, want %d", slack.posted, tc.wantPosted)
			}
		})
	}
}

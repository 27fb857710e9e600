package retentionhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/domain/retention"
	"slackmemory/internal/domain/synclog"
	"slackmemory/internal/domain/tokens"
	"slackmemory/internal/platform/crypto"
	"slackmemory/internal/transport/http/api"
)

const testSecret = "handler-test-master-secret-32b!!"

func newTestRouter(t *testing.T) (chi.Router, *retention.Service) {
	t.Helper()
	crypt, err := crypto.New(testSecret)
	if err != nil {
		t.Fatalf("crypto: %v", err)
	}
	auditSvc := audit.NewService(audit.NewMemoryStore(), crypt)
	svc, err := retention.NewService(context.Background(), retention.NewMemoryStore(), tokens.NewMemoryStore(), auditSvc, synclog.NewMemoryStore(), 365)
	if err != nil {
		t.Fatalf("retention service: %v", err)
	}

	r := chi.NewRouter()
	NewHandler(svc).RegisterRoutes(r)
	return r, svc
}

func doJSON(t *testing.T, r chi.Router, method, path string, body any) (*httptest.ResponseRecorder, api.Envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var env api.Envelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	return rec, env
}

func TestListPoliciesReturnsDefaults(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doJSON(t, r, http.MethodGet, "/retention/policies", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d success = %v", rec.Code, env.Success)
	}
	policies, ok := env.Data.([]any)
	if !ok {
		t.Fatalf("data type = %T, want array", env.Data)
	}
	if len(policies) != 4 {
		t.Fatalf("default policies = %d, want 4", len(policies))
	}
}

func TestHoldLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doJSON(t, r, http.MethodPost, "/retention/holds", map[string]any{
		"teamId":    "T100",
		"dataClass": "tokens",
		"reason":    "litigation 2026-014",
		"createdBy": "legal@example.com",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201", rec.Code)
	}
	created := env.Data.(map[string]any)
	holdID, _ := created["id"].(string)
	if holdID == "" {
		t.Fatal("created hold has no id")
	}

	rec, env = doJSON(t, r, http.MethodGet, "/retention/holds", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	if holds := env.Data.([]any); len(holds) != 1 {
		t.Fatalf("holds = %d, want 1", len(holds))
	}

	rec, _ = doJSON(t, r, http.MethodDelete, "/retention/holds/"+holdID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d, want 200", rec.Code)
	}

	rec, _ = doJSON(t, r, http.MethodDelete, "/retention/holds/"+holdID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("second delete status = %d, want 404", rec.Code)
	}
}

func TestAddHoldValidation(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doJSON(t, r, http.MethodPost, "/retention/holds", map[string]any{
		"teamId":    "T100",
		"dataClass": "tokens",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if env.Error == nil || env.Error.Code != "validation_error" {
		t.Fatalf("error = %+v, want validation_error", env.Error)
	}
}

func TestRunDryRunReturnsReports(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doJSON(t, r, http.MethodPost, "/retention/run", map[string]any{"dryRun": true})
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("status = %d success = %v", rec.Code, env.Success)
	}
	reports := env.Data.([]any)
	if len(reports) != 4 {
		t.Fatalf("reports = %d, want one per default policy", len(reports))
	}
	first := reports[0].(map[string]any)
	if dry, _ := first["dryRun"].(bool); !dry {
		t.Fatal("report not marked as dry run")
	}
}

func TestSummaryEndpoint(t *testing.T) {
	r, _ := newTestRouter(t)

	rec, env := doJSON(t, r, http.MethodGet, "/retention/summary", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	summary := env.Data.(map[string]any)
	if summary["status"] != string(retention.StatusCompliant) {
		t.Fatalf("status = %v, want compliant", summary["status"])
	}
}

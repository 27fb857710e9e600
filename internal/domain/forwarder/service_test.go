package forwarder

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"slackmemory/internal/domain/synclog"
)

func event(teamID, channelID, text string) MessageEvent {
	return MessageEvent{
		TeamID:    teamID,
		ChannelID: channelID,
		UserID:    "U1",
		Text:      text,
		Timestamp: "1710001234.000100",
	}
}

func TestForwardPostsAndRecords(t *testing.T) {
	var got memoryPayload
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := synclog.NewMemoryStore()
	svc := NewService(srv.URL, "sm-key", store)

	if err := svc.Forward(context.Background(), event("T1", "C1", "hello world")); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if auth != "Bearer sm-key" {
		t.Fatalf("missing bearer auth: %q", auth)
	}
	if got.Content != "hello world" {
		t.Fatalf("payload content %q", got.Content)
	}
	if got.Metadata["teamId"] != "T1" || got.Metadata["channelId"] != "C1" {
		t.Fatalf("payload metadata incomplete: %v", got.Metadata)
	}

	logs, err := store.ListSyncLogs(context.Background(), "T1", 10)
	if err != nil {
		t.Fatalf("ListSyncLogs: %v", err)
	}
	if len(logs) != 1 || logs[0].Status != synclog.StatusSynced {
		t.Fatalf("sync outcome not recorded: %+v", logs)
	}
}

func TestForwardTargetsIngestPath(t *testing.T) {
	tests := []struct {
		name   string
		apiURL func(base string) string
	}{
		{name: "bare origin", apiURL: func(base string) string { return base }},
		{name: "trailing slash", apiURL: func(base string) string { return base + "/" }},
		{name: "path already configured", apiURL: func(base string) string { return base + "/v3/memories" }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var path string
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				w.WriteHeader(http.StatusOK)
			}))
			defer srv.Close()

			svc := NewService(tc.apiURL(srv.URL), "sm-key", synclog.NewMemoryStore())
			if err := svc.Forward(context.Background(), event("T1", "C1", "hello")); err != nil {
				t.Fatalf("Forward: %v", err)
			}
			if path != "/v3/memories" {
				t.Fatalf("request path = %q, want /v3/memories", path)
			}
		})
	}
}

func TestForwardFailureRecorded(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	store := synclog.NewMemoryStore()
	svc := NewService(srv.URL, "bad-key", store)

	if err := svc.Forward(context.Background(), event("T1", "C1", "hello")); err == nil {
		t.Fatal("expected forwarding error")
	}

	logs, _ := store.ListSyncLogs(context.Background(), "T1", 10)
	if len(logs) != 1 || logs[0].Status != synclog.StatusFailed {
		t.Fatalf("failure not recorded: %+v", logs)
	}
	if logs[0].ErrorMessage == "" {
		t.Fatal("failure row missing error message")
	}
}

func TestForwardRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := synclog.NewMemoryStore()
	svc := NewService(srv.URL, "sm-key", store)

	if err := svc.Forward(context.Background(), event("T1", "C1", "hello")); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected a retry, got %d attempts", attempts)
	}
}

func TestDisabledChannelSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		t.Error("disabled channel was forwarded")
	}))
	defer srv.Close()

	store := synclog.NewMemoryStore()
	svc := NewService(srv.URL, "sm-key", store)
	if err := svc.SetChannelEnabled(context.Background(), "T1", "C1", false); err != nil {
		t.Fatalf("SetChannelEnabled: %v", err)
	}

	if err := svc.Forward(context.Background(), event("T1", "C1", "hello")); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	logs, _ := store.ListSyncLogs(context.Background(), "T1", 10)
	if len(logs) != 1 || logs[0].Status != synclog.StatusSkipped {
		t.Fatalf("skip not recorded: %+v", logs)
	}
}

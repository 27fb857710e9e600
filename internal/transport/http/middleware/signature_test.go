package middleware

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"
)

const testSigningSecret = "8f742231b10e8888abcd99yyyzzz85a5"

func slackSign(secret, ts, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + ts + ":" + body))
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}

func signedRequest(t *testing.T, secret, body string, ts time.Time) *http.Request {
	t.Helper()
	tsStr := strconv.FormatInt(ts.Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
	req.Header.Set("X-Slack-Request-Timestamp", tsStr)
	req.Header.Set("X-Slack-Signature", slackSign(secret, tsStr, body))
	return req
}

func TestSlackSignatureAcceptsValid(t *testing.T) {
	body := `{"type":"url_verification","challenge":"abc"}`
	var seen string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, err := io.ReadAll(r.Body)
		if err != nil {
			t.Fatalf("read body: %v", err)
		}
		seen = string(got)
	})

	handler := SlackSignature(testSigningSecret)(next)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, signedRequest(t, testSigningSecret, body, time.Now()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if seen != body {
		t.Fatalf("handler body = %q, want original body preserved", seen)
	}
}

func TestSlackSignatureRejections(t *testing.T) {
	body := `{"type":"event_callback"}`
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	})
	handler := SlackSignature(testSigningSecret)(next)

	t.Run("wrong secret", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, "wrong-secret", body, time.Now()))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("stale timestamp", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, signedRequest(t, testSigningSecret, body, time.Now().Add(-10*time.Minute)))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		req := signedRequest(t, testSigningSecret, body, time.Now())
		req.Body = io.NopCloser(strings.NewReader(`{"type":"event_callback","evil":true}`))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})

	t.Run("missing headers", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/slack/events", strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d, want 401", rec.Code)
		}
	})
}

func TestRateLimitWindow(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RateLimit(3, time.Minute)(next)

	do := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/admin/x", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < 3; i++ {
		if rec := do("10.0.0.1:5000"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
	rec := do("10.0.0.1:5000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("Retry-After header missing on 429")
	}

	// A different caller has its own bucket.
	if rec := do("10.0.0.2:5000"); rec.Code != http.StatusOK {
		t.Fatalf("other caller: status = %d, want 200", rec.Code)
	}
}

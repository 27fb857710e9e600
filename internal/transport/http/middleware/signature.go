package middleware

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"slackmemory/internal/transport/http/api"
)

const signatureMaxAge = 5 * time.Minute

// SlackSignature verifies the v0 request signature Slack sends with
// every webhook. Stale timestamps are rejected to blunt replays.
func SlackSignature(signingSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ts := r.Header.Get("X-Slack-Request-Timestamp")
			given := r.Header.Get("X-Slack-Signature")
			if ts == "" || given == "" {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "missing request signature", GetRequestID(r.Context()))
				return
			}

			unix, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "bad signature timestamp", GetRequestID(r.Context()))
				return
			}
			age := time.Since(time.Unix(unix, 0))
			if age > signatureMaxAge || age < -signatureMaxAge {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "stale request signature", GetRequestID(r.Context()))
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
			if err != nil {
				api.Fail(w, http.StatusBadRequest, "bad_request", "unreadable body", GetRequestID(r.Context()))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			mac := hmac.New(sha256.New, []byte(signingSecret))
			mac.Write([]byte("v0:" + ts + ":"))
			mac.Write(body)
			want := "v0=" + hex.EncodeToString(mac.Sum(nil))

			if !hmac.Equal([]byte(want), []byte(given)) {
				api.Fail(w, http.StatusUnauthorized, "unauthorized", "signature mismatch", GetRequestID(r.Context()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

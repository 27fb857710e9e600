package audit

import (
	"encoding/base64"
	"net"
	"strings"
)

const (
	redactionMarker   = "[REDACTED]"
	maxErrorLength    = 500
	maxUserAgentLen   = 256
	secretLengthGuess = 100
)

var forbiddenTerms = []string{"token", "secret", "password", "key", "credential", "authorization"}

// sanitizeDetails strips anything secret-shaped out of an event's
// details before they are persisted. Named fields are assumed safe;
// Extra is scanned by key name and value shape.
func sanitizeDetails(d *Details) *Details {
	if d == nil {
		return nil
	}
	out := &Details{
		Operation:   d.Operation,
		Reason:      truncate(d.Reason, maxErrorLength),
		RequestedBy: d.RequestedBy,
		Count:       d.Count,
	}
	if len(d.Extra) > 0 {
		out.Extra = make(map[string]string, len(d.Extra))
		for k, v := range d.Extra {
			if hasForbiddenTerm(k) {
				continue
			}
			if looksLikeSecret(v) {
				out.Extra[k] = redactionMarker
				continue
			}
			out.Extra[k] = v
		}
	}
	return out
}

func hasForbiddenTerm(key string) bool {
	lower := strings.ToLower(key)
	for _, term := range forbiddenTerms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// looksLikeSecret flags values that are over-long or decode as base64
// with meaningful length. Short human-readable strings pass through.
func looksLikeSecret(v string) bool {
	if len(v) > secretLengthGuess {
		return true
	}
	if len(v) >= 24 && !strings.ContainsAny(v, " \t\n") {
		if _, err := base64.StdEncoding.DecodeString(v); err == nil {
			return true
		}
	}
	return false
}

// sanitizeIP masks the last octet of an IPv4 address. IPv6 addresses
// are truncated to their /48 prefix.
func sanitizeIP(ip string) string {
	if ip == "" {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return redactionMarker
	}
	if v4 := parsed.To4(); v4 != nil {
		return strings.Join(strings.Split(v4.String(), ".")[:3], ".") + ".xxx"
	}
	parts := strings.Split(parsed.String(), ":")
	if len(parts) > 3 {
		parts = parts[:3]
	}
	return strings.Join(parts, ":") + "::xxxx"
}

func sanitizeError(msg string) string {
	return truncate(msg, maxErrorLength)
}

func sanitizeUserAgent(ua string) string {
	return truncate(ua, maxUserAgentLen)
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

package audit

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"slackmemory/internal/platform/crypto"
	"slackmemory/internal/platform/metrics"
)

// Service writes hash-chained audit entries. Writes are serialized so
// each entry's hash covers the hash of the entry immediately before it.
// LogEvent never returns an error: audit failures must not abort the
// security operation that produced the event.
type Service struct {
	store  Store
	crypto *crypto.Service

	mu       sync.Mutex
	lastHash string
	chained  bool
	entropy  *ulid.MonotonicEntropy
	now      func() time.Time
}

func NewService(store Store, crypt *crypto.Service) *Service {
	return &Service{
		store:   store,
		crypto:  crypt,
		entropy: ulid.Monotonic(rand.Reader, 0),
		now:     time.Now,
	}
}

// LogEvent sanitizes, encrypts, chains and persists one audit entry,
// returning its id. An empty id means the entry could not be written
// anywhere durable.
func (s *Service) LogEvent(ctx context.Context, event Event) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := s.buildEntry(event)
	prev, ok := s.previousHash(ctx)
	if !ok {
		// Chain state unknown; still better to write than to drop.
		prev = ""
	}
	entry.IntegrityHash = computeHash(entry, prev)

	if err := s.store.Append(ctx, entry); err != nil {
		slog.Warn("audit append failed", "eventType", event.Type, "err", err)
		s.logFallback(ctx, event, err)
		return ""
	}
	s.lastHash = entry.IntegrityHash
	s.chained = true
	metrics.AuditEventsTotal.WithLabelValues(string(entry.EventType), strconv.FormatBool(entry.Success)).Inc()
	return entry.ID
}

func (s *Service) buildEntry(event Event) *Entry {
	severity, category := event.Severity, event.Category
	if severity == "" || category == "" {
		derivedSev, derivedCat := Classify(event.Type, event.Success)
		if severity == "" {
			severity = derivedSev
		}
		if category == "" {
			category = derivedCat
		}
	}
	actor := event.ActorType
	if actor == "" {
		actor = ActorSystem
	}

	now := s.now().UTC()
	entry := &Entry{
		ID:           s.newID(now),
		EventType:    event.Type,
		TeamID:       event.TeamID,
		TokenID:      event.TokenID,
		ActorType:    actor,
		Success:      event.Success,
		Severity:     severity,
		Category:     category,
		ErrorMessage: sanitizeError(event.Error),
		IPAddress:    sanitizeIP(event.IPAddress),
		UserAgent:    sanitizeUserAgent(event.UserAgent),
		CreatedAt:    now,
	}

	if details := sanitizeDetails(event.Details); details != nil {
		payload, err := json.Marshal(details)
		if err != nil {
			slog.Warn("audit details marshal failed", "eventType", event.Type, "err", err)
		} else if env, err := s.crypto.Encrypt(string(payload)); err != nil {
			slog.Warn("audit details encrypt failed", "eventType", event.Type, "err", err)
		} else {
			entry.DetailsCiphertext = env.Ciphertext
			entry.DetailsAlgorithm = env.Algorithm
			entry.DetailsKeyID = env.KeyID
		}
	}
	return entry
}

// DecryptDetails recovers the sanitized details of an entry, for the
// admin surface.
func (s *Service) DecryptDetails(entry Entry) (*Details, error) {
	if entry.DetailsCiphertext == "" {
		return nil, nil
	}
	plain, err := s.crypto.Decrypt(crypto.Envelope{
		Ciphertext: entry.DetailsCiphertext,
		Algorithm:  entry.DetailsAlgorithm,
		KeyID:      entry.DetailsKeyID,
	})
	if err != nil {
		return nil, err
	}
	var details Details
	if err := json.Unmarshal([]byte(plain), &details); err != nil {
		return nil, err
	}
	return &details, nil
}

// previousHash loads the chain tail once, then tracks it in memory.
// Caller holds s.mu.
func (s *Service) previousHash(ctx context.Context) (string, bool) {
	if s.chained {
		return s.lastHash, true
	}
	latest, err := s.store.LatestEntry(ctx)
	if err != nil {
		slog.Warn("audit chain tail lookup failed", "err", err)
		return "", false
	}
	if latest == nil {
		s.lastHash = ""
	} else {
		s.lastHash = latest.IntegrityHash
	}
	s.chained = true
	return s.lastHash, true
}

// logFallback records that audit logging itself failed. A failure here
// leaves only the diagnostic log line. Caller holds s.mu.
func (s *Service) logFallback(ctx context.Context, failed Event, cause error) {
	now := s.now().UTC()
	entry := &Entry{
		ID:           s.newID(now),
		EventType:    EventAuditLogFailure,
		TeamID:       failed.TeamID,
		ActorType:    ActorSystem,
		Success:      false,
		Severity:     SeverityHigh,
		Category:     CategorySecurity,
		ErrorMessage: sanitizeError("audit write failed for " + string(failed.Type) + ": " + cause.Error()),
		CreatedAt:    now,
	}
	entry.IntegrityHash = computeHash(entry, s.lastHash)
	if err := s.store.Append(ctx, entry); err != nil {
		slog.Error("audit fallback write failed", "originalEvent", failed.Type, "err", err)
		return
	}
	s.lastHash = entry.IntegrityHash
	s.chained = true
}

func (s *Service) newID(t time.Time) string {
	id, err := ulid.New(ulid.Timestamp(t), s.entropy)
	if err != nil {
		// Entropy exhaustion within the same millisecond; fall back to
		// a non-monotonic id rather than dropping the entry.
		return ulid.MustNew(ulid.Timestamp(t), rand.Reader).String()
	}
	return id.String()
}

// computeHash covers every stored field of the entry plus the previous
// entry's hash. Field order is fixed; changing it invalidates every
// existing chain.
func computeHash(entry *Entry, prevHash string) string {
	fields := []string{
		entry.ID,
		string(entry.EventType),
		entry.TeamID,
		entry.TokenID,
		string(entry.ActorType),
		strconv.FormatBool(entry.Success),
		string(entry.Severity),
		string(entry.Category),
		entry.DetailsCiphertext,
		entry.ErrorMessage,
		entry.IPAddress,
		entry.UserAgent,
		entry.CreatedAt.UTC().Format(time.RFC3339Nano),
		prevHash,
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, "|")))
	return hex.EncodeToString(sum[:])
}

package forwarder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"slackmemory/internal/domain/synclog"
)

const (
	requestTimeout = 15 * time.Second
	maxRetries     = 2
	ingestPath     = "/v3/memories"
)

// MessageEvent is the subset of a Slack message event the forwarder
// needs. The transport layer fills it from the webhook body.
type MessageEvent struct {
	TeamID    string `json:"teamId"`
	ChannelID string `json:"channelId"`
	UserID    string `json:"userId"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
	ThreadTS  string `json:"threadTs,omitempty"`
}

// memoryPayload is the Supermemory ingestion request body.
type memoryPayload struct {
	Content       string            `json:"content"`
	ContainerTags []string          `json:"containerTags"`
	Metadata      map[string]string `json:"metadata"`
}

// Service turns Slack messages into Supermemory records. Every attempt
// leaves a sync-log row; message content itself is never persisted here.
type Service struct {
	client *http.Client
	apiURL string
	apiKey string
	sync   synclog.Store
}

// NewService takes the API origin; the ingestion path is appended per
// request. A configured URL that already carries the path is tolerated.
func NewService(apiURL, apiKey string, syncStore synclog.Store) *Service {
	apiURL = strings.TrimSuffix(strings.TrimSuffix(apiURL, "/"), ingestPath)
	return &Service{
		client: &http.Client{Timeout: requestTimeout},
		apiURL: apiURL,
		apiKey: apiKey,
		sync:   syncStore,
	}
}

// Forward ships one message. Channels explicitly disabled by config are
// skipped; unknown channels default to enabled.
func (s *Service) Forward(ctx context.Context, ev MessageEvent) error {
	if ev.TeamID == "" || ev.Text == "" {
		return fmt.Errorf("message event needs a team id and text")
	}

	cfg, err := s.sync.GetChannelConfig(ctx, ev.TeamID, ev.ChannelID)
	if err == nil && !cfg.Enabled {
		s.record(ctx, ev, synclog.StatusSkipped, "channel disabled")
		return nil
	}

	err = s.post(ctx, ev)
	if err != nil {
		s.record(ctx, ev, synclog.StatusFailed, err.Error())
		return err
	}
	s.record(ctx, ev, synclog.StatusSynced, "")
	return nil
}

func (s *Service) post(ctx context.Context, ev MessageEvent) error {
	payload := memoryPayload{
		Content:       ev.Text,
		ContainerTags: []string{ev.TeamID, ev.ChannelID},
		Metadata: map[string]string{
			"source":    "slack",
			"teamId":    ev.TeamID,
			"channelId": ev.ChannelID,
			"userId":    ev.UserID,
			"timestamp": ev.Timestamp,
		},
	}
	if ev.ThreadTS != "" {
		payload.Metadata["threadTs"] = ev.ThreadTS
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.apiURL+ingestPath, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+s.apiKey)

		resp, err := s.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err = fmt.Errorf("supermemory returned %d: %s", resp.StatusCode, msg)
		// Client errors will not get better on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	return backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries), ctx))
}

func (s *Service) record(ctx context.Context, ev MessageEvent, status synclog.SyncStatus, errMsg string) {
	log := &synclog.SyncLog{
		TeamID:       ev.TeamID,
		ChannelID:    ev.ChannelID,
		MessageTS:    ev.Timestamp,
		Status:       status,
		ErrorMessage: errMsg,
	}
	if err := s.sync.RecordSync(ctx, log); err != nil {
		slog.Warn("failed to record sync outcome", "teamId", ev.TeamID, "err", err)
	}
}

// SetChannelEnabled flips a channel's forwarding opt-in.
func (s *Service) SetChannelEnabled(ctx context.Context, teamID, channelID string, enabled bool) error {
	return s.sync.UpsertChannelConfig(ctx, &synclog.ChannelConfig{
		TeamID:    teamID,
		ChannelID: channelID,
		Enabled:   enabled,
	})
}

package slackhandler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/slack-go/slack"

	"slackmemory/internal/domain/forwarder"
	"slackmemory/internal/domain/tokens"
	"slackmemory/internal/transport/http/api"
	"slackmemory/internal/transport/http/middleware"
)

type Handler struct {
	Tokens       *tokens.Service
	Forwarder    *forwarder.Service
	ClientID     string
	ClientSecret string
	RedirectURI  string
	httpClient   *http.Client
}

func NewHandler(tokenSvc *tokens.Service, forwarderSvc *forwarder.Service, clientID, clientSecret, redirectURI string) *Handler {
	return &Handler{
		Tokens:       tokenSvc,
		Forwarder:    forwarderSvc,
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURI:  redirectURI,
		httpClient:   &http.Client{},
	}
}

func (h *Handler) RegisterOAuthRoutes(r chi.Router) {
	r.Get("/slack/oauth/callback", h.handleOAuthCallback)
}

func (h *Handler) RegisterEventRoutes(r chi.Router) {
	r.Post("/slack/events", h.handleEvents)
}

func (h *Handler) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	if errParam := r.URL.Query().Get("error"); errParam != "" {
		api.Fail(w, http.StatusBadRequest, "oauth_denied", "authorization was denied: "+errParam, reqID)
		return
	}
	code := r.URL.Query().Get("code")
	if code == "" {
		api.Fail(w, http.StatusBadRequest, "bad_request", "missing authorization code", reqID)
		return
	}

	resp, err := slack.GetOAuthV2ResponseContext(r.Context(), h.httpClient, h.ClientID, h.ClientSecret, code, h.RedirectURI)
	if err != nil {
		slog.Warn("oauth exchange failed", "err", err, "requestId", reqID)
		api.Fail(w, http.StatusBadGateway, "oauth_exchange_failed", "could not exchange authorization code", reqID)
		return
	}

	result := tokens.OAuthResult{
		TeamID:         resp.Team.ID,
		TeamName:       resp.Team.Name,
		EnterpriseID:   resp.Enterprise.ID,
		EnterpriseName: resp.Enterprise.Name,
		AccessToken:    resp.AccessToken,
		Scope:          resp.Scope,
		BotUserID:      resp.BotUserID,
		AppID:          resp.AppID,
		AuthedUserID:   resp.AuthedUser.ID,
		UserToken:      resp.AuthedUser.AccessToken,
		UserScope:      resp.AuthedUser.Scope,
	}
	outcome, err := h.Tokens.StoreOAuthData(r.Context(), result, tokens.ActorContext{
		ActorType: "external_webhook",
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
	})
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "oauth_store_failed", "could not store workspace credentials", reqID)
		return
	}
	api.Success(w, outcome, reqID)
}

// eventEnvelope is the outer Slack events-API body.
type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	TeamID    string `json:"team_id"`
	Event     struct {
		Type     string `json:"type"`
		Subtype  string `json:"subtype"`
		Channel  string `json:"channel"`
		User     string `json:"user"`
		BotID    string `json:"bot_id"`
		Text     string `json:"text"`
		TS       string `json:"ts"`
		ThreadTS string `json:"thread_ts"`
	} `json:"event"`
}

func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	var envelope eventEnvelope
	if err := json.NewDecoder(r.Body).Decode(&envelope); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid event body", reqID)
		return
	}

	switch envelope.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(envelope.Challenge))
		return
	case "event_callback":
	default:
		w.WriteHeader(http.StatusOK)
		return
	}

	ev := envelope.Event
	// Bot echoes and message edits/deletes are not memories.
	if ev.Type != "message" || ev.BotID != "" || ev.Subtype != "" || ev.Text == "" {
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.Forwarder.Forward(r.Context(), forwarder.MessageEvent{
		TeamID:    envelope.TeamID,
		ChannelID: ev.Channel,
		UserID:    ev.User,
		Text:      ev.Text,
		Timestamp: ev.TS,
		ThreadTS:  ev.ThreadTS,
	}); err != nil {
		slog.Warn("message forward failed", "teamId", envelope.TeamID, "err", err, "requestId", reqID)
	}
	// Always 200: Slack retries non-2xx responses and the failure is
	// already in the sync log.
	w.WriteHeader(http.StatusOK)
}

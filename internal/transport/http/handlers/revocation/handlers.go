package revocationhandler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"slackmemory/internal/domain/revocation"
	"slackmemory/internal/transport/http/api"
	"slackmemory/internal/transport/http/middleware"
)

type Handler struct {
	Service *revocation.Service

	// NotifyDefault applies when a revocation request leaves
	// notifySlack unset.
	NotifyDefault bool
}

func NewHandler(svc *revocation.Service, notifyDefault bool) *Handler {
	return &Handler{Service: svc, NotifyDefault: notifyDefault}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/revocation/tokens/{tokenID}", h.handleRevokeToken)
	r.Post("/revocation/teams/{teamID}", h.handleRevokeTeam)
	r.Get("/revocation/tokens/{tokenID}/status", h.handleStatus)
	r.Post("/revocation/tokens/{tokenID}/validate", h.handleValidate)
}

type revokeRequest struct {
	Reason      string `json:"reason"`
	NotifySlack *bool  `json:"notifySlack"`
}

func (h *Handler) notify(req revokeRequest) bool {
	if req.NotifySlack != nil {
		return *req.NotifySlack
	}
	return h.NotifyDefault
}

func (h *Handler) handleRevokeToken(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	tokenID := chi.URLParam(r, "tokenID")

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}
	if req.Reason == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "reason is required", reqID)
		return
	}

	admin, _ := middleware.GetAdmin(r.Context())
	result, err := h.Service.RevokeToken(r.Context(), tokenID, req.Reason, admin, h.notify(req))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "revocation_failed", err.Error(), reqID)
		return
	}
	api.Success(w, result, reqID)
}

func (h *Handler) handleRevokeTeam(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	teamID := chi.URLParam(r, "teamID")

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}
	if req.Reason == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "reason is required", reqID)
		return
	}

	admin, _ := middleware.GetAdmin(r.Context())
	result, err := h.Service.RevokeTeamTokens(r.Context(), teamID, req.Reason, admin, h.notify(req))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "revocation_failed", err.Error(), reqID)
		return
	}
	api.Success(w, result, reqID)
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	tokenID := chi.URLParam(r, "tokenID")

	status, err := h.Service.CheckRevocationStatus(r.Context(), tokenID)
	if err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "token not found", reqID)
		return
	}
	api.Success(w, status, reqID)
}

type validateRequest struct {
	Operation string `json:"operation"`
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	tokenID := chi.URLParam(r, "tokenID")

	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}
	if req.Operation == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "operation is required", reqID)
		return
	}

	result, err := h.Service.ValidateTokenForUse(r.Context(), tokenID, req.Operation)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "validation_failed", err.Error(), reqID)
		return
	}
	api.Success(w, result, reqID)
}

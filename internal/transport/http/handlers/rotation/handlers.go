package rotationhandler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"slackmemory/internal/domain/rotation"
	"slackmemory/internal/transport/http/api"
	"slackmemory/internal/transport/http/middleware"
)

type Handler struct {
	Service *rotation.Service
}

func NewHandler(svc *rotation.Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/rotation/teams/{teamID}", h.handleRotateTeam)
	r.Post("/rotation/health-checks", h.handleHealthChecks)
	r.Post("/rotation/keys", h.handleRotateKeys)
}

type rotateTeamRequest struct {
	Reason string `json:"reason"`
	Force  bool   `json:"force"`
}

func (h *Handler) handleRotateTeam(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	teamID := chi.URLParam(r, "teamID")

	var req rotateTeamRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}
	if req.Reason == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "reason is required", reqID)
		return
	}

	result, err := h.Service.RotateTeamToken(r.Context(), teamID, req.Reason, req.Force)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "rotation_failed", err.Error(), reqID)
		return
	}
	api.Success(w, result, reqID)
}

func (h *Handler) handleHealthChecks(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	report, err := h.Service.PerformHealthChecks(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "health_check_failed", err.Error(), reqID)
		return
	}
	api.Success(w, report, reqID)
}

type rotateKeysRequest struct {
	Reason   string `json:"reason"`
	OldKeyID string `json:"oldKeyId"`
	NewKeyID string `json:"newKeyId"`
}

func (h *Handler) handleRotateKeys(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var req rotateKeysRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}
	if req.Reason == "" || req.OldKeyID == "" || req.NewKeyID == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "reason, oldKeyId and newKeyId are required", reqID)
		return
	}
	if req.OldKeyID == req.NewKeyID {
		api.Fail(w, http.StatusBadRequest, "validation_error", "new key id must differ from old key id", reqID)
		return
	}

	result, err := h.Service.RotateEncryptionKeys(r.Context(), req.Reason, req.OldKeyID, req.NewKeyID)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "key_rotation_failed", err.Error(), reqID)
		return
	}
	api.Success(w, result, reqID)
}

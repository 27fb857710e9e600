package audithandler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"slackmemory/internal/domain/audit"
	"slackmemory/internal/transport/http/api"
	"slackmemory/internal/transport/http/middleware"
)

const defaultWindowDays = 30

type Handler struct {
	Service *audit.Service
}

func NewHandler(svc *audit.Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/audit/verify", h.handleVerify)
	r.Get("/audit/statistics", h.handleStatistics)
	r.Post("/audit/cleanup", h.handleCleanup)
}

func windowDays(r *http.Request) int {
	raw := r.URL.Query().Get("days")
	if raw == "" {
		return defaultWindowDays
	}
	days, err := strconv.Atoi(raw)
	if err != nil || days <= 0 {
		return defaultWindowDays
	}
	return days
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	result, err := h.Service.VerifyIntegrity(r.Context(), r.URL.Query().Get("teamId"), windowDays(r))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "verification_failed", err.Error(), reqID)
		return
	}
	api.Success(w, result, reqID)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	stats, err := h.Service.GetStatistics(r.Context(), r.URL.Query().Get("teamId"), windowDays(r))
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "statistics_failed", err.Error(), reqID)
		return
	}
	api.Success(w, stats, reqID)
}

type cleanupRequest struct {
	RetentionDays int  `json:"retentionDays"`
	DryRun        bool `json:"dryRun"`
}

func (h *Handler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}
	if req.RetentionDays <= 0 {
		api.Fail(w, http.StatusBadRequest, "validation_error", "retentionDays must be positive", reqID)
		return
	}

	result, err := h.Service.CleanupOldLogs(r.Context(), req.RetentionDays, req.DryRun)
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "cleanup_failed", err.Error(), reqID)
		return
	}
	api.Success(w, result, reqID)
}

package retentionhandler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"slackmemory/internal/domain/retention"
	"slackmemory/internal/transport/http/api"
	"slackmemory/internal/transport/http/middleware"
)

type Handler struct {
	Service *retention.Service
}

func NewHandler(svc *retention.Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/retention/policies", h.handleListPolicies)
	r.Post("/retention/policies", h.handleSetPolicy)
	r.Post("/retention/run", h.handleRun)
	r.Get("/retention/summary", h.handleSummary)
	r.Get("/retention/holds", h.handleListHolds)
	r.Post("/retention/holds", h.handleAddHold)
	r.Delete("/retention/holds/{holdID}", h.handleRemoveHold)
}

func (h *Handler) handleListPolicies(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	policies, err := h.Service.ListPolicies(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "internal_error", "could not list retention policies", reqID)
		return
	}
	api.Success(w, policies, reqID)
}

func (h *Handler) handleSetPolicy(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var policy retention.Policy
	if err := json.NewDecoder(r.Body).Decode(&policy); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}

	if err := h.Service.SetPolicy(r.Context(), &policy); err != nil {
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), reqID)
		return
	}
	api.Success(w, policy, reqID)
}

type runRequest struct {
	DryRun bool `json:"dryRun"`
}

func (h *Handler) handleRun(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}

	reports, err := h.Service.ExecuteRetentionPolicies(r.Context(), req.DryRun)
	if err != nil {
		// Partial failures still return the per-policy reports.
		api.WriteJSON(w, http.StatusMultiStatus, api.Envelope{
			Success:   false,
			Data:      reports,
			Error:     &api.Error{Code: "retention_partial_failure", Message: err.Error()},
			RequestID: reqID,
		})
		return
	}
	api.Success(w, reports, reqID)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	summary, err := h.Service.GetRetentionSummary(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "internal_error", "could not build retention summary", reqID)
		return
	}
	api.Success(w, summary, reqID)
}

func (h *Handler) handleListHolds(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	holds, err := h.Service.ListLegalHolds(r.Context())
	if err != nil {
		api.Fail(w, http.StatusInternalServerError, "internal_error", "could not list legal holds", reqID)
		return
	}
	api.Success(w, holds, reqID)
}

func (h *Handler) handleAddHold(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var hold retention.LegalHold
	if err := json.NewDecoder(r.Body).Decode(&hold); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}
	if admin, ok := middleware.GetAdmin(r.Context()); ok && hold.CreatedBy == "" {
		hold.CreatedBy = admin
	}

	if err := h.Service.AddLegalHold(r.Context(), &hold); err != nil {
		api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), reqID)
		return
	}
	api.Created(w, hold, reqID)
}

func (h *Handler) handleRemoveHold(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())
	holdID := chi.URLParam(r, "holdID")

	admin, _ := middleware.GetAdmin(r.Context())
	if err := h.Service.RemoveLegalHold(r.Context(), holdID, admin); err != nil {
		api.Fail(w, http.StatusNotFound, "not_found", "legal hold not found", reqID)
		return
	}
	api.Success(w, map[string]string{"removed": holdID}, reqID)
}

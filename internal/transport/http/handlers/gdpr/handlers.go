package gdprhandler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"slackmemory/internal/domain/gdpr"
	"slackmemory/internal/transport/http/api"
	"slackmemory/internal/transport/http/middleware"
)

type Handler struct {
	Service *gdpr.Service
}

func NewHandler(svc *gdpr.Service) *Handler {
	return &Handler{Service: svc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/gdpr/deletions", h.handleDelete)
}

type deleteRequest struct {
	TeamID          string `json:"teamId"`
	Reason          string `json:"reason"`
	RetainAuditLogs bool   `json:"retainAuditLogs"`
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	reqID := middleware.GetRequestID(r.Context())

	var req deleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Fail(w, http.StatusBadRequest, "bad_request", "invalid request body", reqID)
		return
	}
	if req.TeamID == "" || req.Reason == "" {
		api.Fail(w, http.StatusBadRequest, "validation_error", "teamId and reason are required", reqID)
		return
	}

	admin, _ := middleware.GetAdmin(r.Context())
	result, err := h.Service.ProcessGDPRDeletion(r.Context(), gdpr.DeletionRequest{
		TeamID:          req.TeamID,
		Reason:          req.Reason,
		RequestedBy:     admin,
		RetainAuditLogs: req.RetainAuditLogs,
	})
	if err != nil {
		if result == nil {
			api.Fail(w, http.StatusBadRequest, "validation_error", err.Error(), reqID)
			return
		}
		// Partial deletions come back with the per-step breakdown so
		// the operator can see what remains.
		api.WriteJSON(w, http.StatusMultiStatus, api.Envelope{
			Success:   false,
			Data:      result,
			Error:     &api.Error{Code: "deletion_incomplete", Message: err.Error()},
			RequestID: reqID,
		})
		return
	}

	if r.URL.Query().Get("certificate") == "true" {
		pdf, err := gdpr.GenerateDeletionCertificate(result, req.Reason, admin)
		if err != nil {
			api.Fail(w, http.StatusInternalServerError, "certificate_failed", "could not generate deletion certificate", reqID)
			return
		}
		api.WritePDF(w, fmt.Sprintf("deletion-certificate-%s.pdf", req.TeamID), pdf)
		return
	}
	api.Success(w, result, reqID)
}

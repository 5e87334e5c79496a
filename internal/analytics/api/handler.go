package analytics_api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"ms-booking/internal/analytics"
	"ms-booking/internal/logger"
	"ms-booking/internal/models"
	"ms-booking/internal/utils"
)

type AnalyticsService interface {
	GetEventAnalytics(ctx context.Context, eventID string) (*analytics.EventAnalytics, error)
	GetOverview(ctx context.Context, ids []string) (*analytics.Overview, error)
}

// Handler handles analytics HTTP endpoints
type Handler struct {
	Service AnalyticsService
	Logger  *logger.Logger
}

// NewHandler creates a new analytics handler
func NewHandler(service AnalyticsService, logger *logger.Logger) *Handler {
	return &Handler{Service: service, Logger: logger}
}

// RegisterRoutes registers the analytics routes on a chi router. Callers
// mount it behind the admin role gate.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/events/{id}/stats", h.GetEventAnalytics)
	r.Get("/admin/stats", h.GetOverview)
	r.Post("/admin/stats/batch", h.GetBatchOverview)
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	if status := utils.WriteError(w, err); status >= http.StatusInternalServerError {
		h.Logger.Error("ANALYTICS", fmt.Sprintf("%s: %v", op, err))
	}
}

// GetEventAnalytics handles GET /events/{id}/stats
func (h *Handler) GetEventAnalytics(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "id")

	result, err := h.Service.GetEventAnalytics(r.Context(), eventID)
	if err != nil {
		h.fail(w, "GetEventAnalytics", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

// GetOverview handles GET /admin/stats
func (h *Handler) GetOverview(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.GetOverview(r.Context(), nil)
	if err != nil {
		h.fail(w, "GetOverview", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

type batchRequest struct {
	EventIDs []string `json:"eventIds"`
}

// GetBatchOverview handles POST /admin/stats/batch {"eventIds": [...]}
func (h *Handler) GetBatchOverview(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.fail(w, "GetBatchOverview", models.InvalidInput("Invalid request body."))
		return
	}
	if len(req.EventIDs) == 0 {
		h.fail(w, "GetBatchOverview", models.InvalidInput("eventIds must not be empty."))
		return
	}

	result, err := h.Service.GetOverview(r.Context(), req.EventIDs)
	if err != nil {
		h.fail(w, "GetBatchOverview", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, result)
}

package report

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/supplymaster/backend-supply/internal/common"
	"github.com/supplymaster/backend-supply/internal/obs"
)

// Handler exposes the read-only report endpoints.
type Handler struct {
	Svc *Service
}

func observeQuery(kind string) {
	if obs.ReportQueryTotal != nil {
		obs.ReportQueryTotal.WithLabelValues(kind).Inc()
	}
}

// Range renders the supplier/product totals for a date range given as
// startDate and endDate query parameters.
func (h *Handler) Range(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "report service not configured", nil)
		return
	}
	start, err := time.Parse(dateLayout, r.URL.Query().Get("startDate"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "startDate must be formatted as 2006-01-02", nil)
		return
	}
	end, err := time.Parse(dateLayout, r.URL.Query().Get("endDate"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "endDate must be formatted as 2006-01-02", nil)
		return
	}
	observeQuery("range")
	reports, err := h.Svc.Range(r.Context(), start, end)
	if err != nil {
		if errors.Is(err, ErrInvalidRange) {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to build report", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": reports})
}

// Items renders the line breakdown of a single shipment.
func (h *Handler) Items(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "report service not configured", nil)
		return
	}
	shipmentID, err := uuid.Parse(chi.URLParam(r, "shipmentId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid shipment id", nil)
		return
	}
	observeQuery("items")
	items, err := h.Svc.Items(r.Context(), shipmentID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to build item report", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

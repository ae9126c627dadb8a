package price

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/supplymaster/backend-supply/internal/common"
	"github.com/supplymaster/backend-supply/internal/db"
	"github.com/supplymaster/backend-supply/internal/obs"
)

const dateLayout = "2006-01-02"

// Handler exposes the price management endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type createPriceRequest struct {
	SupplierID string          `json:"supplierId" validate:"required,uuid"`
	ProductID  string          `json:"productId" validate:"required,uuid"`
	PricePerKg decimal.Decimal `json:"pricePerKg"`
	StartDate  string          `json:"startDate" validate:"required,datetime=2006-01-02"`
	EndDate    string          `json:"endDate" validate:"required,datetime=2006-01-02"`
}

type updatePriceRequest struct {
	PricePerKg decimal.Decimal `json:"pricePerKg"`
}

type priceResponse struct {
	ID         uuid.UUID       `json:"id"`
	SupplierID uuid.UUID       `json:"supplierId"`
	ProductID  uuid.UUID       `json:"productId"`
	PricePerKg decimal.Decimal `json:"pricePerKg"`
	StartDate  string          `json:"startDate"`
	EndDate    string          `json:"endDate"`
}

// Create registers a new validity interval for a supplier/product.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "price service not configured", nil)
		return
	}
	var req createPriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	supplierID, _ := uuid.Parse(req.SupplierID)
	productID, _ := uuid.Parse(req.ProductID)
	start, _ := time.Parse(dateLayout, req.StartDate)
	end, _ := time.Parse(dateLayout, req.EndDate)

	p, err := h.Svc.Create(r.Context(), CreateParams{
		SupplierID: supplierID,
		ProductID:  productID,
		PricePerKg: req.PricePerKg,
		StartDate:  start,
		EndDate:    end,
	})
	if err != nil {
		if errors.Is(err, ErrConflict) && obs.PriceConflictTotal != nil {
			obs.PriceConflictTotal.Inc()
		}
		observeWrite("create", "error")
		writeServiceError(w, err)
		return
	}
	observeWrite("create", "ok")
	common.JSON(w, http.StatusCreated, map[string]any{"data": toResponse(p)})
}

// UpdateAmount mutates only the per-kg amount of an existing price.
func (h *Handler) UpdateAmount(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "price service not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "priceId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid price id", nil)
		return
	}
	var req updatePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	p, err := h.Svc.UpdateAmount(r.Context(), id, req.PricePerKg)
	if err != nil {
		observeWrite("update_amount", "error")
		writeServiceError(w, err)
		return
	}
	observeWrite("update_amount", "ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(p)})
}

var defaultValidate = validator.New()

func (h *Handler) validate(v any) error {
	if h.Validate != nil {
		return h.Validate.Struct(v)
	}
	return defaultValidate.Struct(v)
}

func toResponse(p db.Price) priceResponse {
	return priceResponse{
		ID:         p.ID,
		SupplierID: p.SupplierID,
		ProductID:  p.ProductID,
		PricePerKg: p.PricePerKg,
		StartDate:  p.StartDate.Format(dateLayout),
		EndDate:    p.EndDate.Format(dateLayout),
	}
}

func observeWrite(op, result string) {
	if obs.PriceWriteTotal != nil {
		obs.PriceWriteTotal.WithLabelValues(op, result).Inc()
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrConflict):
		common.JSONError(w, http.StatusConflict, "CONFLICT", "validity interval overlaps an existing price", nil)
	case errors.Is(err, ErrInvalidInterval), errors.Is(err, ErrInvalidAmount):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to process price", nil)
	}
}

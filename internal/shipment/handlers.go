package shipment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
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

// SupplierHeader carries the caller's supplier identity on shipment writes.
const SupplierHeader = "X-Supplier-Id"

// Handler exposes the shipment write endpoints.
type Handler struct {
	Svc      *Service
	Validate *validator.Validate
}

type itemPayload struct {
	ProductID string          `json:"productId" validate:"required,uuid"`
	WeightKg  decimal.Decimal `json:"weightKg"`
}

type createShipmentRequest struct {
	ShipmentDate string        `json:"shipmentDate" validate:"required,datetime=2006-01-02"`
	Items        []itemPayload `json:"items" validate:"required,min=1,dive"`
}

type updateShipmentRequest struct {
	ShipmentDate *string       `json:"shipmentDate" validate:"omitempty,datetime=2006-01-02"`
	Items        []itemPayload `json:"items" validate:"dive"`
}

type itemResponse struct {
	ProductID  uuid.UUID       `json:"productId"`
	WeightKg   decimal.Decimal `json:"weightKg"`
	PricePerKg decimal.Decimal `json:"pricePerKg"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type shipmentResponse struct {
	ID           uuid.UUID      `json:"id"`
	SupplierID   uuid.UUID      `json:"supplierId"`
	ShipmentDate string         `json:"shipmentDate"`
	Items        []itemResponse `json:"items"`
}

// Create registers a shipment with all of its lines.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shipment service not configured", nil)
		return
	}
	supplierID, ok := supplierFromHeader(w, r)
	if !ok {
		return
	}
	var req createShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	date, _ := time.Parse(dateLayout, req.ShipmentDate)

	result, err := h.Svc.Create(r.Context(), CreateParams{
		SupplierID:   supplierID,
		ShipmentDate: date,
		Items:        toItemParams(req.Items),
	})
	if err != nil {
		observeWrite("create", "error")
		writeServiceError(w, err)
		return
	}
	observeWrite("create", "ok")
	common.JSON(w, http.StatusCreated, map[string]any{"data": toResponse(result)})
}

// Update merges additional lines into an existing shipment and optionally
// moves its date.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "shipment service not configured", nil)
		return
	}
	supplierID, ok := supplierFromHeader(w, r)
	if !ok {
		return
	}
	shipmentID, err := uuid.Parse(chi.URLParam(r, "shipmentId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid shipment id", nil)
		return
	}
	var req updateShipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return
	}
	params := UpdateParams{
		ShipmentID: shipmentID,
		SupplierID: supplierID,
		Items:      toItemParams(req.Items),
	}
	if req.ShipmentDate != nil {
		date, _ := time.Parse(dateLayout, *req.ShipmentDate)
		params.ShipmentDate = &date
	}

	result, err := h.Svc.Update(r.Context(), params)
	if err != nil {
		observeWrite("update", "error")
		writeServiceError(w, err)
		return
	}
	observeWrite("update", "ok")
	common.JSON(w, http.StatusOK, map[string]any{"data": toResponse(result)})
}

var defaultValidate = validator.New()

func (h *Handler) validate(v any) error {
	if h.Validate != nil {
		return h.Validate.Struct(v)
	}
	return defaultValidate.Struct(v)
}

func supplierFromHeader(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := strings.TrimSpace(r.Header.Get(SupplierHeader))
	if raw == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "missing "+SupplierHeader+" header", nil)
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid "+SupplierHeader+" header", nil)
		return uuid.Nil, false
	}
	return id, true
}

func toItemParams(items []itemPayload) []ItemParams {
	out := make([]ItemParams, 0, len(items))
	for _, it := range items {
		productID, _ := uuid.Parse(it.ProductID)
		out = append(out, ItemParams{ProductID: productID, WeightKg: it.WeightKg})
	}
	return out
}

func toResponse(result Result) shipmentResponse {
	items := make([]itemResponse, 0, len(result.Items))
	for _, it := range result.Items {
		items = append(items, toItemResponse(it))
	}
	return shipmentResponse{
		ID:           result.Shipment.ID,
		SupplierID:   result.Shipment.SupplierID,
		ShipmentDate: result.Shipment.ShipmentDate.Format(dateLayout),
		Items:        items,
	}
}

func toItemResponse(it db.ShipmentItem) itemResponse {
	return itemResponse{
		ProductID:  it.ProductID,
		WeightKg:   it.WeightKg,
		PricePerKg: it.PricePerKg,
		TotalPrice: it.TotalPrice,
	}
}

func observeWrite(op, result string) {
	if obs.ShipmentWriteTotal != nil {
		obs.ShipmentWriteTotal.WithLabelValues(op, result).Inc()
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, ErrAccessDenied):
		common.JSONError(w, http.StatusForbidden, "FORBIDDEN", "shipment belongs to another supplier", nil)
	case errors.Is(err, ErrInvalidInput):
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
	default:
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to process shipment", nil)
	}
}

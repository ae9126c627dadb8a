package supplier

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/supplymaster/backend-supply/internal/common"
	"github.com/supplymaster/backend-supply/internal/db"
)

// Querier captures the store methods required by the supplier endpoints.
type Querier interface {
	CreateSupplier(ctx context.Context, name string) (db.Supplier, error)
	GetSupplierByID(ctx context.Context, id uuid.UUID) (db.Supplier, error)
}

// Handler exposes supplier reference-data endpoints.
type Handler struct {
	Q Querier
}

type createRequest struct {
	Name string `json:"name"`
}

// Create registers a supplier.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "supplier queries not configured", nil)
		return
	}
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "name is required", nil)
		return
	}
	sup, err := h.Q.CreateSupplier(r.Context(), name)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to create supplier", nil)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": sup})
}

// Get returns one supplier by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Q == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "supplier queries not configured", nil)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "supplierId"))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid supplier id", nil)
		return
	}
	sup, err := h.Q.GetSupplierByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "supplier not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load supplier", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sup})
}

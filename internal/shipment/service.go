package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/supplymaster/backend-supply/internal/db"
	"github.com/supplymaster/backend-supply/internal/price"
)

var (
	// ErrNotFound is returned when a referenced supplier, product, shipment or
	// valid price does not exist.
	ErrNotFound = errors.New("shipment dependency not found")
	// ErrAccessDenied is returned when the caller does not own the shipment.
	ErrAccessDenied = errors.New("shipment belongs to another supplier")
	// ErrInvalidInput is returned for non-positive weights or empty item lists.
	ErrInvalidInput = errors.New("invalid shipment input")
)

// Querier captures the store methods required by the shipment service.
type Querier interface {
	GetSupplierByID(ctx context.Context, id uuid.UUID) (db.Supplier, error)
	ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]db.Product, error)
	ListPricesForSupplierProducts(ctx context.Context, supplierID uuid.UUID, productIDs []uuid.UUID, onDate time.Time) ([]db.Price, error)
	InsertShipment(ctx context.Context, sh db.Shipment) error
	GetShipmentForUpdate(ctx context.Context, id uuid.UUID) (db.Shipment, error)
	UpdateShipmentDate(ctx context.Context, id uuid.UUID, date time.Time) error
	InsertShipmentItem(ctx context.Context, it db.ShipmentItem) error
	UpdateShipmentItem(ctx context.Context, it db.ShipmentItem) error
	ListShipmentItems(ctx context.Context, shipmentID uuid.UUID) ([]db.ShipmentItem, error)
}

// TxFunc runs fn with a Querier bound to a single transaction.
type TxFunc func(ctx context.Context, fn func(Querier) error) error

// ReportInvalidator drops cached range reports once a shipment write commits.
type ReportInvalidator interface {
	InvalidateRange(ctx context.Context) error
}

// ItemParams is one requested product line.
type ItemParams struct {
	ProductID uuid.UUID
	WeightKg  decimal.Decimal
}

// CreateParams describes a new shipment.
type CreateParams struct {
	SupplierID   uuid.UUID
	ShipmentDate time.Time
	Items        []ItemParams
}

// UpdateParams describes an incremental shipment change. A nil ShipmentDate
// keeps the stored date; items merge into the existing lines.
type UpdateParams struct {
	ShipmentID   uuid.UUID
	SupplierID   uuid.UUID
	ShipmentDate *time.Time
	Items        []ItemParams
}

// Result is a shipment together with its reconciled lines.
type Result struct {
	Shipment db.Shipment
	Items    []db.ShipmentItem
}

// Service builds and reconciles shipments against the price book.
type Service struct {
	Q       Querier
	InTx    TxFunc
	Reports ReportInvalidator
}

// Create validates the supplier, every product and every price on the
// shipment date, then persists the shipment and all lines atomically. Nothing
// is written when any line fails validation.
func (s *Service) Create(ctx context.Context, params CreateParams) (Result, error) {
	if s == nil || s.Q == nil || s.InTx == nil {
		return Result{}, errors.New("shipment service not configured")
	}
	items, err := mergeRequestItems(params.Items)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, fmt.Errorf("at least one item is required: %w", ErrInvalidInput)
	}

	var result Result
	err = s.InTx(ctx, func(q Querier) error {
		if _, err := q.GetSupplierByID(ctx, params.SupplierID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("supplier %s: %w", params.SupplierID, ErrNotFound)
			}
			return err
		}
		productIDs := itemProductIDs(items)
		if err := requireProducts(ctx, q, productIDs); err != nil {
			return err
		}
		prices, err := price.ResolveFor(ctx, q, params.SupplierID, productIDs, params.ShipmentDate)
		if err != nil {
			return err
		}

		sh := db.Shipment{ID: uuid.New(), SupplierID: params.SupplierID, ShipmentDate: params.ShipmentDate}
		if err := q.InsertShipment(ctx, sh); err != nil {
			return err
		}
		lines := make([]db.ShipmentItem, 0, len(items))
		for _, it := range items {
			p, ok := prices[it.ProductID]
			if !ok {
				return fmt.Errorf("no valid price for product %s on %s: %w", it.ProductID, params.ShipmentDate.Format("2006-01-02"), ErrNotFound)
			}
			line := db.ShipmentItem{
				ShipmentID: sh.ID,
				ProductID:  it.ProductID,
				WeightKg:   it.WeightKg,
				PricePerKg: p.PricePerKg,
				TotalPrice: p.PricePerKg.Mul(it.WeightKg).Round(2),
			}
			if err := q.InsertShipmentItem(ctx, line); err != nil {
				return err
			}
			lines = append(lines, line)
		}
		result = Result{Shipment: sh, Items: lines}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.invalidateReports(ctx)
	return result, nil
}

// Update merges incoming lines into an existing shipment. Weights accumulate
// on existing lines and the total is recomputed with the stored price
// snapshot; new lines take the price valid on the shipment's current date.
// Every product in the merged shipment must still be priced on that date.
func (s *Service) Update(ctx context.Context, params UpdateParams) (Result, error) {
	if s == nil || s.Q == nil || s.InTx == nil {
		return Result{}, errors.New("shipment service not configured")
	}
	items, err := mergeRequestItems(params.Items)
	if err != nil {
		return Result{}, err
	}

	var result Result
	err = s.InTx(ctx, func(q Querier) error {
		sh, err := q.GetShipmentForUpdate(ctx, params.ShipmentID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("shipment %s: %w", params.ShipmentID, ErrNotFound)
			}
			return err
		}
		if sh.SupplierID != params.SupplierID {
			return ErrAccessDenied
		}
		if params.ShipmentDate != nil && !params.ShipmentDate.Equal(sh.ShipmentDate) {
			sh.ShipmentDate = *params.ShipmentDate
			if err := q.UpdateShipmentDate(ctx, sh.ID, sh.ShipmentDate); err != nil {
				return err
			}
		}

		existing, err := q.ListShipmentItems(ctx, sh.ID)
		if err != nil {
			return err
		}
		byProduct := make(map[uuid.UUID]int, len(existing))
		union := make([]uuid.UUID, 0, len(existing)+len(items))
		for i, line := range existing {
			byProduct[line.ProductID] = i
			union = append(union, line.ProductID)
		}
		for _, it := range items {
			if _, ok := byProduct[it.ProductID]; !ok {
				union = append(union, it.ProductID)
			}
		}

		if len(union) > 0 {
			if err := requireProducts(ctx, q, union); err != nil {
				return err
			}
			// The whole merged shipment must remain consistently priced on the
			// current date, including lines this update does not touch.
			prices, err := price.ResolveFor(ctx, q, sh.SupplierID, union, sh.ShipmentDate)
			if err != nil {
				return err
			}
			for _, id := range union {
				if _, ok := prices[id]; !ok {
					return fmt.Errorf("no valid price for product %s on %s: %w", id, sh.ShipmentDate.Format("2006-01-02"), ErrNotFound)
				}
			}
			for _, it := range items {
				if idx, ok := byProduct[it.ProductID]; ok {
					line := existing[idx]
					line.WeightKg = line.WeightKg.Add(it.WeightKg)
					line.TotalPrice = line.PricePerKg.Mul(line.WeightKg).Round(2)
					if err := q.UpdateShipmentItem(ctx, line); err != nil {
						return err
					}
					existing[idx] = line
				} else {
					p := prices[it.ProductID]
					line := db.ShipmentItem{
						ShipmentID: sh.ID,
						ProductID:  it.ProductID,
						WeightKg:   it.WeightKg,
						PricePerKg: p.PricePerKg,
						TotalPrice: p.PricePerKg.Mul(it.WeightKg).Round(2),
					}
					if err := q.InsertShipmentItem(ctx, line); err != nil {
						return err
					}
					byProduct[it.ProductID] = len(existing)
					existing = append(existing, line)
				}
			}
		}
		result = Result{Shipment: sh, Items: existing}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	s.invalidateReports(ctx)
	return result, nil
}

// invalidateReports drops cached range reports after a committed write. Cache
// failures are ignored; stale entries expire by TTL regardless.
func (s *Service) invalidateReports(ctx context.Context) {
	if s.Reports == nil {
		return
	}
	_ = s.Reports.InvalidateRange(ctx)
}

// mergeRequestItems validates weights and collapses duplicate product lines
// in the request by accumulating their weights.
func mergeRequestItems(items []ItemParams) ([]ItemParams, error) {
	merged := make([]ItemParams, 0, len(items))
	index := make(map[uuid.UUID]int, len(items))
	for _, it := range items {
		if it.ProductID == uuid.Nil {
			return nil, fmt.Errorf("item product id is required: %w", ErrInvalidInput)
		}
		if !it.WeightKg.IsPositive() {
			return nil, fmt.Errorf("item weight must be positive: %w", ErrInvalidInput)
		}
		if i, ok := index[it.ProductID]; ok {
			merged[i].WeightKg = merged[i].WeightKg.Add(it.WeightKg)
			continue
		}
		index[it.ProductID] = len(merged)
		merged = append(merged, it)
	}
	return merged, nil
}

func itemProductIDs(items []ItemParams) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ProductID)
	}
	return ids
}

func requireProducts(ctx context.Context, q Querier, ids []uuid.UUID) error {
	products, err := q.ListProductsByIDs(ctx, ids)
	if err != nil {
		return err
	}
	if len(products) == len(ids) {
		return nil
	}
	known := make(map[uuid.UUID]struct{}, len(products))
	for _, p := range products {
		known[p.ID] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("product %s: %w", id, ErrNotFound)
		}
	}
	return nil
}

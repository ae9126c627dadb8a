package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/supplymaster/backend-supply/internal/db"
)

// ErrInvalidRange is returned when the range start falls after the end.
var ErrInvalidRange = errors.New("report start date after end date")

const dateLayout = "2006-01-02"

// Querier captures the store methods required by the report service.
type Querier interface {
	AggregateShipmentItems(ctx context.Context, start, end time.Time) ([]db.ShipmentItemSummary, error)
	ListShipmentItems(ctx context.Context, shipmentID uuid.UUID) ([]db.ShipmentItem, error)
	ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]db.Product, error)
}

// ProductTotals is one product row within a supplier's report section.
type ProductTotals struct {
	ProductID     uuid.UUID       `json:"productId"`
	ProductName   string          `json:"productName"`
	TotalWeightKg decimal.Decimal `json:"totalWeightKg"`
	TotalPrice    decimal.Decimal `json:"totalPrice"`
}

// SupplierReport groups a supplier's product totals over the requested range.
type SupplierReport struct {
	SupplierID   uuid.UUID       `json:"supplierId"`
	SupplierName string          `json:"supplierName"`
	Products     []ProductTotals `json:"products"`
}

// ItemReport is one line of the per-shipment item breakdown.
type ItemReport struct {
	ProductID   uuid.UUID       `json:"productId"`
	ProductName string          `json:"productName"`
	WeightKg    decimal.Decimal `json:"weightKg"`
	PricePerKg  decimal.Decimal `json:"pricePerKg"`
	TotalPrice  decimal.Decimal `json:"totalPrice"`
}

// Service renders read-only shipment reports. The cache is a read-path
// optimization: shipment writes drop the range keys and entries expire by
// TTL either way.
type Service struct {
	Q     Querier
	Cache *Cache
}

// Range aggregates shipment lines dated within [start, end] and groups the
// totals per supplier.
func (s *Service) Range(ctx context.Context, start, end time.Time) ([]SupplierReport, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("report service not configured")
	}
	if end.Before(start) {
		return nil, ErrInvalidRange
	}

	key := fmt.Sprintf("%s%s:%s", rangeKeyPrefix, start.Format(dateLayout), end.Format(dateLayout))
	var cached []SupplierReport
	if hit, err := s.Cache.GetJSON(ctx, key, &cached); err == nil && hit {
		return cached, nil
	}

	rows, err := s.Q.AggregateShipmentItems(ctx, start, end)
	if err != nil {
		return nil, err
	}
	reports := groupBySupplier(rows)
	_ = s.Cache.SetJSON(ctx, key, reports)
	return reports, nil
}

// Items returns the line breakdown of one shipment with product names.
// Unknown shipment ids yield an empty report.
func (s *Service) Items(ctx context.Context, shipmentID uuid.UUID) ([]ItemReport, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("report service not configured")
	}
	lines, err := s.Q.ListShipmentItems(ctx, shipmentID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return []ItemReport{}, nil
	}
	ids := make([]uuid.UUID, 0, len(lines))
	for _, it := range lines {
		ids = append(ids, it.ProductID)
	}
	products, err := s.Q.ListProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(products))
	for _, p := range products {
		names[p.ID] = p.Name
	}

	out := make([]ItemReport, 0, len(lines))
	for _, it := range lines {
		out = append(out, ItemReport{
			ProductID:   it.ProductID,
			ProductName: names[it.ProductID],
			WeightKg:    it.WeightKg,
			PricePerKg:  it.PricePerKg,
			TotalPrice:  it.TotalPrice,
		})
	}
	return out, nil
}

// groupBySupplier folds aggregate rows into per-supplier sections, keeping
// the store's ordering of suppliers and products.
func groupBySupplier(rows []db.ShipmentItemSummary) []SupplierReport {
	reports := make([]SupplierReport, 0)
	index := make(map[uuid.UUID]int)
	for _, row := range rows {
		i, ok := index[row.SupplierID]
		if !ok {
			i = len(reports)
			index[row.SupplierID] = i
			reports = append(reports, SupplierReport{
				SupplierID:   row.SupplierID,
				SupplierName: row.SupplierName,
			})
		}
		reports[i].Products = append(reports[i].Products, ProductTotals{
			ProductID:     row.ProductID,
			ProductName:   row.ProductName,
			TotalWeightKg: row.TotalWeight,
			TotalPrice:    row.TotalPrice,
		})
	}
	return reports
}

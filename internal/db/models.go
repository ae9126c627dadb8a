package db

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Supplier is externally owned reference data looked up by id.
type Supplier struct {
	ID   uuid.UUID
	Name string
}

// Product is externally owned reference data looked up by id.
type Product struct {
	ID   uuid.UUID
	Name string
}

// Price is a per-kg rate valid for one supplier/product within an inclusive
// date range. Dates and identity are immutable after creation; only the
// amount may change.
type Price struct {
	ID         uuid.UUID
	SupplierID uuid.UUID
	ProductID  uuid.UUID
	PricePerKg decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
}

// Shipment is a dated collection of line items owned by one supplier.
type Shipment struct {
	ID           uuid.UUID
	SupplierID   uuid.UUID
	ShipmentDate time.Time
}

// ShipmentItem is one product line within a shipment, keyed by
// (shipment, product). PricePerKg is the snapshot taken when the line was
// first created; TotalPrice is always PricePerKg * WeightKg.
type ShipmentItem struct {
	ShipmentID uuid.UUID
	ProductID  uuid.UUID
	WeightKg   decimal.Decimal
	PricePerKg decimal.Decimal
	TotalPrice decimal.Decimal
}

// ShipmentItemSummary is one aggregated row of the range report: sums of
// weight and total per supplier/product over all shipments in range.
type ShipmentItemSummary struct {
	SupplierID   uuid.UUID
	SupplierName string
	ProductID    uuid.UUID
	ProductName  string
	TotalWeight  decimal.Decimal
	TotalPrice   decimal.Decimal
}

package shipment

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/supplymaster/backend-supply/internal/db"
)

// fakeStore keeps everything in memory and simulates transactions by running
// callbacks on a deep copy that only replaces the store on success.
type fakeStore struct {
	suppliers map[uuid.UUID]db.Supplier
	products  map[uuid.UUID]db.Product
	prices    []db.Price
	shipments map[uuid.UUID]db.Shipment
	items     map[uuid.UUID][]db.ShipmentItem
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		suppliers: map[uuid.UUID]db.Supplier{},
		products:  map[uuid.UUID]db.Product{},
		shipments: map[uuid.UUID]db.Shipment{},
		items:     map[uuid.UUID][]db.ShipmentItem{},
	}
}

func (f *fakeStore) clone() *fakeStore {
	c := newFakeStore()
	for k, v := range f.suppliers {
		c.suppliers[k] = v
	}
	for k, v := range f.products {
		c.products[k] = v
	}
	c.prices = append(c.prices, f.prices...)
	for k, v := range f.shipments {
		c.shipments[k] = v
	}
	for k, v := range f.items {
		c.items[k] = append([]db.ShipmentItem(nil), v...)
	}
	return c
}

func (f *fakeStore) inTx(ctx context.Context, fn func(Querier) error) error {
	tx := f.clone()
	if err := fn(tx); err != nil {
		return err
	}
	*f = *tx
	return nil
}

func (f *fakeStore) GetSupplierByID(ctx context.Context, id uuid.UUID) (db.Supplier, error) {
	s, ok := f.suppliers[id]
	if !ok {
		return db.Supplier{}, fmt.Errorf("get supplier: %w", pgx.ErrNoRows)
	}
	return s, nil
}

func (f *fakeStore) ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]db.Product, error) {
	var out []db.Product
	seen := map[uuid.UUID]bool{}
	for _, id := range ids {
		if p, ok := f.products[id]; ok && !seen[id] {
			out = append(out, p)
			seen[id] = true
		}
	}
	return out, nil
}

func (f *fakeStore) ListPricesForSupplierProducts(ctx context.Context, supplierID uuid.UUID, productIDs []uuid.UUID, onDate time.Time) ([]db.Price, error) {
	wanted := map[uuid.UUID]bool{}
	for _, id := range productIDs {
		wanted[id] = true
	}
	var out []db.Price
	for _, p := range f.prices {
		if p.SupplierID == supplierID && wanted[p.ProductID] &&
			!onDate.Before(p.StartDate) && !onDate.After(p.EndDate) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertShipment(ctx context.Context, sh db.Shipment) error {
	f.shipments[sh.ID] = sh
	return nil
}

func (f *fakeStore) GetShipmentForUpdate(ctx context.Context, id uuid.UUID) (db.Shipment, error) {
	sh, ok := f.shipments[id]
	if !ok {
		return db.Shipment{}, fmt.Errorf("get shipment for update: %w", pgx.ErrNoRows)
	}
	return sh, nil
}

func (f *fakeStore) UpdateShipmentDate(ctx context.Context, id uuid.UUID, date time.Time) error {
	sh := f.shipments[id]
	sh.ShipmentDate = date
	f.shipments[id] = sh
	return nil
}

func (f *fakeStore) InsertShipmentItem(ctx context.Context, it db.ShipmentItem) error {
	f.items[it.ShipmentID] = append(f.items[it.ShipmentID], it)
	return nil
}

func (f *fakeStore) UpdateShipmentItem(ctx context.Context, it db.ShipmentItem) error {
	for i, line := range f.items[it.ShipmentID] {
		if line.ProductID == it.ProductID {
			f.items[it.ShipmentID][i] = it
			return nil
		}
	}
	return errors.New("item not found")
}

func (f *fakeStore) ListShipmentItems(ctx context.Context, shipmentID uuid.UUID) ([]db.ShipmentItem, error) {
	return append([]db.ShipmentItem(nil), f.items[shipmentID]...), nil
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(dateLayout, value)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return parsed
}

func dec(value string) decimal.Decimal {
	return decimal.RequireFromString(value)
}

type fixture struct {
	store      *fakeStore
	svc        *Service
	supplierID uuid.UUID
	productID  uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store := newFakeStore()
	supplierID, productID := uuid.New(), uuid.New()
	store.suppliers[supplierID] = db.Supplier{ID: supplierID, Name: "Acme Farms"}
	store.products[productID] = db.Product{ID: productID, Name: "Coffee Beans"}
	store.prices = append(store.prices, db.Price{
		ID:         uuid.New(),
		SupplierID: supplierID,
		ProductID:  productID,
		PricePerKg: dec("100.50"),
		StartDate:  day(t, "2024-03-01"),
		EndDate:    day(t, "2024-03-31"),
	})
	return fixture{
		store:      store,
		svc:        &Service{Q: store, InTx: store.inTx},
		supplierID: supplierID,
		productID:  productID,
	}
}

func TestCreateComputesLineTotals(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(result.Items))
	}
	line := result.Items[0]
	if !line.PricePerKg.Equal(dec("100.50")) {
		t.Fatalf("snapshot price = %s, want 100.50", line.PricePerKg)
	}
	if !line.TotalPrice.Equal(dec("1005.00")) {
		t.Fatalf("total = %s, want 1005.00", line.TotalPrice)
	}
	if len(fx.store.shipments) != 1 {
		t.Fatalf("expected shipment persisted, got %d", len(fx.store.shipments))
	}
}

func TestCreateMergesDuplicateRequestLines(t *testing.T) {
	fx := newFixture(t)

	result, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items: []ItemParams{
			{ProductID: fx.productID, WeightKg: dec("4")},
			{ProductID: fx.productID, WeightKg: dec("6")},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected merged line, got %d items", len(result.Items))
	}
	if !result.Items[0].WeightKg.Equal(dec("10")) {
		t.Fatalf("weight = %s, want 10", result.Items[0].WeightKg)
	}
}

func TestCreateWritesNothingWhenPriceMissing(t *testing.T) {
	fx := newFixture(t)
	unpriced := uuid.New()
	fx.store.products[unpriced] = db.Product{ID: unpriced, Name: "Cocoa"}

	_, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items: []ItemParams{
			{ProductID: fx.productID, WeightKg: dec("10")},
			{ProductID: unpriced, WeightKg: dec("5")},
		},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(fx.store.shipments) != 0 || len(fx.store.items) != 0 {
		t.Fatal("partial shipment must not be persisted")
	}
}

func TestCreateValidation(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("-1")}},
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for negative weight, got %v", err)
	}

	_, err = fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
	})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for empty items, got %v", err)
	}

	_, err = fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   uuid.New(),
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown supplier, got %v", err)
	}

	_, err = fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-04-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for date outside validity, got %v", err)
	}
}

func TestUpdateAccumulatesWeightWithSnapshotPrice(t *testing.T) {
	fx := newFixture(t)
	created, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	// A later amount change must not affect lines created under the old rate.
	fx.store.prices[0].PricePerKg = dec("120.00")

	updated, err := fx.svc.Update(context.Background(), UpdateParams{
		ShipmentID: created.Shipment.ID,
		SupplierID: fx.supplierID,
		Items:      []ItemParams{{ProductID: fx.productID, WeightKg: dec("5")}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	line := updated.Items[0]
	if !line.WeightKg.Equal(dec("15")) {
		t.Fatalf("weight = %s, want 15", line.WeightKg)
	}
	if !line.PricePerKg.Equal(dec("100.50")) {
		t.Fatalf("snapshot price = %s, want 100.50", line.PricePerKg)
	}
	if !line.TotalPrice.Equal(dec("1507.50")) {
		t.Fatalf("total = %s, want 1507.50", line.TotalPrice)
	}
}

func TestUpdateAddsNewLineWithFreshPrice(t *testing.T) {
	fx := newFixture(t)
	created, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	other := uuid.New()
	fx.store.products[other] = db.Product{ID: other, Name: "Cocoa"}
	fx.store.prices = append(fx.store.prices, db.Price{
		ID: uuid.New(), SupplierID: fx.supplierID, ProductID: other,
		PricePerKg: dec("50.00"), StartDate: day(t, "2024-03-01"), EndDate: day(t, "2024-03-31"),
	})

	updated, err := fx.svc.Update(context.Background(), UpdateParams{
		ShipmentID: created.Shipment.ID,
		SupplierID: fx.supplierID,
		Items:      []ItemParams{{ProductID: other, WeightKg: dec("2")}},
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if len(updated.Items) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(updated.Items))
	}
	added := updated.Items[1]
	if !added.TotalPrice.Equal(dec("100.00")) {
		t.Fatalf("new line total = %s, want 100.00", added.TotalPrice)
	}
}

func TestUpdateOwnershipAndExistence(t *testing.T) {
	fx := newFixture(t)
	created, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, err = fx.svc.Update(context.Background(), UpdateParams{
		ShipmentID: created.Shipment.ID,
		SupplierID: uuid.New(),
	})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	_, err = fx.svc.Update(context.Background(), UpdateParams{
		ShipmentID: uuid.New(),
		SupplierID: fx.supplierID,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

type fakeInvalidator struct{ calls int }

func (f *fakeInvalidator) InvalidateRange(context.Context) error {
	f.calls++
	return nil
}

func TestWritesInvalidateRangeReports(t *testing.T) {
	fx := newFixture(t)
	inv := &fakeInvalidator{}
	fx.svc.Reports = inv

	created, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if inv.calls != 1 {
		t.Fatalf("expected invalidation after create, got %d calls", inv.calls)
	}

	if _, err := fx.svc.Update(context.Background(), UpdateParams{
		ShipmentID: created.Shipment.ID,
		SupplierID: fx.supplierID,
		Items:      []ItemParams{{ProductID: fx.productID, WeightKg: dec("5")}},
	}); err != nil {
		t.Fatalf("update: %v", err)
	}
	if inv.calls != 2 {
		t.Fatalf("expected invalidation after update, got %d calls", inv.calls)
	}

	if _, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   uuid.New(),
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if inv.calls != 2 {
		t.Fatalf("failed write must not invalidate, got %d calls", inv.calls)
	}
}

func TestUpdateMovedDateRevalidatesAllLines(t *testing.T) {
	fx := newFixture(t)
	created, err := fx.svc.Create(context.Background(), CreateParams{
		SupplierID:   fx.supplierID,
		ShipmentDate: day(t, "2024-03-15"),
		Items:        []ItemParams{{ProductID: fx.productID, WeightKg: dec("10")}},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	moved := day(t, "2024-05-01")
	_, err = fx.svc.Update(context.Background(), UpdateParams{
		ShipmentID:   created.Shipment.ID,
		SupplierID:   fx.supplierID,
		ShipmentDate: &moved,
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound when no price covers the new date, got %v", err)
	}
	if !fx.store.shipments[created.Shipment.ID].ShipmentDate.Equal(day(t, "2024-03-15")) {
		t.Fatal("failed update must not move the shipment date")
	}
}

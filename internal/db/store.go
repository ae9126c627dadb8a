package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Querier is the subset of pgx satisfied by both *pgxpool.Pool and pgx.Tx,
// so the same query methods run inside or outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store is the hand-written postgres access layer. A Store built from the
// pool can open transactions via WithTx; a tx-bound Store cannot.
type Store struct {
	q    Querier
	pool *pgxpool.Pool
}

// NewStore builds a pool-backed Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{q: pool, pool: pool}
}

// --- suppliers ---

// CreateSupplier inserts a supplier and returns its generated id.
func (s *Store) CreateSupplier(ctx context.Context, name string) (Supplier, error) {
	sup := Supplier{ID: uuid.New(), Name: name}
	const q = `INSERT INTO suppliers (id, name) VALUES ($1, $2)`
	if _, err := s.q.Exec(ctx, q, sup.ID, sup.Name); err != nil {
		return Supplier{}, fmt.Errorf("insert supplier: %w", err)
	}
	return sup, nil
}

// GetSupplierByID returns pgx.ErrNoRows (wrapped) when the supplier is unknown.
func (s *Store) GetSupplierByID(ctx context.Context, id uuid.UUID) (Supplier, error) {
	const q = `SELECT id, name FROM suppliers WHERE id = $1`
	var sup Supplier
	if err := s.q.QueryRow(ctx, q, id).Scan(&sup.ID, &sup.Name); err != nil {
		return Supplier{}, fmt.Errorf("get supplier: %w", err)
	}
	return sup, nil
}

// --- products ---

func (s *Store) CreateProduct(ctx context.Context, name string) (Product, error) {
	p := Product{ID: uuid.New(), Name: name}
	const q = `INSERT INTO products (id, name) VALUES ($1, $2)`
	if _, err := s.q.Exec(ctx, q, p.ID, p.Name); err != nil {
		return Product{}, fmt.Errorf("insert product: %w", err)
	}
	return p, nil
}

func (s *Store) GetProductByID(ctx context.Context, id uuid.UUID) (Product, error) {
	const q = `SELECT id, name FROM products WHERE id = $1`
	var p Product
	if err := s.q.QueryRow(ctx, q, id).Scan(&p.ID, &p.Name); err != nil {
		return Product{}, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}

func (s *Store) ListProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error) {
	const q = `SELECT id, name FROM products WHERE id = ANY($1)`
	rows, err := s.q.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	defer rows.Close()
	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- prices ---

// InsertPrice persists a new validity interval. The schema's exclusion
// constraint rejects overlapping intervals with SQLSTATE 23P01; callers map
// that to their conflict error.
func (s *Store) InsertPrice(ctx context.Context, p Price) error {
	const q = `
		INSERT INTO prices (id, supplier_id, product_id, price_per_kg, start_date, end_date)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.q.Exec(ctx, q, p.ID, p.SupplierID, p.ProductID, p.PricePerKg, p.StartDate, p.EndDate)
	if err != nil {
		return fmt.Errorf("insert price: %w", err)
	}
	return nil
}

// UpdatePriceAmount mutates the per-kg amount only; the interval and identity
// of a price are immutable. Returns pgx.ErrNoRows (wrapped) for unknown ids.
func (s *Store) UpdatePriceAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (Price, error) {
	const q = `
		UPDATE prices SET price_per_kg = $2 WHERE id = $1
		RETURNING id, supplier_id, product_id, price_per_kg, start_date, end_date`
	var p Price
	err := s.q.QueryRow(ctx, q, id, amount).Scan(&p.ID, &p.SupplierID, &p.ProductID, &p.PricePerKg, &p.StartDate, &p.EndDate)
	if err != nil {
		return Price{}, fmt.Errorf("update price amount: %w", err)
	}
	return p, nil
}

// PriceOverlapExists reports whether any stored interval for the
// supplier/product touches [start, end]. Both bounds are inclusive: intervals
// sharing a single endpoint overlap.
func (s *Store) PriceOverlapExists(ctx context.Context, supplierID, productID uuid.UUID, start, end time.Time) (bool, error) {
	const q = `
		SELECT EXISTS (
			SELECT 1 FROM prices
			WHERE supplier_id = $1 AND product_id = $2
			  AND start_date <= $4 AND $3 <= end_date
		)`
	var exists bool
	if err := s.q.QueryRow(ctx, q, supplierID, productID, start, end).Scan(&exists); err != nil {
		return false, fmt.Errorf("check price overlap: %w", err)
	}
	return exists, nil
}

// ListPricesForSupplierProducts returns the prices of the given products that
// are valid on the given date. At most one row per product under the
// exclusion constraint.
func (s *Store) ListPricesForSupplierProducts(ctx context.Context, supplierID uuid.UUID, productIDs []uuid.UUID, onDate time.Time) ([]Price, error) {
	const q = `
		SELECT id, supplier_id, product_id, price_per_kg, start_date, end_date
		FROM prices
		WHERE supplier_id = $1 AND product_id = ANY($2)
		  AND $3 BETWEEN start_date AND end_date`
	rows, err := s.q.Query(ctx, q, supplierID, productIDs, onDate)
	if err != nil {
		return nil, fmt.Errorf("list prices: %w", err)
	}
	defer rows.Close()
	var out []Price
	for rows.Next() {
		var p Price
		if err := rows.Scan(&p.ID, &p.SupplierID, &p.ProductID, &p.PricePerKg, &p.StartDate, &p.EndDate); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- shipments ---

func (s *Store) InsertShipment(ctx context.Context, sh Shipment) error {
	const q = `INSERT INTO shipments (id, supplier_id, shipment_date) VALUES ($1, $2, $3)`
	if _, err := s.q.Exec(ctx, q, sh.ID, sh.SupplierID, sh.ShipmentDate); err != nil {
		return fmt.Errorf("insert shipment: %w", err)
	}
	return nil
}

// GetShipmentForUpdate loads the shipment row with a row lock, serializing
// concurrent updates of the same shipment. Only valid inside a transaction.
func (s *Store) GetShipmentForUpdate(ctx context.Context, id uuid.UUID) (Shipment, error) {
	const q = `SELECT id, supplier_id, shipment_date FROM shipments WHERE id = $1 FOR UPDATE`
	var sh Shipment
	if err := s.q.QueryRow(ctx, q, id).Scan(&sh.ID, &sh.SupplierID, &sh.ShipmentDate); err != nil {
		return Shipment{}, fmt.Errorf("get shipment for update: %w", err)
	}
	return sh, nil
}

func (s *Store) UpdateShipmentDate(ctx context.Context, id uuid.UUID, date time.Time) error {
	const q = `UPDATE shipments SET shipment_date = $2 WHERE id = $1`
	if _, err := s.q.Exec(ctx, q, id, date); err != nil {
		return fmt.Errorf("update shipment date: %w", err)
	}
	return nil
}

// --- shipment items ---

func (s *Store) InsertShipmentItem(ctx context.Context, it ShipmentItem) error {
	const q = `
		INSERT INTO shipment_items (shipment_id, product_id, weight_kg, price_per_kg, total_price)
		VALUES ($1, $2, $3, $4, $5)`
	_, err := s.q.Exec(ctx, q, it.ShipmentID, it.ProductID, it.WeightKg, it.PricePerKg, it.TotalPrice)
	if err != nil {
		return fmt.Errorf("insert shipment item: %w", err)
	}
	return nil
}

// UpdateShipmentItem rewrites weight and total for an existing line. The
// price snapshot never changes after the line is first written.
func (s *Store) UpdateShipmentItem(ctx context.Context, it ShipmentItem) error {
	const q = `
		UPDATE shipment_items SET weight_kg = $3, total_price = $4
		WHERE shipment_id = $1 AND product_id = $2`
	_, err := s.q.Exec(ctx, q, it.ShipmentID, it.ProductID, it.WeightKg, it.TotalPrice)
	if err != nil {
		return fmt.Errorf("update shipment item: %w", err)
	}
	return nil
}

func (s *Store) ListShipmentItems(ctx context.Context, shipmentID uuid.UUID) ([]ShipmentItem, error) {
	const q = `
		SELECT shipment_id, product_id, weight_kg, price_per_kg, total_price
		FROM shipment_items WHERE shipment_id = $1 ORDER BY product_id`
	rows, err := s.q.Query(ctx, q, shipmentID)
	if err != nil {
		return nil, fmt.Errorf("list shipment items: %w", err)
	}
	defer rows.Close()
	var out []ShipmentItem
	for rows.Next() {
		var it ShipmentItem
		if err := rows.Scan(&it.ShipmentID, &it.ProductID, &it.WeightKg, &it.PricePerKg, &it.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan shipment item: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AggregateShipmentItems sums weight and total per supplier/product over all
// shipments dated within [start, end], inclusive.
func (s *Store) AggregateShipmentItems(ctx context.Context, start, end time.Time) ([]ShipmentItemSummary, error) {
	const q = `
		SELECT sh.supplier_id, su.name, it.product_id, pr.name,
		       SUM(it.weight_kg), SUM(it.total_price)
		FROM shipment_items it
		JOIN shipments sh ON sh.id = it.shipment_id
		JOIN suppliers su ON su.id = sh.supplier_id
		JOIN products pr ON pr.id = it.product_id
		WHERE sh.shipment_date BETWEEN $1 AND $2
		GROUP BY sh.supplier_id, su.name, it.product_id, pr.name
		ORDER BY su.name, pr.name`
	rows, err := s.q.Query(ctx, q, start, end)
	if err != nil {
		return nil, fmt.Errorf("aggregate shipment items: %w", err)
	}
	defer rows.Close()
	var out []ShipmentItemSummary
	for rows.Next() {
		var row ShipmentItemSummary
		if err := rows.Scan(&row.SupplierID, &row.SupplierName, &row.ProductID, &row.ProductName, &row.TotalWeight, &row.TotalPrice); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

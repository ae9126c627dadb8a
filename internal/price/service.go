package price

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/supplymaster/backend-supply/internal/db"
)

// Querier captures the store methods required by the price service.
type Querier interface {
	GetSupplierByID(ctx context.Context, id uuid.UUID) (db.Supplier, error)
	GetProductByID(ctx context.Context, id uuid.UUID) (db.Product, error)
	PriceOverlapExists(ctx context.Context, supplierID, productID uuid.UUID, start, end time.Time) (bool, error)
	InsertPrice(ctx context.Context, p db.Price) error
	UpdatePriceAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (db.Price, error)
	ListPricesForSupplierProducts(ctx context.Context, supplierID uuid.UUID, productIDs []uuid.UUID, onDate time.Time) ([]db.Price, error)
}

// TxFunc runs fn with a Querier bound to a single transaction.
type TxFunc func(ctx context.Context, fn func(Querier) error) error

// Locker serializes application-level writers on a key.
type Locker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error
}

// CreateParams describes a new validity interval.
type CreateParams struct {
	SupplierID uuid.UUID
	ProductID  uuid.UUID
	PricePerKg decimal.Decimal
	StartDate  time.Time
	EndDate    time.Time
}

// Service owns the price non-overlap invariant and per-date resolution.
type Service struct {
	Q       Querier
	InTx    TxFunc
	Lock    Locker
	LockTTL time.Duration
}

// Create validates the interval, checks for overlap and inserts, all inside
// one transaction. A per-(supplier,product) lock serializes concurrent
// creators; the schema's exclusion constraint closes any remaining race.
func (s *Service) Create(ctx context.Context, params CreateParams) (db.Price, error) {
	if s == nil || s.Q == nil || s.InTx == nil {
		return db.Price{}, errors.New("price service not configured")
	}
	if !params.PricePerKg.IsPositive() {
		return db.Price{}, ErrInvalidAmount
	}
	interval, err := NewInterval(params.StartDate, params.EndDate)
	if err != nil {
		return db.Price{}, err
	}
	if _, err := s.Q.GetSupplierByID(ctx, params.SupplierID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Price{}, fmt.Errorf("supplier %s: %w", params.SupplierID, ErrNotFound)
		}
		return db.Price{}, err
	}
	if _, err := s.Q.GetProductByID(ctx, params.ProductID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Price{}, fmt.Errorf("product %s: %w", params.ProductID, ErrNotFound)
		}
		return db.Price{}, err
	}

	p := db.Price{
		ID:         uuid.New(),
		SupplierID: params.SupplierID,
		ProductID:  params.ProductID,
		PricePerKg: params.PricePerKg,
		StartDate:  interval.Start,
		EndDate:    interval.End,
	}
	insert := func() error {
		return s.InTx(ctx, func(q Querier) error {
			exists, err := q.PriceOverlapExists(ctx, p.SupplierID, p.ProductID, p.StartDate, p.EndDate)
			if err != nil {
				return err
			}
			if exists {
				return ErrConflict
			}
			if err := q.InsertPrice(ctx, p); err != nil {
				if isExclusionViolation(err) {
					return ErrConflict
				}
				return err
			}
			return nil
		})
	}

	if s.Lock != nil {
		key := lockKey(p.SupplierID, p.ProductID)
		err = s.Lock.WithLock(ctx, key, s.LockTTL, func(ctx context.Context) error { return insert() })
	} else {
		err = insert()
	}
	if err != nil {
		return db.Price{}, err
	}
	return p, nil
}

// UpdateAmount changes the per-kg amount of an existing price. The validity
// interval and supplier/product binding are immutable.
func (s *Service) UpdateAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (db.Price, error) {
	if s == nil || s.Q == nil {
		return db.Price{}, errors.New("price service not configured")
	}
	if !amount.IsPositive() {
		return db.Price{}, ErrInvalidAmount
	}
	p, err := s.Q.UpdatePriceAmount(ctx, id, amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return db.Price{}, fmt.Errorf("price %s: %w", id, ErrNotFound)
		}
		return db.Price{}, err
	}
	return p, nil
}

// Resolver is the single query needed to resolve valid prices for a date.
// Both the pool-backed store and tx-bound stores satisfy it.
type Resolver interface {
	ListPricesForSupplierProducts(ctx context.Context, supplierID uuid.UUID, productIDs []uuid.UUID, onDate time.Time) ([]db.Price, error)
}

// Resolve returns the price valid on the given date for each of the supplier's
// products. Products without a valid price are absent from the map.
func (s *Service) Resolve(ctx context.Context, supplierID uuid.UUID, productIDs []uuid.UUID, onDate time.Time) (map[uuid.UUID]db.Price, error) {
	if s == nil || s.Q == nil {
		return nil, errors.New("price service not configured")
	}
	return ResolveFor(ctx, s.Q, supplierID, productIDs, onDate)
}

// ResolveFor is the resolution shared by the price and shipment services.
// Callers already inside a transaction pass their tx-bound querier so the
// lookup sees uncommitted rows of the same transaction.
func ResolveFor(ctx context.Context, q Resolver, supplierID uuid.UUID, productIDs []uuid.UUID, onDate time.Time) (map[uuid.UUID]db.Price, error) {
	if len(productIDs) == 0 {
		return map[uuid.UUID]db.Price{}, nil
	}
	prices, err := q.ListPricesForSupplierProducts(ctx, supplierID, productIDs, onDate)
	if err != nil {
		return nil, err
	}
	resolved := make(map[uuid.UUID]db.Price, len(prices))
	for _, p := range prices {
		if !(Interval{Start: p.StartDate, End: p.EndDate}).Contains(onDate) {
			continue
		}
		// The exclusion constraint guarantees at most one valid price per
		// product and date; keep the first row if the guarantee is ever broken.
		if _, ok := resolved[p.ProductID]; !ok {
			resolved[p.ProductID] = p
		}
	}
	return resolved, nil
}

func lockKey(supplierID, productID uuid.UUID) string {
	return fmt.Sprintf("price:lock:%s:%s", supplierID, productID)
}

// isExclusionViolation reports SQLSTATE 23P01, raised by the daterange
// exclusion constraint when two writers race past the application check.
func isExclusionViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

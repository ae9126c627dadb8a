package price

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/supplymaster/backend-supply/internal/db"
)

type stubQuerier struct {
	supplierErr error
	productErr  error
	overlap     bool
	overlapErr  error
	insertErr   error
	inserted    []db.Price
	updated     db.Price
	updateErr   error
	prices      []db.Price
}

func (s *stubQuerier) GetSupplierByID(ctx context.Context, id uuid.UUID) (db.Supplier, error) {
	if s.supplierErr != nil {
		return db.Supplier{}, s.supplierErr
	}
	return db.Supplier{ID: id, Name: "Acme Farms"}, nil
}

func (s *stubQuerier) GetProductByID(ctx context.Context, id uuid.UUID) (db.Product, error) {
	if s.productErr != nil {
		return db.Product{}, s.productErr
	}
	return db.Product{ID: id, Name: "Coffee Beans"}, nil
}

func (s *stubQuerier) PriceOverlapExists(ctx context.Context, supplierID, productID uuid.UUID, start, end time.Time) (bool, error) {
	return s.overlap, s.overlapErr
}

func (s *stubQuerier) InsertPrice(ctx context.Context, p db.Price) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = append(s.inserted, p)
	return nil
}

func (s *stubQuerier) UpdatePriceAmount(ctx context.Context, id uuid.UUID, amount decimal.Decimal) (db.Price, error) {
	if s.updateErr != nil {
		return db.Price{}, s.updateErr
	}
	p := s.updated
	p.ID = id
	p.PricePerKg = amount
	return p, nil
}

func (s *stubQuerier) ListPricesForSupplierProducts(ctx context.Context, supplierID uuid.UUID, productIDs []uuid.UUID, onDate time.Time) ([]db.Price, error) {
	return s.prices, nil
}

func newTestService(q *stubQuerier) *Service {
	return &Service{
		Q: q,
		InTx: func(ctx context.Context, fn func(Querier) error) error {
			return fn(q)
		},
	}
}

func validParams(t *testing.T) CreateParams {
	return CreateParams{
		SupplierID: uuid.New(),
		ProductID:  uuid.New(),
		PricePerKg: decimal.RequireFromString("100.50"),
		StartDate:  day(t, "2024-03-01"),
		EndDate:    day(t, "2024-03-31"),
	}
}

func TestCreateInsertsValidPrice(t *testing.T) {
	q := &stubQuerier{}
	svc := newTestService(q)
	params := validParams(t)

	p, err := svc.Create(context.Background(), params)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if p.ID == uuid.Nil {
		t.Fatal("expected generated id")
	}
	if len(q.inserted) != 1 {
		t.Fatalf("expected 1 insert, got %d", len(q.inserted))
	}
	if !q.inserted[0].PricePerKg.Equal(params.PricePerKg) {
		t.Fatalf("inserted amount = %s, want %s", q.inserted[0].PricePerKg, params.PricePerKg)
	}
}

func TestCreateRejectsOverlap(t *testing.T) {
	q := &stubQuerier{overlap: true}
	svc := newTestService(q)

	_, err := svc.Create(context.Background(), validParams(t))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if len(q.inserted) != 0 {
		t.Fatal("conflicting price must not be inserted")
	}
}

func TestCreateMapsExclusionViolationToConflict(t *testing.T) {
	q := &stubQuerier{insertErr: &pgconn.PgError{Code: "23P01"}}
	svc := newTestService(q)

	_, err := svc.Create(context.Background(), validParams(t))
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict from exclusion violation, got %v", err)
	}
}

func TestCreateUnknownSupplierOrProduct(t *testing.T) {
	q := &stubQuerier{supplierErr: fmt.Errorf("get supplier: %w", pgx.ErrNoRows)}
	if _, err := newTestService(q).Create(context.Background(), validParams(t)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for supplier, got %v", err)
	}

	q = &stubQuerier{productErr: fmt.Errorf("get product: %w", pgx.ErrNoRows)}
	if _, err := newTestService(q).Create(context.Background(), validParams(t)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for product, got %v", err)
	}
}

func TestCreateRejectsInvalidInput(t *testing.T) {
	svc := newTestService(&stubQuerier{})

	params := validParams(t)
	params.PricePerKg = decimal.Zero
	if _, err := svc.Create(context.Background(), params); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}

	params = validParams(t)
	params.StartDate, params.EndDate = params.EndDate, params.StartDate
	if _, err := svc.Create(context.Background(), params); !errors.Is(err, ErrInvalidInterval) {
		t.Fatalf("expected ErrInvalidInterval, got %v", err)
	}
}

func TestUpdateAmount(t *testing.T) {
	q := &stubQuerier{updated: db.Price{StartDate: time.Now(), EndDate: time.Now()}}
	svc := newTestService(q)

	p, err := svc.UpdateAmount(context.Background(), uuid.New(), decimal.RequireFromString("120.00"))
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !p.PricePerKg.Equal(decimal.RequireFromString("120.00")) {
		t.Fatalf("amount = %s, want 120.00", p.PricePerKg)
	}

	q.updateErr = fmt.Errorf("update price amount: %w", pgx.ErrNoRows)
	if _, err := svc.UpdateAmount(context.Background(), uuid.New(), decimal.NewFromInt(1)); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if _, err := svc.UpdateAmount(context.Background(), uuid.New(), decimal.NewFromInt(-5)); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestResolveMapsPricesByProduct(t *testing.T) {
	supplierID := uuid.New()
	productA, productB := uuid.New(), uuid.New()
	q := &stubQuerier{prices: []db.Price{
		{
			ID: uuid.New(), SupplierID: supplierID, ProductID: productA,
			PricePerKg: decimal.NewFromInt(10),
			StartDate:  day(t, "2024-03-01"), EndDate: day(t, "2024-03-31"),
		},
	}}
	svc := newTestService(q)

	resolved, err := svc.Resolve(context.Background(), supplierID, []uuid.UUID{productA, productB}, day(t, "2024-03-15"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 1 {
		t.Fatalf("expected 1 resolved price, got %d", len(resolved))
	}
	if _, ok := resolved[productB]; ok {
		t.Fatal("unpriced product must be absent from the result")
	}

	empty, err := svc.Resolve(context.Background(), supplierID, nil, day(t, "2024-03-15"))
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty map for no products, got %v, %v", empty, err)
	}
}

func TestResolveDropsRowsOutsideValidity(t *testing.T) {
	supplierID, productID := uuid.New(), uuid.New()
	q := &stubQuerier{prices: []db.Price{
		{
			ID: uuid.New(), SupplierID: supplierID, ProductID: productID,
			PricePerKg: decimal.NewFromInt(10),
			StartDate:  day(t, "2024-01-01"), EndDate: day(t, "2024-01-31"),
		},
	}}
	svc := newTestService(q)

	resolved, err := svc.Resolve(context.Background(), supplierID, []uuid.UUID{productID}, day(t, "2024-03-15"))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(resolved) != 0 {
		t.Fatalf("row outside its validity interval must not resolve, got %v", resolved)
	}
}

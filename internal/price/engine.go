package price

import (
	"errors"
	"time"
)

var (
	// ErrConflict is returned when a new validity interval touches an existing
	// one for the same supplier/product.
	ErrConflict = errors.New("price interval conflict")
	// ErrNotFound is returned when a referenced supplier, product or price does not exist.
	ErrNotFound = errors.New("price not found")
	// ErrInvalidInterval is returned when the start date falls after the end date.
	ErrInvalidInterval = errors.New("invalid validity interval")
	// ErrInvalidAmount is returned when the per-kg amount is not strictly positive.
	ErrInvalidAmount = errors.New("price per kg must be positive")
)

// Interval is a closed date range. Both bounds are part of the interval, so a
// single-day interval has Start == End.
type Interval struct {
	Start time.Time
	End   time.Time
}

// NewInterval validates the ordering of the bounds.
func NewInterval(start, end time.Time) (Interval, error) {
	if end.Before(start) {
		return Interval{}, ErrInvalidInterval
	}
	return Interval{Start: start, End: end}, nil
}

// Contains reports whether d falls inside the interval, bounds included.
func (i Interval) Contains(d time.Time) bool {
	return !d.Before(i.Start) && !d.After(i.End)
}

// Intersects reports whether the two closed intervals share at least one day.
// Intervals that only touch at an endpoint still intersect.
func (i Interval) Intersects(o Interval) bool {
	return !i.Start.After(o.End) && !o.Start.After(i.End)
}

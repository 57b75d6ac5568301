package offer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status enumerates offer states.
type Status string

const (
	StatusActive   Status = "Active"
	StatusInactive Status = "Inactive"
)

// ErrNotFound is returned when an offer does not exist.
var ErrNotFound = errors.New("offer not found")

// Offer is a restaurant-scoped, time-bounded percentage discount.
type Offer struct {
	ID                 string
	RestaurantID       string
	Name               string
	DiscountPercentage decimal.Decimal
	StartDate          time.Time
	EndDate            time.Time
	Status             Status
}

// ApplicableAt reports whether o is active and now lies within
// [StartDate, EndDate].
func (o *Offer) ApplicableAt(now time.Time) bool {
	if o.Status != StatusActive {
		return false
	}
	if now.Before(o.StartDate) || now.After(o.EndDate) {
		return false
	}
	return true
}

// Repository provides read access to offers.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Offer, error)
	// ListActive returns offers of a restaurant with status Active whose
	// window contains now.
	ListActive(ctx context.Context, restaurantID string, now time.Time) ([]Offer, error)
}

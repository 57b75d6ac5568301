// Package offer validates promotional offers referenced by orders.
package offer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DropReason explains why an offer reference was removed from an order.
type DropReason string

const (
	DropNotFound        DropReason = "not_found"
	DropInactive        DropReason = "inactive"
	DropOutsideWindow   DropReason = "outside_window"
	DropOtherRestaurant DropReason = "other_restaurant"
)

// Resolution is the outcome of resolving an offer reference.
//
// Exactly one of Applied and Dropped is true when a reference was given;
// both are false when it was empty.
type Resolution struct {
	OfferID    string
	Percentage decimal.Decimal
	Applied    bool
	Dropped    bool
	Reason     DropReason
}

// Resolver validates offer references against the repository.
type Resolver struct {
	repo Repository
	now  func() time.Time
}

// NewResolver creates a Resolver backed by repo.
func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo, now: time.Now}
}

// Resolve returns the discount percentage of offerRef if it qualifies for
// restaurantID right now. A reference that does not qualify is reported as
// dropped rather than as an error; only storage failures are errors.
func (r *Resolver) Resolve(ctx context.Context, offerRef, restaurantID string) (Resolution, error) {
	if offerRef == "" {
		return Resolution{Percentage: decimal.Zero}, nil
	}

	dropped := func(reason DropReason) (Resolution, error) {
		return Resolution{Percentage: decimal.Zero, Dropped: true, Reason: reason}, nil
	}

	o, err := r.repo.GetByID(ctx, offerRef)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return dropped(DropNotFound)
		}
		return Resolution{}, errors.Wrap(err, "lookup offer")
	}

	switch now := r.now(); {
	case o.RestaurantID != restaurantID:
		return dropped(DropOtherRestaurant)
	case o.Status != StatusActive:
		return dropped(DropInactive)
	case !o.ApplicableAt(now):
		return dropped(DropOutsideWindow)
	}

	return Resolution{
		OfferID:    o.ID,
		Percentage: o.DiscountPercentage,
		Applied:    true,
	}, nil
}

// Active lists the offers of restaurantID applicable right now.
func (r *Resolver) Active(ctx context.Context, restaurantID string) ([]Offer, error) {
	offers, err := r.repo.ListActive(ctx, restaurantID, r.now())
	if err != nil {
		return nil, errors.Wrap(err, "list active offers")
	}
	return offers, nil
}

// Package catalog resolves authoritative unit prices for menu items.
package catalog

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// StatusActive marks a food item that can be ordered.
const StatusActive = "Active"

// Food is the thin projection of a menu item the pricing pipeline needs.
type Food struct {
	ID           string
	RestaurantID string
	Name         string
	Price        decimal.Decimal
	Status       string
}

// Repository defines read operations for the menu.
type Repository interface {
	// GetByIDs returns the orderable foods of a restaurant matching any of ids.
	// Unknown, foreign and inactive ids are simply absent from the result.
	GetByIDs(ctx context.Context, restaurantID string, ids []string) ([]Food, error)
}

// Prices is the result of a lookup.
type Prices struct {
	ByID    map[string]Food
	Missing []string
}

// UnitPrice returns the catalog price for id.
func (p Prices) UnitPrice(id string) (decimal.Decimal, bool) {
	f, ok := p.ByID[id]
	return f.Price, ok
}

// Lookup prices cart lines against the catalog.
type Lookup struct {
	repo Repository
}

// NewLookup creates a Lookup backed by repo.
func NewLookup(repo Repository) *Lookup {
	return &Lookup{repo: repo}
}

// PriceOf resolves ids in a single batch. ids may contain duplicates. Ids
// without a catalog entry are reported in Missing, in first-seen order.
func (l *Lookup) PriceOf(ctx context.Context, restaurantID string, ids []string) (Prices, error) {
	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}

	foods, err := l.repo.GetByIDs(ctx, restaurantID, unique)
	if err != nil {
		return Prices{}, errors.Wrap(err, "catalog unavailable")
	}

	p := Prices{ByID: make(map[string]Food, len(foods))}
	for _, f := range foods {
		if f.Status != "" && f.Status != StatusActive {
			continue
		}
		p.ByID[f.ID] = f
	}
	for _, id := range unique {
		if _, ok := p.ByID[id]; !ok {
			p.Missing = append(p.Missing, id)
		}
	}
	return p, nil
}

// Package venue exposes restaurant and dining table lookups.
package venue

import (
	"context"

	"github.com/go-faster/errors"
)

var (
	// ErrRestaurantNotFound is returned when a restaurant does not exist.
	ErrRestaurantNotFound = errors.New("restaurant not found")
	// ErrTableNotFound is returned when a dining table does not exist or
	// belongs to a different restaurant.
	ErrTableNotFound = errors.New("dining table not found")
)

// DiningTable is the projection of a table the order pipeline needs.
type DiningTable struct {
	ID           string
	RestaurantID string
	Name         string
	Status       string
}

// Repository provides read access to restaurants and tables.
type Repository interface {
	RestaurantExists(ctx context.Context, id string) (bool, error)
	GetTable(ctx context.Context, id string) (*DiningTable, error)
}

// Directory validates venue references.
type Directory struct {
	repo Repository
}

// NewDirectory creates a Directory backed by repo.
func NewDirectory(repo Repository) *Directory {
	return &Directory{repo: repo}
}

// ResolveTable checks that restaurantID exists and that tableID belongs to it.
func (d *Directory) ResolveTable(ctx context.Context, restaurantID, tableID string) (*DiningTable, error) {
	ok, err := d.repo.RestaurantExists(ctx, restaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup restaurant")
	}
	if !ok {
		return nil, ErrRestaurantNotFound
	}

	t, err := d.repo.GetTable(ctx, tableID)
	if err != nil {
		if errors.Is(err, ErrTableNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, errors.Wrap(err, "lookup dining table")
	}
	if t.RestaurantID != restaurantID {
		return nil, ErrTableNotFound
	}
	return t, nil
}

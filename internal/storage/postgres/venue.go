package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableorder/internal/domain/venue"
)

const (
	restaurantExistsSQL = `SELECT EXISTS (SELECT 1 FROM restaurants WHERE id = $1)`

	getTableSQL = `SELECT id, restaurant_id, name, status FROM dining_tables WHERE id = $1`
)

var _ venue.Repository = (*VenueRepository)(nil)

// VenueRepository implements venue.Repository backed by PostgreSQL.
type VenueRepository struct {
	pool *pgxpool.Pool
}

// NewVenueRepository returns a VenueRepository that uses the given pool.
func NewVenueRepository(pool *pgxpool.Pool) *VenueRepository {
	return &VenueRepository{pool: pool}
}

// RestaurantExists reports whether a restaurant with id exists.
func (r *VenueRepository) RestaurantExists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.pool.QueryRow(ctx, restaurantExistsSQL, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("checking restaurant %q: %w", id, err)
	}
	return ok, nil
}

// GetTable returns the dining table with id or venue.ErrTableNotFound.
func (r *VenueRepository) GetTable(ctx context.Context, id string) (*venue.DiningTable, error) {
	rows, err := r.pool.Query(ctx, getTableSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting dining table %q: %w", id, err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, func(row pgx.CollectableRow) (venue.DiningTable, error) {
		var t venue.DiningTable
		err := row.Scan(&t.ID, &t.RestaurantID, &t.Name, &t.Status)
		return t, err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, venue.ErrTableNotFound
		}
		return nil, fmt.Errorf("getting dining table %q: %w", id, err)
	}
	return &t, nil
}

package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableorder/internal/domain/offer"
)

const (
	offerColumns = `id, restaurant_id, name, discount_percentage, start_date, end_date, status`

	getOfferByIDSQL = `SELECT ` + offerColumns + ` FROM offers WHERE id = $1`

	listActiveOffersSQL = `SELECT ` + offerColumns + ` FROM offers
		WHERE restaurant_id = $1 AND status = 'Active' AND start_date <= $2 AND end_date >= $2
		ORDER BY discount_percentage DESC, end_date`
)

var _ offer.Repository = (*OfferRepository)(nil)

// OfferRepository implements offer.Repository backed by PostgreSQL.
type OfferRepository struct {
	pool *pgxpool.Pool
}

// NewOfferRepository returns an OfferRepository that uses the given pool.
func NewOfferRepository(pool *pgxpool.Pool) *OfferRepository {
	return &OfferRepository{pool: pool}
}

// GetByID returns the offer with id or offer.ErrNotFound.
func (r *OfferRepository) GetByID(ctx context.Context, id string) (*offer.Offer, error) {
	rows, err := r.pool.Query(ctx, getOfferByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting offer %q: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOffer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, offer.ErrNotFound
		}
		return nil, fmt.Errorf("getting offer %q: %w", id, err)
	}
	return &o, nil
}

// ListActive returns the active offers of restaurantID whose window contains now.
func (r *OfferRepository) ListActive(ctx context.Context, restaurantID string, now time.Time) ([]offer.Offer, error) {
	rows, err := r.pool.Query(ctx, listActiveOffersSQL, restaurantID, now)
	if err != nil {
		return nil, fmt.Errorf("listing active offers: %w", err)
	}
	return pgx.CollectRows(rows, scanOffer)
}

func scanOffer(row pgx.CollectableRow) (offer.Offer, error) {
	var (
		o      offer.Offer
		status string
	)
	err := row.Scan(&o.ID, &o.RestaurantID, &o.Name, &o.DiscountPercentage, &o.StartDate, &o.EndDate, &status)
	o.Status = offer.Status(status)
	return o, err
}

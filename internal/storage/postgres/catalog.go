package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableorder/internal/domain/catalog"
)

const getFoodsByIDsSQL = `SELECT id, restaurant_id, name, price, status
	FROM foods WHERE restaurant_id = $1 AND id = ANY($2)`

var _ catalog.Repository = (*FoodRepository)(nil)

// FoodRepository implements catalog.Repository backed by PostgreSQL.
type FoodRepository struct {
	pool *pgxpool.Pool
}

// NewFoodRepository returns a FoodRepository that uses the given pool.
func NewFoodRepository(pool *pgxpool.Pool) *FoodRepository {
	return &FoodRepository{pool: pool}
}

// GetByIDs returns the foods of restaurantID matching any of ids.
func (r *FoodRepository) GetByIDs(ctx context.Context, restaurantID string, ids []string) ([]catalog.Food, error) {
	rows, err := r.pool.Query(ctx, getFoodsByIDsSQL, restaurantID, ids)
	if err != nil {
		return nil, fmt.Errorf("getting foods by ids: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Food, error) {
		var f catalog.Food
		err := row.Scan(&f.ID, &f.RestaurantID, &f.Name, &f.Price, &f.Status)
		return f, err
	})
}

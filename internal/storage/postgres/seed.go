package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const (
	upsertRestaurantSQL = `INSERT INTO restaurants (id, name, status) VALUES ($1, $2, COALESCE(NULLIF($3, ''), 'Active'))
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, status = EXCLUDED.status`

	upsertTableSQL = `INSERT INTO dining_tables (id, restaurant_id, name, size, status)
		VALUES ($1, $2, $3, COALESCE(NULLIF($4, 0), 4), COALESCE(NULLIF($5, ''), 'Available'))
		ON CONFLICT (id) DO UPDATE SET restaurant_id = EXCLUDED.restaurant_id, name = EXCLUDED.name,
			size = EXCLUDED.size, status = EXCLUDED.status`

	upsertFoodSQL = `INSERT INTO foods (id, restaurant_id, name, price, status)
		VALUES ($1, $2, $3, $4, COALESCE(NULLIF($5, ''), 'Active'))
		ON CONFLICT (id) DO UPDATE SET restaurant_id = EXCLUDED.restaurant_id, name = EXCLUDED.name,
			price = EXCLUDED.price, status = EXCLUDED.status`

	upsertOfferSQL = `INSERT INTO offers (id, restaurant_id, name, discount_percentage, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE(NULLIF($7, ''), 'Active'))
		ON CONFLICT (id) DO UPDATE SET restaurant_id = EXCLUDED.restaurant_id, name = EXCLUDED.name,
			discount_percentage = EXCLUDED.discount_percentage, start_date = EXCLUDED.start_date,
			end_date = EXCLUDED.end_date, status = EXCLUDED.status`
)

// Seed is the reference data of one or more restaurants.
type Seed struct {
	Restaurants []SeedRestaurant `json:"restaurants"`
	Tables      []SeedTable      `json:"tables"`
	Foods       []SeedFood       `json:"foods"`
	Offers      []SeedOffer      `json:"offers"`
}

// SeedRestaurant is a restaurant row.
type SeedRestaurant struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SeedTable is a dining table row.
type SeedTable struct {
	ID           string `json:"id"`
	RestaurantID string `json:"restaurantId"`
	Name         string `json:"name"`
	Size         int    `json:"size"`
	Status       string `json:"status"`
}

// SeedFood is a menu item row.
type SeedFood struct {
	ID           string          `json:"id"`
	RestaurantID string          `json:"restaurantId"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Status       string          `json:"status"`
}

// SeedOffer is an offer row.
type SeedOffer struct {
	ID                 string          `json:"id"`
	RestaurantID       string          `json:"restaurantId"`
	Name               string          `json:"name"`
	DiscountPercentage decimal.Decimal `json:"discountPercentage"`
	StartDate          time.Time       `json:"startDate"`
	EndDate            time.Time       `json:"endDate"`
	Status             string          `json:"status"`
}

// Rows returns the number of rows in s.
func (s *Seed) Rows() int {
	return len(s.Restaurants) + len(s.Tables) + len(s.Foods) + len(s.Offers)
}

// ApplySeed upserts s in a single transaction. Parents are queued before
// children so foreign keys hold.
func ApplySeed(ctx context.Context, pool *pgxpool.Pool, s *Seed) error {
	batch := &pgx.Batch{}
	for _, r := range s.Restaurants {
		batch.Queue(upsertRestaurantSQL, r.ID, r.Name, r.Status)
	}
	for _, t := range s.Tables {
		batch.Queue(upsertTableSQL, t.ID, t.RestaurantID, t.Name, t.Size, t.Status)
	}
	for _, f := range s.Foods {
		batch.Queue(upsertFoodSQL, f.ID, f.RestaurantID, f.Name, f.Price, f.Status)
	}
	for _, o := range s.Offers {
		batch.Queue(upsertOfferSQL, o.ID, o.RestaurantID, o.Name, o.DiscountPercentage, o.StartDate, o.EndDate, o.Status)
	}

	err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("applying seed: %w", err)
	}
	return nil
}

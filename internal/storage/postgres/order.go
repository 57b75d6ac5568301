package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/domain/payment"
)

const (
	orderColumns = `id::text, customer_name, phone, restaurant_id, dining_table_id, COALESCE(offer_id, ''),
		items, subtotal, surcharge, discount, discount_percentage, total_price, priority, payment_status, status,
		COALESCE(provider_order_id, ''), COALESCE(payment_link, ''), COALESCE(payment_id, ''),
		COALESCE(idempotency_key, ''), created_at, updated_at`

	createOrderSQL = `INSERT INTO orders (id, customer_name, phone, restaurant_id, dining_table_id, offer_id,
		items, subtotal, surcharge, discount, discount_percentage, total_price, priority, payment_status, status,
		idempotency_key, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8, $9, $10, $11, $12, $13, $14, $15, NULLIF($16, ''), $17, $17)
	ON CONFLICT (idempotency_key) DO NOTHING
	RETURNING ` + orderColumns

	getOrderByIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	getOrderByIdempotencyKeySQL = `SELECT ` + orderColumns + ` FROM orders WHERE idempotency_key = $1`

	getOrderByProviderOrderIDSQL = `SELECT ` + orderColumns + ` FROM orders WHERE provider_order_id = $1`

	listOrdersByRestaurantSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE restaurant_id = $1 ORDER BY created_at DESC`

	listOrdersByTableSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE dining_table_id = $1 ORDER BY created_at DESC`

	attachIntentSQL = `UPDATE orders
		SET provider_order_id = $2, payment_link = NULLIF($3, ''), updated_at = now()
		WHERE id = $1 AND provider_order_id IS NULL AND status = 'Pending' AND payment_status = 'Pending'
		RETURNING ` + orderColumns

	confirmPaymentSQL = `UPDATE orders
		SET payment_status = 'Completed', status = 'Confirmed', payment_id = $2, updated_at = now()
		WHERE provider_order_id = $1 AND status = 'Pending' AND payment_status = 'Pending'
		RETURNING ` + orderColumns
)

var (
	_ order.Repository   = (*OrderRepository)(nil)
	_ payment.Repository = (*OrderRepository)(nil)
)

// OrderRepository implements order.Repository and payment.Repository backed
// by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order. The order items are serialized to JSON for
// storage in the JSONB column. An order already stored under the same
// idempotency key is returned instead, with created set to false.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) (*order.Order, bool, error) {
	itemsJSON, err := json.Marshal(o.Items)
	if err != nil {
		return nil, false, fmt.Errorf("marshaling order items: %w", err)
	}

	rows, err := r.pool.Query(ctx, createOrderSQL,
		o.ID, o.Customer, o.Phone, o.RestaurantID, o.DiningTableID, o.OfferID,
		itemsJSON, o.Subtotal, o.Surcharge, o.Discount, o.DiscountPercent, o.TotalPrice, o.Priority,
		string(o.PaymentStatus), string(o.Status), o.IdempotencyKey, o.CreatedAt,
	)
	if err != nil {
		return nil, false, fmt.Errorf("creating order %q: %w", o.ID, err)
	}
	stored, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	switch {
	case err == nil:
		return &stored, true, nil
	case errors.Is(err, pgx.ErrNoRows) && o.IdempotencyKey != "":
		existing, err := r.GetByIdempotencyKey(ctx, o.IdempotencyKey)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	default:
		return nil, false, fmt.Errorf("creating order %q: %w", o.ID, err)
	}
}

// GetByID returns the order with id or order.ErrNotFound.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByIdempotencyKey returns the order created under key or order.ErrNotFound.
func (r *OrderRepository) GetByIdempotencyKey(ctx context.Context, key string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIdempotencyKeySQL, key)
}

// GetByProviderOrderID returns the order carrying the payment intent or
// order.ErrNotFound.
func (r *OrderRepository) GetByProviderOrderID(ctx context.Context, providerOrderID string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByProviderOrderIDSQL, providerOrderID)
}

// ListByRestaurant returns the orders of a restaurant, newest first.
func (r *OrderRepository) ListByRestaurant(ctx context.Context, restaurantID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByRestaurantSQL, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of restaurant %q: %w", restaurantID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// ListByTable returns the orders of a dining table, newest first.
func (r *OrderRepository) ListByTable(ctx context.Context, tableID string) ([]order.Order, error) {
	rows, err := r.pool.Query(ctx, listOrdersByTableSQL, tableID)
	if err != nil {
		return nil, fmt.Errorf("listing orders of table %q: %w", tableID, err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// AttachIntent stores the payment intent on a payable order without one.
// When the update does not apply, the current order is returned unchanged.
func (r *OrderRepository) AttachIntent(ctx context.Context, orderID, providerOrderID, paymentLink string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, attachIntentSQL, orderID, providerOrderID, paymentLink)
	if err != nil {
		return nil, fmt.Errorf("attaching intent to order %q: %w", orderID, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	switch {
	case err == nil:
		return &o, nil
	case errors.Is(err, pgx.ErrNoRows):
		return r.GetByID(ctx, orderID)
	default:
		return nil, fmt.Errorf("attaching intent to order %q: %w", orderID, err)
	}
}

// ConfirmPayment is the only statement that moves an order to Confirmed.
func (r *OrderRepository) ConfirmPayment(ctx context.Context, providerOrderID, paymentID string) (*order.Order, bool, error) {
	rows, err := r.pool.Query(ctx, confirmPaymentSQL, providerOrderID, paymentID)
	if err != nil {
		return nil, false, fmt.Errorf("confirming payment %q: %w", providerOrderID, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	switch {
	case err == nil:
		return &o, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return nil, false, nil
	default:
		return nil, false, fmt.Errorf("confirming payment %q: %w", providerOrderID, err)
	}
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order: %w", err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order: %w", err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o             order.Order
		items         []byte
		paymentStatus string
		status        string
	)
	err := row.Scan(
		&o.ID, &o.Customer, &o.Phone, &o.RestaurantID, &o.DiningTableID, &o.OfferID,
		&items, &o.Subtotal, &o.Surcharge, &o.Discount, &o.DiscountPercent, &o.TotalPrice, &o.Priority,
		&paymentStatus, &status,
		&o.ProviderOrderID, &o.PaymentLink, &o.PaymentID,
		&o.IdempotencyKey, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}
	o.PaymentStatus = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("unmarshaling order items: %w", err)
	}
	return o, nil
}

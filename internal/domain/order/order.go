package order

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xenking/tableorder/internal/domain/pricing"
)

// MaxAmount is the largest amount an order column can hold.
var MaxAmount = decimal.RequireFromString("9999999999.99")

// Status is the kitchen-facing lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusConfirmed  Status = "Confirmed"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
)

// PaymentStatus is the payment state of an order.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "Pending"
	PaymentCompleted PaymentStatus = "Completed"
	PaymentFailed    PaymentStatus = "Failed"
)

// Order is a priced, persisted customer order.
type Order struct {
	ID              string
	Customer        string
	Phone           string
	RestaurantID    string
	DiningTableID   string
	OfferID         string
	Items           []Item
	Subtotal        decimal.Decimal
	Surcharge       decimal.Decimal
	Discount        decimal.Decimal
	DiscountPercent decimal.Decimal
	TotalPrice      decimal.Decimal
	Priority        bool
	PaymentStatus   PaymentStatus
	Status          Status
	ProviderOrderID string
	PaymentLink     string
	PaymentID       string
	IdempotencyKey  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is one distinct food entry with its catalog-derived price.
type Item struct {
	FoodID    string          `json:"foodId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Price     decimal.Decimal `json:"price"`
}

// Breakdown reconstructs the pricing amounts stored on o.
func (o *Order) Breakdown() pricing.Breakdown {
	lines := make([]decimal.Decimal, len(o.Items))
	for i, it := range o.Items {
		lines[i] = it.Price
	}
	return pricing.Breakdown{
		LineTotals:       lines,
		Subtotal:         o.Subtotal,
		Surcharge:        o.Surcharge,
		PreDiscountTotal: o.Subtotal.Add(o.Surcharge),
		DiscountPercent:  o.DiscountPercent,
		Discount:         o.Discount,
		Total:            o.TotalPrice,
	}
}

// Payable reports whether a payment intent may be created or verified for o.
func (o *Order) Payable() bool {
	return o.Status == StatusPending && o.PaymentStatus == PaymentPending
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create inserts o. When o.IdempotencyKey is already taken, the stored
	// order is returned with created set to false.
	Create(ctx context.Context, o *Order) (stored *Order, created bool, err error)
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*Order, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]Order, error)
	ListByTable(ctx context.Context, tableID string) ([]Order, error)
}

// Package payment reconciles orders against an external payment provider.
package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/tableorder/internal/domain/order"
)

var (
	// ErrIntentNotFound is returned when no order carries the provider order id.
	ErrIntentNotFound = errors.New("payment intent not found")
	// ErrInvalidSignature is returned when a payment signature does not verify.
	ErrInvalidSignature = errors.New("invalid payment signature")
	// ErrNotPayable is returned when the order is not awaiting payment.
	ErrNotPayable = errors.New("order is not awaiting payment")
	// ErrMissingFields is returned when a verification request is incomplete.
	ErrMissingFields = errors.New("providerOrderId, paymentId and signature are required")
)

// ProviderError wraps a failure of the payment provider.
type ProviderError struct {
	Op  string
	Err error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("payment provider: %s: %v", e.Op, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ProviderOrder is the provider's reservation for an amount.
type ProviderOrder struct {
	ID          string
	PaymentLink string
}

// Provider is the external payment collaborator.
type Provider interface {
	// CreateOrder reserves amount (in minor units) under receipt.
	CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*ProviderOrder, error)
	// VerifySignature checks the signature returned to the client after payment.
	VerifySignature(providerOrderID, paymentID, signature string) bool
}

// Repository is the order storage the reconciler needs.
type Repository interface {
	GetByID(ctx context.Context, id string) (*order.Order, error)
	GetByProviderOrderID(ctx context.Context, providerOrderID string) (*order.Order, error)
	// AttachIntent stores the intent on a payable order that has none yet and
	// returns the stored order. If another intent was attached first, the
	// order carrying it is returned unchanged.
	AttachIntent(ctx context.Context, orderID, providerOrderID, paymentLink string) (*order.Order, error)
	// ConfirmPayment marks the pending order with providerOrderID as paid and
	// confirmed in one conditional update. It reports false when no pending
	// order matched.
	ConfirmPayment(ctx context.Context, providerOrderID, paymentID string) (*order.Order, bool, error)
}

// Intent is a payment reservation correlated to an order.
type Intent struct {
	OrderID         string
	ProviderOrderID string
	PaymentLink     string
	Amount          int64
	Currency        string
}

// VerifyRequest carries the values returned by the provider checkout.
type VerifyRequest struct {
	ProviderOrderID string
	PaymentID       string
	Signature       string
}

// VerifyResult is the outcome of a successful verification.
type VerifyResult struct {
	OrderID          string
	Order            *order.Order
	AlreadyConfirmed bool
}

// MinorUnits converts a major-unit amount to the provider's integer units.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

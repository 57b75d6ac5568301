package order

import (
	"fmt"
	"strings"

	"github.com/go-faster/errors"
)

// Sentinel errors for order validation and lookup.
var (
	ErrMissingCustomer   = errors.New("customer name required")
	ErrInvalidPhone      = errors.New("invalid phone number")
	ErrMissingRestaurant = errors.New("restaurant id required")
	ErrMissingTable      = errors.New("dining table id required")
	ErrEmptyCart         = errors.New("cart must contain at least one item")
	ErrNoValidItems      = errors.New("no valid items")
	ErrAmountTooLarge    = errors.New("order amount exceeds the supported maximum")

	ErrNotFound = errors.New("order not found")
)

// InvalidIDError indicates a malformed identifier.
type InvalidIDError struct {
	Field string
	Value string
}

func (e *InvalidIDError) Error() string {
	return fmt.Sprintf("%s %q is not a valid id", e.Field, e.Value)
}

// InvalidQuantityError indicates a food quantity outside [1, MaxQuantity].
type InvalidQuantityError struct {
	FoodID   string
	Quantity int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("quantity must be between 1 and %d for food %s, got %d", MaxQuantity, e.FoodID, e.Quantity)
}

// MissingFoodError indicates a cart line without a food id.
type MissingFoodError struct {
	Line int
}

func (e *MissingFoodError) Error() string {
	return fmt.Sprintf("cart line %d has no food id", e.Line)
}

// ValidationError groups every input failure of a build request.
type ValidationError struct {
	Causes []error
}

func (e *ValidationError) Error() string {
	if len(e.Causes) == 1 {
		return e.Causes[0].Error()
	}
	msgs := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		msgs[i] = c.Error()
	}
	return "invalid order: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the causes to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	return e.Causes
}

// Messages returns the cause messages.
func (e *ValidationError) Messages() []string {
	out := make([]string, len(e.Causes))
	for i, c := range e.Causes {
		out[i] = c.Error()
	}
	return out
}

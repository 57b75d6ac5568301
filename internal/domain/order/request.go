package order

import (
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{10,15}$`)

// MaxQuantity bounds the quantity of one food in an order, after lines with
// the same food are merged.
const MaxQuantity = 1000

// CartLine is a requested food and quantity. Clients never supply prices.
type CartLine struct {
	FoodID   string
	Quantity int
}

// Request holds the input for building an order.
type Request struct {
	Customer     string
	Phone        string
	RestaurantID string
	TableID      string
	OfferID      string
	Cart         []CartLine
	Priority     bool
	// Nonce is a client-chosen token; repeated requests with the same nonce
	// for the same table resolve to one order.
	Nonce string
	// Origin identifies the realtime connection that submitted the request,
	// empty for HTTP.
	Origin string
}

// Validate checks every field and reports all failures at once.
func (r Request) Validate() error {
	var causes []error
	if strings.TrimSpace(r.Customer) == "" {
		causes = append(causes, ErrMissingCustomer)
	}
	if !phonePattern.MatchString(r.Phone) {
		causes = append(causes, ErrInvalidPhone)
	}
	switch {
	case r.RestaurantID == "":
		causes = append(causes, ErrMissingRestaurant)
	case !ValidID(r.RestaurantID):
		causes = append(causes, &InvalidIDError{Field: "restaurantId", Value: r.RestaurantID})
	}
	switch {
	case r.TableID == "":
		causes = append(causes, ErrMissingTable)
	case !ValidID(r.TableID):
		causes = append(causes, &InvalidIDError{Field: "diningTableId", Value: r.TableID})
	}
	if len(r.Cart) == 0 {
		causes = append(causes, ErrEmptyCart)
	}
	lineErrs := false
	for i, l := range r.Cart {
		if l.FoodID == "" {
			causes = append(causes, &MissingFoodError{Line: i})
			lineErrs = true
			continue
		}
		if l.Quantity < 1 || l.Quantity > MaxQuantity {
			causes = append(causes, &InvalidQuantityError{FoodID: l.FoodID, Quantity: l.Quantity})
			lineErrs = true
		}
	}
	if !lineErrs {
		// Every line is within [1, MaxQuantity], so the merged sums cannot
		// overflow.
		for _, l := range r.aggregate() {
			if l.Quantity > MaxQuantity {
				causes = append(causes, &InvalidQuantityError{FoodID: l.FoodID, Quantity: l.Quantity})
			}
		}
	}
	if len(causes) > 0 {
		return &ValidationError{Causes: causes}
	}
	return nil
}

// aggregate merges lines with the same food, keeping first-seen order.
func (r Request) aggregate() []CartLine {
	idx := make(map[string]int, len(r.Cart))
	out := make([]CartLine, 0, len(r.Cart))
	for _, l := range r.Cart {
		if i, ok := idx[l.FoodID]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		idx[l.FoodID] = len(out)
		out = append(out, l)
	}
	return out
}

// IdempotencyKey scopes a client nonce to its restaurant and table.
func IdempotencyKey(restaurantID, tableID, nonce string) string {
	if nonce == "" {
		return ""
	}
	return restaurantID + ":" + tableID + ":" + nonce
}

// ValidID reports whether id is a 24-character hex object id or a UUID.
func ValidID(id string) bool {
	if len(id) == 24 {
		_, err := hex.DecodeString(id)
		return err == nil
	}
	_, err := uuid.Parse(id)
	return err == nil
}

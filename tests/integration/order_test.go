//go:build integration

package integration

import (
	"fmt"
	"math"
	"net/http"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)

type cartLine struct {
	ID       string `json:"_id"`
	Quantity int    `json:"quantity"`
	Price    int    `json:"price,omitempty"`
}

type createRequest struct {
	CustomerName  string     `json:"customerName"`
	Phone         string     `json:"phone"`
	RestaurantID  string     `json:"restaurantId"`
	SelectedTable string     `json:"selectedTable"`
	SelectedOffer string     `json:"selectedOffer,omitempty"`
	WithPriority  bool       `json:"withPriority,omitempty"`
	Cart          []cartLine `json:"cart"`
}

func baseRequest() createRequest {
	return createRequest{
		CustomerName:  "Asha",
		Phone:         "+919876543210",
		RestaurantID:  restaurantID,
		SelectedTable: tableID,
		Cart: []cartLine{
			{ID: paneerID, Quantity: 2, Price: 1},
			{ID: chaiID, Quantity: 1},
		},
	}
}

func createOrder(t *testing.T, req createRequest, header ...string) createdResponse {
	t.Helper()
	resp := doPost(t, "/api/orders/create", req, header...)
	defer resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeJSON[createdResponse](t, resp)
}

func TestCreateOrder_ServerSidePrices(t *testing.T) {
	got := createOrder(t, baseRequest())

	assert.Regexp(t, uuidPattern, got.OrderID)
	assert.Equal(t, 250.0, got.Subtotal)
	assert.Equal(t, 0.0, got.Surcharge)
	assert.Equal(t, 0.0, got.Discount)
	assert.Equal(t, 250.0, got.TotalPrice)
	assert.Equal(t, int64(25000), got.Amount)
	assert.Equal(t, "INR", got.Currency)
	assert.Empty(t, got.DroppedItems)
	assert.False(t, got.OfferApplied)
	assert.False(t, got.Replayed)
}

func TestCreateOrder_PriorityAndOffer(t *testing.T) {
	req := baseRequest()
	req.WithPriority = true
	req.SelectedOffer = offerID

	got := createOrder(t, req)

	assert.Equal(t, 250.0, got.Subtotal)
	assert.Equal(t, 50.0, got.Surcharge)
	assert.Equal(t, 30.0, got.Discount)
	assert.Equal(t, 270.0, got.TotalPrice)
	assert.True(t, got.OfferApplied)
}

func TestCreateOrder_UnknownOfferDropped(t *testing.T) {
	req := baseRequest()
	req.SelectedOffer = "64b7f0c2a1b2c3d4e5f60999"

	got := createOrder(t, req)

	assert.False(t, got.OfferApplied)
	assert.Equal(t, "not_found", got.OfferDropped)
	assert.Equal(t, 250.0, got.TotalPrice)
}

func TestCreateOrder_DropsUnavailableFoods(t *testing.T) {
	req := baseRequest()
	req.Cart = append(req.Cart, cartLine{ID: inactiveID, Quantity: 1})

	got := createOrder(t, req)

	assert.Equal(t, []string{inactiveID}, got.DroppedItems)
	assert.Equal(t, 250.0, got.TotalPrice)
}

func TestCreateOrder_NoValidItems(t *testing.T) {
	req := baseRequest()
	req.Cart = []cartLine{{ID: inactiveID, Quantity: 1}}

	resp := doPost(t, "/api/orders/create", req)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "no valid items", decodeJSON[errorResponse](t, resp).Message)
}

func TestCreateOrder_Validation(t *testing.T) {
	req := baseRequest()
	req.CustomerName = ""
	req.Phone = "12"
	req.Cart = nil

	resp := doPost(t, "/api/orders/create", req)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeJSON[errorResponse](t, resp)
	assert.Equal(t, 400, body.Code)
	assert.Len(t, body.Causes, 3)
}

func TestCreateOrder_QuantityOverflow(t *testing.T) {
	req := baseRequest()
	req.Cart = []cartLine{
		{ID: paneerID, Quantity: math.MaxInt64},
		{ID: paneerID, Quantity: math.MaxInt64},
	}

	resp := doPost(t, "/api/orders/create", req)
	defer resp.Body.Close()

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := decodeJSON[errorResponse](t, resp)
	assert.Len(t, body.Causes, 2)
}

func TestCreateOrder_UnknownTable(t *testing.T) {
	req := baseRequest()
	req.SelectedTable = "64b7f0c2a1b2c3d4e5f60799"

	resp := doPost(t, "/api/orders/create", req)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateOrder_Idempotent(t *testing.T) {
	nonce := uuid.NewString()

	first := createOrder(t, baseRequest(), "Idempotency-Key", nonce)
	second := createOrder(t, baseRequest(), "Idempotency-Key", nonce)

	assert.Equal(t, first.OrderID, second.OrderID)
	assert.False(t, first.Replayed)
	assert.True(t, second.Replayed)

	third := createOrder(t, baseRequest())
	assert.NotEqual(t, first.OrderID, third.OrderID)
}

func TestGetOrder(t *testing.T) {
	created := createOrder(t, baseRequest())

	resp := doGet(t, "/api/orders/"+created.OrderID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	o := decodeJSON[orderResponse](t, resp)
	assert.Equal(t, created.OrderID, o.ID)
	assert.Equal(t, "Asha", o.CustomerName)
	assert.Nil(t, o.OfferID)
	assert.Equal(t, "Pending", o.Status)
	assert.Equal(t, "Pending", o.PaymentStatus)
	require.Len(t, o.Items, 2)
	assert.Equal(t, paneerID, o.Items[0].FoodID)
	assert.Equal(t, 100.0, o.Items[0].UnitPrice)
	assert.Equal(t, 200.0, o.Items[0].Price)
}

func TestGetOrder_NotFound(t *testing.T) {
	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		resp := doGet(t, "/api/orders/"+id)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, id)
	}
}

func TestListOrders(t *testing.T) {
	req := baseRequest()
	req.SelectedTable = otherTableID
	created := createOrder(t, req)

	resp := doGet(t, "/api/orders/table/"+otherTableID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byTable := decodeJSON[[]orderResponse](t, resp)
	require.NotEmpty(t, byTable)
	assert.Equal(t, created.OrderID, byTable[0].ID)
	for _, o := range byTable {
		assert.Equal(t, otherTableID, o.DiningTableID)
	}

	resp = doGet(t, "/api/orders/restaurant/"+restaurantID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byRestaurant := decodeJSON[[]orderResponse](t, resp)
	assert.GreaterOrEqual(t, len(byRestaurant), len(byTable))

	resp = doGet(t, "/api/orders/restaurant/bad")
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestActiveOffers(t *testing.T) {
	resp := doGet(t, "/api/offers/active/"+restaurantID)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	offers := decodeJSON[[]struct {
		ID                 string  `json:"id"`
		DiscountPercentage float64 `json:"discountPercentage"`
	}](t, resp)
	require.Len(t, offers, 1)
	assert.Equal(t, offerID, offers[0].ID)
	assert.Equal(t, 10.0, offers[0].DiscountPercentage)

	resp = doGet(t, fmt.Sprintf("/api/offers/active/%s", tableID))
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestPayments_DisabledWithoutProvider(t *testing.T) {
	resp := doPost(t, "/api/orders/verify-payment", map[string]string{
		"providerOrderId": "order_X",
		"paymentId":       "pay_X",
		"signature":       "sig",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

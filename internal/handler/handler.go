// Package handler exposes the order pipeline over HTTP.
package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tableorder/internal/domain/offer"
	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/domain/payment"
	"github.com/xenking/tableorder/internal/domain/venue"
	"github.com/xenking/tableorder/internal/wire"
)

// maxBodySize bounds request bodies.
const maxBodySize = 1 << 20

// Orders builds and reads orders.
type Orders interface {
	Build(ctx context.Context, req order.Request) (*order.Result, error)
	Get(ctx context.Context, id string) (*order.Order, error)
	ListByRestaurant(ctx context.Context, restaurantID string) ([]order.Order, error)
	ListByTable(ctx context.Context, tableID string) ([]order.Order, error)
}

// Payments creates intents and verifies payments.
type Payments interface {
	Currency() string
	CreateIntent(ctx context.Context, orderID string) (*payment.Intent, error)
	CreateIntentFor(ctx context.Context, o *order.Order) (*payment.Intent, error)
	Verify(ctx context.Context, req payment.VerifyRequest) (*payment.VerifyResult, error)
}

// Offers lists offers currently applicable at a restaurant.
type Offers interface {
	Active(ctx context.Context, restaurantID string) ([]offer.Offer, error)
}

var (
	_ Orders   = (*order.Service)(nil)
	_ Payments = (*payment.Reconciler)(nil)
	_ Offers   = (*offer.Resolver)(nil)
)

// errPaymentsDisabled is returned by payment routes when no provider is
// configured.
var errPaymentsDisabled = errors.New("payments are disabled")

// Handler serves the /api routes.
type Handler struct {
	orders   Orders
	payments Payments
	offers   Offers
}

// New creates a Handler. A nil payments disables intent creation and
// verification.
func New(orders Orders, payments Payments, offers Offers) *Handler {
	return &Handler{orders: orders, payments: payments, offers: offers}
}

// Register adds the API routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/orders/create", h.CreateOrder)
	mux.HandleFunc("POST /api/orders/verify-payment", h.VerifyPayment)
	mux.HandleFunc("POST /api/orders/{orderId}/payment-intent", h.CreatePaymentIntent)
	mux.HandleFunc("GET /api/orders/{orderId}", h.GetOrder)
	mux.HandleFunc("GET /api/orders/restaurant/{restaurantId}", h.ListRestaurantOrders)
	mux.HandleFunc("GET /api/orders/table/{tableId}", h.ListTableOrders)
	mux.HandleFunc("GET /api/offers/active/{restaurantId}", h.ActiveOffers)
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		return nil, &wire.DecodeError{Err: errors.Wrap(err, "read body")}
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, body func(e *jx.Encoder)) {
	var e jx.Encoder
	body(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		wire.EncodeError(e, status, message, nil)
	})
}

// writeError maps domain errors to HTTP statuses. Unexpected errors are
// logged and answered with a generic 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *order.ValidationError
		decode     *wire.DecodeError
		provider   *payment.ProviderError
	)
	switch {
	case errors.As(err, &validation):
		writeJSON(w, http.StatusBadRequest, func(e *jx.Encoder) {
			wire.EncodeError(e, http.StatusBadRequest, validation.Error(), validation.Messages())
		})
	case errors.As(err, &decode):
		writeMessage(w, http.StatusBadRequest, decode.Error())
	case errors.Is(err, payment.ErrMissingFields),
		errors.Is(err, payment.ErrInvalidSignature):
		writeMessage(w, http.StatusBadRequest, err.Error())
	case isNotFound(err):
		writeMessage(w, http.StatusNotFound, err.Error())
	case errors.Is(err, payment.ErrNotPayable):
		writeMessage(w, http.StatusConflict, err.Error())
	case errors.As(err, &provider):
		zctx.From(r.Context()).Warn("Payment provider failed", zap.Error(err))
		writeMessage(w, http.StatusBadGateway, "payment provider unavailable")
	case errors.Is(err, errPaymentsDisabled):
		writeMessage(w, http.StatusServiceUnavailable, err.Error())
	default:
		zctx.From(r.Context()).Error("Request failed", zap.Error(err))
		writeMessage(w, http.StatusInternalServerError, "internal server error")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, venue.ErrRestaurantNotFound) ||
		errors.Is(err, venue.ErrTableNotFound) ||
		errors.Is(err, order.ErrNotFound) ||
		errors.Is(err, payment.ErrIntentNotFound)
}

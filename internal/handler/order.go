package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tableorder/internal/domain/payment"
	"github.com/xenking/tableorder/internal/wire"
)

// IdempotencyKeyHeader supplies the order nonce when the body has none.
const IdempotencyKeyHeader = "Idempotency-Key"

// CreateOrder builds an order from the submitted cart and opens a payment
// intent for it. The order is kept when the intent fails; the failure is
// reported in paymentError and the intent can be retried later.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := wire.DecodeOrderRequest(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.Nonce == "" {
		req.Nonce = r.Header.Get(IdempotencyKeyHeader)
	}

	res, err := h.orders.Build(ctx, req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	created := wire.Created{Result: res}
	if h.payments != nil {
		created.Currency = h.payments.Currency()
		intent, err := h.payments.CreateIntentFor(ctx, res.Order)
		if err != nil {
			zctx.From(ctx).Warn("Payment intent not created",
				zap.String("order_id", res.Order.ID),
				zap.Error(err),
			)
			created.PaymentError = paymentErrorMessage(err)
		}
		created.Intent = intent
	} else {
		created.Currency = payment.DefaultCurrency
	}

	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		wire.EncodeCreated(e, created)
	})
}

func paymentErrorMessage(err error) string {
	var provider *payment.ProviderError
	switch {
	case errors.As(err, &provider):
		return "payment provider unavailable"
	case errors.Is(err, payment.ErrNotPayable):
		return err.Error()
	default:
		return "payment intent could not be created"
	}
}

// CreatePaymentIntent opens, or returns the existing, payment intent of an
// order.
func (h *Handler) CreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, r, errPaymentsDisabled)
		return
	}
	intent, err := h.payments.CreateIntent(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		wire.EncodeIntent(e, intent)
	})
}

// VerifyPayment confirms an order after checkout.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if h.payments == nil {
		writeError(w, r, errPaymentsDisabled)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	req, err := wire.DecodeVerifyRequest(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.payments.Verify(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeVerified(e, res)
	})
}

// GetOrder returns a single order.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), r.PathValue("orderId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeOrder(e, o)
	})
}

// ListRestaurantOrders returns the orders of a restaurant, newest first.
func (h *Handler) ListRestaurantOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByRestaurant(r.Context(), r.PathValue("restaurantId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeOrders(e, orders)
	})
}

// ListTableOrders returns the orders of a dining table, newest first.
func (h *Handler) ListTableOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.orders.ListByTable(r.Context(), r.PathValue("tableId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		wire.EncodeOrders(e, orders)
	})
}

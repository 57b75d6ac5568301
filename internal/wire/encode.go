package wire

import (
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/tableorder/internal/domain/offer"
	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/domain/payment"
)

// Money writes d as a JSON number with two decimals.
func Money(e *jx.Encoder, d decimal.Decimal) {
	e.RawStr(d.StringFixed(2))
}

func optStr(e *jx.Encoder, name, v string) {
	if v == "" {
		return
	}
	e.FieldStart(name)
	e.Str(v)
}

func nullableStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	if v == "" {
		e.Null()
		return
	}
	e.Str(v)
}

func timestamp(e *jx.Encoder, name string, t time.Time) {
	if t.IsZero() {
		return
	}
	e.FieldStart(name)
	e.Str(t.UTC().Format(time.RFC3339Nano))
}

// Created describes a freshly built order for its submitter.
type Created struct {
	Result       *order.Result
	Intent       *payment.Intent
	Currency     string
	PaymentError string
}

// EncodeCreated writes the answer to an order submission.
func EncodeCreated(e *jx.Encoder, c Created) {
	o := c.Result.Order
	currency := c.Currency
	if c.Intent != nil {
		currency = c.Intent.Currency
	}

	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(o.ID)
	if c.Intent != nil {
		optStr(e, "providerOrderId", c.Intent.ProviderOrderID)
		optStr(e, "paymentLink", c.Intent.PaymentLink)
	}
	e.FieldStart("amount")
	e.Int64(payment.MinorUnits(o.TotalPrice))
	e.FieldStart("currency")
	e.Str(currency)
	e.FieldStart("subtotal")
	Money(e, o.Subtotal)
	e.FieldStart("surcharge")
	Money(e, o.Surcharge)
	e.FieldStart("discount")
	Money(e, o.Discount)
	e.FieldStart("totalPrice")
	Money(e, o.TotalPrice)
	e.FieldStart("droppedItems")
	e.ArrStart()
	for _, id := range c.Result.DroppedFoodIDs {
		e.Str(id)
	}
	e.ArrEnd()
	e.FieldStart("offerApplied")
	e.Bool(o.OfferID != "")
	if c.Result.Offer.Dropped {
		e.FieldStart("offerDropped")
		e.Str(string(c.Result.Offer.Reason))
	}
	e.FieldStart("replayed")
	e.Bool(c.Result.Replayed)
	optStr(e, "paymentError", c.PaymentError)
	e.ObjEnd()
}

// EncodeOrder writes the full representation of o.
func EncodeOrder(e *jx.Encoder, o *order.Order) {
	e.ObjStart()
	e.FieldStart("id")
	e.Str(o.ID)
	e.FieldStart("customerName")
	e.Str(o.Customer)
	e.FieldStart("phone")
	e.Str(o.Phone)
	e.FieldStart("restaurantId")
	e.Str(o.RestaurantID)
	e.FieldStart("diningTableId")
	e.Str(o.DiningTableID)
	nullableStr(e, "offerId", o.OfferID)
	e.FieldStart("items")
	e.ArrStart()
	for _, it := range o.Items {
		e.ObjStart()
		e.FieldStart("foodId")
		e.Str(it.FoodID)
		e.FieldStart("quantity")
		e.Int(it.Quantity)
		e.FieldStart("unitPrice")
		Money(e, it.UnitPrice)
		e.FieldStart("price")
		Money(e, it.Price)
		e.ObjEnd()
	}
	e.ArrEnd()
	e.FieldStart("subtotal")
	Money(e, o.Subtotal)
	e.FieldStart("surcharge")
	Money(e, o.Surcharge)
	e.FieldStart("discount")
	Money(e, o.Discount)
	e.FieldStart("totalPrice")
	Money(e, o.TotalPrice)
	e.FieldStart("priority")
	e.Bool(o.Priority)
	e.FieldStart("paymentStatus")
	e.Str(string(o.PaymentStatus))
	e.FieldStart("status")
	e.Str(string(o.Status))
	nullableStr(e, "providerOrderId", o.ProviderOrderID)
	optStr(e, "paymentLink", o.PaymentLink)
	optStr(e, "paymentId", o.PaymentID)
	timestamp(e, "createdAt", o.CreatedAt)
	timestamp(e, "updatedAt", o.UpdatedAt)
	e.ObjEnd()
}

// EncodeOrders writes a JSON array of orders.
func EncodeOrders(e *jx.Encoder, orders []order.Order) {
	e.ArrStart()
	for i := range orders {
		EncodeOrder(e, &orders[i])
	}
	e.ArrEnd()
}

// EncodeIntent writes a payment intent.
func EncodeIntent(e *jx.Encoder, in *payment.Intent) {
	e.ObjStart()
	e.FieldStart("orderId")
	e.Str(in.OrderID)
	e.FieldStart("providerOrderId")
	e.Str(in.ProviderOrderID)
	optStr(e, "paymentLink", in.PaymentLink)
	e.FieldStart("amount")
	e.Int64(in.Amount)
	e.FieldStart("currency")
	e.Str(in.Currency)
	e.ObjEnd()
}

// EncodeVerified writes the answer to a successful verification.
func EncodeVerified(e *jx.Encoder, res *payment.VerifyResult) {
	msg := "Payment verified successfully"
	if res.AlreadyConfirmed {
		msg = "Payment already verified"
	}
	e.ObjStart()
	e.FieldStart("message")
	e.Str(msg)
	e.FieldStart("orderId")
	e.Str(res.OrderID)
	e.ObjEnd()
}

// EncodeOffers writes a JSON array of offers.
func EncodeOffers(e *jx.Encoder, offers []offer.Offer) {
	e.ArrStart()
	for _, o := range offers {
		e.ObjStart()
		e.FieldStart("id")
		e.Str(o.ID)
		e.FieldStart("restaurantId")
		e.Str(o.RestaurantID)
		e.FieldStart("name")
		e.Str(o.Name)
		e.FieldStart("discountPercentage")
		Money(e, o.DiscountPercentage)
		timestamp(e, "startDate", o.StartDate)
		timestamp(e, "endDate", o.EndDate)
		e.FieldStart("status")
		e.Str(string(o.Status))
		e.ObjEnd()
	}
	e.ArrEnd()
}

// EncodeError writes the error envelope.
func EncodeError(e *jx.Encoder, code int, message string, causes []string) {
	e.ObjStart()
	e.FieldStart("code")
	e.Int(code)
	e.FieldStart("message")
	e.Str(message)
	if len(causes) > 0 {
		e.FieldStart("causes")
		e.ArrStart()
		for _, c := range causes {
			e.Str(c)
		}
		e.ArrEnd()
	}
	e.ObjEnd()
}

// EncodeFrame writes a realtime frame. A nil data writes null.
func EncodeFrame(e *jx.Encoder, event string, data func(e *jx.Encoder)) {
	e.ObjStart()
	e.FieldStart("event")
	e.Str(event)
	e.FieldStart("data")
	if data == nil {
		e.Null()
	} else {
		data(e)
	}
	e.ObjEnd()
}

// Fields writes a flat object of string values.
func Fields(kv map[string]string) func(e *jx.Encoder) {
	return func(e *jx.Encoder) {
		e.ObjStart()
		for k, v := range kv {
			e.FieldStart(k)
			e.Str(v)
		}
		e.ObjEnd()
	}
}

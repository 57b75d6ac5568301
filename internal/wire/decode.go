// Package wire encodes and decodes the JSON documents exchanged with
// clients over HTTP and the realtime channel.
package wire

import (
	"fmt"
	"math"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/domain/payment"
)

// DecodeError reports a document that is not valid for its endpoint.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed request: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func malformed(err error) error {
	if err == nil {
		return nil
	}
	return &DecodeError{Err: err}
}

// DecodeOrderRequest reads an order submission. Alternate field names used by
// existing clients are accepted. Client-side prices are ignored.
func DecodeOrderRequest(data []byte) (order.Request, error) {
	var req order.Request
	if len(data) == 0 {
		return req, malformed(errors.New("empty body"))
	}
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "customer", "customerName":
			req.Customer, err = optString(d)
		case "phone":
			req.Phone, err = optString(d)
		case "restaurantId":
			req.RestaurantID, err = decodeRef(d)
		case "selectedTable", "diningTableId", "tableId":
			req.TableID, err = decodeRef(d)
		case "selectedOffer", "offerId":
			req.OfferID, err = decodeRef(d)
		case "priority", "withPriority":
			req.Priority, err = optBool(d)
		case "nonce", "idempotencyKey":
			req.Nonce, err = optString(d)
		case "cart", "items":
			req.Cart, err = decodeCart(d)
		default:
			return d.Skip()
		}
		if err != nil {
			return errors.Wrapf(err, "field %q", key)
		}
		return nil
	})
	if err != nil {
		return order.Request{}, malformed(err)
	}
	return req, nil
}

func decodeCart(d *jx.Decoder) ([]order.CartLine, error) {
	if d.Next() == jx.Null {
		return nil, d.Null()
	}
	var lines []order.CartLine
	err := d.Arr(func(d *jx.Decoder) error {
		var l order.CartLine
		if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			var err error
			switch string(key) {
			case "foodId", "_id", "id":
				l.FoodID, err = decodeRef(d)
			case "quantity":
				l.Quantity, err = decodeInt(d)
			default:
				// price, name and other display fields are not trusted.
				return d.Skip()
			}
			return err
		}); err != nil {
			return err
		}
		lines = append(lines, l)
		return nil
	})
	return lines, err
}

// decodeRef reads an id given as a string, a number, null or an object
// carrying "_id" or "id".
func decodeRef(d *jx.Decoder) (string, error) {
	switch d.Next() {
	case jx.String:
		s, err := d.Str()
		return strings.TrimSpace(s), err
	case jx.Null:
		return "", d.Null()
	case jx.Number:
		n, err := d.Num()
		return n.String(), err
	case jx.Object:
		var id string
		err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "_id", "id":
				v, err := decodeRef(d)
				id = v
				return err
			default:
				return d.Skip()
			}
		})
		return id, err
	default:
		return "", errors.Errorf("unexpected %s for id", d.Next())
	}
}

var (
	minInt = decimal.NewFromInt(math.MinInt)
	maxInt = decimal.NewFromInt(math.MaxInt)
)

func decodeInt(d *jx.Decoder) (int, error) {
	var raw string
	switch d.Next() {
	case jx.Number:
		n, err := d.Num()
		if err != nil {
			return 0, err
		}
		raw = n.String()
	case jx.String:
		s, err := d.Str()
		if err != nil {
			return 0, err
		}
		raw = strings.TrimSpace(s)
	case jx.Null:
		return 0, d.Null()
	default:
		return 0, errors.Errorf("unexpected %s for integer", d.Next())
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, errors.Wrap(err, "parse integer")
	}
	if !v.IsInteger() {
		return 0, errors.Errorf("%s is not an integer", raw)
	}
	if v.LessThan(minInt) || v.GreaterThan(maxInt) {
		return 0, errors.Errorf("%s is out of range", raw)
	}
	return int(v.IntPart()), nil
}

func optString(d *jx.Decoder) (string, error) {
	if d.Next() == jx.Null {
		return "", d.Null()
	}
	return d.Str()
}

func optBool(d *jx.Decoder) (bool, error) {
	switch d.Next() {
	case jx.Null:
		return false, d.Null()
	case jx.String:
		s, err := d.Str()
		return s == "true", err
	default:
		return d.Bool()
	}
}

// DecodeVerifyRequest reads a payment verification callback. Both the
// provider's checkout field names and camelCase names are accepted.
func DecodeVerifyRequest(data []byte) (payment.VerifyRequest, error) {
	var req payment.VerifyRequest
	if len(data) == 0 {
		return req, malformed(errors.New("empty body"))
	}
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "providerOrderId", "razorpay_order_id", "orderId":
			req.ProviderOrderID, err = optString(d)
		case "paymentId", "razorpay_payment_id":
			req.PaymentID, err = optString(d)
		case "signature", "razorpay_signature":
			req.Signature, err = optString(d)
		default:
			return d.Skip()
		}
		return err
	})
	if err != nil {
		return payment.VerifyRequest{}, malformed(err)
	}
	return req, nil
}

// Frame is a realtime message.
type Frame struct {
	Event string
	Data  jx.Raw
}

// DecodeFrame reads a realtime frame.
func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch string(key) {
		case "event":
			v, err := d.Str()
			f.Event = v
			return err
		case "data":
			raw, err := d.Raw()
			if err != nil {
				return err
			}
			f.Data = append(jx.Raw(nil), raw...)
			return nil
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return Frame{}, malformed(err)
	}
	if f.Event == "" {
		return Frame{}, malformed(errors.New("event required"))
	}
	return f, nil
}

// DecodeFields reads a flat object into a map of its string-like values.
// Numbers are kept in their literal form. Nested values are ignored.
func DecodeFields(data []byte) (map[string]string, error) {
	out := map[string]string{}
	err := jx.DecodeBytes(data).ObjBytes(func(d *jx.Decoder, key []byte) error {
		switch d.Next() {
		case jx.String:
			v, err := d.Str()
			out[string(key)] = v
			return err
		case jx.Number:
			n, err := d.Num()
			out[string(key)] = n.String()
			return err
		case jx.Bool:
			v, err := d.Bool()
			if v {
				out[string(key)] = "true"
			} else {
				out[string(key)] = "false"
			}
			return err
		default:
			return d.Skip()
		}
	})
	if err != nil {
		return nil, malformed(err)
	}
	return out, nil
}

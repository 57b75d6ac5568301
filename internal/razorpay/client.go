// Package razorpay implements the payment provider against the Razorpay orders API.
package razorpay

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/xenking/tableorder/internal/domain/payment"
)

// DefaultBaseURL is the production API endpoint.
const DefaultBaseURL = "https://api.razorpay.com"

// Config holds client settings.
type Config struct {
	BaseURL     string
	KeyID       string
	KeySecret   string
	CheckoutURL string
	Timeout     time.Duration
}

// APIError is a non-2xx answer of the API.
type APIError struct {
	Status      int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("razorpay: status %d", e.Status)
	}
	return fmt.Sprintf("razorpay: status %d: %s: %s", e.Status, e.Code, e.Description)
}

// Client talks to the orders API.
type Client struct {
	http        *http.Client
	base        string
	keyID       string
	secret      []byte
	checkoutURL string
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	tp        trace.TracerProvider
	mp        metric.MeterProvider
	transport http.RoundTripper
}

// WithTelemetry instruments outgoing requests.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(o *clientOptions) {
		o.tp = tp
		o.mp = mp
	}
}

// WithTransport replaces the underlying round tripper.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = rt
	}
}

// New creates a Client.
func New(cfg Config, opts ...Option) *Client {
	o := clientOptions{transport: http.DefaultTransport}
	for _, opt := range opts {
		opt(&o)
	}
	var otelOpts []otelhttp.Option
	if o.tp != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(o.tp))
	}
	if o.mp != nil {
		otelOpts = append(otelOpts, otelhttp.WithMeterProvider(o.mp))
	}

	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http: &http.Client{
			Transport: otelhttp.NewTransport(o.transport, otelOpts...),
			Timeout:   timeout,
		},
		base:        strings.TrimRight(base, "/"),
		keyID:       cfg.KeyID,
		secret:      []byte(cfg.KeySecret),
		checkoutURL: cfg.CheckoutURL,
	}
}

// CreateOrder creates a provider order for amount minor units.
func (c *Client) CreateOrder(ctx context.Context, amount int64, currency, receipt string) (*payment.ProviderOrder, error) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	e.ObjStart()
	e.FieldStart("amount")
	e.Int64(amount)
	e.FieldStart("currency")
	e.Str(currency)
	e.FieldStart("receipt")
	e.Str(receipt)
	e.ObjEnd()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/v1/orders", bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, errors.Wrap(err, "create request")
	}
	req.SetBasicAuth(c.keyID, string(c.secret))
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, decodeAPIError(resp.StatusCode, body)
	}

	var id string
	if err := jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "id" {
			return d.Skip()
		}
		v, err := d.Str()
		id = v
		return err
	}); err != nil {
		return nil, errors.Wrap(err, "decode order")
	}
	if id == "" {
		return nil, errors.New("order id missing in response")
	}
	return &payment.ProviderOrder{ID: id, PaymentLink: c.paymentLink(id)}, nil
}

func (c *Client) paymentLink(orderID string) string {
	if c.checkoutURL == "" {
		return ""
	}
	u, err := url.Parse(c.checkoutURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("order_id", orderID)
	u.RawQuery = q.Encode()
	return u.String()
}

func decodeAPIError(status int, body []byte) error {
	apiErr := &APIError{Status: status}
	_ = jx.DecodeBytes(body).ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "error" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			switch string(key) {
			case "code":
				v, err := d.Str()
				apiErr.Code = v
				return err
			case "description":
				v, err := d.Str()
				apiErr.Description = v
				return err
			default:
				return d.Skip()
			}
		})
	})
	return apiErr
}

// VerifySignature checks signature against the HMAC of the order and payment ids.
func (c *Client) VerifySignature(providerOrderID, paymentID, signature string) bool {
	if len(c.secret) == 0 {
		return false
	}
	expected := sign(c.secret, providerOrderID, paymentID)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

// Sign computes the checkout signature for a payment.
func Sign(secret, providerOrderID, paymentID string) string {
	return sign([]byte(secret), providerOrderID, paymentID)
}

func sign(secret []byte, providerOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(providerOrderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

package payment

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/xenking/tableorder/internal/domain/order"
)

// DefaultCurrency is used when no currency is configured.
const DefaultCurrency = "INR"

// Notifier is told about every order whose payment was confirmed.
type Notifier interface {
	PaymentProcessed(ctx context.Context, o *order.Order)
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithCurrency sets the intent currency.
func WithCurrency(currency string) Option {
	return func(r *Reconciler) {
		if currency != "" {
			r.currency = currency
		}
	}
}

// WithNotifier registers n to receive confirmed orders.
func WithNotifier(n Notifier) Option {
	return func(r *Reconciler) {
		r.notifier = n
	}
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(r *Reconciler) {
		r.tracer = tp.Tracer("github.com/xenking/tableorder/internal/domain/payment")
		r.meter = mp.Meter("github.com/xenking/tableorder/internal/domain/payment")
	}
}

// Reconciler creates payment intents and verifies completed payments.
type Reconciler struct {
	provider Provider
	orders   Repository
	currency string
	notifier Notifier

	tracer trace.Tracer
	meter  metric.Meter

	intents  metric.Int64Counter
	verified metric.Int64Counter
	rejected metric.Int64Counter
}

// NewReconciler creates a Reconciler.
func NewReconciler(provider Provider, orders Repository, opts ...Option) *Reconciler {
	r := &Reconciler{
		provider: provider,
		orders:   orders,
		currency: DefaultCurrency,
		tracer:   tracenoop.NewTracerProvider().Tracer(""),
		meter:    metricnoop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(r)
	}
	r.intents = counter(r.meter, "payments.intents", "Payment intents created")
	r.verified = counter(r.meter, "payments.verified", "Payments verified and confirmed")
	r.rejected = counter(r.meter, "payments.rejected", "Payment verifications rejected")
	return r
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return metricnoop.Int64Counter{}
	}
	return c
}

// Currency returns the configured intent currency.
func (r *Reconciler) Currency() string {
	return r.currency
}

// CreateIntent reserves the total of the order with orderID at the provider.
func (r *Reconciler) CreateIntent(ctx context.Context, orderID string) (*Intent, error) {
	o, err := r.orders.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, order.ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return r.CreateIntentFor(ctx, o)
}

// CreateIntentFor is CreateIntent for an already loaded order. An intent
// already attached to the order is returned without calling the provider.
func (r *Reconciler) CreateIntentFor(ctx context.Context, o *order.Order) (_ *Intent, rerr error) {
	ctx, span := r.tracer.Start(ctx, "payment.CreateIntent",
		trace.WithAttributes(attribute.String("order.id", o.ID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()

	if o.ProviderOrderID != "" {
		return r.intentOf(o), nil
	}
	if !o.Payable() {
		return nil, ErrNotPayable
	}
	amount := MinorUnits(o.TotalPrice)
	if amount <= 0 {
		return nil, errors.Wrap(ErrNotPayable, "nothing to pay")
	}

	po, err := r.provider.CreateOrder(ctx, amount, r.currency, o.ID)
	if err != nil {
		return nil, &ProviderError{Op: "create order", Err: err}
	}

	stored, err := r.orders.AttachIntent(ctx, o.ID, po.ID, po.PaymentLink)
	if err != nil {
		return nil, errors.Wrap(err, "attach intent")
	}
	if stored.ProviderOrderID == "" {
		// The order left Pending while the provider call was in flight.
		return nil, ErrNotPayable
	}
	r.intents.Add(ctx, 1)
	zctx.From(ctx).Info("Payment intent created",
		zap.String("order_id", stored.ID),
		zap.String("provider_order_id", stored.ProviderOrderID),
		zap.Int64("amount", amount),
	)
	return r.intentOf(stored), nil
}

func (r *Reconciler) intentOf(o *order.Order) *Intent {
	return &Intent{
		OrderID:         o.ID,
		ProviderOrderID: o.ProviderOrderID,
		PaymentLink:     o.PaymentLink,
		Amount:          MinorUnits(o.TotalPrice),
		Currency:        r.currency,
	}
}

// Verify checks the provider signature and confirms the order it belongs to.
// Verifying an already confirmed payment again succeeds without side effects.
func (r *Reconciler) Verify(ctx context.Context, req VerifyRequest) (_ *VerifyResult, rerr error) {
	if req.ProviderOrderID == "" || req.PaymentID == "" || req.Signature == "" {
		return nil, ErrMissingFields
	}

	ctx, span := r.tracer.Start(ctx, "payment.Verify",
		trace.WithAttributes(attribute.String("payment.provider_order_id", req.ProviderOrderID)),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()
	lg := zctx.From(ctx).With(zap.String("provider_order_id", req.ProviderOrderID))

	o, err := r.orders.GetByProviderOrderID(ctx, req.ProviderOrderID)
	if err != nil {
		if errors.Is(err, order.ErrNotFound) {
			return nil, ErrIntentNotFound
		}
		return nil, errors.Wrap(err, "get order by intent")
	}

	if !r.provider.VerifySignature(req.ProviderOrderID, req.PaymentID, req.Signature) {
		r.rejected.Add(ctx, 1)
		lg.Warn("Payment signature mismatch", zap.String("order_id", o.ID))
		return nil, ErrInvalidSignature
	}

	confirmed, ok, err := r.orders.ConfirmPayment(ctx, req.ProviderOrderID, req.PaymentID)
	if err != nil {
		return nil, errors.Wrap(err, "confirm payment")
	}
	if !ok {
		current, err := r.orders.GetByProviderOrderID(ctx, req.ProviderOrderID)
		if err != nil {
			return nil, errors.Wrap(err, "reload order")
		}
		if current.PaymentStatus == order.PaymentCompleted && current.PaymentID == req.PaymentID {
			lg.Debug("Payment already confirmed", zap.String("order_id", current.ID))
			return &VerifyResult{OrderID: current.ID, Order: current, AlreadyConfirmed: true}, nil
		}
		return nil, ErrNotPayable
	}

	r.verified.Add(ctx, 1)
	lg.Info("Payment verified", zap.String("order_id", confirmed.ID), zap.String("payment_id", req.PaymentID))
	if r.notifier != nil {
		r.notifier.PaymentProcessed(ctx, confirmed)
	}
	return &VerifyResult{OrderID: confirmed.ID, Order: confirmed}, nil
}

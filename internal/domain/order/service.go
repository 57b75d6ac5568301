package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/xenking/tableorder/internal/domain/catalog"
	"github.com/xenking/tableorder/internal/domain/offer"
	"github.com/xenking/tableorder/internal/domain/pricing"
	"github.com/xenking/tableorder/internal/domain/venue"
)

// TableResolver validates the restaurant and table of a request.
type TableResolver interface {
	ResolveTable(ctx context.Context, restaurantID, tableID string) (*venue.DiningTable, error)
}

// PriceLookup returns authoritative unit prices for foods.
type PriceLookup interface {
	PriceOf(ctx context.Context, restaurantID string, ids []string) (catalog.Prices, error)
}

// OfferResolver validates an offer reference.
type OfferResolver interface {
	Resolve(ctx context.Context, offerRef, restaurantID string) (offer.Resolution, error)
}

// Notifier is told about every newly persisted order.
type Notifier interface {
	OrderCreated(ctx context.Context, o *Order, origin string)
}

// Result holds the output of a successful build.
type Result struct {
	Order     *Order
	Breakdown pricing.Breakdown
	// DroppedFoodIDs lists cart foods that were missing from the catalog.
	DroppedFoodIDs []string
	Offer          offer.Resolution
	// Replayed is set when the order already existed for the request nonce.
	Replayed bool
}

const defaultBuildTimeout = 30 * time.Second

// Option configures a Service.
type Option func(*Service)

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracer = tp.Tracer("github.com/xenking/tableorder/internal/domain/order")
		s.meter = mp.Meter("github.com/xenking/tableorder/internal/domain/order")
	}
}

// WithNotifier registers n to receive created orders.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

// WithBuildTimeout bounds a build shared by concurrent requests carrying the
// same nonce. It runs detached from the caller that started it.
func WithBuildTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.buildTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service builds priced orders from client carts.
type Service struct {
	tables   TableResolver
	catalog  PriceLookup
	offers   OfferResolver
	orders   Repository
	notifier Notifier
	now      func() time.Time
	inflight singleflight.Group

	buildTimeout time.Duration

	tracer trace.Tracer
	meter  metric.Meter

	built        metric.Int64Counter
	droppedLines metric.Int64Counter
	droppedOffer metric.Int64Counter
	replays      metric.Int64Counter
}

// NewService creates an order Service with the required domain dependencies.
func NewService(
	tables TableResolver,
	prices PriceLookup,
	offers OfferResolver,
	orders Repository,
	opts ...Option,
) *Service {
	s := &Service{
		tables:  tables,
		catalog: prices,
		offers:  offers,
		orders:  orders,
		now:     time.Now,

		buildTimeout: defaultBuildTimeout,
		tracer:  tracenoop.NewTracerProvider().Tracer(""),
		meter:   metricnoop.NewMeterProvider().Meter(""),
	}
	for _, o := range opts {
		o(s)
	}
	s.built = counter(s.meter, "orders.built", "Orders persisted by the builder")
	s.droppedLines = counter(s.meter, "orders.dropped_lines", "Cart lines dropped for unknown foods")
	s.droppedOffer = counter(s.meter, "orders.dropped_offers", "Offer references dropped during build")
	s.replays = counter(s.meter, "orders.replays", "Build requests answered from an existing order")
	return s
}

func counter(m metric.Meter, name, desc string) metric.Int64Counter {
	c, err := m.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return metricnoop.Int64Counter{}
	}
	return c
}

// Build validates req, prices it against the catalog, applies the offer if
// it qualifies and persists the order. Requests carrying a nonce are
// idempotent per restaurant and table.
func (s *Service) Build(ctx context.Context, req Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Customer = strings.TrimSpace(req.Customer)

	key := IdempotencyKey(req.RestaurantID, req.TableID, req.Nonce)
	if key == "" {
		return s.build(ctx, req, "")
	}

	ch := s.inflight.DoChan(key, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.buildTimeout)
		defer cancel()
		return s.build(sctx, req, key)
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		res := *r.Val.(*Result)
		return &res, nil
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "wait for order build")
	}
}

func (s *Service) build(ctx context.Context, req Request, key string) (_ *Result, rerr error) {
	ctx, span := s.tracer.Start(ctx, "order.Build",
		trace.WithAttributes(
			attribute.String("restaurant.id", req.RestaurantID),
			attribute.String("table.id", req.TableID),
			attribute.Bool("order.priority", req.Priority),
		),
	)
	defer func() {
		if rerr != nil {
			span.RecordError(rerr)
			span.SetStatus(codes.Error, rerr.Error())
		}
		span.End()
	}()
	lg := zctx.From(ctx)

	if key != "" {
		existing, err := s.orders.GetByIdempotencyKey(ctx, key)
		switch {
		case err == nil:
			return s.replay(ctx, existing), nil
		case !errors.Is(err, ErrNotFound):
			return nil, errors.Wrap(err, "lookup idempotency key")
		}
	}

	if _, err := s.tables.ResolveTable(ctx, req.RestaurantID, req.TableID); err != nil {
		return nil, err
	}

	lines := req.aggregate()
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.FoodID
	}
	prices, err := s.catalog.PriceOf(ctx, req.RestaurantID, ids)
	if err != nil {
		return nil, errors.Wrap(err, "price cart")
	}

	items := make([]Item, 0, len(lines))
	priced := make([]pricing.Line, 0, len(lines))
	var dropped []string
	for _, l := range lines {
		unit, ok := prices.UnitPrice(l.FoodID)
		if !ok {
			dropped = append(dropped, l.FoodID)
			continue
		}
		items = append(items, Item{FoodID: l.FoodID, Quantity: l.Quantity, UnitPrice: unit})
		priced = append(priced, pricing.Line{UnitPrice: unit, Quantity: l.Quantity})
	}
	if len(dropped) > 0 {
		s.droppedLines.Add(ctx, int64(len(dropped)))
		lg.Info("Dropped unknown foods from cart",
			zap.Strings("food_ids", dropped),
			zap.String("restaurant_id", req.RestaurantID),
		)
	}
	if len(items) == 0 {
		return nil, &ValidationError{Causes: []error{ErrNoValidItems}}
	}

	res, err := s.offers.Resolve(ctx, req.OfferID, req.RestaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "resolve offer")
	}
	if res.Dropped {
		s.droppedOffer.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", string(res.Reason))))
		lg.Info("Dropped offer reference",
			zap.String("offer_id", req.OfferID),
			zap.String("reason", string(res.Reason)),
		)
	}

	b := pricing.Price(priced, req.Priority, res.Percentage)
	if b.PreDiscountTotal.GreaterThan(MaxAmount) {
		return nil, &ValidationError{Causes: []error{ErrAmountTooLarge}}
	}
	for i := range items {
		items[i].Price = b.LineTotals[i]
	}

	now := s.now().UTC()
	o := &Order{
		ID:              uuid.New().String(),
		Customer:        req.Customer,
		Phone:           req.Phone,
		RestaurantID:    req.RestaurantID,
		DiningTableID:   req.TableID,
		OfferID:         res.OfferID,
		Items:           items,
		Subtotal:        b.Subtotal,
		Surcharge:       b.Surcharge,
		Discount:        b.Discount,
		DiscountPercent: b.DiscountPercent,
		TotalPrice:      b.Total,
		Priority:        req.Priority,
		PaymentStatus:   PaymentPending,
		Status:          StatusPending,
		IdempotencyKey:  key,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	stored, created, err := s.orders.Create(ctx, o)
	if err != nil {
		return nil, errors.Wrap(err, "create order")
	}
	if !created {
		return s.replay(ctx, stored), nil
	}

	s.built.Add(ctx, 1, metric.WithAttributes(attribute.Bool("priority", req.Priority)))
	span.SetAttributes(attribute.String("order.id", stored.ID))
	lg.Info("Order created",
		zap.String("order_id", stored.ID),
		zap.String("total", stored.TotalPrice.StringFixed(2)),
		zap.Int("items", len(stored.Items)),
	)
	if s.notifier != nil {
		s.notifier.OrderCreated(ctx, stored, req.Origin)
	}

	return &Result{
		Order:          stored,
		Breakdown:      b,
		DroppedFoodIDs: dropped,
		Offer:          res,
	}, nil
}

func (s *Service) replay(ctx context.Context, o *Order) *Result {
	s.replays.Add(ctx, 1)
	zctx.From(ctx).Debug("Replaying order for idempotency key", zap.String("order_id", o.ID))
	res := offer.Resolution{OfferID: o.OfferID, Percentage: o.DiscountPercent, Applied: o.OfferID != ""}
	return &Result{
		Order:     o,
		Breakdown: o.Breakdown(),
		Offer:     res,
		Replayed:  true,
	}
}

// Get returns the order with id.
func (s *Service) Get(ctx context.Context, id string) (*Order, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "get order")
	}
	return o, nil
}

// ListByRestaurant returns the orders of a restaurant, newest first.
func (s *Service) ListByRestaurant(ctx context.Context, restaurantID string) ([]Order, error) {
	if !ValidID(restaurantID) {
		return nil, &ValidationError{Causes: []error{&InvalidIDError{Field: "restaurantId", Value: restaurantID}}}
	}
	orders, err := s.orders.ListByRestaurant(ctx, restaurantID)
	if err != nil {
		return nil, errors.Wrap(err, "list restaurant orders")
	}
	return orders, nil
}

// ListByTable returns the orders of a dining table, newest first.
func (s *Service) ListByTable(ctx context.Context, tableID string) ([]Order, error) {
	if !ValidID(tableID) {
		return nil, &ValidationError{Causes: []error{&InvalidIDError{Field: "diningTableId", Value: tableID}}}
	}
	orders, err := s.orders.ListByTable(ctx, tableID)
	if err != nil {
		return nil, errors.Wrap(err, "list table orders")
	}
	return orders, nil
}

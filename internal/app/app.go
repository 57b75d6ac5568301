// Package app wires the order service together.
package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/tableorder/internal/domain/catalog"
	"github.com/xenking/tableorder/internal/domain/offer"
	"github.com/xenking/tableorder/internal/domain/order"
	"github.com/xenking/tableorder/internal/domain/payment"
	"github.com/xenking/tableorder/internal/domain/venue"
	"github.com/xenking/tableorder/internal/handler"
	"github.com/xenking/tableorder/internal/messaging/amqp"
	"github.com/xenking/tableorder/internal/razorpay"
	"github.com/xenking/tableorder/internal/realtime"
	"github.com/xenking/tableorder/internal/storage/postgres"
	"github.com/xenking/tableorder/pkg/health"
	"github.com/xenking/tableorder/pkg/httpmiddleware"
)

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New(lg.Named("health"))
	healthSvc.AddReadinessCheck("postgres", cfg.Health.ReadinessCheck, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(cfg.Health.MaxGoroutines))

	var hubOpts []realtime.Option
	hubOpts = append(hubOpts, realtime.WithMeterProvider(m.MeterProvider()))
	var relay *amqp.Relay
	if cfg.AMQP.URL != "" {
		relay, err = amqp.Dial(ctx, cfg.AMQP, lg.Named("amqp"))
		if err != nil {
			return errors.Wrap(err, "dial rabbitmq")
		}
		defer func() { _ = relay.Close() }()
		healthSvc.AddReadinessCheck("rabbitmq", cfg.Health.ReadinessCheck, health.PingCheck(relay))
		hubOpts = append(hubOpts, realtime.WithRelay(relay))
	} else {
		lg.Info("Realtime relay disabled, broadcasts stay on this replica")
	}
	hub := realtime.NewHub(cfg.Realtime, lg.Named("realtime"), nil, hubOpts...)

	// Repositories.
	venueRepo := postgres.NewVenueRepository(pool)
	foodRepo := postgres.NewFoodRepository(pool)
	offerRepo := postgres.NewOfferRepository(pool)
	orderRepo := postgres.NewOrderRepository(pool)

	// Domain services.
	offers := offer.NewResolver(offerRepo)
	orderSvc := order.NewService(
		venue.NewDirectory(venueRepo),
		catalog.NewLookup(foodRepo),
		offers,
		orderRepo,
		order.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
		order.WithNotifier(hub),
	)
	hub.SetBuilder(orderSvc)

	var payments handler.Payments
	if cfg.Payment.Enabled() {
		provider := razorpay.New(razorpay.Config{
			BaseURL:     cfg.Payment.BaseURL,
			KeyID:       cfg.Payment.KeyID,
			KeySecret:   cfg.Payment.KeySecret,
			CheckoutURL: cfg.Payment.CheckoutURL,
			Timeout:     cfg.Payment.Timeout,
		}, razorpay.WithTelemetry(m.TracerProvider(), m.MeterProvider()))
		payments = payment.NewReconciler(provider, orderRepo,
			payment.WithCurrency(cfg.Payment.Currency),
			payment.WithNotifier(hub),
			payment.WithTelemetry(m.TracerProvider(), m.MeterProvider()),
		)
	} else {
		lg.Warn("Payment provider not configured, orders are created without payment intents")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	mux.Handle("GET /ws", hub)
	handler.New(orderSvc, payments, offers).Register(mux)

	server := &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		Addr:              cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", httpmiddleware.RequestIDHeader, handler.IdempotencyKeyHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument("tableorder-api", m),
			httpmiddleware.LogRequests(),
			httpmiddleware.Labeler(),
		),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return healthSvc.Run(ctx, cfg.Health.Interval)
	})
	if relay != nil {
		g.Go(func() error {
			return relay.Consume(ctx, hub.Deliver)
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			return errors.Wrap(err, "shutdown")
		}
		return nil
	})
	g.Go(func() error {
		healthSvc.SetReady(true)
		lg.Info("Server listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "server")
		}
		return nil
	})
	return g.Wait()
}

package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/storefront-checkout/internal/domain/auth"
	"github.com/xenking/storefront-checkout/internal/domain/coupon"
	"github.com/xenking/storefront-checkout/internal/domain/order"
	"github.com/xenking/storefront-checkout/internal/domain/pricing"
	"github.com/xenking/storefront-checkout/internal/domain/shipping"
	"github.com/xenking/storefront-checkout/internal/events"
	"github.com/xenking/storefront-checkout/internal/handler"
	"github.com/xenking/storefront-checkout/internal/storage/cache"
	"github.com/xenking/storefront-checkout/internal/storage/postgres"
	"github.com/xenking/storefront-checkout/pkg/health"
	"github.com/xenking/storefront-checkout/pkg/httpmiddleware"
)

const serviceName = "storefront-checkout"

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown. It is the single wiring point for the application.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	loc, err := time.LoadLocation(cfg.StoreTimezone)
	if err != nil {
		return errors.Wrap(err, "load store timezone")
	}
	collect, err := cfg.Collect.Policy()
	if err != nil {
		return err
	}

	// PostgreSQL pool + migrations.
	pool, err := postgres.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "create db pool")
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	healthSvc := health.New()
	healthSvc.AddReadinessCheck("postgres", 5*time.Second, health.PingCheck(pool))
	healthSvc.AddLivenessCheck("goroutines", time.Second, health.GoroutineCountCheck(10000))
	healthSvc.AddLivenessCheck("gc_pause", time.Second, health.GCMaxPauseCheck(time.Second),
		health.NonCritical(),
	)

	opts := order.Options{
		Payments:       order.AlwaysApprove{},
		NumberAttempts: cfg.Checkout.OrderNumberAttempts,
	}

	// Optional Redis look-aside cache for idempotency receipts.
	if cfg.Redis.Addr != "" {
		rdb := cache.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		defer func() { _ = rdb.Close() }()

		opts.Idempotency = cache.NewIdempotencyCache(rdb, cfg.Checkout.IdempotencyTTL)
		healthSvc.AddReadinessCheck("redis", 2*time.Second, func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}, health.NonCritical(), health.WithFailureThreshold(3))
		lg.Info("Idempotency cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	// OrderPlaced events go to Kafka when brokers are configured.
	sink := events.Open(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	defer func() {
		if err := sink.Close(); err != nil {
			lg.Warn("Close event publisher", zap.Error(err))
		}
	}()
	opts.Events = sink
	if len(cfg.Kafka.Brokers) > 0 {
		lg.Info("Order events enabled",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic),
		)
	}

	healthSvc.Start(ctx, 10*time.Second)
	healthSvc.SetReady(true)

	// Repositories.
	productRepo := postgres.NewProductRepository(pool)
	couponRepo := postgres.NewCouponRepository(pool)
	shippingRepo := postgres.NewShippingRepository(pool)
	ledger := postgres.NewOrderLedger(pool)
	apikeyRepo := postgres.NewAPIKeyRepository(pool)

	// Domain services.
	resolver := shipping.NewResolver(shippingRepo, collect, loc)
	engine := pricing.NewEngine(productRepo, couponRepo, resolver, collect)
	orderService := order.NewService(engine, ledger, opts)

	h, err := handler.NewHandler(handler.Deps{
		Orders:        orderService,
		Coupons:       coupon.NewDirectory(couponRepo),
		CouponAdmin:   couponRepo,
		ShippingRules: shippingRepo,
		NextDay:       resolver,
		Stock:         productRepo,
		Keys:          auth.NewKeyAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
		Tokens:        auth.NewTokens([]byte(cfg.SessionSecret), cfg.SessionIssuer),
		Meter:         m.MeterProvider().Meter(serviceName),
	})
	if err != nil {
		return errors.Wrap(err, "create handler")
	}

	// Mux: health endpoints + API routes on one server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /livez", healthSvc.LiveEndpoint)
	mux.HandleFunc("GET /readyz", healthSvc.ReadyEndpoint)
	h.Register(mux)
	routeFinder := httpmiddleware.MakeRouteFinder(mux)

	isCheckout := func(r *http.Request) bool {
		return r.Method == http.MethodPost && r.URL.Path == "/api/orders"
	}

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
				AllowHeaders:     []string{"Content-Type", "Authorization", "Idempotency-Key", "api_key"},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Name:   "global",
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.Match(isCheckout, httpmiddleware.RateLimitWithCleanup(ctx, httpmiddleware.RateLimitConfig{
				Name:   "checkout",
				Max:    cfg.Checkout.RateLimitMax,
				Window: cfg.Checkout.RateLimitWindow,
			})),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(zctx.From(ctx)),
			httpmiddleware.Instrument(serviceName, routeFinder, m),
			httpmiddleware.LogRequests(routeFinder),
			httpmiddleware.Labeler(routeFinder),
		),
	}

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		healthSvc.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := server.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		healthSvc.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

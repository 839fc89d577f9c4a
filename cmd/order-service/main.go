package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dmehra2102/marketplace-orders/internal/app"
	cartapp "github.com/dmehra2102/marketplace-orders/internal/cart/application"
	carthttp "github.com/dmehra2102/marketplace-orders/internal/cart/infrastructure/http"
	catalogapp "github.com/dmehra2102/marketplace-orders/internal/catalog/application"
	cataloghttp "github.com/dmehra2102/marketplace-orders/internal/catalog/infrastructure/http"
	"github.com/dmehra2102/marketplace-orders/internal/config"
	notifapp "github.com/dmehra2102/marketplace-orders/internal/notification/application"
	notifhttp "github.com/dmehra2102/marketplace-orders/internal/notification/infrastructure/http"
	orderapp "github.com/dmehra2102/marketplace-orders/internal/order/application"
	orderhttp "github.com/dmehra2102/marketplace-orders/internal/order/infrastructure/http"
	"github.com/dmehra2102/marketplace-orders/internal/platform/health"
	"github.com/dmehra2102/marketplace-orders/pkg/auth"
	"github.com/dmehra2102/marketplace-orders/pkg/httpx"
	"github.com/dmehra2102/marketplace-orders/pkg/idempotency"
	"github.com/dmehra2102/marketplace-orders/pkg/logging"
	"github.com/dmehra2102/marketplace-orders/pkg/metrics"
	"github.com/dmehra2102/marketplace-orders/pkg/shutdown"
	"github.com/dmehra2102/marketplace-orders/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "", "optional YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.New("info").Error("config load failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogLevel).With("service", cfg.ServiceName)

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTELEndpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	// Stores
	backend, err := app.OpenBackend(ctx, log, cfg, true)
	if err != nil {
		log.Error("store init failed", "driver", cfg.StoreDriver, "err", err)
		os.Exit(1)
	}
	defer backend.Close()

	// Event publisher for the outbox relay
	publisher, closePublisher, err := app.OpenPublisher(log, cfg)
	if err != nil {
		log.Error("publisher init failed", "broker", cfg.EventBroker, "err", err)
		os.Exit(1)
	}
	defer func() { _ = closePublisher() }()

	// Idempotency-Key support is optional
	var idem idempotency.Backend
	rdb, err := app.OpenRedis(ctx, log, cfg.RedisAddr)
	if err != nil {
		log.Warn("redis unavailable; idempotency keys are not enforced", "err", err)
	} else if rdb != nil {
		defer rdb.Close()
		idem = idempotency.NewStore(rdb, cfg.IdempotencyTTL)
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	serverMetrics := metrics.NewServerMetrics(reg, cfg.ServiceName)
	checkoutMetrics := metrics.NewCheckoutMetrics(reg)

	// Services
	verifier := auth.NewVerifier(cfg.JWTCustomerSecret, cfg.JWTVendorSecret, cfg.JWTAdminSecret)
	catalog := catalogapp.NewService(log, backend.Products)
	carts := cartapp.NewService(log, backend.Cart, backend.Products)
	checkout := orderapp.NewService(log, backend.Tx,
		orderapp.WithMetrics(checkoutMetrics),
		orderapp.WithTimeout(cfg.CheckoutTimeout),
		orderapp.WithRetryable(backend.Retryable),
	)
	queries := orderapp.NewQueryService(log, backend.Orders, backend.Tx)
	notifications := notifapp.NewService(log, backend.Notifications)

	checker := health.NewChecker(log, backend.Pinger, cfg.ServiceName, 5*time.Second)

	// HTTP server
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(httpx.RequestLogger(log), serverMetrics.Middleware)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		if !checker.Healthy() {
			httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", metrics.Handler(reg))
	r.Mount("/products", cataloghttp.NewHandler(log, catalog, verifier).Routes())
	r.Mount("/cart", carthttp.NewHandler(log, carts, verifier).Routes())
	r.Mount("/orders", orderhttp.NewHandler(log, checkout, queries, verifier, idem).Routes())
	r.Mount("/notifications", notifhttp.NewHandler(log, notifications, verifier).Routes())

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      cfg.CheckoutTimeout + 5*time.Second,
	}

	// Health checks + gRPC health service
	go checker.Run(ctx)
	grpcSrv, err := health.Serve(cfg.GRPCAddr, checker)
	if err != nil {
		log.Error("grpc listen failed", "addr", cfg.GRPCAddr, "err", err)
		os.Exit(1)
	}
	log.Info("grpc health listening", "addr", cfg.GRPCAddr)

	// Run relay
	relay := app.NewRelay(log, backend, publisher, cfg.ServiceName+"-relay")
	go func() {
		if err := relay.Run(ctx); err != nil {
			log.Error("relay stopped with error", "err", err)
		}
	}()

	// Run HTTP
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	grpcSrv.GracefulStop()
	log.Info("order-service shutdown complete")
}

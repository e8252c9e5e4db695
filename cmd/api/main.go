package main

import (
	"context"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tjvanzyl/veldmart-backend/api/routes"
	"github.com/tjvanzyl/veldmart-backend/internal/checkout"
	"github.com/tjvanzyl/veldmart-backend/internal/courier"
	"github.com/tjvanzyl/veldmart-backend/internal/inventory"
	"github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/internal/reconcile"
	"github.com/tjvanzyl/veldmart-backend/internal/wallet"
	"github.com/tjvanzyl/veldmart-backend/pkg/config"
	"github.com/tjvanzyl/veldmart-backend/pkg/db"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/metrics"
	"github.com/tjvanzyl/veldmart-backend/pkg/migrate"
	"github.com/tjvanzyl/veldmart-backend/pkg/outbox"
	"github.com/tjvanzyl/veldmart-backend/pkg/payfast"
	"github.com/tjvanzyl/veldmart-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	webhookMetrics := metrics.NewWebhookMetrics(registry)
	courierMetrics := metrics.NewCourierMetrics(registry)
	metricsHandler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	gormDB := dbClient.DB()
	outboxSvc := outbox.NewService(outbox.NewRepository(gormDB), logg)

	inventorySvc, err := inventory.NewService(inventory.NewRepository(gormDB))
	if err != nil {
		logg.Error(context.Background(), "failed to create inventory service", err)
		os.Exit(1)
	}

	walletSvc, err := wallet.NewService(wallet.NewRepository(gormDB), dbClient, outboxSvc, wallet.Config{
		FeeRate:        cfg.Platform.FeeRate,
		MinPayoutCents: cfg.Platform.MinPayoutCents,
	}, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create wallet service", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(gormDB)
	ordersSvc, err := orders.NewService(ordersRepo, dbClient, outboxSvc, inventorySvc, wallet.NewReverser(walletSvc), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	merchant := payfast.Merchant{
		MerchantID:  cfg.PayFast.MerchantID,
		MerchantKey: cfg.PayFast.MerchantKey,
		Passphrase:  cfg.PayFast.Passphrase,
		ReturnURL:   cfg.PayFast.ReturnURL,
		CancelURL:   cfg.PayFast.CancelURL,
		NotifyURL:   cfg.PayFast.NotifyURL,
		ProcessURL:  cfg.PayFast.ProcessURL,
	}

	checkoutSvc, err := checkout.NewService(
		checkout.NewCatalogRepository(gormDB),
		ordersRepo,
		inventorySvc,
		dbClient,
		outboxSvc,
		merchant,
		checkout.Config{
			TaxRate:                    cfg.Platform.TaxRate,
			FreeShippingThresholdCents: cfg.Platform.FreeShippingThresholdCents,
			FlatShippingFeeCents:       cfg.Platform.FlatShippingFeeCents,
		},
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	reconcileSvc, err := reconcile.NewService(
		ordersRepo,
		inventorySvc,
		walletSvc,
		dbClient,
		outboxSvc,
		reconcile.Config{
			Passphrase:  cfg.PayFast.Passphrase,
			AllowedIPs:  cfg.PayFast.AllowedIPs,
			SkipIPCheck: cfg.PayFast.SkipIPCheck,
		},
		webhookMetrics,
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create reconcile service", err)
		os.Exit(1)
	}

	timeout := courier.WithTimeout(cfg.Courier.RequestTimeout)
	courierManager, err := courier.NewManager([]courier.Provider{
		courier.NewCourierGuyClient(cfg.Courier.CourierGuyAPIKey, courier.WithBaseURL(cfg.Courier.CourierGuyBaseURL), timeout),
		courier.NewFastwayClient(cfg.Courier.FastwayAPIKey, courier.WithBaseURL(cfg.Courier.FastwayBaseURL), timeout),
		courier.NewPudoClient(cfg.Courier.PudoAPIKey, courier.WithBaseURL(cfg.Courier.PudoBaseURL), timeout),
	}, ordersSvc, courierMetrics, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create courier manager", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:         cfg,
			Logger:         logg,
			DB:             dbClient,
			Redis:          redisClient,
			Checkout:       checkoutSvc,
			Orders:         ordersSvc,
			Wallet:         walletSvc,
			Courier:        courierManager,
			Reconcile:      reconcileSvc,
			MetricsHandler: metricsHandler,
		}),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/tjvanzyl/veldmart-backend/api/controllers"
	ordercontrollers "github.com/tjvanzyl/veldmart-backend/api/controllers/orders"
	shipmentcontrollers "github.com/tjvanzyl/veldmart-backend/api/controllers/shipments"
	walletcontrollers "github.com/tjvanzyl/veldmart-backend/api/controllers/wallet"
	webhookcontrollers "github.com/tjvanzyl/veldmart-backend/api/controllers/webhooks"
	"github.com/tjvanzyl/veldmart-backend/api/middleware"
	checkoutsvc "github.com/tjvanzyl/veldmart-backend/internal/checkout"
	"github.com/tjvanzyl/veldmart-backend/internal/courier"
	ordersvc "github.com/tjvanzyl/veldmart-backend/internal/orders"
	"github.com/tjvanzyl/veldmart-backend/internal/reconcile"
	walletsvc "github.com/tjvanzyl/veldmart-backend/internal/wallet"
	"github.com/tjvanzyl/veldmart-backend/pkg/config"
	"github.com/tjvanzyl/veldmart-backend/pkg/db"
	"github.com/tjvanzyl/veldmart-backend/pkg/enums"
	"github.com/tjvanzyl/veldmart-backend/pkg/logger"
	"github.com/tjvanzyl/veldmart-backend/pkg/redis"
)

// Deps carries everything the router wires into handlers.
type Deps struct {
	Config *config.Config
	Logger *logger.Logger

	DB    db.Pinger
	Redis *redis.Client

	Checkout  checkoutsvc.Service
	Orders    ordersvc.Service
	Wallet    walletsvc.Service
	Courier   *courier.Manager
	Reconcile reconcile.Service

	MetricsHandler http.Handler
}

func NewRouter(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, deps.DB, deps.Redis))
	})

	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}

	// The gateway posts here unauthenticated; the handler does its own
	// source and signature checks.
	r.Post("/webhooks/payfast", webhookcontrollers.PayFast(deps.Reconcile, logg))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/checkout", controllers.Checkout(deps.Checkout, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(deps.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(deps.Orders, logg))
			r.Post("/{orderId}/status", ordercontrollers.UpdateStatus(deps.Orders, logg))
			r.Post("/{orderId}/cancel", ordercontrollers.Cancel(deps.Orders, logg))
			r.Post("/{orderId}/ship", shipmentcontrollers.Ship(deps.Courier, logg))
		})

		r.Route("/shipments", func(r chi.Router) {
			r.Get("/quotes", shipmentcontrollers.Quotes(deps.Courier, logg))
			r.Get("/lockers", shipmentcontrollers.Lockers(deps.Courier, logg))
			r.Get("/{provider}/{trackingNumber}", shipmentcontrollers.Track(deps.Courier, logg))
		})

		r.With(middleware.RequireRole(enums.ActorRoleSeller, logg)).
			Get("/wallet", walletcontrollers.Fetch(deps.Wallet, logg))
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(enums.ActorRoleAdmin, logg))
		r.Use(middleware.Idempotency(deps.Redis, logg))

		r.Post("/wallets/{sellerId}/payouts", controllers.AdminRequestPayout(deps.Wallet, logg))
		r.Post("/payouts/{transactionId}/complete", controllers.AdminCompletePayout(deps.Wallet, logg))
		r.Post("/orders/{orderId}/refund", controllers.AdminRefundOrder(deps.Orders, logg))
	})

	return r
}

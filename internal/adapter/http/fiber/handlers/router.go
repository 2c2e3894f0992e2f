package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"go.uber.org/zap"

	"github.com/seu-repo/ocpp-central/internal/adapter/http/fiber/middleware"
	wsAdapter "github.com/seu-repo/ocpp-central/internal/adapter/websocket"
	"github.com/seu-repo/ocpp-central/internal/ports"
	"github.com/seu-repo/ocpp-central/internal/service/health"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
	"github.com/seu-repo/ocpp-central/pkg/config"
)

// Deps collects everything the HTTP layer talks to. cmd/server and the
// integration tests build the same app through NewApp.
type Deps struct {
	Config    *config.Config
	Registry  *registry.Registry
	Commander ports.StationCommander
	Identity  ports.IdentityService
	Wallet    ports.WalletService
	Gateway   ports.PaymentGateway
	Cache     ports.Cache
	Feed      *wsAdapter.Hub
	Health    *health.Service
	Log       *zap.Logger
}

// NewApp builds the Fiber application with all routes and middleware wired.
func NewApp(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               d.Config.App.Name,
		ServerHeader:          d.Config.App.Name,
		DisableStartupMessage: true,
		ReadTimeout:           d.Config.HTTP.ReadTimeout,
		WriteTimeout:          d.Config.HTTP.WriteTimeout,
		ErrorHandler:          middleware.ErrorHandler(d.Log),
	})

	// Global Middleware
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(middleware.NewCORS(d.Config.CORS))
	if d.Config.RateLimiting.Enabled {
		app.Use(limiter.New(limiter.Config{
			Max:        d.Config.RateLimiting.MaxRequests,
			Expiration: d.Config.RateLimiting.Window,
		}))
	}

	// Probes and metrics stay outside the API key check
	if d.Health != nil {
		health.NewFiberHandler(d.Health).RegisterRoutes(app)
	}
	app.Get("/metrics", func(c *fiber.Ctx) error {
		handler := fasthttpadaptor.NewFastHTTPHandler(promhttp.Handler())
		handler(c.Context())
		return nil
	})

	// API v1 Routes
	v1 := app.Group("/api/v1", middleware.APIKeyRequired(d.Config.HTTP.APIKey))

	v1.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"ok": true, "time": time.Now().UTC()})
	})

	// Station registry routes
	stationHandler := NewStationHandler(d.Registry, d.Commander, d.Cache, d.Config.Redis.StatusTTL, d.Log)
	v1.Post("/stations", stationHandler.Create)
	v1.Get("/stations", stationHandler.List)
	v1.Get("/stations/:id", stationHandler.Get)
	v1.Delete("/stations/:id", stationHandler.Delete)
	v1.Get("/stations/:id/configuration", stationHandler.Configuration)

	// Remote control routes
	controlHandler := NewControlHandler(d.Commander, d.Registry, d.Log)
	v1.Post("/start", controlHandler.Start)
	v1.Post("/stop", controlHandler.Stop)
	v1.Post("/release", controlHandler.Release)
	v1.Post("/reset", controlHandler.Reset)
	v1.Post("/availability", controlHandler.Availability)

	// Legacy stop-by-connector path kept for older dashboards.
	app.Post("/charge/stop", middleware.APIKeyRequired(d.Config.HTTP.APIKey), controlHandler.Stop)

	// Session listing routes
	sessionHandler := NewSessionHandler(d.Registry, d.Cache, d.Config.Redis.StatusTTL, d.Log)
	v1.Get("/pending", sessionHandler.Pending)
	v1.Get("/active", sessionHandler.Active)
	v1.Get("/history", sessionHandler.History)
	v1.Get("/status", sessionHandler.Status)
	v1.Get("/overview", sessionHandler.Overview)

	// Identity routes
	identityHandler := NewIdentityHandler(d.Identity, d.Log)
	v1.Post("/identify", identityHandler.Identify)
	v1.Get("/identify", identityHandler.Pairs)

	// Wallet routes; the card processor sits behind a circuit breaker.
	// Intent routes only exist when a gateway is configured.
	walletHandler := NewWalletHandler(d.Wallet, d.Identity, d.Gateway, d.Config.Wallet.Currency, d.Log)
	v1.Post("/wallet/topup", walletHandler.TopUp)
	v1.Post("/wallet/charge", walletHandler.Charge)
	v1.Get("/wallet/:vid", walletHandler.Get)
	if d.Gateway != nil {
		stripeBreaker := middleware.CircuitBreaker("stripe", d.Log)
		v1.Post("/wallet/intent", stripeBreaker, walletHandler.CreateIntent)
		v1.Post("/wallet/intent/confirm", stripeBreaker, walletHandler.ConfirmIntent)
	}

	// Live event feed for operator consoles
	if d.Feed != nil {
		v1.Use("/events/ws", func(c *fiber.Ctx) error {
			if websocket.IsWebSocketUpgrade(c) {
				return c.Next()
			}
			return fiber.ErrUpgradeRequired
		})
		v1.Get("/events/ws", websocket.New(func(c *websocket.Conn) {
			d.Feed.AddClient(c)
		}))
	}

	return app
}

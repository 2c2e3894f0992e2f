package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/seu-repo/ocpp-central/internal/adapter/cache"
	"github.com/seu-repo/ocpp-central/internal/adapter/external/payment"
	"github.com/seu-repo/ocpp-central/internal/adapter/http/fiber/handlers"
	v16 "github.com/seu-repo/ocpp-central/internal/adapter/ocpp/v16"
	"github.com/seu-repo/ocpp-central/internal/adapter/queue"
	"github.com/seu-repo/ocpp-central/internal/adapter/vault"
	wsAdapter "github.com/seu-repo/ocpp-central/internal/adapter/websocket"
	"github.com/seu-repo/ocpp-central/internal/console"
	"github.com/seu-repo/ocpp-central/internal/observability/telemetry"
	"github.com/seu-repo/ocpp-central/internal/ports"
	"github.com/seu-repo/ocpp-central/internal/service/email"
	"github.com/seu-repo/ocpp-central/internal/service/events"
	"github.com/seu-repo/ocpp-central/internal/service/health"
	"github.com/seu-repo/ocpp-central/internal/service/identity"
	"github.com/seu-repo/ocpp-central/internal/service/registry"
	"github.com/seu-repo/ocpp-central/internal/service/wallet"
	"github.com/seu-repo/ocpp-central/pkg/config"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration:", err)
	}

	// 2. Initialize Logger
	logger, err := newLogger(cfg.Logging)
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting OCPP Central",
		zap.String("service", cfg.App.Name),
		zap.String("version", cfg.App.Version),
		zap.String("environment", cfg.App.Environment),
	)

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.Telemetry.Enabled {
		tracerProvider, err := telemetry.InitTracer(
			cfg.Telemetry.ServiceName,
			cfg.App.Version,
			cfg.Telemetry.JaegerEndpoint,
			cfg.Telemetry.SamplerParam,
		)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// 4. Resolve Secrets from Vault (overrides env/file config)
	if cfg.Vault.Enabled {
		secrets, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token)
		if err != nil {
			logger.Fatal("Failed to connect to Vault", zap.Error(err))
		}
		if key, err := secrets.GetAPIKey(); err == nil {
			cfg.HTTP.APIKey = key
		} else {
			logger.Warn("Vault has no API key, keeping configured value", zap.Error(err))
		}
		if key, err := secrets.GetStripeKey(); err == nil {
			cfg.Stripe.SecretKey = key
		}
		if key, err := secrets.GetSendGridKey(); err == nil {
			cfg.Email.SendGridAPIKey = key
		}
	}

	// 5. Initialize Cache (Redis, with in-process fallback for dev boxes)
	statusCache, err := cache.NewRedisCache(cfg.Redis.URL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, using in-process cache", zap.Error(err))
		statusCache = cache.NewLocalCache(time.Minute, logger)
	}
	defer statusCache.Close()

	// 6. Initialize Message Queue
	var bus queue.MessageQueue
	switch cfg.Queue.Driver {
	case "nats":
		bus, err = queue.NewNATSQueue(cfg.Queue.URL, logger)
	case "rabbitmq":
		bus, err = queue.NewRabbitMQQueue(cfg.Queue.URL, logger)
	default:
		bus = queue.NewNoopQueue()
	}
	if err != nil {
		logger.Fatal("Failed to connect to message queue",
			zap.String("driver", cfg.Queue.Driver), zap.Error(err))
	}
	defer bus.Close()

	// 7. Initialize Event Publisher (ocpp.* feed onto the bus)
	publisher := events.NewPublisher(bus, logger)

	// 8. Initialize Alert Mailer
	var alerts ports.AlertMailer
	if cfg.Email.Enabled {
		mailer, err := email.NewService(&email.Config{
			Provider:       cfg.Email.Provider,
			FromEmail:      cfg.Email.From,
			FromName:       cfg.Email.FromName,
			OpsEmail:       cfg.Email.OpsEmail,
			SendGridAPIKey: cfg.Email.SendGridAPIKey,
			SMTPHost:       cfg.Email.SMTPHost,
			SMTPPort:       cfg.Email.SMTPPort,
			SMTPUsername:   cfg.Email.SMTPUsername,
			SMTPPassword:   cfg.Email.SMTPPassword,
			SMTPUseTLS:     cfg.Email.SMTPUseTLS,
			Currency:       cfg.Wallet.Currency,
			BaseURL:        cfg.Email.BaseURL,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize email service", zap.Error(err))
		}
		alerts = mailer
	}

	// 9. Initialize Core Services (registry, identity, wallet)
	stationRegistry := registry.New(logger)
	identityService := identity.NewService(logger)
	walletService := wallet.NewService(cfg.Wallet.Currency, cfg.Wallet.LowBalanceMark, alerts, publisher, logger)

	// 10. Initialize Payment Gateway (Stripe)
	var gateway ports.PaymentGateway
	if cfg.Stripe.Enabled {
		gateway = payment.NewStripeService(cfg.Stripe.SecretKey, logger)
	}

	// 11. Initialize OCPP 1.6 Central System
	ocppServer := v16.NewServer(v16.Config{
		HeartbeatInterval: time.Duration(cfg.OCPP.HeartbeatInterval) * time.Second,
		WatchdogTimeout:   cfg.OCPP.WatchdogTimeout,
		CallTimeout:       cfg.OCPP.CallTimeout,
		QRBaseURL:         cfg.OCPP.QRBaseURL,
		RatePerKWh:        cfg.Pricing.PerKWh,
		Currency:          cfg.Wallet.Currency,
	}, v16.Services{
		Registry: stationRegistry,
		Identity: identityService,
		Wallet:   walletService,
		Events:   publisher,
		Alerts:   alerts,
	}, logger)
	go func() {
		logger.Info("Starting OCPP WebSocket server", zap.Int("port", cfg.OCPP.Port))
		if err := ocppServer.Start(cfg.OCPP.Port); err != nil {
			logger.Fatal("OCPP server failed", zap.Error(err))
		}
	}()

	// 12. Initialize WebSocket Hub (live event feed for dashboards)
	wsHub := wsAdapter.NewHub(logger)
	go wsHub.Run()
	publisher.Subscribe(wsHub.Relay)

	// 13. Initialize Health Checks
	healthService := health.NewService(&health.Config{
		Version:   cfg.App.Version,
		Cache:     statusCache,
		Bus:       bus,
		Commander: ocppServer,
	}, logger)

	// 14. Initialize Fiber HTTP Server
	app := handlers.NewApp(handlers.Deps{
		Config:    cfg,
		Registry:  stationRegistry,
		Commander: ocppServer,
		Identity:  identityService,
		Wallet:    walletService,
		Gateway:   gateway,
		Cache:     statusCache,
		Feed:      wsHub,
		Health:    healthService,
		Log:       logger,
	})

	// 15. Start Background Workers
	go startBackgroundWorkers(bus, logger)

	// 16. Start Operator Console on stdin
	repl := console.New(ocppServer, stationRegistry, identityService, walletService, os.Stdin, os.Stdout, logger)
	go repl.Run()

	// 17. Start HTTP Server
	go func() {
		logger.Info("Starting HTTP server", zap.Int("port", cfg.HTTP.Port))
		if err := app.Listen(fmt.Sprintf(":%d", cfg.HTTP.Port)); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 18. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	ocppServer.Stop()
	publisher.Close()
	wsHub.Stop()

	logger.Info("Server exited gracefully")
}

// newLogger builds the process logger from the logging section. Unknown
// levels fall back to info rather than refusing to start.
func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Format == "console" {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)

	return zc.Build()
}

// startBackgroundWorkers consumes the ocpp.* feed for async follow-up work.
// With the noop queue these subscriptions never fire.
func startBackgroundWorkers(bus queue.MessageQueue, logger *zap.Logger) {
	logger.Info("Starting background workers")

	// Worker 1: settlement audit trail for finished charging sessions
	if err := bus.Subscribe("ocpp.transaction.stopped", func(msg []byte) error {
		logger.Info("Transaction settled", zap.ByteString("event", msg))
		return nil
	}); err != nil {
		logger.Warn("Failed to subscribe to transaction events", zap.Error(err))
	}

	// Worker 2: surface faulted connectors in the ops log
	if err := bus.Subscribe("ocpp.connector.faulted", func(msg []byte) error {
		logger.Warn("Connector faulted", zap.ByteString("event", msg))
		return nil
	}); err != nil {
		logger.Warn("Failed to subscribe to fault events", zap.Error(err))
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/taxigo/dispatch/internal/api/handlers"
	"github.com/taxigo/dispatch/internal/api/routes"
	"github.com/taxigo/dispatch/internal/config"
	"github.com/taxigo/dispatch/internal/service/dispatch"
	"github.com/taxigo/dispatch/internal/service/pricing"
	"github.com/taxigo/dispatch/internal/storage/postgres"
	"github.com/taxigo/dispatch/pkg/auth"
	"github.com/taxigo/dispatch/pkg/cache"
	"github.com/taxigo/dispatch/pkg/database"
	"github.com/taxigo/dispatch/pkg/logger"
	"github.com/taxigo/dispatch/pkg/monitoring"
	paymentsvc "github.com/taxigo/dispatch/pkg/payment"
	"github.com/taxigo/dispatch/pkg/websocket"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	appLogger, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting TaxiGo dispatch service",
		logger.String("env", cfg.Server.Env),
		logger.String("port", cfg.Server.Port),
	)

	// Initialize New Relic
	nrApp, err := monitoring.New(monitoring.Config{
		LicenseKey: cfg.NewRelic.LicenseKey,
		AppName:    cfg.NewRelic.AppName,
		Enabled:    cfg.NewRelic.Enabled,
	})
	if err != nil {
		appLogger.Warn("Failed to initialize New Relic", logger.Err(err))
		nrApp = &monitoring.NewRelicApp{}
	}
	defer nrApp.Shutdown(10 * time.Second)

	// Initialize Redis
	redisClient, err := cache.NewRedisClient(cache.Config{
		Host:        cfg.Redis.Host,
		Port:        cfg.Redis.Port,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		MaxRetries:  cfg.Redis.MaxRetries,
		PoolSize:    cfg.Redis.PoolSize,
		MinIdleConn: cfg.Redis.MinIdleConn,
		DialTimeout: cfg.Redis.DialTimeout,
		ReadTimeout: cfg.Redis.ReadTimeout,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", logger.Err(err))
	}
	defer cache.Close(redisClient)

	appLogger.Info("Connected to Redis")

	// Initialize PostgreSQL
	postgresDB, err := database.NewPostgresDB(database.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.Name,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: cfg.Database.MaxConnections,
		MaxIdle:  cfg.Database.MaxIdleConns,
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to PostgreSQL", logger.Err(err))
	}
	defer postgresDB.Close()

	appLogger.Info("Connected to PostgreSQL")

	// Storage
	rideRepo := postgres.NewRideRepository(postgresDB, appLogger)
	paymentRepo := postgres.NewPaymentRepository(postgresDB, appLogger)

	// WebSocket transport
	hub := websocket.NewHub(appLogger)
	go hub.Run()

	// Dispatch core
	broadcaster := dispatch.NewBroadcaster(hub, appLogger)
	locationIndex := cache.NewLocationIndex(redisClient)
	registry := dispatch.NewRegistry(broadcaster, locationIndex, appLogger)
	lifecycle := dispatch.NewLifecycle(rideRepo, registry, broadcaster, appLogger, dispatch.LifecycleConfig{
		RequestExpiry: cfg.Dispatch.RequestExpiry,
	})
	matcher := dispatch.NewMatcher(registry, broadcaster, nil, dispatch.MatcherConfig{
		MaxCandidates: cfg.Dispatch.MaxCandidates,
		MaxRadiusKM:   cfg.Dispatch.MaxRadiusKM,
	}, appLogger)
	directory := dispatch.NewDirectory(registry, broadcaster, appLogger)
	gateway := dispatch.NewGateway(directory, registry, lifecycle, matcher, broadcaster, nrApp, appLogger)

	// Expiry sweep for unaccepted requests
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	if cfg.Dispatch.RequestExpiry > 0 {
		go lifecycle.RunExpirySweep(sweepCtx)
		appLogger.Info("Dispatch expiry sweep enabled",
			logger.Any("request_expiry", cfg.Dispatch.RequestExpiry))
	}

	// Collaborators
	authManager := auth.NewManager(cfg.JWT.Secret, cfg.JWT.Expiry)
	pricingService := pricing.NewService(redisClient, pricing.Config{
		BaseFare:           cfg.Pricing.BaseFare,
		PerKMRate:          cfg.Pricing.PerKMRate,
		PerMinuteRate:      cfg.Pricing.PerMinuteRate,
		MinimumFare:        cfg.Pricing.MinimumFare,
		AvgSpeedKMH:        cfg.Pricing.AvgSpeedKMH,
		MaxSurgeMultiplier: cfg.Pricing.MaxSurgeMultiplier,
		MinSurgeMultiplier: cfg.Pricing.MinSurgeMultiplier,
	})
	var provider paymentsvc.Provider
	if cfg.Stripe.Enabled {
		provider = paymentsvc.NewStripeProvider(cfg.Stripe.APIKey, cfg.Stripe.Currency)
		appLogger.Info("Stripe payment provider enabled")
	}

	h := &handlers.Handlers{
		Lifecycle:   lifecycle,
		Registry:    registry,
		Directory:   directory,
		Gateway:     gateway,
		Hub:         hub,
		Rides:       rideRepo,
		Payments:    paymentRepo,
		Pricing:     pricingService,
		Provider:    provider,
		Auth:        authManager,
		Idempotency: handlers.NewRedisIdempotency(redisClient),
		Monitor:     nrApp,
		Logger:      appLogger,
		Config:      cfg,
	}

	// Initialize Gin router
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	routes.SetupRoutes(router, h, nrApp.Application)

	appLogger.Info("Routes configured")

	// Create HTTP server
	srv := &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	// Start server in a goroutine
	go func() {
		appLogger.Info("Server starting", logger.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", logger.Err(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")
	stopSweep()

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", logger.Err(err))
	}

	appLogger.Info("Server stopped gracefully")
}

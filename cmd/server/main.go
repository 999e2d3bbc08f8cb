package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/schoolbus-tracking/service-tracking/internal/application"
	"github.com/schoolbus-tracking/service-tracking/internal/config"
	trackingEvents "github.com/schoolbus-tracking/service-tracking/internal/events"
	"github.com/schoolbus-tracking/service-tracking/internal/fleet"
	"github.com/schoolbus-tracking/service-tracking/internal/handler"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/auth"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/database"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/health"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/kafka"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/logger"
	"github.com/schoolbus-tracking/service-tracking/internal/platform/middleware"
	"github.com/schoolbus-tracking/service-tracking/internal/repository"
)

const serviceName = "service-tracking"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.NewNamed(cfg.AppEnv, serviceName)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting "+serviceName,
		zap.String("port", cfg.Port),
		zap.String("delivery_mode", string(cfg.TrackingConfig.DeliveryMode)),
	)

	// Connect to database
	dbConfig := database.PostgresConfig{
		Host:     cfg.DBConfig.Host,
		Port:     cfg.DBConfig.Port,
		User:     cfg.DBConfig.User,
		Password: cfg.DBConfig.Password,
		DBName:   cfg.DBConfig.DBName,
		SSLMode:  cfg.DBConfig.SSLMode,
	}
	db, err := database.Connect(dbConfig, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	// Run database migrations
	if cfg.AppEnv == "development" {
		if err := db.AutoMigrate(&repository.VehicleModel{}); err != nil {
			log.Fatal("failed to run auto-migration", zap.Error(err))
		}
		log.Info("database migration completed (dev auto-migrate)")
	} else {
		if err := database.RunMigrations(dbConfig.DatabaseURL(), cfg.MigrationsDir, log); err != nil {
			log.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	jwtManager := auth.NewJWTManager(cfg.JWTConfig.Secret, cfg.JWTConfig.TokenTTL)

	kafkaProducer := kafka.NewProducer(cfg.KafkaConfig.Brokers, log)
	defer func() { _ = kafkaProducer.Close() }()

	vehicleRepo := repository.NewGormVehicleRepository(db)

	// Live fleet core
	hub := fleet.NewHub(fleet.HubOptions{
		Buffer:     cfg.TrackingConfig.SubscriberBuffer,
		MaxPending: cfg.TrackingConfig.MaxPending,
	}, log.Named("hub"))
	state := fleet.NewState(hub, log.Named("fleet"))

	// Application services
	ingestService := application.NewIngestService(vehicleRepo, state, cfg.TrackingConfig.ClockSkew, log)
	trackingService := application.NewTrackingService(vehicleRepo, state, hub, application.TrackingOptions{
		PollOnly:     cfg.TrackingConfig.DeliveryMode == config.DeliveryPoll,
		PollInterval: cfg.TrackingConfig.PollInterval,
	}, log)
	authoringService := application.NewAuthoringService(vehicleRepo, kafkaProducer, cfg.KafkaConfig.EventsTopic, log)
	vehicleService := application.NewVehicleService(vehicleRepo, state, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Seed fleet state with the last positions held by the store
	if _, err := trackingService.Warm(ctx); err != nil {
		log.Warn("failed to warm fleet state from store", zap.Error(err))
	}

	// Driver location reports arriving over Kafka
	groupID := cfg.KafkaConfig.GroupPrefix + serviceName
	locationConsumer := trackingEvents.NewLocationEventConsumer(
		cfg.KafkaConfig.Brokers,
		groupID,
		cfg.KafkaConfig.LocationTopic,
		ingestService,
		log,
	)
	defer func() { _ = locationConsumer.Close() }()

	go func() {
		log.Info("starting location event consumer", zap.String("topic", cfg.KafkaConfig.LocationTopic))
		if err := locationConsumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("location event consumer error", zap.Error(err))
		}
	}()

	// Fleet changes relayed to downstream consumers
	relay := trackingEvents.NewFanoutRelay(hub, kafkaProducer, cfg.KafkaConfig.EventsTopic, log)
	go func() {
		log.Info("starting fan-out relay", zap.String("topic", cfg.KafkaConfig.EventsTopic))
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("fan-out relay stopped", zap.Error(err))
		}
	}()

	// Initialize HTTP handlers
	locationHandler := handler.NewLocationHandler(ingestService)
	fleetHandler := handler.NewFleetHandler(trackingService, log)
	routeHandler := handler.NewRouteHandler(authoringService, trackingService)
	adminVehicleHandler := handler.NewAdminVehicleHandler(vehicleService)

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	// Apply global middleware
	router.Use(middleware.RecoveryMiddleware(log))
	router.Use(middleware.LoggerMiddleware(log))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())

	// Register health check routes
	healthHandler := health.NewHandler(db, serviceName)
	healthHandler.RegisterRoutes(router)

	// Register routes
	locationHandler.RegisterRoutes(&router.RouterGroup, jwtManager)
	fleetHandler.RegisterRoutes(&router.RouterGroup, jwtManager)
	routeHandler.RegisterRoutes(&router.RouterGroup, jwtManager)
	adminVehicleHandler.RegisterRoutes(&router.RouterGroup, jwtManager)

	// Create HTTP server. No WriteTimeout: websocket streams are long-lived
	// and set their own per-frame deadlines.
	srv := &http.Server{
		Addr:              cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down " + serviceName + "...")

	// Stop background workers and end every viewer stream
	cancel()
	hub.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP server forced shutdown", zap.Error(err))
	}

	log.Info(serviceName + " stopped")
}

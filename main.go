package main

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/TripCarbon/trip-carbon-backend/config"
	"github.com/TripCarbon/trip-carbon-backend/db"
	"github.com/TripCarbon/trip-carbon-backend/handlers"
	"github.com/TripCarbon/trip-carbon-backend/logger"
	"github.com/TripCarbon/trip-carbon-backend/middleware"
	"github.com/TripCarbon/trip-carbon-backend/router"
	"github.com/TripCarbon/trip-carbon-backend/services"
	"github.com/TripCarbon/trip-carbon-backend/store/postgres"
)

func main() {
	logger.InitLogger()
	log := logger.GetLogger()
	defer logger.Close()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()

	pool, err := db.ConnectPool(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(cfg.Database.URL()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	redisClient := newRedisClient(cfg)
	defer func() {
		if err := redisClient.Close(); err != nil {
			log.Warnw("Failed to close Redis client", "error", err)
		}
	}()

	variants, err := config.LoadVariants(cfg.ETL.VariantsFile)
	if err != nil {
		log.Fatalf("Failed to load transform variants: %v", err)
	}

	// Services
	analysisStore := postgres.NewAnalysisStore(pool)
	analysisService := services.NewAnalysisService(analysisStore, redisClient, variants, cfg.Analysis)
	healthService := services.NewHealthService(pool, redisClient, cfg.Server.Version)
	rateLimitService := services.NewRateLimitService(redisClient)

	validator, err := middleware.NewJWTValidator(&cfg.Server)
	if err != nil {
		log.Fatalf("Failed to initialize JWT validator: %v", err)
	}

	r := router.SetupRouter(router.Dependencies{
		Config:          cfg,
		JWTValidator:    validator,
		RateLimiter:     rateLimitService,
		HealthHandler:   handlers.NewHealthHandler(healthService),
		AnalysisHandler: handlers.NewAnalysisHandler(analysisService),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Server shutdown failed", "error", err)
	}
	log.Info("Server stopped")
}

// newRedisClient builds the analysis cache client. TLS uses the bare host as
// the SNI name, not the host:port address.
func newRedisClient(cfg *config.Config) *redis.Client {
	options := &redis.Options{
		Addr:         cfg.Redis.Address,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}

	if cfg.Redis.UseTLS {
		host, _, err := net.SplitHostPort(cfg.Redis.Address)
		if err != nil {
			host = cfg.Redis.Address
		}
		options.TLSConfig = &tls.Config{
			ServerName: host,
			MinVersion: tls.VersionTLS12,
		}
	}

	return redis.NewClient(options)
}

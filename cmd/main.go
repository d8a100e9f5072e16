/**
 * @description
 * This is the main entry point for the financial-service. Its responsibility is to
 * initialize all necessary components and serve the ledger HTTP API.
 *
 * Key features:
 * - Loads application configuration from environment variables or a .env file.
 * - Opens the ledger store (PostgreSQL pool with embedded migrations, or in-memory).
 * - Initializes clients for external services (Paystack, RabbitMQ, Redis).
 * - Wires up the ledger service and HTTP router, then implements graceful shutdown.
 *
 * @dependencies
 * - The service's internal packages for config, logging, app logic, storage and API.
 * - pgxpool for the database, godotenv for local config, go-redis for rate limiting.
 */
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/financial-service/internal/api"
	"github.com/transfa/financial-service/internal/app"
	"github.com/transfa/financial-service/internal/config"
	"github.com/transfa/financial-service/internal/logging"
	"github.com/transfa/financial-service/internal/store"
	"github.com/transfa/financial-service/pkg/middleware"
	"github.com/transfa/financial-service/pkg/paystackclient"
	"github.com/transfa/financial-service/pkg/rabbitmq"
	"go.uber.org/zap"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("cannot load config: %v", err)
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		log.Fatalf("cannot build logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()

	repo, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("cannot open ledger store", zap.String("backend", cfg.StoreBackend), zap.Error(err))
	}
	defer closeStore()

	issuer := paystackclient.NewClient(paystackclient.Options{
		BaseURL:       cfg.PaystackBaseURL,
		SecretKey:     cfg.PaystackSecretKey,
		PreferredBank: cfg.PaystackPreferredBank,
		Country:       cfg.PaystackCountry,
		Timeout:       cfg.IssuerTimeout(),
	}, logger)
	if cfg.PaystackSecretKey == "" {
		logger.Warn("PAYSTACK_SECRET_KEY is empty; account registration will fail at the issuer")
	}

	publisher := newPublisher(cfg, logger)
	defer publisher.Close()

	limiter, closeLimiter := newLimiter(ctx, cfg, logger)
	defer closeLimiter()

	ledgerService := app.NewLedgerService(repo, issuer, publisher, cfg.DefaultCurrency, logger)
	router := api.NewRouter(ledgerService, api.RouterOptions{
		AllowedOrigins: cfg.AllowedOrigins(),
		Limiter:        limiter,
	}, logger)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      75 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", zap.String("port", cfg.ServerPort), zap.String("store", cfg.StoreBackend))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("could not start server", zap.Error(err))
		}
	}()

	// Wait for termination signal for graceful shutdown.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down financial-service")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
		return
	}
	logger.Info("server gracefully stopped")
}

// openStore returns the configured ledger repository and a function releasing it.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.AccountRepository, func(), error) {
	if cfg.StoreBackend == config.StoreBackendMemory {
		logger.Warn("using in-memory ledger store; balances are lost on restart")
		return store.NewMemoryAccountRepository(), func() {}, nil
	}

	dbConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, nil, fmt.Errorf("parse database URL: %w", err)
	}
	dbConfig.MaxConns = cfg.DBMaxConns
	dbConfig.MaxConnLifetime = 30 * time.Minute
	dbConfig.MaxConnIdleTime = 5 * time.Minute

	dbpool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := dbpool.Ping(pingCtx); err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("database connection established")

	if err := store.Migrate(ctx, dbpool, logger); err != nil {
		dbpool.Close()
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}

	return store.NewPostgresAccountRepository(dbpool, logger), dbpool.Close, nil
}

// newPublisher connects to RabbitMQ when configured. Ledger operations never
// depend on the broker, so any failure degrades to the logging publisher.
func newPublisher(cfg config.Config, logger *zap.Logger) rabbitmq.Publisher {
	if cfg.RabbitMQURL == "" {
		logger.Info("RABBITMQ_URL not set; ledger events will only be logged")
		return rabbitmq.NewFallbackPublisher(logger)
	}
	producer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL, cfg.LedgerEventsExchange, logger)
	if err != nil {
		logger.Warn("failed to connect to RabbitMQ; ledger events will only be logged", zap.Error(err))
		return rabbitmq.NewFallbackPublisher(logger)
	}
	return producer
}

// newLimiter prefers a Redis limiter shared across instances and falls back
// to a per-process token bucket.
func newLimiter(ctx context.Context, cfg config.Config, logger *zap.Logger) (middleware.Limiter, func()) {
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Warn("invalid REDIS_URL; using in-memory rate limiter", zap.Error(err))
		} else {
			client := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err = client.Ping(pingCtx).Err()
			cancel()
			if err == nil {
				logger.Info("using redis rate limiter", zap.Int("per_minute", cfg.RateLimitPerMinute))
				limiter := middleware.NewRedisLimiter(client, cfg.RedisRateLimitPrefix, cfg.RateLimitPerMinute, time.Minute)
				return limiter, func() { _ = client.Close() }
			}
			logger.Warn("redis unreachable; using in-memory rate limiter", zap.Error(err))
			_ = client.Close()
		}
	}

	limiter := middleware.NewTokenBucketLimiter(cfg.RateLimitPerMinute)
	return limiter, limiter.Stop
}

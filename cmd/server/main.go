package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dealmesh-protocol/dealmesh/internal/api"
	"github.com/dealmesh-protocol/dealmesh/internal/api/middleware"
	"github.com/dealmesh-protocol/dealmesh/internal/config"
	"github.com/dealmesh-protocol/dealmesh/internal/deal"
	"github.com/dealmesh-protocol/dealmesh/internal/handlers"
	"github.com/dealmesh-protocol/dealmesh/internal/matching"
	"github.com/dealmesh-protocol/dealmesh/internal/notify"
	"github.com/dealmesh-protocol/dealmesh/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Pick the durable store: PostgreSQL when configured, SQLite
	// otherwise (development and single-node deployments)
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}

		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		defer pgStore.Close()
		db = pgStore
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sqliteStore, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		defer sqliteStore.Close()
		db = sqliteStore
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}

	// Redis backs quality signals and rate limiting; optional
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		logger.Info().Msg("connected to Redis")
	}

	// Webhook dispatcher
	sender := notify.NewSender(cfg.WebhookTimeout)
	dispatcher := notify.NewDispatcher(db, sender, cfg.DispatchQueue, cfg.DispatchWorkers, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	// Matching and deal lifecycle
	signals := handlers.NewSignalAdapter(db, redisStore)
	resolver := matching.NewResolver(db, signals, dispatcher, logger)
	dealEngine := deal.NewEngine(db, dispatcher, logger)

	h := handlers.NewHandler(db, redisStore, resolver, dealEngine, logger)
	router := api.NewRouter(logger, h, redisStore, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting DealMesh server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

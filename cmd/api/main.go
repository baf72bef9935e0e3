// Package main runs the developer API server: it applies database
// migrations, aggregates the prediction-market platforms, and serves the
// REST and websocket API.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	app "github.com/spredd-labs/developer-api/internal/app"
	"github.com/spredd-labs/developer-api/internal/app/httpapi"
	"github.com/spredd-labs/developer-api/internal/app/storage/postgres"
	"github.com/spredd-labs/developer-api/internal/config"
	"github.com/spredd-labs/developer-api/internal/platforms"
	"github.com/spredd-labs/developer-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		Output:     cfg.Logging.Output,
		FilePrefix: cfg.Logging.FilePrefix,
	}).WithField("component", "api")

	stores, cleanup, err := buildStores(cfg, log)
	if err != nil {
		log.WithError(err).Error("storage initialization failed")
		os.Exit(1)
	}
	defer cleanup()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
	}

	registry := platforms.NewRegistry(log,
		platforms.NewKalshi(cfg.Platforms.DFlow, cfg.Fees),
		platforms.NewPolymarket(cfg.Platforms.Polymarket, cfg.Fees),
		platforms.NewLimitless(cfg.Platforms.Limitless, cfg.Fees),
		platforms.NewOpinion(cfg.Platforms.Opinion, cfg.Fees),
		platforms.NewMyriad(cfg.Platforms.Myriad, cfg.Fees),
	)
	defer registry.CloseAll()

	application, err := app.New(cfg, stores, registry, redisClient, log)
	if err != nil {
		log.WithError(err).Error("application initialization failed")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Warm the market caches concurrently; the server does not wait.
	go registry.InitializeAll(ctx)

	if err := application.Start(ctx); err != nil {
		log.WithError(err).Error("service startup failed")
		os.Exit(1)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      httpapi.NewHandler(application, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", addr).Info("developer API listening")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		log.WithError(err).Error("server error")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	if err := application.Stop(shutdownCtx); err != nil {
		log.WithError(err).Warn("application stop")
	}

	log.Info("developer API stopped")
}

// buildStores opens Postgres and applies migrations when DATABASE_URL is
// set; migrations run before the listener binds and a failure aborts
// startup. Without a database URL every store falls back to memory.
func buildStores(cfg *config.Config, log *logger.Logger) (app.Stores, func(), error) {
	if cfg.Database.URL == "" {
		log.Warn("DATABASE_URL not set, using in-memory storage")
		return app.Stores{}, func() {}, nil
	}

	db, err := postgres.Open(cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)
	if err != nil {
		return app.Stores{}, nil, fmt.Errorf("connect postgres: %w", err)
	}

	log.Info("applying database migrations")
	if err := postgres.Migrate(db); err != nil {
		db.Close()
		return app.Stores{}, nil, fmt.Errorf("migrate: %w", err)
	}

	store := postgres.New(db)
	return app.Stores{
		Accounts:  store,
		Keys:      store,
		Trades:    store,
		Positions: store,
		Usage:     store,
	}, func() { db.Close() }, nil
}

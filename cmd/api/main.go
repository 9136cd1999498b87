package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/campus-market/campus_market/internal/catalog"
	"github.com/campus-market/campus_market/internal/config"
	"github.com/campus-market/campus_market/internal/infra"
	"github.com/campus-market/campus_market/internal/logging"
	"github.com/campus-market/campus_market/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()

		if err := infra.MigratePostgres(ctx, db, logger); err != nil {
			logger.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	}

	var listings catalog.Repository
	if db == nil && cfg.CatalogSQLitePath != "" {
		sqliteRepo, err := catalog.OpenSQLite(ctx, cfg.CatalogSQLitePath)
		if err != nil {
			logger.Error("open sqlite catalog", "path", cfg.CatalogSQLitePath, "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := sqliteRepo.Close(); err != nil {
				logger.Warn("close sqlite catalog", "error", err)
			}
		}()
		listings = sqliteRepo
	}

	if db == nil {
		logger.Warn("DATABASE_URL not set; accounts, ledger and threads are kept in memory")
	}

	srv, err := server.New(cfg, db, cache, listings, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

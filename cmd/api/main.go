// @title pg-insight API
// @version 1.0
// @description PostgreSQL/SQLAlchemy log analysis and index recommendation service
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	_ "pg-insight/docs"

	"pg-insight/internal/auth"
	"pg-insight/internal/config"
	"pg-insight/internal/db"
	apihttp "pg-insight/internal/http"
	"pg-insight/internal/observability"
	"pg-insight/internal/querystore"
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		panic(err)
	}

	log := observability.NewLogger(cfg.LogLevel)

	// Initialize database and auth service
	dbx, err := db.New(cfg, log)
	if err != nil {
		log.Error("database initialization failed", "err", err)
		os.Exit(1)
	}
	defer func() {
		if cerr := dbx.Close(); cerr != nil {
			log.Error("database close error", "err", cerr)
		}
	}()

	// Seed default roles into INSIGHT.ROLE
	if err := dbx.SeedDefaultRoles(context.Background()); err != nil {
		log.Error("seed default roles failed", "err", err)
		os.Exit(1)
	}

	authSvc := auth.NewService(dbx, cfg, log)

	// Initialize query store and migrate tables
	repo := querystore.NewRepository(dbx.Gorm)
	if err := repo.Migrate(context.Background()); err != nil {
		log.Error("query store migration failed", "err", err)
		os.Exit(1)
	}

	// Router and server
	router := apihttp.NewRouter(cfg, log, authSvc, repo)
	server := apihttp.NewServer(cfg, router, log)

	// Run with signal cancellation
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited with error", "err", err)
		os.Exit(1)
	}

	log.Info("server exited cleanly")
}

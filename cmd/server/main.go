// Package main initializes and starts the GraphPaste server, setting up
// configuration, logging, storage, services, the GraphQL executor,
// handlers and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/GraphPaste/internal/broadcast"
	"github.com/atinyakov/GraphPaste/internal/config"
	"github.com/atinyakov/GraphPaste/internal/db"
	"github.com/atinyakov/GraphPaste/internal/gql"
	"github.com/atinyakov/GraphPaste/internal/logger"
	"github.com/atinyakov/GraphPaste/internal/metrics"
	"github.com/atinyakov/GraphPaste/internal/models"
	"github.com/atinyakov/GraphPaste/internal/repository"
	"github.com/atinyakov/GraphPaste/internal/repository/memory"
	"github.com/atinyakov/GraphPaste/internal/server/handler/http"
	"github.com/atinyakov/GraphPaste/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

// backend is a store that can also purge expired data.
type backend interface {
	service.Store
	service.Cleaner
}

// openStore selects the in-process store for config.MemoryDSN and
// PostgreSQL otherwise. The returned func releases the store.
func openStore(dsn string) (backend, func() error, error) {
	if dsn == config.MemoryDSN {
		return memory.New(), func() error { return nil }, nil
	}
	postgresDB, err := db.InitPostgres(dsn)
	if err != nil {
		return nil, nil, err
	}
	return repository.NewPostgresStore(postgresDB), postgresDB.Close, nil
}

func main() {
	// Parse command-line, config file and environment configuration.
	options := config.Parse()

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		log.Log.Fatal("failed to init logger", zap.Error(err))
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage.
	store, closeStore, err := openStore(options.DatabaseDSN)
	if err != nil {
		zapLogger.Fatal("cannot init database", zap.Error(err))
	}
	defer func() { _ = closeStore() }()

	// Purge expired sessions, pastes and aged records in the background.
	db.StartCleaner(ctx, store, options.CleanupInterval, db.Retention, zapLogger)

	m := metrics.New()

	// The broker lives as long as the process; closing it ends every
	// subscription stream.
	broker := broadcast.NewBroker[models.Paste](broadcast.DefaultBuffer)
	broker.OnDrop = func() {
		m.Dropped()
		zapLogger.Warn("paste event dropped for slow subscriber")
	}
	defer broker.Close()

	// Initialize business-logic services.
	withMetrics := service.WithMetrics(m)
	tokens := service.NewTokenService(options.JWTSecret, options.AccessTokenTTL, options.RefreshTokenTTL)
	audit := service.NewAuditLog(zapLogger)
	auth := service.NewAuthService(store, tokens, audit, options.SessionTTL, zapLogger, withMetrics)
	rate := service.NewRateTracker(store, auth, zapLogger, withMetrics)
	resolver := service.NewResolver(store, auth, tokens, audit, rate, broker, zapLogger, withMetrics)

	err = resolver.Bootstrap(ctx, service.BootstrapOptions{
		AdminUsername: options.AdminUsername,
		AdminPassword: options.AdminPassword,
		InitialMode:   options.InitialMode,
		SeedTestData:  options.SeedTestData,
	})
	if err != nil {
		zapLogger.Fatal("failed to bootstrap", zap.Error(err))
	}

	executor, err := gql.NewExecutor(resolver, zapLogger, m)
	if err != nil {
		zapLogger.Fatal("failed to build schema", zap.Error(err))
	}

	// Build the router with middleware and routes.
	router := http.NewRouter(
		&http.GraphQLHandler{Executor: executor},
		&http.SubscriptionHandler{Executor: executor, Logger: zapLogger},
		&http.HealthHandler{Store: resolver},
		m.Handler(),
		zapLogger,
	)

	server := &nethttp.Server{
		Addr:              options.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},
	}

	go func() {
		<-ctx.Done()
		zapLogger.Info("shutting down")
		broker.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			zapLogger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if options.TLSCert != "" && options.TLSKey != "" {
		zapLogger.Info("starting HTTPS server", zap.String("addr", options.Port))
		err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
	} else {
		zapLogger.Info("starting HTTP server", zap.String("addr", options.Port))
		err = server.ListenAndServe()
	}
	if err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		zapLogger.Fatal("server failed", zap.Error(err))
	}
}

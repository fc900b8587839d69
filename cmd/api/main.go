package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/cassiomorais/platformsync/internal/bootstrap"
	"github.com/cassiomorais/platformsync/internal/controller"
	infraRedis "github.com/cassiomorais/platformsync/internal/infrastructure/redis"
)

func main() {
	ctx := context.Background()

	app, err := bootstrap.New(ctx, "platformsync-api", "platformsync")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config
	router := controller.NewRouter(controller.RouterDeps{
		Database:      app.Pool,
		Redis:         controller.PingerFunc(func(ctx context.Context) error { return app.Redis.Ping(ctx).Err() }),
		Syncer:        app.Orchestrator,
		Registry:      app.Registry,
		Transactions:  app.Transactions,
		WebhookEvents: app.WebhookEvents,
		Publisher:     infraRedis.NewStreamProducer(app.Redis),
		Idempotency:   infraRedis.NewIdempotencyStore(app.Redis, cfg.Worker.IdempotencyTTL),
		Metrics:       app.Metrics,
		Logger:        app.Logger,
		Server:        cfg.Server,
		JWTSecret:     cfg.Auth.JWTSecret,
	})

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		app.Logger.Info().Str("addr", addr).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			app.Logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error().Err(err).Msg("Server forced to shutdown")
	}
	app.Close(shutdownCtx)
	app.Logger.Info().Msg("Server exited")
}

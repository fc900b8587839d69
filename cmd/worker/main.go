package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cassiomorais/platformsync/internal/bootstrap"
	infraRedis "github.com/cassiomorais/platformsync/internal/infrastructure/redis"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, "platformsync-worker", "platformsync_worker")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap: %v\n", err)
		os.Exit(1)
	}

	cfg := app.Config
	workerCfg := cfg.Worker
	consumer := infraRedis.NewStreamConsumer(
		app.Redis,
		infraRedis.WebhookStream,
		workerCfg.ConsumerGroup,
		cfg.InstanceID,
		workerCfg.BatchSize,
		workerCfg.BlockDuration,
	)
	if err := consumer.CreateGroup(ctx); err != nil {
		app.Logger.Error().Err(err).Msg("Failed to create consumer group")
	}

	processor := &webhookProcessor{
		stream:  consumer,
		handler: app.Orchestrator,
		events:  app.WebhookEvents,
		metrics: app.Metrics,
		logger:  app.Logger.With().Str("stream", infraRedis.WebhookStream).Logger(),
	}

	app.Logger.Info().
		Str("stream", infraRedis.WebhookStream).
		Str("group", workerCfg.ConsumerGroup).
		Str("consumer", cfg.InstanceID).
		Dur("sync_interval", cfg.Sync.Interval).
		Msg("Worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	// 1. Scheduled sync of every enabled platform.
	g.Go(func() error {
		return app.Orchestrator.Run(gCtx, cfg.Sync.Interval)
	})

	// 2. Webhook deliveries queued by the api.
	g.Go(func() error {
		return processor.run(gCtx)
	})

	// 3. Deliveries left pending by crashed workers or transient failures.
	g.Go(func() error {
		return processor.reclaim(gCtx, workerCfg.ClaimInterval, workerCfg.ClaimMinIdle)
	})

	// 4. Wait for shutdown signal.
	g.Go(func() error {
		select {
		case <-gCtx.Done():
			return gCtx.Err()
		case <-quit:
			app.Logger.Info().Msg("Shutting down worker...")
			cancel()
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		app.Logger.Error().Err(err).Msg("Worker error")
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer closeCancel()
	app.Close(closeCtx)
	app.Logger.Info().Msg("Worker exited")
}

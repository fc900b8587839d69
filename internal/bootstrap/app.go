package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/platformsync/internal/application/reconcile"
	"github.com/cassiomorais/platformsync/internal/infrastructure/config"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/platformsync/internal/infrastructure/redis"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/cassiomorais/platformsync/internal/repository/postgres"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// App holds the process-wide dependencies shared by the api and worker
// binaries.
type App struct {
	Config        *config.Config
	Logger        zerolog.Logger
	Pool          *pgxpool.Pool
	Redis         *redis.Client
	Metrics       *observability.Metrics
	Transactions  *postgres.TransactionRepository
	WebhookEvents *postgres.WebhookEventRepository
	Registry      *platform.Registry
	Orchestrator  *reconcile.Orchestrator

	notifier *reconcile.AsyncNotifier
	tracer   *sdktrace.TracerProvider
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout).
		With().Str("instance", cfg.InstanceID).Logger()
	logger.Info().Str("service", serviceName).Msg("Starting")

	app := &App{Config: cfg, Logger: logger}

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			app.tracer = tp
			logger.Info().Msg("Tracing enabled")
		}
	}

	if cfg.Observability.EnableMetrics {
		app.Metrics = observability.NewMetrics(metricsNamespace, nil)
		logger.Info().Msg("Metrics initialized")
	}

	app.Pool, err = postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	app.Redis, err = infraRedis.NewClient(ctx, &cfg.Redis)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info().Msg("Connected to Redis")

	app.Transactions = postgres.NewTransactionRepository(app.Pool,
		postgres.WithRepositoryLogger(logger.With().Str("component", "transaction_store").Logger()),
		postgres.WithRepositoryMetrics(app.Metrics))
	app.WebhookEvents = postgres.NewWebhookEventRepository(app.Pool)

	app.Registry, err = BuildRegistry(cfg.Platforms, cfg.Sync, app.Transactions, app.Metrics, logger)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	if len(app.Registry.Platforms()) == 0 {
		logger.Warn().Msg("No platforms enabled")
	}
	for _, id := range app.Registry.Platforms() {
		logger.Info().Str("platform", id.String()).Msg("Platform enabled")
	}

	app.notifier = reconcile.NewAsyncNotifier(
		reconcile.MultiNotifier{
			reconcile.NewLogNotifier(logger),
			infraRedis.NewStreamNotifier(app.Redis),
		},
		cfg.Sync.NotifyQueueSize, logger, app.Metrics,
	)

	opts := []reconcile.Option{
		reconcile.WithLocker(infraRedis.NewLocker(app.Redis, cfg.Sync.LockTTL, cfg.Sync.LockRetries, cfg.Sync.LockRetryDelay, logger)),
		reconcile.WithStatusStore(infraRedis.NewStatusStore(app.Redis)),
		reconcile.WithNotifier(app.notifier),
		reconcile.WithLogger(logger),
	}
	if app.Metrics != nil {
		opts = append(opts, reconcile.WithMetrics(app.Metrics))
	}
	app.Orchestrator = reconcile.New(app.Registry, opts...)

	return app, nil
}

// Close drains pending sync notifications, then releases connections and
// flushes spans. Safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.notifier != nil {
		if err := a.notifier.Close(ctx); err != nil {
			a.Logger.Warn().Err(err).Msg("Sync notifications not fully delivered")
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
	observability.Shutdown(ctx, a.tracer)
}

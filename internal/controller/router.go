package controller

import (
	"net/http"
	"time"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/config"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	customMW "github.com/cassiomorais/platformsync/internal/middleware"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type RouterDeps struct {
	Database        Pinger
	Redis           Pinger
	Syncer          SyncService
	Registry        *platform.Registry
	Transactions    transaction.Reader
	WebhookEvents   WebhookEventStore
	Publisher       WebhookPublisher
	Idempotency     customMW.IdempotencyCache
	Metrics         *observability.Metrics
	MetricsGatherer prometheus.Gatherer
	Logger          zerolog.Logger
	Server          config.ServerConfig
	JWTSecret       string
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(customMW.Tracing())
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   deps.Server.CORS.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"X-Idempotency-Replayed"},
		AllowCredentials: deps.Server.CORS.AllowCredentials,
		MaxAge:           300,
	}))
	r.Use(customMW.SecurityHeaders())
	if deps.Metrics != nil {
		r.Use(customMW.Metrics(deps.Metrics))
	}

	healthH := NewHealthController(deps.Database, deps.Redis)
	platformH := NewPlatformController(deps.Syncer, deps.Registry)
	webhookH := NewWebhookController(deps.Syncer, deps.Registry, deps.WebhookEvents, deps.Publisher, deps.Logger)
	transactionH := NewTransactionController(deps.Transactions)

	r.Get("/health", healthH.Health)
	r.Get("/health/live", healthH.Liveness)
	r.Get("/health/ready", healthH.Readiness)

	r.Handle("/metrics", metricsHandler(deps.MetricsGatherer))

	rpm := deps.Server.WebhookRateRPM
	if rpm <= 0 {
		rpm = 600
	}
	r.With(
		customMW.WebhookRateLimit(rpm),
		customMW.MaxBodySize(maxRequestBodySize),
	).Post("/webhooks/{platform}", webhookH.Receive)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(customMW.RequireAuth(deps.JWTSecret))

		r.Get("/platforms", platformH.List)
		r.Get("/platforms/{platform}/status", platformH.Status)
		r.Post("/platforms/{platform}/sync", platformH.Sync)

		register := http.HandlerFunc(platformH.RegisterWebhook)
		if deps.Idempotency != nil {
			r.With(customMW.Idempotency(deps.Idempotency, deps.Logger)).Post("/platforms/{platform}/webhooks", register)
		} else {
			r.Post("/platforms/{platform}/webhooks", register)
		}

		r.Get("/transactions", transactionH.List)
		r.Get("/transactions/{id}", transactionH.Get)
	})

	return r
}

func metricsHandler(g prometheus.Gatherer) http.Handler {
	if g == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

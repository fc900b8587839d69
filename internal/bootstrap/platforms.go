package bootstrap

import (
	"fmt"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/config"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/cassiomorais/platformsync/internal/platform/cartpanda"
	"github.com/cassiomorais/platformsync/internal/platform/kiwify"
	"github.com/cassiomorais/platformsync/internal/platform/yampi"
	"github.com/cassiomorais/platformsync/pkg/retry"
	"github.com/rs/zerolog"
)

// BuildRegistry constructs an adapter for every enabled platform. Every
// adapter writes through a RetryingStore wrapping store.
func BuildRegistry(
	cfg config.PlatformsConfig,
	syncCfg config.SyncConfig,
	store transaction.Store,
	metrics *observability.Metrics,
	logger zerolog.Logger,
) (*platform.Registry, error) {
	retrying := platform.NewRetryingStore(store, retry.Config{
		MaxAttempts:  syncCfg.StoreMaxRetries,
		InitialDelay: syncCfg.RetryDelay,
		MaxDelay:     syncCfg.MaxRetryDelay,
	}, logger)

	opts := func(id transaction.PlatformID) []platform.Option {
		o := []platform.Option{
			platform.WithTimeout(syncCfg.HTTPTimeout),
			platform.WithRetry(retry.Config{
				MaxAttempts:  syncCfg.MaxRetries,
				InitialDelay: syncCfg.RetryDelay,
				MaxDelay:     syncCfg.MaxRetryDelay,
			}),
			platform.WithBreaker(platform.BreakerSettings{
				Threshold: syncCfg.CircuitBreakerThreshold,
				Timeout:   syncCfg.CircuitBreakerTimeout,
			}),
			platform.WithLogger(observability.ForPlatform(logger, id.String())),
		}
		if metrics != nil {
			o = append(o, platform.WithMetrics(metrics))
		}
		return o
	}

	registry := platform.NewRegistry()

	if c := cfg.CartPanda; c.Enabled {
		pc := cartpanda.NewConfig(c.APIKey, c.SecretKey)
		if c.Sandbox {
			pc = cartpanda.NewSandboxConfig(c.APIKey, c.SecretKey)
		}
		pc.WebhookSecret = c.WebhookSecret
		if c.BaseURL != "" {
			pc.BaseURL = c.BaseURL
		}
		if c.Currency != "" {
			pc.Currency = c.Currency
		}
		a, err := cartpanda.New(pc, retrying, opts(transaction.PlatformCartPanda)...)
		if err != nil {
			return nil, fmt.Errorf("configure cartpanda: %w", err)
		}
		registry.Register(a)
	}

	if c := cfg.Yampi; c.Enabled {
		pc := yampi.NewConfig(c.Alias, c.Token, c.SecretKey)
		if c.Sandbox {
			pc = yampi.NewSandboxConfig(c.Alias, c.Token, c.SecretKey)
		}
		pc.WebhookSecret = c.WebhookSecret
		if c.BaseURL != "" {
			pc.BaseURL = c.BaseURL
		}
		if c.Currency != "" {
			pc.Currency = c.Currency
		}
		if c.MaxPages > 0 {
			pc.MaxPages = c.MaxPages
		}
		a, err := yampi.New(pc, retrying, opts(transaction.PlatformYampi)...)
		if err != nil {
			return nil, fmt.Errorf("configure yampi: %w", err)
		}
		registry.Register(a)
	}

	if c := cfg.Kiwify; c.Enabled {
		pc := kiwify.NewConfig(c.Token, c.AccountID)
		if c.Sandbox {
			pc = kiwify.NewSandboxConfig(c.Token, c.AccountID)
		}
		pc.WebhookSecret = c.WebhookSecret
		if c.BaseURL != "" {
			pc.BaseURL = c.BaseURL
		}
		if c.Currency != "" {
			pc.Currency = c.Currency
		}
		a, err := kiwify.New(pc, retrying, opts(transaction.PlatformKiwify)...)
		if err != nil {
			return nil, fmt.Errorf("configure kiwify: %w", err)
		}
		registry.Register(a)
	}

	return registry, nil
}

package main

import (
	"context"
	"errors"
	"time"

	"github.com/cassiomorais/platformsync/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/platformsync/internal/infrastructure/redis"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultClaimInterval = 30 * time.Second

type deliveryStream interface {
	Stream() string
	Read(ctx context.Context) ([]redis.XMessage, error)
	ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error)
	Ack(ctx context.Context, messageID string) error
}

type webhookHandler interface {
	HandleWebhook(ctx context.Context, id transaction.PlatformID, payload []byte) (reconcile.WebhookResult, error)
}

type webhookMarker interface {
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkIgnored(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

// webhookProcessor drains the webhook delivery stream into the orchestrator.
type webhookProcessor struct {
	stream  deliveryStream
	handler webhookHandler
	events  webhookMarker
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// run reads until ctx is cancelled. Read errors back off for a second.
func (p *webhookProcessor) run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		msgs, err := p.stream.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			p.logger.Error().Err(err).Msg("Failed to read from stream")
			sleep(ctx, time.Second)
			continue
		}
		for _, msg := range msgs {
			p.process(ctx, msg)
		}
	}
}

// reclaim periodically retries deliveries left pending by a crashed worker
// or by a transient failure.
func (p *webhookProcessor) reclaim(ctx context.Context, interval, minIdle time.Duration) error {
	if interval <= 0 {
		interval = defaultClaimInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		msgs, err := p.stream.ClaimStale(ctx, minIdle)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to claim stale deliveries")
			continue
		}
		if len(msgs) > 0 {
			p.logger.Info().Int("count", len(msgs)).Msg("Retrying stale deliveries")
		}
		for _, msg := range msgs {
			p.process(ctx, msg)
		}
	}
}

// process handles one delivery. Transient failures leave the message
// pending for reclaim; everything else is acknowledged.
func (p *webhookProcessor) process(ctx context.Context, msg redis.XMessage) {
	start := time.Now()
	status := p.handle(ctx, msg)

	if p.metrics != nil {
		p.metrics.WorkerMessagesProcessed.WithLabelValues(p.stream.Stream(), status).Inc()
		p.metrics.WorkerProcessingDuration.WithLabelValues(p.stream.Stream()).Observe(time.Since(start).Seconds())
	}
	if status == "retry" {
		return
	}
	if err := p.stream.Ack(ctx, msg.ID); err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Failed to ack delivery")
	}
}

func (p *webhookProcessor) handle(ctx context.Context, msg redis.XMessage) string {
	d, err := infraRedis.DecodeWebhookDelivery(msg)
	if err != nil {
		p.logger.Error().Err(err).Str("message_id", msg.ID).Msg("Dropping malformed delivery")
		return "malformed"
	}

	logger := p.logger.With().
		Str("platform", d.Platform.String()).
		Str("message_id", d.MessageID).
		Str("webhook_event_id", d.EventID).
		Logger()
	eventID, idErr := uuid.Parse(d.EventID)
	mark := func(fn func() error) {
		if idErr != nil {
			return
		}
		if err := fn(); err != nil {
			logger.Error().Err(err).Msg("Failed to update webhook event")
		}
	}

	res, err := p.handler.HandleWebhook(ctx, d.Platform, d.Payload)
	switch {
	case err == nil && res.Ignored:
		mark(func() error { return p.events.MarkIgnored(ctx, eventID) })
		logger.Debug().Str("event", res.Event).Msg("Ignored webhook")
		return "ignored"
	case err == nil:
		mark(func() error { return p.events.MarkProcessed(ctx, eventID) })
		logger.Info().Str("event", res.Event).Msg("Webhook processed")
		return "success"
	case transient(err):
		mark(func() error { return p.events.MarkFailed(ctx, eventID, err) })
		logger.Warn().Err(err).Msg("Webhook failed, will retry")
		return "retry"
	default:
		mark(func() error { return p.events.MarkFailed(ctx, eventID, err) })
		logger.Error().Err(err).Msg("Webhook failed")
		return "failed"
	}
}

func transient(err error) bool {
	return errors.Is(err, domainErrors.ErrSyncInProgress) ||
		errors.Is(err, domainErrors.ErrLockAcquisitionFailed) ||
		errors.Is(err, domainErrors.ErrPersistence) ||
		errors.Is(err, context.DeadlineExceeded)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

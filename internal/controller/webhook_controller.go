package controller

import (
	"context"
	"io"
	"net/http"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/cassiomorais/platformsync/internal/repository/postgres"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// WebhookEventStore records inbound deliveries for deduplication and audit.
type WebhookEventStore interface {
	Record(ctx context.Context, id transaction.PlatformID, eventType string, payload []byte) (*postgres.WebhookEvent, bool, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkIgnored(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, cause error) error
}

// WebhookPublisher hands a recorded delivery to the worker.
type WebhookPublisher interface {
	PublishWebhook(ctx context.Context, eventID string, id transaction.PlatformID, payload []byte) error
}

type WebhookController struct {
	syncer    SyncService
	registry  *platform.Registry
	events    WebhookEventStore
	publisher WebhookPublisher
	logger    zerolog.Logger
}

// NewWebhookController builds the receiver. A nil publisher processes every
// delivery inline.
func NewWebhookController(
	syncer SyncService,
	registry *platform.Registry,
	events WebhookEventStore,
	publisher WebhookPublisher,
	logger zerolog.Logger,
) *WebhookController {
	return &WebhookController{
		syncer:    syncer,
		registry:  registry,
		events:    events,
		publisher: publisher,
		logger:    logger,
	}
}

// Receive handles POST /webhooks/{platform}
func (h *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	id, err := platformParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	a, err := h.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, err)
		return
	}

	logger := h.logger.With().Str("platform", id.String()).Logger()

	if v, ok := a.(platform.WebhookVerifier); ok {
		if err := v.VerifyWebhook(payload, r.Header); err != nil {
			logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("Rejected webhook signature")
			writeError(w, err)
			return
		}
	}

	var eventType string
	if dec, ok := a.(platform.WebhookDecoder); ok {
		ev, err := dec.DecodeWebhook(payload)
		if err != nil {
			writeError(w, err)
			return
		}
		eventType = ev.Event
	}

	ctx := r.Context()
	rec, duplicate, err := h.events.Record(ctx, id, eventType, payload)
	if err != nil {
		writeError(w, err)
		return
	}
	logger = logger.With().Str("webhook_event_id", rec.ID.String()).Logger()

	if duplicate && rec.Status != postgres.WebhookFailed {
		logger.Info().Str("status", string(rec.Status)).Msg("Duplicate webhook delivery")
		writeJSON(w, http.StatusOK, WebhookResponse{Status: "duplicate", EventID: rec.ID.String(), Event: eventType})
		return
	}

	if h.publisher != nil {
		err := h.publisher.PublishWebhook(ctx, rec.ID.String(), id, payload)
		if err == nil {
			writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "accepted", EventID: rec.ID.String(), Event: eventType})
			return
		}
		logger.Warn().Err(err).Msg("Webhook stream unavailable, processing inline")
	}

	h.processInline(w, r.WithContext(logger.WithContext(ctx)), id, rec, payload)
}

func (h *WebhookController) processInline(w http.ResponseWriter, r *http.Request, id transaction.PlatformID, rec *postgres.WebhookEvent, payload []byte) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)
	markCtx := context.WithoutCancel(ctx)

	res, err := h.syncer.HandleWebhook(ctx, id, payload)
	if err != nil {
		if markErr := h.events.MarkFailed(markCtx, rec.ID, err); markErr != nil {
			logger.Error().Err(markErr).Msg("Failed to mark webhook event failed")
		}
		writeError(w, err)
		return
	}

	status := "processed"
	mark := h.events.MarkProcessed
	if res.Ignored {
		status = "ignored"
		mark = h.events.MarkIgnored
	}
	if err := mark(markCtx, rec.ID); err != nil {
		logger.Error().Err(err).Str("status", status).Msg("Failed to mark webhook event")
	}
	writeJSON(w, http.StatusOK, WebhookResponse{Status: status, EventID: rec.ID.String(), Event: res.Event})
}

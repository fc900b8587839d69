package postgres

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type WebhookEventStatus string

const (
	WebhookReceived  WebhookEventStatus = "received"
	WebhookProcessed WebhookEventStatus = "processed"
	WebhookFailed    WebhookEventStatus = "failed"
	WebhookIgnored   WebhookEventStatus = "ignored"
)

// WebhookEvent is the audit row of one inbound delivery.
type WebhookEvent struct {
	ID            uuid.UUID
	PlatformID    transaction.PlatformID
	PayloadSHA256 string
	EventType     *string
	Status        WebhookEventStatus
	Error         *string
	Attempts      int
	ReceivedAt    time.Time
	ProcessedAt   *time.Time
}

// WebhookEventRepository records deliveries, deduplicating identical bodies
// per platform.
type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

func PayloadDigest(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// Record inserts a received delivery. When the same payload was already
// recorded for the platform it returns the existing row and duplicate=true.
// Non-JSON bodies are stored as a JSON string.
func (r *WebhookEventRepository) Record(ctx context.Context, id transaction.PlatformID, eventType string, payload []byte) (*WebhookEvent, bool, error) {
	body := payload
	if !json.Valid(payload) {
		b, err := json.Marshal(string(payload))
		if err != nil {
			return nil, false, fmt.Errorf("encode payload: %w", err)
		}
		body = b
	}

	var evType *string
	if eventType != "" {
		evType = &eventType
	}
	digest := PayloadDigest(payload)

	ev, err := scanWebhookEvent(r.pool.QueryRow(ctx,
		`INSERT INTO webhook_events (id, platform_id, payload_sha256, event_type, payload, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (platform_id, payload_sha256) DO NOTHING
		 RETURNING id, platform_id, payload_sha256, event_type, status, error, attempts, received_at, processed_at`,
		uuid.New(), string(id), digest, evType, body, string(WebhookReceived)))
	if err == nil {
		return ev, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, fmt.Errorf("record webhook event: %w", err)
	}

	existing, err := scanWebhookEvent(r.pool.QueryRow(ctx,
		`SELECT id, platform_id, payload_sha256, event_type, status, error, attempts, received_at, processed_at
		 FROM webhook_events WHERE platform_id = $1 AND payload_sha256 = $2`, string(id), digest))
	if err != nil {
		return nil, false, fmt.Errorf("load duplicate webhook event: %w", err)
	}
	return existing, true, nil
}

func (r *WebhookEventRepository) GetByID(ctx context.Context, id uuid.UUID) (*WebhookEvent, error) {
	ev, err := scanWebhookEvent(r.pool.QueryRow(ctx,
		`SELECT id, platform_id, payload_sha256, event_type, status, error, attempts, received_at, processed_at
		 FROM webhook_events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("webhook event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get webhook event: %w", err)
	}
	return ev, nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	return r.finish(ctx, id, WebhookProcessed, nil)
}

func (r *WebhookEventRepository) MarkIgnored(ctx context.Context, id uuid.UUID) error {
	return r.finish(ctx, id, WebhookIgnored, nil)
}

func (r *WebhookEventRepository) MarkFailed(ctx context.Context, id uuid.UUID, cause error) error {
	msg := cause.Error()
	return r.finish(ctx, id, WebhookFailed, &msg)
}

func (r *WebhookEventRepository) finish(ctx context.Context, id uuid.UUID, status WebhookEventStatus, errMsg *string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE webhook_events
		 SET status = $1, error = $2, attempts = attempts + 1, processed_at = NOW()
		 WHERE id = $3`,
		string(status), errMsg, id)
	if err != nil {
		return fmt.Errorf("mark webhook event %s: %w", status, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("webhook event %s not found", id)
	}
	return nil
}

func scanWebhookEvent(row scanner) (*WebhookEvent, error) {
	var (
		ev         WebhookEvent
		platformID string
		status     string
	)
	err := row.Scan(&ev.ID, &platformID, &ev.PayloadSHA256, &ev.EventType, &status,
		&ev.Error, &ev.Attempts, &ev.ReceivedAt, &ev.ProcessedAt)
	if err != nil {
		return nil, err
	}
	ev.PlatformID = transaction.PlatformID(platformID)
	ev.Status = WebhookEventStatus(status)
	return &ev, nil
}

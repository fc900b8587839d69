package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cassiomorais/platformsync/internal/application/reconcile"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/redis/go-redis/v9"
)

const (
	WebhookStream = "webhooks:delivery"
	SyncEvents    = "sync:events"

	// streamMaxLen caps each stream; trimming is approximate.
	streamMaxLen = 10000
)

// WebhookDelivery is one inbound webhook queued for the worker.
type WebhookDelivery struct {
	MessageID  string
	EventID    string
	Platform   transaction.PlatformID
	Payload    []byte
	ReceivedAt time.Time
}

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishWebhook queues a verified delivery. eventID references the
// webhook_events audit row.
func (p *StreamProducer) PublishWebhook(ctx context.Context, eventID string, id transaction.PlatformID, payload []byte) error {
	err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: WebhookStream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"event_id":  eventID,
			"platform":  id.String(),
			"payload":   string(payload),
			"timestamp": time.Now().Unix(),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish webhook: %w", err)
	}
	return nil
}

// StreamNotifier publishes sync events to the sync:events stream.
type StreamNotifier struct {
	client *redis.Client
	stream string
}

func NewStreamNotifier(client *redis.Client) *StreamNotifier {
	return &StreamNotifier{client: client, stream: SyncEvents}
}

func (n *StreamNotifier) Notify(ctx context.Context, ev reconcile.SyncEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal sync event: %w", err)
	}
	err = n.client.XAdd(ctx, &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{
			"platform": ev.Platform.String(),
			"outcome":  string(ev.Outcome),
			"payload":  string(body),
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish sync event: %w", err)
	}
	return nil
}

// ErrMalformedMessage marks a stream entry that can never be processed.
var ErrMalformedMessage = errors.New("malformed stream message")

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(
	client *redis.Client,
	stream string,
	group string,
	consumer string,
	batchSize int64,
	blockDuration time.Duration,
) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

func (c *StreamConsumer) Stream() string { return c.stream }

// CreateGroup creates the stream and group, tolerating an existing group.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}
	return nil
}

func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read from stream: %w", err)
	}

	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	if err := c.client.XAck(ctx, c.stream, c.group, messageID).Err(); err != nil {
		return fmt.Errorf("failed to ack message: %w", err)
	}
	return nil
}

// ClaimStale takes over messages another consumer left pending for longer
// than minIdle, e.g. after a worker crash.
func (c *StreamConsumer) ClaimStale(ctx context.Context, minIdle time.Duration) ([]redis.XMessage, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.consumer,
		MinIdle:  minIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to claim messages: %w", err)
	}
	return msgs, nil
}

// DecodeWebhookDelivery validates the fields written by PublishWebhook.
func DecodeWebhookDelivery(msg redis.XMessage) (WebhookDelivery, error) {
	d := WebhookDelivery{MessageID: msg.ID}

	platformID, _ := msg.Values["platform"].(string)
	id, ok := transaction.ParsePlatformID(platformID)
	if !ok {
		return d, fmt.Errorf("%w: unknown platform %q", ErrMalformedMessage, platformID)
	}
	payload, _ := msg.Values["payload"].(string)
	if payload == "" {
		return d, fmt.Errorf("%w: empty payload", ErrMalformedMessage)
	}

	d.Platform = id
	d.Payload = []byte(payload)
	d.EventID, _ = msg.Values["event_id"].(string)
	if ts, ok := msg.Values["timestamp"].(string); ok {
		if secs, err := strconv.ParseInt(ts, 10, 64); err == nil {
			d.ReceivedAt = time.Unix(secs, 0).UTC()
		}
	}
	return d, nil
}

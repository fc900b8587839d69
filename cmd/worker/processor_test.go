package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/platformsync/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStream struct {
	mu     sync.Mutex
	stale  []redis.XMessage
	acked  []string
	ackErr error
}

func (s *fakeStream) Stream() string { return "webhooks:delivery" }

func (s *fakeStream) Read(ctx context.Context) ([]redis.XMessage, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (s *fakeStream) ClaimStale(_ context.Context, _ time.Duration) ([]redis.XMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.stale
	s.stale = nil
	return out, nil
}

func (s *fakeStream) Ack(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.acked = append(s.acked, id)
	return s.ackErr
}

func (s *fakeStream) ackedIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.acked...)
}

type fakeHandler struct {
	res      reconcile.WebhookResult
	err      error
	payloads []string
}

func (h *fakeHandler) HandleWebhook(_ context.Context, _ transaction.PlatformID, payload []byte) (reconcile.WebhookResult, error) {
	h.payloads = append(h.payloads, string(payload))
	return h.res, h.err
}

type fakeMarker struct {
	mu     sync.Mutex
	states map[uuid.UUID]string
}

func newFakeMarker() *fakeMarker { return &fakeMarker{states: map[uuid.UUID]string{}} }

func (m *fakeMarker) set(id uuid.UUID, s string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[id] = s
	return nil
}

func (m *fakeMarker) MarkProcessed(_ context.Context, id uuid.UUID) error { return m.set(id, "processed") }
func (m *fakeMarker) MarkIgnored(_ context.Context, id uuid.UUID) error   { return m.set(id, "ignored") }
func (m *fakeMarker) MarkFailed(_ context.Context, id uuid.UUID, _ error) error {
	return m.set(id, "failed")
}

func delivery(id string, eventID uuid.UUID) redis.XMessage {
	return redis.XMessage{ID: id, Values: map[string]interface{}{
		"platform":  "cartpanda",
		"event_id":  eventID.String(),
		"payload":   `{"event":"order.paid"}`,
		"timestamp": "1714564800",
	}}
}

func newProcessor(h *fakeHandler) (*webhookProcessor, *fakeStream, *fakeMarker, *observability.Metrics) {
	stream := &fakeStream{}
	marker := newFakeMarker()
	metrics := observability.NewMetrics("test", prometheus.NewRegistry())
	return &webhookProcessor{
		stream:  stream,
		handler: h,
		events:  marker,
		metrics: metrics,
		logger:  zerolog.Nop(),
	}, stream, marker, metrics
}

func TestProcess_Outcomes(t *testing.T) {
	tests := []struct {
		name      string
		res       reconcile.WebhookResult
		err       error
		wantState string
		wantLabel string
		wantAck   bool
	}{
		{"processed", reconcile.WebhookResult{Event: "order.paid"}, nil, "processed", "success", true},
		{"ignored", reconcile.WebhookResult{Event: "cart.created", Ignored: true}, nil, "ignored", "ignored", true},
		{"mapping failure", reconcile.WebhookResult{}, domainErrors.ErrMapping, "failed", "failed", true},
		{"sync in progress", reconcile.WebhookResult{}, domainErrors.ErrSyncInProgress, "failed", "retry", false},
		{"store down", reconcile.WebhookResult{}, &domainErrors.PersistenceError{TransactionID: "cartpanda:1", Attempts: 3, Err: errors.New("down")}, "failed", "retry", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, stream, marker, metrics := newProcessor(&fakeHandler{res: tt.res, err: tt.err})
			eventID := uuid.New()

			p.process(context.Background(), delivery("1-0", eventID))

			assert.Equal(t, tt.wantState, marker.states[eventID])
			if tt.wantAck {
				assert.Equal(t, []string{"1-0"}, stream.ackedIDs())
			} else {
				assert.Empty(t, stream.ackedIDs())
			}
			assert.Equal(t, 1.0, promtest.ToFloat64(metrics.WorkerMessagesProcessed.WithLabelValues("webhooks:delivery", tt.wantLabel)))
		})
	}
}

func TestProcess_MalformedIsAcked(t *testing.T) {
	h := &fakeHandler{}
	p, stream, marker, metrics := newProcessor(h)

	p.process(context.Background(), redis.XMessage{ID: "2-0", Values: map[string]interface{}{"platform": "paypal", "payload": "{}"}})
	p.process(context.Background(), redis.XMessage{ID: "3-0", Values: map[string]interface{}{"platform": "yampi"}})

	assert.Equal(t, []string{"2-0", "3-0"}, stream.ackedIDs())
	assert.Empty(t, h.payloads)
	assert.Empty(t, marker.states)
	assert.Equal(t, 2.0, promtest.ToFloat64(metrics.WorkerMessagesProcessed.WithLabelValues("webhooks:delivery", "malformed")))
}

func TestProcess_MissingEventIDStillHandled(t *testing.T) {
	h := &fakeHandler{res: reconcile.WebhookResult{Event: "order.paid"}}
	p, stream, marker, _ := newProcessor(h)

	msg := delivery("4-0", uuid.New())
	delete(msg.Values, "event_id")
	p.process(context.Background(), msg)

	assert.Equal(t, []string{`{"event":"order.paid"}`}, h.payloads)
	assert.Equal(t, []string{"4-0"}, stream.ackedIDs())
	assert.Empty(t, marker.states)
}

func TestProcess_NilMetrics(t *testing.T) {
	p, stream, _, _ := newProcessor(&fakeHandler{})
	p.metrics = nil

	p.process(context.Background(), delivery("5-0", uuid.New()))
	assert.Equal(t, []string{"5-0"}, stream.ackedIDs())
}

func TestReclaim_RetriesStaleDeliveries(t *testing.T) {
	h := &fakeHandler{res: reconcile.WebhookResult{Event: "order.paid"}}
	p, stream, marker, _ := newProcessor(h)
	eventID := uuid.New()
	stream.stale = []redis.XMessage{delivery("6-0", eventID)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.reclaim(ctx, 10*time.Millisecond, time.Minute) }()

	require.Eventually(t, func() bool {
		return len(stream.ackedIDs()) == 1
	}, time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	marker.mu.Lock()
	defer marker.mu.Unlock()
	assert.Equal(t, "processed", marker.states[eventID])
}

func TestRun_StopsOnCancel(t *testing.T) {
	p, _, _, _ := newProcessor(&fakeHandler{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("run did not return after cancel")
	}
}

func TestTransient(t *testing.T) {
	assert.True(t, transient(domainErrors.ErrLockAcquisitionFailed))
	assert.True(t, transient(context.DeadlineExceeded))
	assert.False(t, transient(domainErrors.ErrInvalidPayload))
	assert.False(t, transient(errors.New("boom")))
}

package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/rs/zerolog"
)

const defaultQueueSize = 64

// AsyncNotifier forwards events to a sink from a background goroutine.
// Notify never blocks: when the queue is full the event is dropped and
// counted.
type AsyncNotifier struct {
	sink    Notifier
	queue   chan SyncEvent
	metrics *observability.Metrics
	logger  zerolog.Logger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewAsyncNotifier(sink Notifier, size int, logger zerolog.Logger, metrics *observability.Metrics) *AsyncNotifier {
	if size <= 0 {
		size = defaultQueueSize
	}
	n := &AsyncNotifier{
		sink:    sink,
		queue:   make(chan SyncEvent, size),
		metrics: metrics,
		logger:  logger,
		done:    make(chan struct{}),
	}
	go n.loop()
	return n
}

func (n *AsyncNotifier) Notify(_ context.Context, ev SyncEvent) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.drop(ev, "closed")
		return nil
	}
	select {
	case n.queue <- ev:
	default:
		n.drop(ev, "queue full")
	}
	return nil
}

func (n *AsyncNotifier) drop(ev SyncEvent, reason string) {
	if n.metrics != nil {
		n.metrics.NotificationsDropped.Inc()
	}
	n.logger.Warn().
		Str("platform", ev.Platform.String()).
		Str("reason", reason).
		Msg("Dropping sync notification")
}

func (n *AsyncNotifier) loop() {
	defer close(n.done)
	for ev := range n.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := n.sink.Notify(ctx, ev); err != nil {
			n.logger.Error().Err(err).Str("platform", ev.Platform.String()).Msg("Sync notification failed")
		}
		cancel()
	}
}

// Close stops accepting events and waits for queued ones to be delivered
// or for ctx to expire.
func (n *AsyncNotifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.queue)
	}
	n.mu.Unlock()

	select {
	case <-n.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogNotifier writes each event as a structured log line.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, ev SyncEvent) error {
	e := n.logger.Info()
	if ev.Failed > 0 {
		e = n.logger.Warn()
	}
	e.Str("platform", ev.Platform.String()).
		Str("trigger", string(ev.Trigger)).
		Str("outcome", string(ev.Outcome)).
		Int("total", ev.Total).
		Int("succeeded", ev.Succeeded).
		Int("failed", ev.Failed).
		Strs("failed_ids", ev.FailedIDs).
		Msg("Sync finished")
	return nil
}

// MultiNotifier fans an event out to every notifier, returning the first error.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, ev SyncEvent) error {
	var first error
	for _, n := range m {
		if err := n.Notify(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, SyncEvent) error { return nil }

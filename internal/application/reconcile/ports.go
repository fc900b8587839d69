package reconcile

import (
	"context"
	"time"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
)

// Locker serializes work on one key across processes. Acquire returns
// ErrSyncInProgress when another holder keeps the key past the retry budget.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// StatusStore keeps the last known SyncStatus per platform.
type StatusStore interface {
	Get(ctx context.Context, id transaction.PlatformID) (SyncStatus, bool, error)
	Put(ctx context.Context, status SyncStatus) error
}

// Notifier receives a SyncEvent after every finished cycle. Implementations
// must not block the caller for long; see AsyncNotifier.
type Notifier interface {
	Notify(ctx context.Context, ev SyncEvent) error
}

type Trigger string

const (
	TriggerManual    Trigger = "manual"
	TriggerScheduled Trigger = "scheduled"
)

// SyncEvent summarizes one finished cycle for downstream consumers.
type SyncEvent struct {
	Platform   transaction.PlatformID `json:"platform"`
	Trigger    Trigger                `json:"trigger"`
	Outcome    platform.Outcome       `json:"outcome"`
	Total      int                    `json:"total"`
	Succeeded  int                    `json:"succeeded"`
	Failed     int                    `json:"failed"`
	FailedIDs  []string               `json:"failedIds,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
}

// WebhookResult describes what HandleWebhook did with a delivery.
type WebhookResult struct {
	Event   string
	Ignored bool
}

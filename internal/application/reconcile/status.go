package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
)

// SyncStatus is the externally visible state of a platform's sync loop.
type SyncStatus struct {
	Platform    transaction.PlatformID `json:"platform"`
	Running     bool                   `json:"running"`
	LastSyncAt  *time.Time             `json:"lastSyncAt"`
	LastOutcome platform.Outcome       `json:"lastOutcome,omitempty"`
	Total       int                    `json:"total"`
	Succeeded   int                    `json:"succeeded"`
	Skipped     int                    `json:"skipped"`
	Failed      int                    `json:"failed"`
	DurationMs  int64                  `json:"durationMs"`
	LastError   string                 `json:"lastError,omitempty"`
}

// MemoryStatusStore is a process-local StatusStore.
type MemoryStatusStore struct {
	mu       sync.RWMutex
	statuses map[transaction.PlatformID]SyncStatus
}

func NewMemoryStatusStore() *MemoryStatusStore {
	return &MemoryStatusStore{statuses: make(map[transaction.PlatformID]SyncStatus)}
}

func (s *MemoryStatusStore) Get(_ context.Context, id transaction.PlatformID) (SyncStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.statuses[id]
	return st, ok, nil
}

func (s *MemoryStatusStore) Put(_ context.Context, status SyncStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[status.Platform] = status
	return nil
}

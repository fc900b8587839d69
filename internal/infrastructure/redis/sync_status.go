package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cassiomorais/platformsync/internal/application/reconcile"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/redis/go-redis/v9"
)

const syncStatusKey = "sync:status"

var _ reconcile.StatusStore = (*StatusStore)(nil)

// StatusStore keeps one JSON-encoded SyncStatus per platform in a hash so
// the API and worker processes see the same state.
type StatusStore struct {
	client *redis.Client
	key    string
}

func NewStatusStore(client *redis.Client) *StatusStore {
	return &StatusStore{client: client, key: syncStatusKey}
}

func (s *StatusStore) Get(ctx context.Context, id transaction.PlatformID) (reconcile.SyncStatus, bool, error) {
	raw, err := s.client.HGet(ctx, s.key, id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return reconcile.SyncStatus{}, false, nil
	}
	if err != nil {
		return reconcile.SyncStatus{}, false, fmt.Errorf("failed to get sync status: %w", err)
	}
	var st reconcile.SyncStatus
	if err := json.Unmarshal(raw, &st); err != nil {
		return reconcile.SyncStatus{}, false, fmt.Errorf("failed to decode sync status: %w", err)
	}
	return st, true, nil
}

func (s *StatusStore) Put(ctx context.Context, status reconcile.SyncStatus) error {
	raw, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to encode sync status: %w", err)
	}
	if err := s.client.HSet(ctx, s.key, status.Platform.String(), raw).Err(); err != nil {
		return fmt.Errorf("failed to store sync status: %w", err)
	}
	return nil
}

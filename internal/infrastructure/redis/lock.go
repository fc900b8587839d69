package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

var (
	// Only the owner may release
	releaseLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		else
			return 0
		end
	`)

	extendLockScript = redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("pexpire", KEYS[1], ARGV[2])
		else
			return 0
		end
	`)
)

// DistributedLock is a single-owner lease on a Redis key.
type DistributedLock struct {
	client   *redis.Client
	key      string
	value    string
	ttl      time.Duration
	acquired bool
}

func NewDistributedLock(client *redis.Client, key string, ttl time.Duration) *DistributedLock {
	return &DistributedLock{
		client: client,
		key:    "lock:" + key,
		value:  uuid.New().String(),
		ttl:    ttl,
	}
}

// Acquire attempts to acquire the lock
func (l *DistributedLock) Acquire(ctx context.Context) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock: %w", err)
	}
	l.acquired = ok
	return ok, nil
}

// AcquireWithRetry polls until the lock is free. It returns
// ErrLockAcquisitionFailed once maxRetries attempts found it held.
func (l *DistributedLock) AcquireWithRetry(ctx context.Context, maxRetries int, retryDelay time.Duration) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	for i := 0; i < maxRetries; i++ {
		acquired, err := l.Acquire(ctx)
		if err != nil {
			return err
		}
		if acquired {
			return nil
		}
		if i == maxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
		}
	}
	return fmt.Errorf("%s: %w", l.key, domainerrors.ErrLockAcquisitionFailed)
}

func (l *DistributedLock) Extend(ctx context.Context, ttl time.Duration) error {
	if !l.acquired {
		return domainerrors.ErrLockNotHeld
	}
	n, err := extendLockScript.Run(ctx, l.client, []string{l.key}, l.value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("failed to extend lock: %w", err)
	}
	if n == 0 {
		l.acquired = false
		return domainerrors.ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) Release(ctx context.Context) error {
	if !l.acquired {
		return nil
	}
	l.acquired = false
	n, err := releaseLockScript.Run(ctx, l.client, []string{l.key}, l.value).Int64()
	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	if n == 0 {
		return domainerrors.ErrLockNotHeld
	}
	return nil
}

func (l *DistributedLock) IsAcquired() bool {
	return l.acquired
}

// Locker hands out DistributedLocks for the sync orchestrator. A held lock
// is renewed every ttl/3 until released, so cycles longer than the TTL keep
// their lease.
type Locker struct {
	client     *redis.Client
	ttl        time.Duration
	retries    int
	retryDelay time.Duration
	logger     zerolog.Logger
}

func NewLocker(client *redis.Client, ttl time.Duration, retries int, retryDelay time.Duration, logger zerolog.Logger) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{client: client, ttl: ttl, retries: retries, retryDelay: retryDelay, logger: logger}
}

// Acquire maps a lock held elsewhere to ErrSyncInProgress.
func (lk *Locker) Acquire(ctx context.Context, key string) (func(context.Context) error, error) {
	lock := NewDistributedLock(lk.client, key, lk.ttl)
	if err := lock.AcquireWithRetry(ctx, lk.retries, lk.retryDelay); err != nil {
		if errors.Is(err, domainerrors.ErrLockAcquisitionFailed) {
			return nil, fmt.Errorf("%w: %v", domainerrors.ErrSyncInProgress, err)
		}
		return nil, err
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		lk.renew(lock, stop)
	}()

	return func(ctx context.Context) error {
		close(stop)
		<-done
		return lock.Release(ctx)
	}, nil
}

func (lk *Locker) renew(lock *DistributedLock, stop <-chan struct{}) {
	ticker := time.NewTicker(lk.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), lk.ttl/3)
			err := lock.Extend(ctx, lk.ttl)
			cancel()
			if err != nil {
				lk.logger.Warn().Err(err).Str("key", lock.key).Msg("Failed to extend lock")
				return
			}
		}
	}
}

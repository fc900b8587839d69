package platform

import (
	"context"
	"errors"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/pkg/retry"
	"github.com/rs/zerolog"
)

// RetryingStore retries failed upserts with exponential backoff.
type RetryingStore struct {
	next   transaction.Store
	cfg    retry.Config
	logger zerolog.Logger
}

func NewRetryingStore(next transaction.Store, cfg retry.Config, logger zerolog.Logger) *RetryingStore {
	return &RetryingStore{next: next, cfg: cfg, logger: logger}
}

func (s *RetryingStore) Upsert(ctx context.Context, tx *transaction.Transaction) error {
	cfg := s.cfg
	cfg.RetryIf = func(err error) bool {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	cfg.OnRetry = func(attempt uint, err error) {
		s.logger.Warn().Err(err).
			Str("transaction_id", tx.ID).
			Uint("attempt", attempt).
			Msg("Upsert failed, retrying")
	}

	attempts, err := retry.DoCount(ctx, cfg, func() error {
		return s.next.Upsert(ctx, tx)
	})
	if err == nil {
		return nil
	}

	// Unwrap a PersistenceError from the inner store so the attempt count is ours.
	var inner *domainerrors.PersistenceError
	if errors.As(err, &inner) {
		err = inner.Err
	}
	return &domainerrors.PersistenceError{TransactionID: tx.ID, Attempts: int(attempts), Err: err}
}

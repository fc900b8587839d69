package platform

import (
	"context"
	"errors"
	"fmt"
	"time"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/rs/zerolog"
)

// WebhookDecoder is implemented by adapters that can decode their webhook
// envelope without acting on it.
type WebhookDecoder interface {
	DecodeWebhook(payload []byte) (WebhookEvent, error)
}

// Sync runs one fetch-map-upsert cycle for a. Orders are written one at a
// time in fetch order. A mapping or store failure is recorded against the
// item and the cycle moves on; the returned error is a *SyncError when any
// item failed. A fetch failure aborts the cycle.
func Sync(ctx context.Context, a Adapter, store transaction.Store, logger zerolog.Logger) (*SyncReport, error) {
	report := &SyncReport{Platform: a.Platform(), StartedAt: time.Now().UTC()}

	orders, err := a.FetchOrders(ctx)
	if err != nil {
		report.FinishedAt = time.Now().UTC()
		return report, fmt.Errorf("fetch orders: %w", err)
	}
	report.Total = len(orders)

	for i, order := range orders {
		tx, err := a.MapOrderToTransaction(order)
		if err != nil {
			ref := fmt.Sprintf("#%d", i)
			var mapErr *domainerrors.MappingError
			if errors.As(err, &mapErr) && mapErr.OrderRef != "" {
				ref = mapErr.OrderRef
			}
			report.Skipped++
			report.Failures = append(report.Failures, domainerrors.ItemFailure{
				OrderRef: ref,
				Stage:    domainerrors.StageMap,
				Err:      err,
			})
			logger.Warn().Err(err).Str("order_ref", ref).Msg("Skipping unmappable order")
			continue
		}

		if err := upsert(ctx, store, tx); err != nil {
			report.Failures = append(report.Failures, domainerrors.ItemFailure{
				TransactionID: tx.ID,
				OrderRef:      tx.OrderID,
				Stage:         domainerrors.StagePersist,
				Err:           err,
			})
			logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("Failed to persist transaction")
			continue
		}
		report.Succeeded++
	}

	report.FinishedAt = time.Now().UTC()
	return report, report.Err()
}

// HandleOrderWebhook maps and upserts the order carried by ev. Events outside
// the order lifecycle are ignored.
func HandleOrderWebhook(ctx context.Context, a Adapter, store transaction.Store, ev WebhookEvent, logger zerolog.Logger) error {
	if !ev.IsOrderEvent() {
		logger.Debug().Str("event", ev.Event).Msg("Ignoring non-order webhook event")
		return nil
	}

	tx, err := a.MapOrderToTransaction(ev.Data)
	if err != nil {
		return fmt.Errorf("webhook %s: %w", ev.Event, err)
	}
	if err := upsert(ctx, store, tx); err != nil {
		return fmt.Errorf("webhook %s: %w", ev.Event, err)
	}

	logger.Info().
		Str("event", ev.Event).
		Str("transaction_id", tx.ID).
		Str("status", string(tx.Status)).
		Msg("Webhook applied")
	return nil
}

func upsert(ctx context.Context, store transaction.Store, tx *transaction.Transaction) error {
	err := store.Upsert(ctx, tx)
	if err == nil {
		return nil
	}
	var pErr *domainerrors.PersistenceError
	if errors.As(err, &pErr) {
		return err
	}
	return &domainerrors.PersistenceError{TransactionID: tx.ID, Attempts: 1, Err: err}
}

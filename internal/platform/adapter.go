// Package platform defines the contract every commerce platform integration
// satisfies, plus the plumbing they share: the outbound HTTP client, the
// sync cycle and webhook dispatch.
package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
)

// RemoteOrder is an order document as the platform returned it. Each adapter
// decodes its own shape.
type RemoteOrder = json.RawMessage

// LifecycleEvents are the order events registered with every platform.
var LifecycleEvents = []string{
	"order.created",
	"order.paid",
	"order.cancelled",
	"order.refunded",
	"order.expired",
}

type Adapter interface {
	Platform() transaction.PlatformID

	// FetchOrders returns every order visible to the configured credentials.
	FetchOrders(ctx context.Context) ([]RemoteOrder, error)

	// MapOrderToTransaction never fails on a well-formed order carrying an id.
	MapOrderToTransaction(order RemoteOrder) (*transaction.Transaction, error)

	// MapStatus is case-insensitive; unrecognized statuses map to failed.
	MapStatus(native string) transaction.Status

	SyncTransactions(ctx context.Context) (*SyncReport, error)
	CreateWebhook(ctx context.Context, url string) error
	HandleWebhook(ctx context.Context, payload []byte) error
}

// WebhookVerifier is implemented by adapters that sign their deliveries.
type WebhookVerifier interface {
	VerifyWebhook(payload []byte, headers http.Header) error
}

// WebhookEvent is an inbound delivery after envelope decoding.
type WebhookEvent struct {
	Event string
	Data  RemoteOrder
}

// IsOrderEvent reports whether the event carries an order lifecycle change.
func (e WebhookEvent) IsOrderEvent() bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(e.Event)), "order.")
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailed  Outcome = "failed"
)

// SyncReport is the per-item accounting of one sync cycle.
type SyncReport struct {
	Platform   transaction.PlatformID     `json:"platform"`
	Total      int                        `json:"total"`
	Succeeded  int                        `json:"succeeded"`
	Skipped    int                        `json:"skipped"`
	Failures   []domainerrors.ItemFailure `json:"-"`
	StartedAt  time.Time                  `json:"startedAt"`
	FinishedAt time.Time                  `json:"finishedAt"`
}

// Outcome classifies the report. A cycle where every order failed counts as
// failed only when there was at least one order to process.
func (r *SyncReport) Outcome() Outcome {
	switch {
	case len(r.Failures) == 0:
		return OutcomeSuccess
	case r.Succeeded == 0:
		return OutcomeFailed
	default:
		return OutcomePartial
	}
}

func (r *SyncReport) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Err returns the aggregate SyncError, or nil when every item succeeded.
func (r *SyncReport) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	return &domainerrors.SyncError{
		Platform:  string(r.Platform),
		Total:     r.Total,
		Succeeded: r.Succeeded,
		Failures:  r.Failures,
	}
}

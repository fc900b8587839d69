package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BaseTime is a fixed reference instant for deterministic fixtures.
var BaseTime = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func NopLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func NewTestTransaction(p transaction.PlatformID, remoteID string, status transaction.Status, updatedAt time.Time) *transaction.Transaction {
	return &transaction.Transaction{
		ID:         transaction.NewID(p, remoteID),
		PlatformID: p,
		OrderID:    remoteID,
		Amount:     decimal.NewFromInt(100),
		Currency:   "BRL",
		Status:     status,
		CreatedAt:  updatedAt,
		UpdatedAt:  updatedAt,
	}
}

// MockOrder builds a RemoteOrder understood by MockAdapter.
func MockOrder(id, status string, updatedAt time.Time) platform.RemoteOrder {
	b, _ := json.Marshal(map[string]any{
		"id":         id,
		"status":     status,
		"amount":     "100.00",
		"updated_at": updatedAt.Format(time.RFC3339),
	})
	return b
}

// MockWebhook wraps order in the MockAdapter webhook envelope.
func MockWebhook(event string, order platform.RemoteOrder) []byte {
	return []byte(fmt.Sprintf(`{"event":%q,"data":%s}`, event, order))
}

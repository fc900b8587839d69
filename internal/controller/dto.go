package controller

import (
	"time"

	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
)

// --- Request DTOs ---

// RegisterWebhookRequest asks a platform to deliver order events to URL.
type RegisterWebhookRequest struct {
	URL string `json:"url" validate:"required,url"`
}

// ListTransactionsQuery holds the query string of GET /transactions.
type ListTransactionsQuery struct {
	Platform  string `validate:"omitempty,oneof=cartpanda yampi kiwify"`
	Status    string `validate:"omitempty,oneof=completed pending failed"`
	Limit     int    `validate:"gte=0,lte=500"`
	Offset    int    `validate:"gte=0"`
	SortBy    string `validate:"omitempty,oneof=created_at updated_at amount status order_id"`
	SortOrder string `validate:"omitempty,oneof=asc desc"`
}

func (q ListTransactionsQuery) filter() transaction.ListFilter {
	f := transaction.ListFilter{
		Limit:     q.Limit,
		Offset:    q.Offset,
		SortBy:    q.SortBy,
		SortOrder: q.SortOrder,
	}
	if q.Platform != "" {
		p := transaction.PlatformID(q.Platform)
		f.PlatformID = &p
	}
	if q.Status != "" {
		s := transaction.Status(q.Status)
		f.Status = &s
	}
	return f
}

// --- Response DTOs ---

// SyncResponse is the per-item report of a manual sync.
type SyncResponse struct {
	Platform   transaction.PlatformID `json:"platform"`
	Outcome    platform.Outcome       `json:"outcome"`
	Total      int                    `json:"total"`
	Succeeded  int                    `json:"succeeded"`
	Skipped    int                    `json:"skipped"`
	Failed     int                    `json:"failed"`
	Failures   []FailureResponse      `json:"failures"`
	StartedAt  time.Time              `json:"startedAt"`
	FinishedAt time.Time              `json:"finishedAt"`
	DurationMs int64                  `json:"durationMs"`
}

// FailureResponse describes one order that did not reach the store.
type FailureResponse struct {
	TransactionID string `json:"transactionId,omitempty"`
	OrderRef      string `json:"orderRef,omitempty"`
	Stage         string `json:"stage"`
	Error         string `json:"error"`
}

func toSyncResponse(r *platform.SyncReport) SyncResponse {
	failures := make([]FailureResponse, 0, len(r.Failures))
	for _, f := range r.Failures {
		msg := ""
		if f.Err != nil {
			msg = f.Err.Error()
		}
		failures = append(failures, FailureResponse{
			TransactionID: f.TransactionID,
			OrderRef:      f.OrderRef,
			Stage:         string(f.Stage),
			Error:         msg,
		})
	}
	return SyncResponse{
		Platform:   r.Platform,
		Outcome:    r.Outcome(),
		Total:      r.Total,
		Succeeded:  r.Succeeded,
		Skipped:    r.Skipped,
		Failed:     len(r.Failures),
		Failures:   failures,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		DurationMs: r.Duration().Milliseconds(),
	}
}

// WebhookResponse acknowledges an inbound delivery.
type WebhookResponse struct {
	Status  string `json:"status"`
	EventID string `json:"eventId,omitempty"`
	Event   string `json:"event,omitempty"`
}

// RegisterWebhookResponse confirms a webhook registration.
type RegisterWebhookResponse struct {
	Platform transaction.PlatformID `json:"platform"`
	URL      string                 `json:"url"`
	Status   string                 `json:"status"`
}

// ListTransactionsResponse is a page of stored transactions.
type ListTransactionsResponse struct {
	Transactions []*transaction.Transaction `json:"transactions"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

// ErrorResponse represents an error in API responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

package controller

import (
	"context"
	"errors"
	"net/http"

	"github.com/cassiomorais/platformsync/internal/application/reconcile"
	domainErrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
)

// SyncService is the orchestrator surface the HTTP layer drives.
type SyncService interface {
	Sync(ctx context.Context, id transaction.PlatformID) (*platform.SyncReport, error)
	Status(ctx context.Context, id transaction.PlatformID) (reconcile.SyncStatus, error)
	Statuses(ctx context.Context) ([]reconcile.SyncStatus, error)
	HandleWebhook(ctx context.Context, id transaction.PlatformID, payload []byte) (reconcile.WebhookResult, error)
}

// PlatformController exposes sync status, manual sync and webhook
// registration per platform.
type PlatformController struct {
	syncer   SyncService
	registry *platform.Registry
}

func NewPlatformController(syncer SyncService, registry *platform.Registry) *PlatformController {
	return &PlatformController{syncer: syncer, registry: registry}
}

// List handles GET /api/v1/platforms
func (h *PlatformController) List(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.syncer.Statuses(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statuses)
}

// Status handles GET /api/v1/platforms/{platform}/status
func (h *PlatformController) Status(w http.ResponseWriter, r *http.Request) {
	id, err := platformParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	st, err := h.syncer.Status(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Sync handles POST /api/v1/platforms/{platform}/sync. Item failures still
// answer 200 with the failures listed in the report.
func (h *PlatformController) Sync(w http.ResponseWriter, r *http.Request) {
	id, err := platformParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	report, err := h.syncer.Sync(r.Context(), id)
	var syncErr *domainErrors.SyncError
	if err != nil && (report == nil || !errors.As(err, &syncErr)) {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSyncResponse(report))
}

// RegisterWebhook handles POST /api/v1/platforms/{platform}/webhooks
func (h *PlatformController) RegisterWebhook(w http.ResponseWriter, r *http.Request) {
	id, err := platformParam(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req RegisterWebhookRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeError(w, err)
		return
	}

	a, err := h.registry.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := a.CreateWebhook(r.Context(), req.URL); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, RegisterWebhookResponse{
		Platform: id,
		URL:      req.URL,
		Status:   "registered",
	})
}

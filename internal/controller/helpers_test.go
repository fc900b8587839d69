package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	domainErrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	writeJSON(w, http.StatusAccepted, WebhookResponse{Status: "accepted", EventID: "e1"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"status":"accepted","eventId":"e1"}`, w.Body.String())
}

func TestWriteError_Mappings(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
	}{
		{"transaction not found", domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
		{"unknown platform", fmt.Errorf("unknown platform %q: %w", "shopify", domainErrors.ErrPlatformNotFound), http.StatusNotFound, "platform_not_found"},
		{"platform not configured", fmt.Errorf("kiwify: %w", domainErrors.ErrPlatformNotConfigured), http.StatusNotFound, "platform_not_configured"},
		{"invalid signature", domainErrors.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
		{"invalid payload", fmt.Errorf("%w: missing event", domainErrors.ErrInvalidPayload), http.StatusBadRequest, "invalid_payload"},
		{"mapping", &domainErrors.MappingError{Platform: "yampi", Field: "id"}, http.StatusUnprocessableEntity, "mapping_error"},
		{"sync in progress", domainErrors.ErrSyncInProgress, http.StatusConflict, "sync_in_progress"},
		{"lock held", fmt.Errorf("%w: sync:yampi", domainErrors.ErrLockAcquisitionFailed), http.StatusConflict, "sync_in_progress"},
		{"upstream status", domainErrors.NewUpstreamStatusError("cartpanda", "fetch orders", 503, "down"), http.StatusBadGateway, "upstream_error"},
		{"upstream timeout", fmt.Errorf("fetch orders: %w", domainErrors.NewUpstreamTimeoutError("yampi", "fetch orders", errors.New("deadline"))), http.StatusGatewayTimeout, "upstream_timeout"},
		{"persistence", &domainErrors.PersistenceError{TransactionID: "yampi:1", Attempts: 3, Err: errors.New("conn refused")}, http.StatusServiceUnavailable, "persistence_error"},
		{"validation", domainErrors.NewValidationError("url", "required validation failed"), http.StatusBadRequest, "validation_error"},
		{"body too large", &http.MaxBytesError{Limit: 10}, http.StatusRequestEntityTooLarge, "payload_too_large"},
		{"domain error", domainErrors.NewDomainError("custom_error", "custom error message", nil), http.StatusUnprocessableEntity, "custom_error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			writeError(w, tt.err)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Equal(t, tt.expectedCode, decodeError(t, w).Code)
		})
	}
}

func TestWriteError_HidesInternalDetails(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, &domainErrors.PersistenceError{TransactionID: "yampi:1", Err: errors.New("password=hunter2")})
	assert.Equal(t, "transaction store unavailable, please retry", decodeError(t, w).Error)

	w = httptest.NewRecorder()
	writeError(w, errors.New("pq: relation missing"))
	assert.Equal(t, "internal server error", decodeError(t, w).Error)
}

func TestDecodeAndValidate(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"valid", `{"url":"https://hooks.example.com/yampi"}`, ""},
		{"missing url", `{}`, "URL"},
		{"not a url", `{"url":"not a url"}`, "URL"},
		{"invalid json", `{"url":`, "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))
			var dst RegisterWebhookRequest
			err := decodeAndValidate(req, &dst)
			if tt.wantField == "" {
				require.NoError(t, err)
				assert.Equal(t, "https://hooks.example.com/yampi", dst.URL)
				return
			}
			var ve *domainErrors.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tt.wantField, ve.Field)
		})
	}
}

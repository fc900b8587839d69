package controller

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	domainErrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

const maxRequestBodySize = 1 << 20

var validate = validator.New()

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domainErrors.ErrTransactionNotFound, http.StatusNotFound, "not_found"},
	{domainErrors.ErrPlatformNotFound, http.StatusNotFound, "platform_not_found"},
	{domainErrors.ErrPlatformNotConfigured, http.StatusNotFound, "platform_not_configured"},
	{domainErrors.ErrInvalidSignature, http.StatusUnauthorized, "invalid_signature"},
	{domainErrors.ErrInvalidPayload, http.StatusBadRequest, "invalid_payload"},
	{domainErrors.ErrMapping, http.StatusUnprocessableEntity, "mapping_error"},
	{domainErrors.ErrSyncInProgress, http.StatusConflict, "sync_in_progress"},
	{domainErrors.ErrLockAcquisitionFailed, http.StatusConflict, "sync_in_progress"},
	{domainErrors.ErrPersistence, http.StatusServiceUnavailable, "persistence_error"},
	{domainErrors.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{domainErrors.ErrForbidden, http.StatusForbidden, "forbidden"},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	resp := ErrorResponse{Error: err.Error()}

	var validationErr *domainErrors.ValidationError
	if errors.As(err, &validationErr) {
		resp.Code = "validation_error"
		writeJSON(w, http.StatusBadRequest, resp)
		return
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		resp.Code = "payload_too_large"
		writeJSON(w, http.StatusRequestEntityTooLarge, resp)
		return
	}

	var upstreamErr *domainErrors.UpstreamError
	if errors.As(err, &upstreamErr) {
		resp.Code = "upstream_error"
		status := http.StatusBadGateway
		if upstreamErr.Timeout {
			resp.Code = "upstream_timeout"
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, resp)
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			resp.Code = m.code
			if m.err == domainErrors.ErrPersistence {
				resp.Error = "transaction store unavailable, please retry"
			}
			writeJSON(w, m.status, resp)
			return
		}
	}

	var domainErr *domainErrors.DomainError
	if errors.As(err, &domainErr) {
		resp.Code = domainErr.Code
		writeJSON(w, http.StatusUnprocessableEntity, resp)
		return
	}

	log.Error().Err(err).Msg("unhandled error in handler")
	resp.Code = "internal_error"
	resp.Error = "internal server error"
	writeJSON(w, http.StatusInternalServerError, resp)
}

func decodeAndValidate(r *http.Request, dst any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodySize)).Decode(dst); err != nil {
		return domainErrors.NewValidationError("body", "invalid JSON: "+err.Error())
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	if err := validate.Struct(v); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return domainErrors.NewValidationError(ve[0].Field(), ve[0].Tag()+" validation failed")
		}
		return domainErrors.NewValidationError("body", err.Error())
	}
	return nil
}

// platformParam reads the {platform} path segment. Unknown names surface as
// ErrPlatformNotFound so they render as 404.
func platformParam(r *http.Request) (transaction.PlatformID, error) {
	raw := chi.URLParam(r, "platform")
	id, ok := transaction.ParsePlatformID(raw)
	if !ok {
		return "", domainErrors.NewDomainError("platform_not_found", "unknown platform "+raw, domainErrors.ErrPlatformNotFound)
	}
	return id, nil
}

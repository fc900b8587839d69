package middleware

import (
	"bytes"
	"context"
	"net/http"
	"time"

	redisinfra "github.com/cassiomorais/platformsync/internal/infrastructure/redis"
	"github.com/rs/zerolog"
)

const maxIdempotencyBodySize = 1 << 20

// IdempotencyCache stores replayable responses keyed by Idempotency-Key.
// Get returns nil, nil when the key is unknown.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (*redisinfra.IdempotencyEntry, error)
	Set(ctx context.Context, e *redisinfra.IdempotencyEntry) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped by method and route so one key cannot replay another
// endpoint's answer. 5xx responses are not stored and may be retried.
func Idempotency(cache IdempotencyCache, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Idempotency-Key")
			if header == "" {
				next.ServeHTTP(w, r)
				return
			}
			key := r.Method + ":" + r.URL.Path + ":" + header

			entry, err := cache.Get(r.Context(), key)
			if err != nil {
				logger.Warn().Err(err).Msg("Idempotency lookup failed, serving request")
			}
			if err == nil && entry != nil {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(entry.ResponseStatus)
				_, _ = w.Write([]byte(entry.ResponseBody))
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode >= 500 || rec.bodyTruncated {
				return
			}
			err = cache.Set(context.WithoutCancel(r.Context()), &redisinfra.IdempotencyEntry{
				Key:            key,
				ResponseStatus: rec.statusCode,
				ResponseBody:   rec.body.String(),
				CreatedAt:      time.Now().UTC(),
			})
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to store idempotent response")
			}
		})
	}
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}

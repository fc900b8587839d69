package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/go-chi/chi/v5"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_LabelsByRoutePattern(t *testing.T) {
	metrics := observability.NewTestMetrics()

	r := chi.NewRouter()
	r.Use(Metrics(metrics))
	r.Get("/api/v1/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	for _, id := range []string{"cartpanda:1", "yampi:2", "kiwify:3"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+id, nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	assert.Equal(t, 3.0, promtest.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, "/api/v1/transactions/{id}", "200")))
	assert.Equal(t, 1, promtest.CollectAndCount(metrics.HTTPRequestDuration))
}

func TestMetrics_StatusCodes(t *testing.T) {
	tests := []struct {
		name   string
		status int
		label  string
	}{
		{"accepted", http.StatusAccepted, "202"},
		{"unauthorized", http.StatusUnauthorized, "401"},
		{"conflict", http.StatusConflict, "409"},
		{"bad gateway", http.StatusBadGateway, "502"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := observability.NewTestMetrics()
			r := chi.NewRouter()
			r.Use(Metrics(metrics))
			r.Post("/webhooks/{platform}", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/yampi", nil))

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, 1.0, promtest.ToFloat64(
				metrics.HTTPRequestsTotal.WithLabelValues(http.MethodPost, "/webhooks/{platform}", tt.label)))
		})
	}
}

func TestMetrics_UnmatchedRoute(t *testing.T) {
	metrics := observability.NewTestMetrics()
	h := Metrics(metrics)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	for _, path := range []string{"/a", "/b", "/c"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	assert.Equal(t, 3.0, promtest.ToFloat64(
		metrics.HTTPRequestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "200")))
}

package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	redisinfra "github.com/cassiomorais/platformsync/internal/infrastructure/redis"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*redisinfra.IdempotencyEntry
	getErr  error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]*redisinfra.IdempotencyEntry{}}
}

func (c *memoryCache) Get(_ context.Context, key string) (*redisinfra.IdempotencyEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, c.getErr
	}
	return c.entries[key], nil
}

func (c *memoryCache) Set(_ context.Context, e *redisinfra.IdempotencyEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[e.Key]; !ok {
		c.entries[e.Key] = e
	}
	return nil
}

func countingHandler(calls *int, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*calls++
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func post(h http.Handler, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, nil)
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	cache := newMemoryCache()
	calls := 0
	h := Idempotency(cache, zerolog.Nop())(countingHandler(&calls, http.StatusCreated, `{"registered":true}`))

	first := post(h, "/api/v1/platforms/yampi/webhooks", "k1")
	second := post(h, "/api/v1/platforms/yampi/webhooks", "k1")

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, `{"registered":true}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.Empty(t, first.Header().Get("X-Idempotency-Replayed"))
}

func TestIdempotency_KeyScopedByRoute(t *testing.T) {
	cache := newMemoryCache()
	calls := 0
	h := Idempotency(cache, zerolog.Nop())(countingHandler(&calls, http.StatusOK, `{}`))

	post(h, "/api/v1/platforms/yampi/webhooks", "same")
	post(h, "/api/v1/platforms/kiwify/webhooks", "same")

	assert.Equal(t, 2, calls)
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	cache := newMemoryCache()
	calls := 0
	h := Idempotency(cache, zerolog.Nop())(countingHandler(&calls, http.StatusBadGateway, `{"code":"upstream_error"}`))

	post(h, "/x", "k")
	w := post(h, "/x", "k")

	assert.Equal(t, 2, calls)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Empty(t, cache.entries)
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	cache := newMemoryCache()
	calls := 0
	h := Idempotency(cache, zerolog.Nop())(countingHandler(&calls, http.StatusOK, `{}`))

	post(h, "/x", "")
	post(h, "/x", "")

	assert.Equal(t, 2, calls)
	assert.Empty(t, cache.entries)
}

func TestIdempotency_CacheErrorServesRequest(t *testing.T) {
	cache := newMemoryCache()
	cache.getErr = errors.New("redis down")
	calls := 0
	h := Idempotency(cache, zerolog.Nop())(countingHandler(&calls, http.StatusOK, `{}`))

	w := post(h, "/x", "k")

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResponseRecorder_LargeBodyNotStored(t *testing.T) {
	inner := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: inner, body: &bytes.Buffer{}, statusCode: http.StatusOK}

	large := bytes.Repeat([]byte("x"), maxIdempotencyBodySize+100)
	n, err := rec.Write(large)
	require.NoError(t, err)

	assert.Equal(t, len(large), n)
	assert.True(t, rec.bodyTruncated)
	assert.Zero(t, rec.body.Len())
	assert.Equal(t, len(large), inner.Body.Len())
}

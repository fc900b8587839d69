package cartpanda

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/cassiomorais/platformsync/internal/testutil"
	"github.com/cassiomorais/platformsync/pkg/retry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const order42 = `{
	"id": 42,
	"order_number": "CP-1042",
	"status": "approved",
	"total_amount": 100.0,
	"customer": {"name": "Ana Souza", "email": "ana@example.com", "phone": "+5511999990000", "document": "12345678900",
		"address": "Rua A, 10", "city": "São Paulo", "state": "SP", "zipcode": "01000-000"},
	"items": [{"product_id": "p1", "name": "Curso", "price": 100.0, "quantity": 1}],
	"payment_method": "pix",
	"payment_details": {"installments": 1, "installment_amount": "100.00", "payment_link": "https://pay/42"},
	"affiliate": {"id": "af1", "name": "Bruno", "commission": 10},
	"funnel": {"id": "f1", "name": "Launch", "step": "checkout"},
	"utm_source": "instagram",
	"utm_campaign": "may",
	"created_at": "2024-05-01T09:00:00-03:00",
	"updated_at": "2024-05-01 12:05:00"
}`

func newTestAdapter(t *testing.T, baseURL string, store transaction.Store) *Adapter {
	t.Helper()
	cfg := NewSandboxConfig("key", "secret")
	cfg.BaseURL = baseURL
	a, err := New(cfg, store,
		platform.WithRetry(retry.Config{MaxAttempts: 1}),
		platform.WithTimeout(time.Second),
	)
	require.NoError(t, err)
	return a
}

func TestConfig_Validate(t *testing.T) {
	assert.ErrorIs(t, NewConfig("", "s").Validate(), ErrConfigMissingAPIKey)
	assert.ErrorIs(t, NewConfig("k", " ").Validate(), ErrConfigMissingSecretKey)
	assert.NoError(t, NewConfig("k", "s").Validate())

	assert.Equal(t, ProductionBaseURL, NewConfig("k", "s").baseURL())
	assert.Equal(t, SandboxBaseURL, NewSandboxConfig("k", "s").baseURL())
	assert.Equal(t, SandboxBaseURL, (&Config{Sandbox: true}).baseURL())
}

func TestNew_CopiesConfig(t *testing.T) {
	cfg := NewConfig("k", "s")
	a, err := New(cfg, testutil.NewMockTransactionRepository())
	require.NoError(t, err)

	cfg.WebhookSecret = "changed"
	assert.Empty(t, a.cfg.WebhookSecret)
}

func TestMapOrderToTransaction_Order42(t *testing.T) {
	a := newTestAdapter(t, "http://unused", testutil.NewMockTransactionRepository())

	tx, err := a.MapOrderToTransaction(platform.RemoteOrder(order42))
	require.NoError(t, err)

	assert.Equal(t, "cartpanda:42", tx.ID)
	assert.Equal(t, transaction.PlatformCartPanda, tx.PlatformID)
	assert.Equal(t, "CP-1042", tx.OrderID)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.True(t, decimal.NewFromInt(100).Equal(tx.Amount))
	assert.Equal(t, "BRL", tx.Currency)

	require.NotNil(t, tx.Product)
	assert.Equal(t, "p1", *tx.Product.ID)
	assert.True(t, decimal.NewFromInt(100).Equal(*tx.Product.Price))
	assert.Equal(t, 1, *tx.Product.Quantity)

	assert.Equal(t, "ana@example.com", *tx.Customer.Email)
	assert.Equal(t, "pix", *tx.PaymentMethod)
	assert.True(t, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC).Equal(tx.CreatedAt))
	assert.True(t, time.Date(2024, 5, 1, 12, 5, 0, 0, time.UTC).Equal(tx.UpdatedAt))

	require.Contains(t, tx.Metadata, "items")
	assert.Len(t, tx.Metadata["items"], 1)
	assert.Equal(t, map[string]any{"source": "instagram", "campaign": "may"}, tx.Metadata["utm"])
	assert.Equal(t, "São Paulo", tx.Metadata["customer"].(map[string]any)["city"])
	assert.Equal(t, "checkout", tx.Metadata["funnel"].(map[string]any)["step"])
	payment := tx.Metadata["payment"].(map[string]any)
	assert.Equal(t, 1, payment["installments"])
	assert.Equal(t, "https://pay/42", payment["paymentLink"])
}

func TestMapOrderToTransaction_SparseOrder(t *testing.T) {
	a := newTestAdapter(t, "http://unused", testutil.NewMockTransactionRepository())

	tx, err := a.MapOrderToTransaction(platform.RemoteOrder(`{"id":"7","status":"PAID","customer":"n/a","items":[]}`))
	require.NoError(t, err)

	assert.Equal(t, "cartpanda:7", tx.ID)
	assert.Equal(t, "7", tx.OrderID)
	assert.Equal(t, transaction.StatusCompleted, tx.Status)
	assert.True(t, tx.Amount.IsZero())
	assert.Nil(t, tx.Product)
	assert.Nil(t, tx.Customer.Name)
	assert.Nil(t, tx.PaymentMethod)
	assert.True(t, tx.CreatedAt.IsZero())
	assert.Nil(t, tx.Metadata)
}

func TestMapOrderToTransaction_UsesRemoteCurrency(t *testing.T) {
	a := newTestAdapter(t, "http://unused", testutil.NewMockTransactionRepository())
	tx, err := a.MapOrderToTransaction(platform.RemoteOrder(`{"id":1,"currency":"usd"}`))
	require.NoError(t, err)
	assert.Equal(t, "USD", tx.Currency)
}

func TestMapOrderToTransaction_MissingID(t *testing.T) {
	a := newTestAdapter(t, "http://unused", testutil.NewMockTransactionRepository())

	_, err := a.MapOrderToTransaction(platform.RemoteOrder(`{"order_number":"CP-9","status":"paid"}`))
	var mapErr *domainerrors.MappingError
	require.ErrorAs(t, err, &mapErr)
	assert.Equal(t, "id", mapErr.Field)
	assert.Equal(t, "CP-9", mapErr.OrderRef)

	_, err = a.MapOrderToTransaction(platform.RemoteOrder(`[1,2]`))
	assert.ErrorIs(t, err, domainerrors.ErrMapping)
}

func TestMapStatus(t *testing.T) {
	a := newTestAdapter(t, "http://unused", testutil.NewMockTransactionRepository())

	tests := []struct {
		native string
		want   transaction.Status
	}{
		{"approved", transaction.StatusCompleted},
		{"PAID", transaction.StatusCompleted},
		{"Completed", transaction.StatusCompleted},
		{"pending", transaction.StatusPending},
		{"waiting_payment", transaction.StatusPending},
		{"processing", transaction.StatusPending},
		{"cancelled", transaction.StatusFailed},
		{"refunded", transaction.StatusFailed},
		{"expired", transaction.StatusFailed},
		{"brand_new_state", transaction.StatusFailed},
		{"", transaction.StatusFailed},
	}
	for _, tt := range tests {
		t.Run(tt.native, func(t *testing.T) {
			assert.Equal(t, tt.want, a.MapStatus(tt.native))
		})
	}
}

func TestSyncTransactions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/orders", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("X-Api-Key"))
		assert.Equal(t, "secret", r.Header.Get("X-Secret-Key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"orders":[` + order42 + `,{"id":43,"status":"pending"}]}`))
	}))
	defer srv.Close()

	store := testutil.NewMockTransactionRepository()
	a := newTestAdapter(t, srv.URL, store)

	for i := 0; i < 2; i++ {
		report, err := a.SyncTransactions(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, report.Succeeded)
	}
	assert.Equal(t, 2, store.Len())
}

func TestFetchOrders_UpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"message":"invalid key"}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, testutil.NewMockTransactionRepository())
	_, err := a.FetchOrders(context.Background())

	var upErr *domainerrors.UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusForbidden, upErr.StatusCode)
	assert.Contains(t, upErr.Body, "invalid key")
}

func TestCreateWebhook(t *testing.T) {
	var got createWebhookRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/webhooks", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer srv.Close()

	a := newTestAdapter(t, srv.URL, testutil.NewMockTransactionRepository())
	require.NoError(t, a.CreateWebhook(context.Background(), "https://hooks.example.com/cartpanda"))

	assert.Equal(t, "https://hooks.example.com/cartpanda", got.URL)
	assert.True(t, got.Active)
	assert.Equal(t, []string{"order.created", "order.paid", "order.cancelled", "order.refunded", "order.expired"}, got.Events)

	var vErr *domainerrors.ValidationError
	assert.ErrorAs(t, a.CreateWebhook(context.Background(), " "), &vErr)
}

func TestHandleWebhook_RefundUpdatesExistingRecord(t *testing.T) {
	store := testutil.NewMockTransactionRepository()
	a := newTestAdapter(t, "http://unused", store)
	ctx := context.Background()

	tx, err := a.MapOrderToTransaction(platform.RemoteOrder(order42))
	require.NoError(t, err)
	require.NoError(t, store.Upsert(ctx, tx))

	refunded := `{"event":"order.refunded","data":{"id":42,"order_number":"CP-1042","status":"refunded",` +
		`"total_amount":100.0,"updated_at":"2024-05-02T10:00:00Z"}}`
	require.NoError(t, a.HandleWebhook(ctx, []byte(refunded)))

	assert.Equal(t, 1, store.Len())
	got, err := store.GetByID(ctx, "cartpanda:42")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, got.Status)
}

func TestHandleWebhook_NonOrderEventIsNoop(t *testing.T) {
	store := testutil.NewMockTransactionRepository()
	a := newTestAdapter(t, "http://unused", store)

	require.NoError(t, a.HandleWebhook(context.Background(), []byte(`{"event":"product.updated","data":{"id":1}}`)))
	assert.Zero(t, store.Upserts())
}

func TestHandleWebhook_InvalidPayload(t *testing.T) {
	a := newTestAdapter(t, "http://unused", testutil.NewMockTransactionRepository())

	assert.ErrorIs(t, a.HandleWebhook(context.Background(), []byte(`{`)), domainerrors.ErrInvalidPayload)
	assert.ErrorIs(t, a.HandleWebhook(context.Background(), []byte(`{"data":{}}`)), domainerrors.ErrInvalidPayload)
}

func TestVerifyWebhook(t *testing.T) {
	cfg := NewConfig("k", "s")
	cfg.WebhookSecret = "whsec"
	a, err := New(cfg, testutil.NewMockTransactionRepository())
	require.NoError(t, err)

	payload := []byte(`{"event":"order.paid","data":{"id":1}}`)
	h := http.Header{}
	h.Set(SignatureHeader, platform.SignHMACSHA256("whsec", payload, platform.EncodingBase64))
	assert.NoError(t, a.VerifyWebhook(payload, h))

	h.Set(SignatureHeader, platform.SignHMACSHA256("other", payload, platform.EncodingBase64))
	assert.ErrorIs(t, a.VerifyWebhook(payload, h), domainerrors.ErrInvalidSignature)

	unsigned, err := New(NewConfig("k", "s"), testutil.NewMockTransactionRepository())
	require.NoError(t, err)
	assert.NoError(t, unsigned.VerifyWebhook(payload, http.Header{}))
}

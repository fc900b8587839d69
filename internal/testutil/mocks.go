package testutil

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/platform"
)

// --- Transaction Repository Mock ---

// MockTransactionRepository is an in-memory transaction.Repository that
// honours the same stale-write guard as the postgres store.
type MockTransactionRepository struct {
	mu      sync.Mutex
	records map[string]*transaction.Transaction
	upserts int
	skipped int

	UpsertFunc  func(ctx context.Context, tx *transaction.Transaction) error
	GetByIDFunc func(ctx context.Context, id string) (*transaction.Transaction, error)
	ListFunc    func(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error)
}

func NewMockTransactionRepository() *MockTransactionRepository {
	return &MockTransactionRepository{records: make(map[string]*transaction.Transaction)}
}

func (m *MockTransactionRepository) Upsert(ctx context.Context, tx *transaction.Transaction) error {
	m.mu.Lock()
	m.upserts++
	m.mu.Unlock()

	if m.UpsertFunc != nil {
		if err := m.UpsertFunc(ctx, tx); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.records[tx.ID]
	if ok && !tx.AppliesOver(existing) {
		m.skipped++
		return nil
	}
	cp := *tx
	if ok && existing.IsNewerThan(&cp) {
		cp.UpdatedAt = existing.UpdatedAt
	}
	m.records[tx.ID] = &cp
	return nil
}

func (m *MockTransactionRepository) GetByID(ctx context.Context, id string) (*transaction.Transaction, error) {
	if m.GetByIDFunc != nil {
		return m.GetByIDFunc(ctx, id)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.records[id]
	if !ok {
		return nil, domainerrors.ErrTransactionNotFound
	}
	cp := *tx
	return &cp, nil
}

func (m *MockTransactionRepository) List(ctx context.Context, filter transaction.ListFilter) ([]*transaction.Transaction, error) {
	if m.ListFunc != nil {
		return m.ListFunc(ctx, filter)
	}
	all := m.All()
	out := make([]*transaction.Transaction, 0, len(all))
	for _, tx := range all {
		if filter.PlatformID != nil && tx.PlatformID != *filter.PlatformID {
			continue
		}
		if filter.Status != nil && tx.Status != *filter.Status {
			continue
		}
		out = append(out, tx)
	}
	if filter.Offset > len(out) {
		return []*transaction.Transaction{}, nil
	}
	out = out[filter.Offset:]
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// All returns copies of every stored record ordered by id.
func (m *MockTransactionRepository) All() []*transaction.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*transaction.Transaction, 0, len(m.records))
	for _, tx := range m.records {
		cp := *tx
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MockTransactionRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

// Upserts counts every Upsert call, successful or not.
func (m *MockTransactionRepository) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// Skipped counts upserts dropped by the stale-write guard.
func (m *MockTransactionRepository) Skipped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.skipped
}

// --- Adapter Mock ---

// MockAdapter is a platform.Adapter whose orders are plain JSON documents
// of the form {"id","status","updated_at"}. Behaviour can be overridden per
// method.
type MockAdapter struct {
	PlatformID transaction.PlatformID
	Store      transaction.Store

	mu       sync.Mutex
	orders   []platform.RemoteOrder
	fetches  int
	webhooks []string

	FetchOrdersFunc   func(ctx context.Context) ([]platform.RemoteOrder, error)
	MapFunc           func(order platform.RemoteOrder) (*transaction.Transaction, error)
	CreateWebhookFunc func(ctx context.Context, url string) error
}

func NewMockAdapter(id transaction.PlatformID, store transaction.Store) *MockAdapter {
	return &MockAdapter{PlatformID: id, Store: store}
}

func (m *MockAdapter) SetOrders(orders ...platform.RemoteOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders = orders
}

func (m *MockAdapter) Fetches() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fetches
}

func (m *MockAdapter) RegisteredWebhooks() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.webhooks...)
}

func (m *MockAdapter) Platform() transaction.PlatformID { return m.PlatformID }

func (m *MockAdapter) FetchOrders(ctx context.Context) ([]platform.RemoteOrder, error) {
	m.mu.Lock()
	m.fetches++
	orders := append([]platform.RemoteOrder(nil), m.orders...)
	m.mu.Unlock()

	if m.FetchOrdersFunc != nil {
		return m.FetchOrdersFunc(ctx)
	}
	return orders, nil
}

type mockOrder struct {
	ID        platform.FlexString  `json:"id"`
	Status    string               `json:"status"`
	Amount    platform.FlexDecimal `json:"amount"`
	UpdatedAt platform.FlexTime    `json:"updated_at"`
}

func (m *MockAdapter) MapOrderToTransaction(order platform.RemoteOrder) (*transaction.Transaction, error) {
	if m.MapFunc != nil {
		return m.MapFunc(order)
	}
	var o mockOrder
	if err := json.Unmarshal(order, &o); err != nil {
		return nil, &domainerrors.MappingError{Platform: string(m.PlatformID), Field: "order", Err: err}
	}
	if o.ID == "" {
		return nil, &domainerrors.MappingError{Platform: string(m.PlatformID), Field: "id"}
	}
	return &transaction.Transaction{
		ID:         transaction.NewID(m.PlatformID, o.ID.String()),
		PlatformID: m.PlatformID,
		OrderID:    o.ID.String(),
		Amount:     o.Amount.OrZero(),
		Currency:   "BRL",
		Status:     m.MapStatus(o.Status),
		CreatedAt:  o.UpdatedAt.Time,
		UpdatedAt:  o.UpdatedAt.Time,
	}, nil
}

func (m *MockAdapter) MapStatus(native string) transaction.Status {
	switch native {
	case "paid":
		return transaction.StatusCompleted
	case "pending":
		return transaction.StatusPending
	default:
		return transaction.StatusFailed
	}
}

func (m *MockAdapter) SyncTransactions(ctx context.Context) (*platform.SyncReport, error) {
	return platform.Sync(ctx, m, m.Store, NopLogger())
}

func (m *MockAdapter) CreateWebhook(ctx context.Context, url string) error {
	if m.CreateWebhookFunc != nil {
		return m.CreateWebhookFunc(ctx, url)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = append(m.webhooks, url)
	return nil
}

func (m *MockAdapter) DecodeWebhook(payload []byte) (platform.WebhookEvent, error) {
	var env struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil || env.Event == "" {
		return platform.WebhookEvent{}, domainerrors.ErrInvalidPayload
	}
	return platform.WebhookEvent{Event: env.Event, Data: env.Data}, nil
}

func (m *MockAdapter) HandleWebhook(ctx context.Context, payload []byte) error {
	ev, err := m.DecodeWebhook(payload)
	if err != nil {
		return err
	}
	return platform.HandleOrderWebhook(ctx, m, m.Store, ev, NopLogger())
}

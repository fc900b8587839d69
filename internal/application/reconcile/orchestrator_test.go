package reconcile_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cassiomorais/platformsync/internal/application/reconcile"
	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/cassiomorais/platformsync/internal/testutil"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []reconcile.SyncEvent
}

func (n *recordingNotifier) Notify(_ context.Context, ev reconcile.SyncEvent) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, ev)
	return nil
}

func (n *recordingNotifier) Events() []reconcile.SyncEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]reconcile.SyncEvent(nil), n.events...)
}

type heldLocker struct{}

func (heldLocker) Acquire(context.Context, string) (func(context.Context) error, error) {
	return nil, domainerrors.ErrSyncInProgress
}

type countingLocker struct {
	mu       sync.Mutex
	keys     []string
	released int
}

func (l *countingLocker) Acquire(_ context.Context, key string) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.released++
		return nil
	}, nil
}

type fixture struct {
	store    *testutil.MockTransactionRepository
	adapter  *testutil.MockAdapter
	notifier *recordingNotifier
	metrics  *observability.Metrics
	orch     *reconcile.Orchestrator
}

func newFixture(t *testing.T, opts ...reconcile.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    testutil.NewMockTransactionRepository(),
		notifier: &recordingNotifier{},
		metrics:  observability.NewTestMetrics(),
	}
	f.adapter = testutil.NewMockAdapter(transaction.PlatformCartPanda, f.store)
	opts = append([]reconcile.Option{
		reconcile.WithNotifier(f.notifier),
		reconcile.WithMetrics(f.metrics),
		reconcile.WithLogger(testutil.NopLogger()),
	}, opts...)
	f.orch = reconcile.New(platform.NewRegistry(f.adapter), opts...)
	return f
}

func TestSync_RecordsStatusAndNotifies(t *testing.T) {
	f := newFixture(t)
	f.adapter.SetOrders(
		testutil.MockOrder("1", "paid", testutil.BaseTime),
		testutil.MockOrder("2", "pending", testutil.BaseTime),
	)
	ctx := context.Background()

	report, err := f.orch.Sync(ctx, transaction.PlatformCartPanda)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 2, f.store.Len())

	st, err := f.orch.Status(ctx, transaction.PlatformCartPanda)
	require.NoError(t, err)
	assert.False(t, st.Running)
	assert.Equal(t, platform.OutcomeSuccess, st.LastOutcome)
	assert.Equal(t, 2, st.Total)
	require.NotNil(t, st.LastSyncAt)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, reconcile.TriggerManual, events[0].Trigger)
	assert.Equal(t, platform.OutcomeSuccess, events[0].Outcome)

	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.SyncRunsTotal.WithLabelValues("cartpanda", "success")))
	assert.Equal(t, float64(2), promtest.ToFloat64(f.metrics.SyncItemsTotal.WithLabelValues("cartpanda", "succeeded")))
}

func TestSync_PartialFailureNamesFailedItems(t *testing.T) {
	f := newFixture(t)
	f.adapter.SetOrders(
		testutil.MockOrder("1", "paid", testutil.BaseTime),
		testutil.MockOrder("2", "paid", testutil.BaseTime),
	)
	f.store.UpsertFunc = func(_ context.Context, tx *transaction.Transaction) error {
		if tx.ID == "cartpanda:2" {
			return errors.New("disk full")
		}
		return nil
	}

	report, err := f.orch.Sync(context.Background(), transaction.PlatformCartPanda)
	var syncErr *domainerrors.SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, platform.OutcomePartial, report.Outcome())

	st, err := f.orch.Status(context.Background(), transaction.PlatformCartPanda)
	require.NoError(t, err)
	assert.Equal(t, platform.OutcomePartial, st.LastOutcome)
	assert.Equal(t, 1, st.Failed)
	assert.NotEmpty(t, st.LastError)

	events := f.notifier.Events()
	require.Len(t, events, 1)
	assert.Equal(t, []string{"cartpanda:2"}, events[0].FailedIDs)
}

func TestSync_FetchErrorRecordsFailedOutcome(t *testing.T) {
	f := newFixture(t)
	f.adapter.FetchOrdersFunc = func(context.Context) ([]platform.RemoteOrder, error) {
		return nil, domainerrors.NewUpstreamStatusError("cartpanda", "list orders", 503, "down")
	}

	_, err := f.orch.Sync(context.Background(), transaction.PlatformCartPanda)
	assert.ErrorIs(t, err, domainerrors.ErrUpstream)

	st, err := f.orch.Status(context.Background(), transaction.PlatformCartPanda)
	require.NoError(t, err)
	assert.Equal(t, platform.OutcomeFailed, st.LastOutcome)
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.SyncRunsTotal.WithLabelValues("cartpanda", "failed")))
}

func TestSync_OverlappingCallsCoalesce(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	f.adapter.FetchOrdersFunc = func(context.Context) ([]platform.RemoteOrder, error) {
		once.Do(func() { close(started) })
		<-release
		return []platform.RemoteOrder{testutil.MockOrder("1", "paid", testutil.BaseTime)}, nil
	}

	var wg sync.WaitGroup
	reports := make([]*platform.SyncReport, 2)
	for i := range reports {
		if i == 1 {
			<-started
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r, err := f.orch.Sync(context.Background(), transaction.PlatformCartPanda)
			assert.NoError(t, err)
			reports[i] = r
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, 1, f.adapter.Fetches())
	assert.Same(t, reports[0], reports[1])
}

func TestHandleWebhook_WaitsForRunningSync(t *testing.T) {
	f := newFixture(t)
	started := make(chan struct{})
	release := make(chan struct{})
	f.adapter.FetchOrdersFunc = func(context.Context) ([]platform.RemoteOrder, error) {
		close(started)
		<-release
		return nil, nil
	}

	go func() { _, _ = f.orch.Sync(context.Background(), transaction.PlatformCartPanda) }()
	<-started

	done := make(chan error, 1)
	go func() {
		_, err := f.orch.HandleWebhook(context.Background(), transaction.PlatformCartPanda,
			testutil.MockWebhook("order.paid", testutil.MockOrder("9", "paid", testutil.BaseTime)))
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("webhook ran while sync held the platform lock")
	case <-time.After(50 * time.Millisecond):
	}
	assert.Zero(t, f.store.Upserts())

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 1, f.store.Len())
}

func TestHandleWebhook_IgnoredAndInvalid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.orch.HandleWebhook(ctx, transaction.PlatformCartPanda, []byte(`{"event":"customer.created","data":{}}`))
	require.NoError(t, err)
	assert.True(t, res.Ignored)
	assert.Equal(t, "customer.created", res.Event)
	assert.Zero(t, f.store.Upserts())

	_, err = f.orch.HandleWebhook(ctx, transaction.PlatformCartPanda, []byte(`nope`))
	assert.ErrorIs(t, err, domainerrors.ErrInvalidPayload)

	_, err = f.orch.HandleWebhook(ctx, transaction.PlatformYampi, []byte(`{}`))
	assert.ErrorIs(t, err, domainerrors.ErrPlatformNotConfigured)

	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.WebhooksTotal.WithLabelValues("cartpanda", "ignored")))
	assert.Equal(t, float64(1), promtest.ToFloat64(f.metrics.WebhooksTotal.WithLabelValues("cartpanda", "invalid")))
}

func TestHandleWebhook_DoesNotRegressNewerRecord(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	newer := testutil.BaseTime.Add(time.Hour)

	_, err := f.orch.HandleWebhook(ctx, transaction.PlatformCartPanda,
		testutil.MockWebhook("order.refunded", testutil.MockOrder("42", "refunded", newer)))
	require.NoError(t, err)

	f.adapter.SetOrders(testutil.MockOrder("42", "paid", testutil.BaseTime))
	_, err = f.orch.Sync(ctx, transaction.PlatformCartPanda)
	require.NoError(t, err)

	tx, err := f.store.GetByID(ctx, "cartpanda:42")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.True(t, newer.Equal(tx.UpdatedAt))
}

func TestHandleWebhook_UndatedRefundUpdatesStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.adapter.SetOrders(testutil.MockOrder("42", "paid", testutil.BaseTime))
	_, err := f.orch.Sync(ctx, transaction.PlatformCartPanda)
	require.NoError(t, err)

	res, err := f.orch.HandleWebhook(ctx, transaction.PlatformCartPanda,
		testutil.MockWebhook("order.refunded", []byte(`{"id":"42","status":"refunded"}`)))
	require.NoError(t, err)
	assert.False(t, res.Ignored)

	tx, err := f.store.GetByID(ctx, "cartpanda:42")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.True(t, testutil.BaseTime.Equal(tx.UpdatedAt), "stored remote timestamp is kept")
	assert.Equal(t, 1, f.store.Len())
	assert.Zero(t, f.store.Skipped())

	// A dated poll result older than the stored timestamp is still rejected.
	f.adapter.SetOrders(testutil.MockOrder("42", "paid", testutil.BaseTime.Add(-time.Hour)))
	_, err = f.orch.Sync(ctx, transaction.PlatformCartPanda)
	require.NoError(t, err)

	tx, err = f.store.GetByID(ctx, "cartpanda:42")
	require.NoError(t, err)
	assert.Equal(t, transaction.StatusFailed, tx.Status)
	assert.Equal(t, 1, f.store.Skipped())
}

func TestSync_DistributedLock(t *testing.T) {
	t.Run("held elsewhere", func(t *testing.T) {
		f := newFixture(t, reconcile.WithLocker(heldLocker{}))

		_, err := f.orch.Sync(context.Background(), transaction.PlatformCartPanda)
		assert.ErrorIs(t, err, domainerrors.ErrSyncInProgress)
		assert.Zero(t, f.adapter.Fetches())
		assert.Empty(t, f.notifier.Events())
	})

	t.Run("acquired and released", func(t *testing.T) {
		locker := &countingLocker{}
		f := newFixture(t, reconcile.WithLocker(locker))

		_, err := f.orch.Sync(context.Background(), transaction.PlatformCartPanda)
		require.NoError(t, err)
		assert.Equal(t, []string{"sync:cartpanda"}, locker.keys)
		assert.Equal(t, 1, locker.released)
	})
}

func TestSyncAll_IndependentPlatforms(t *testing.T) {
	store := testutil.NewMockTransactionRepository()
	ok := testutil.NewMockAdapter(transaction.PlatformCartPanda, store)
	ok.SetOrders(testutil.MockOrder("1", "paid", testutil.BaseTime))
	broken := testutil.NewMockAdapter(transaction.PlatformKiwify, store)
	broken.FetchOrdersFunc = func(context.Context) ([]platform.RemoteOrder, error) {
		return nil, errors.New("connection refused")
	}
	orch := reconcile.New(platform.NewRegistry(ok, broken), reconcile.WithLogger(testutil.NopLogger()))

	reports, err := orch.SyncAll(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kiwify")
	require.Contains(t, reports, transaction.PlatformCartPanda)
	assert.Equal(t, 1, reports[transaction.PlatformCartPanda].Succeeded)
	assert.Equal(t, 1, store.Len())

	statuses, err := orch.Statuses(context.Background())
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.Equal(t, transaction.PlatformCartPanda, statuses[0].Platform)
	assert.Equal(t, platform.OutcomeFailed, statuses[1].LastOutcome)
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	f := newFixture(t)
	f.adapter.SetOrders(testutil.MockOrder("1", "paid", testutil.BaseTime))

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	require.NoError(t, f.orch.Run(ctx, 20*time.Millisecond))
	assert.GreaterOrEqual(t, f.adapter.Fetches(), 2)
	assert.Equal(t, 1, f.store.Len())

	for _, ev := range f.notifier.Events() {
		assert.Equal(t, reconcile.TriggerScheduled, ev.Trigger)
	}
	assert.Error(t, f.orch.Run(context.Background(), 0))
}

func TestStatus_UnknownPlatform(t *testing.T) {
	f := newFixture(t)

	_, err := f.orch.Status(context.Background(), transaction.PlatformID("shopify"))
	assert.ErrorIs(t, err, domainerrors.ErrPlatformNotFound)

	st, err := f.orch.Status(context.Background(), transaction.PlatformCartPanda)
	require.NoError(t, err)
	assert.Nil(t, st.LastSyncAt)
	assert.Empty(t, st.LastOutcome)
}

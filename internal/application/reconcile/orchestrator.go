// Package reconcile schedules and serializes platform sync cycles and
// inbound webhook handling.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	domainerrors "github.com/cassiomorais/platformsync/internal/domain/errors"
	"github.com/cassiomorais/platformsync/internal/domain/transaction"
	"github.com/cassiomorais/platformsync/internal/infrastructure/observability"
	"github.com/cassiomorais/platformsync/internal/platform"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
)

type Option func(*Orchestrator)

// WithLocker adds a cross-process lock on top of the in-process one.
func WithLocker(l Locker) Option {
	return func(o *Orchestrator) { o.locker = l }
}

func WithStatusStore(s StatusStore) Option {
	return func(o *Orchestrator) { o.statuses = s }
}

func WithNotifier(n Notifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithMetrics(m *observability.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator runs sync cycles for the adapters in a registry. For a given
// platform at most one cycle or webhook write runs at a time.
type Orchestrator struct {
	registry *platform.Registry
	statuses StatusStore
	notifier Notifier
	locker   Locker
	metrics  *observability.Metrics
	logger   zerolog.Logger

	flights singleflight.Group
	mu      sync.Mutex
	locks   map[transaction.PlatformID]*semaphore.Weighted
}

func New(registry *platform.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		registry: registry,
		statuses: NewMemoryStatusStore(),
		notifier: nopNotifier{},
		logger:   zerolog.Nop(),
		locks:    make(map[transaction.PlatformID]*semaphore.Weighted),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Sync runs one cycle for id. Callers that overlap with a running cycle for
// the same platform share its result instead of starting another.
func (o *Orchestrator) Sync(ctx context.Context, id transaction.PlatformID) (*platform.SyncReport, error) {
	return o.sync(ctx, id, TriggerManual)
}

func (o *Orchestrator) sync(ctx context.Context, id transaction.PlatformID, trigger Trigger) (*platform.SyncReport, error) {
	a, err := o.registry.Get(id)
	if err != nil {
		return nil, err
	}

	v, err, shared := o.flights.Do(string(id), func() (any, error) {
		return o.runCycle(ctx, a, trigger)
	})
	if shared {
		o.logger.Debug().Str("platform", id.String()).Msg("Joined in-flight sync")
	}
	report, _ := v.(*platform.SyncReport)
	return report, err
}

func (o *Orchestrator) runCycle(ctx context.Context, a platform.Adapter, trigger Trigger) (*platform.SyncReport, error) {
	id := a.Platform()
	release, err := o.lock(ctx, id)
	if err != nil {
		return nil, err
	}
	defer release()

	o.setRunning(ctx, id, true)
	if o.metrics != nil {
		o.metrics.SyncsInFlight.WithLabelValues(id.String()).Inc()
		defer o.metrics.SyncsInFlight.WithLabelValues(id.String()).Dec()
	}

	started := time.Now().UTC()
	report, err := a.SyncTransactions(ctx)
	if report == nil {
		report = &platform.SyncReport{Platform: id, StartedAt: started, FinishedAt: time.Now().UTC()}
	}
	o.record(ctx, report, err, trigger)
	return report, err
}

// SyncAll runs every registered platform concurrently. A failing platform
// does not stop the others; the returned error joins all failures.
func (o *Orchestrator) SyncAll(ctx context.Context) (map[transaction.PlatformID]*platform.SyncReport, error) {
	var (
		mu      sync.Mutex
		reports = make(map[transaction.PlatformID]*platform.SyncReport)
		errs    []error
		g       errgroup.Group
	)
	for _, id := range o.registry.Platforms() {
		g.Go(func() error {
			report, err := o.Sync(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if report != nil {
				reports[id] = report
			}
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", id, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return reports, errors.Join(errs...)
}

// Run syncs every platform immediately and then once per interval until ctx
// is cancelled. Cycle errors are logged and recorded, never returned.
func (o *Orchestrator) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("sync interval must be positive, got %s", interval)
	}
	g, gCtx := errgroup.WithContext(ctx)
	for _, id := range o.registry.Platforms() {
		g.Go(func() error {
			o.loop(gCtx, id, interval)
			return nil
		})
	}
	o.logger.Info().Dur("interval", interval).Int("platforms", len(o.registry.Platforms())).Msg("Sync scheduler started")
	return g.Wait()
}

func (o *Orchestrator) loop(ctx context.Context, id transaction.PlatformID, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		o.scheduled(ctx, id)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (o *Orchestrator) scheduled(ctx context.Context, id transaction.PlatformID) {
	_, err := o.sync(ctx, id, TriggerScheduled)
	switch {
	case err == nil:
	case errors.Is(err, domainerrors.ErrSyncInProgress):
		o.logger.Debug().Str("platform", id.String()).Msg("Sync held by another process, skipping tick")
	case ctx.Err() != nil:
	default:
		o.logger.Error().Err(err).Str("platform", id.String()).Msg("Scheduled sync failed")
	}
}

// HandleWebhook applies a webhook delivery under the platform's lock so it
// never interleaves with a sync cycle writing the same platform.
func (o *Orchestrator) HandleWebhook(ctx context.Context, id transaction.PlatformID, payload []byte) (WebhookResult, error) {
	a, err := o.registry.Get(id)
	if err != nil {
		return WebhookResult{}, err
	}

	var res WebhookResult
	if dec, ok := a.(platform.WebhookDecoder); ok {
		ev, err := dec.DecodeWebhook(payload)
		if err != nil {
			o.countWebhook(id, "invalid")
			return res, err
		}
		res = WebhookResult{Event: ev.Event, Ignored: !ev.IsOrderEvent()}
		if res.Ignored {
			o.countWebhook(id, "ignored")
			o.logger.Debug().Str("platform", id.String()).Str("event", ev.Event).Msg("Ignoring webhook event")
			return res, nil
		}
	}

	release, err := o.lock(ctx, id)
	if err != nil {
		return res, err
	}
	defer release()

	if err := a.HandleWebhook(ctx, payload); err != nil {
		result := "failed"
		if errors.Is(err, domainerrors.ErrInvalidPayload) || errors.Is(err, domainerrors.ErrMapping) {
			result = "invalid"
		}
		o.countWebhook(id, result)
		return res, err
	}
	o.countWebhook(id, "processed")
	return res, nil
}

// Status returns the recorded status of a registered platform.
func (o *Orchestrator) Status(ctx context.Context, id transaction.PlatformID) (SyncStatus, error) {
	if _, err := o.registry.Get(id); err != nil {
		return SyncStatus{}, err
	}
	st, ok, err := o.statuses.Get(ctx, id)
	if err != nil {
		return SyncStatus{}, fmt.Errorf("load sync status: %w", err)
	}
	if !ok {
		return SyncStatus{Platform: id}, nil
	}
	return st, nil
}

func (o *Orchestrator) Statuses(ctx context.Context) ([]SyncStatus, error) {
	ids := o.registry.Platforms()
	out := make([]SyncStatus, 0, len(ids))
	for _, id := range ids {
		st, err := o.Status(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, nil
}

// lock takes the in-process semaphore for id and, when configured, the
// distributed lock. The returned func releases both.
func (o *Orchestrator) lock(ctx context.Context, id transaction.PlatformID) (func(), error) {
	sem := o.semaphore(id)
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	if o.locker == nil {
		return func() { sem.Release(1) }, nil
	}

	unlock, err := o.locker.Acquire(ctx, "sync:"+id.String())
	if err != nil {
		sem.Release(1)
		return nil, fmt.Errorf("%s: %w", id, err)
	}
	return func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := unlock(ctx); err != nil {
			o.logger.Warn().Err(err).Str("platform", id.String()).Msg("Failed to release sync lock")
		}
		sem.Release(1)
	}, nil
}

func (o *Orchestrator) semaphore(id transaction.PlatformID) *semaphore.Weighted {
	o.mu.Lock()
	defer o.mu.Unlock()
	sem, ok := o.locks[id]
	if !ok {
		sem = semaphore.NewWeighted(1)
		o.locks[id] = sem
	}
	return sem
}

func (o *Orchestrator) setRunning(ctx context.Context, id transaction.PlatformID, running bool) {
	st, _, err := o.statuses.Get(ctx, id)
	if err != nil {
		o.logger.Warn().Err(err).Str("platform", id.String()).Msg("Failed to load sync status")
	}
	st.Platform = id
	st.Running = running
	if err := o.statuses.Put(ctx, st); err != nil {
		o.logger.Warn().Err(err).Str("platform", id.String()).Msg("Failed to store sync status")
	}
}

func (o *Orchestrator) record(ctx context.Context, report *platform.SyncReport, err error, trigger Trigger) {
	id := report.Platform
	outcome := outcomeOf(report, err)
	failed := len(report.Failures)
	finished := report.FinishedAt

	st := SyncStatus{
		Platform:    id,
		LastSyncAt:  &finished,
		LastOutcome: outcome,
		Total:       report.Total,
		Succeeded:   report.Succeeded,
		Skipped:     report.Skipped,
		Failed:      failed,
		DurationMs:  report.Duration().Milliseconds(),
	}
	if err != nil {
		st.LastError = err.Error()
	}
	// Status writes must survive a cancelled request context.
	storeCtx := context.WithoutCancel(ctx)
	if err := o.statuses.Put(storeCtx, st); err != nil {
		o.logger.Warn().Err(err).Str("platform", id.String()).Msg("Failed to store sync status")
	}

	if o.metrics != nil {
		o.metrics.SyncRunsTotal.WithLabelValues(id.String(), string(outcome)).Inc()
		o.metrics.SyncDuration.WithLabelValues(id.String()).Observe(report.Duration().Seconds())
		o.metrics.SyncItemsTotal.WithLabelValues(id.String(), "succeeded").Add(float64(report.Succeeded))
		o.metrics.SyncItemsTotal.WithLabelValues(id.String(), "skipped").Add(float64(report.Skipped))
		o.metrics.SyncItemsTotal.WithLabelValues(id.String(), "failed").Add(float64(failed - report.Skipped))
		o.metrics.LastSyncTimestamp.WithLabelValues(id.String()).Set(float64(finished.Unix()))
	}

	ev := SyncEvent{
		Platform:   id,
		Trigger:    trigger,
		Outcome:    outcome,
		Total:      report.Total,
		Succeeded:  report.Succeeded,
		Failed:     failed,
		StartedAt:  report.StartedAt,
		FinishedAt: finished,
	}
	var syncErr *domainerrors.SyncError
	if errors.As(err, &syncErr) {
		ev.FailedIDs = syncErr.FailedIDs()
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if err := o.notifier.Notify(storeCtx, ev); err != nil {
		o.logger.Warn().Err(err).Str("platform", id.String()).Msg("Failed to queue sync notification")
	}

	logEvent := o.logger.Info()
	if outcome != platform.OutcomeSuccess {
		logEvent = o.logger.Warn().Err(err)
	}
	logEvent.Str("platform", id.String()).
		Str("trigger", string(trigger)).
		Str("outcome", string(outcome)).
		Int("total", report.Total).
		Int("succeeded", report.Succeeded).
		Int("failed", failed).
		Dur("duration", report.Duration()).
		Msg("Sync cycle finished")
}

// outcomeOf treats a cycle aborted before any item was processed as failed.
func outcomeOf(report *platform.SyncReport, err error) platform.Outcome {
	var syncErr *domainerrors.SyncError
	if err != nil && !errors.As(err, &syncErr) {
		return platform.OutcomeFailed
	}
	return report.Outcome()
}

func (o *Orchestrator) countWebhook(id transaction.PlatformID, result string) {
	if o.metrics != nil {
		o.metrics.WebhooksTotal.WithLabelValues(id.String(), result).Inc()
	}
}

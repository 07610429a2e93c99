// Package drainworker implements the marketplace outbox drain loop: it
// leases due outbox rows, reconstructs the net quantity delta each row
// represents, gates the call through the per-(tenant, provider) rate limiter
// and circuit breaker, invokes the provider adapter, and advances or
// reschedules the row depending on how the call failed.
package drainworker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/lotsync/internal/clock"
	"github.com/wisbric/lotsync/pkg/inventory"
	"github.com/wisbric/lotsync/pkg/ledger"
	"github.com/wisbric/lotsync/pkg/opsnotify"
	"github.com/wisbric/lotsync/pkg/outbox"
	"github.com/wisbric/lotsync/pkg/provideradapter"
	"github.com/wisbric/lotsync/pkg/providerconfig"
	"github.com/wisbric/lotsync/pkg/ratelimit"
	"github.com/wisbric/lotsync/pkg/tenant"
)

// Tuning bundles the operational knobs the worker needs from config, kept as
// a small struct rather than threading six parameters through every call.
type Tuning struct {
	BatchSize     int
	PollPeriod    time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffJitter time.Duration
}

// AdapterResolver returns the provideradapter.Adapter for a given provider
// code. Both providera.Client and providerb.Client satisfy Adapter; the
// worker never imports either package directly so it stays adapter-agnostic.
type AdapterResolver func(provider string) (provideradapter.Adapter, bool)

// Worker drains the marketplace outbox.
type Worker struct {
	pool      *pgxpool.Pool
	clock     clock.Clock
	logger    *slog.Logger
	limiter   *ratelimit.Limiter
	configs   *providerconfig.Store
	adapters  AdapterResolver
	slugs     tenant.SlugLookup
	notifier  *opsnotify.Fanout
	tuning    Tuning
}

// New creates a drain Worker.
func New(pool *pgxpool.Pool, clk clock.Clock, logger *slog.Logger, limiter *ratelimit.Limiter, configs *providerconfig.Store, adapters AdapterResolver, slugs tenant.SlugLookup, notifier *opsnotify.Fanout, tuning Tuning) *Worker {
	return &Worker{
		pool:     pool,
		clock:    clk,
		logger:   logger,
		limiter:  limiter,
		configs:  configs,
		adapters: adapters,
		slugs:    slugs,
		notifier: notifier,
		tuning:   tuning,
	}
}

// Run drains the outbox on a fixed poll interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("drain worker started", "poll_period", w.tuning.PollPeriod, "batch_size", w.tuning.BatchSize)
	ticker := time.NewTicker(w.tuning.PollPeriod)
	defer ticker.Stop()

	w.drainOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("drain worker stopped")
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

// drainOnce leases and processes one batch of due outbox rows.
func (w *Worker) drainOnce(ctx context.Context) {
	batch, err := outbox.NewStore(w.pool).DueBatch(ctx, w.tuning.BatchSize)
	if err != nil {
		w.logger.Error("listing due outbox batch", "error", err)
		return
	}

	for _, msg := range batch {
		if err := w.processOne(ctx, msg); err != nil {
			w.logger.Error("processing outbox row", "message_id", msg.MessageID, "item_id", msg.ItemID,
				"provider", msg.Provider, "error", err)
		}
	}
}

// processOne leases a single row and carries it through the drain algorithm.
// Each step that fails leaves the row in a well-defined state rather than
// stuck inflight: lease failures simply skip the row (another worker or
// poll cycle owns it), everything past the lease either succeeds, reschedules,
// or fails permanently.
func (w *Worker) processOne(ctx context.Context, msg outbox.Message) (err error) {
	outboxStore := outbox.NewStore(w.pool)

	if err := outboxStore.Lease(ctx, msg.MessageID, msg.Attempt); err != nil {
		if errors.Is(err, outbox.ErrLeaseLost) {
			return nil
		}
		return fmt.Errorf("leasing: %w", err)
	}

	// An error past the lease hands the row back to pending for the next
	// poll, so DueBatch never skips its (item, provider) pair indefinitely.
	defer func() {
		if err != nil {
			if relErr := outboxStore.Release(ctx, msg.MessageID, w.clock.Now()); relErr != nil {
				w.logger.Error("releasing outbox row after error", "message_id", msg.MessageID, "error", relErr)
			}
		}
	}()

	itemStore := inventory.NewStore(w.pool)
	externalLotID, err := itemStore.ExternalLotID(ctx, msg.ItemID, msg.Provider)
	if err != nil {
		return fmt.Errorf("reading external lot id: %w", err)
	}
	if deleteNoop(msg.Kind, externalLotID) {
		return outboxStore.Succeed(ctx, msg.MessageID)
	}

	result, err := w.limiter.TryAcquire(ctx, msg.TenantID.String(), msg.Provider, w.capacityFor(ctx, msg), w.windowFor(ctx, msg))
	if err != nil {
		return fmt.Errorf("checking rate limit: %w", err)
	}
	if !result.Granted {
		retryAt := w.clock.Now().Add(time.Duration(result.RetryAfterMs) * time.Millisecond)
		return outboxStore.Release(ctx, msg.MessageID, retryAt)
	}

	ledgerStore := ledger.NewStore(w.pool)
	delta, err := ledgerStore.ComputeDeltaWindow(ctx, msg.ItemID, msg.FromSeqExclusive, msg.ToSeqInclusive)
	if err != nil {
		return fmt.Errorf("computing delta window: %w", err)
	}

	cfg, err := w.configs.Get(ctx, msg.TenantID, msg.Provider)
	if err != nil {
		return fmt.Errorf("loading provider config: %w", err)
	}
	if !cfg.Enabled {
		return outboxStore.FailPermanently(ctx, msg.MessageID, "provider disabled for tenant")
	}

	adapter, ok := w.adapters(msg.Provider)
	if !ok {
		return outboxStore.FailPermanently(ctx, msg.MessageID, "no adapter registered for provider "+msg.Provider)
	}

	entry, err := ledgerStore.GetEntryAt(ctx, msg.ItemID, msg.ToSeqInclusive)
	if err != nil {
		return fmt.Errorf("reading ledger entry at window end: %w", err)
	}

	outcome, callErr := w.invoke(ctx, adapter, msg, cfg.Credentials, delta, entry.PostAvailable)

	switch outcome {
	case ratelimit.OutcomeOK:
		if err := w.limiter.Report(ctx, msg.TenantID.String(), msg.Provider, outcome); err != nil {
			w.logger.Error("reporting rate limit outcome", "error", err)
		}
		return w.advance(ctx, msg, itemStore, outboxStore, entry)

	case ratelimit.OutcomePermanentFail:
		if err := w.limiter.Report(ctx, msg.TenantID.String(), msg.Provider, outcome); err != nil {
			w.logger.Error("reporting rate limit outcome", "error", err)
		}
		return w.failPermanently(ctx, msg, itemStore, outboxStore, callErr)

	default: // transient_fail
		if err := w.limiter.Report(ctx, msg.TenantID.String(), msg.Provider, outcome); err != nil {
			w.logger.Error("reporting rate limit outcome", "error", err)
		}
		return w.retryOrFail(ctx, msg, outboxStore, callErr)
	}
}

// invoke builds the adapter payload for the provider-specific delta encoding
// and calls the adapter, classifying the result into a ratelimit.Outcome.
func (w *Worker) invoke(ctx context.Context, adapter provideradapter.Adapter, msg outbox.Message, creds provideradapter.Credentials, delta, postAvailable int) (ratelimit.Outcome, error) {
	itemStore := inventory.NewStore(w.pool)
	item, err := itemStore.Get(ctx, msg.TenantID, msg.ItemID)
	if err != nil {
		return ratelimit.OutcomeTransientFail, fmt.Errorf("reading item: %w", err)
	}

	externalLotID := item.ProviderState(msg.Provider).ExternalLotID
	kind := effectiveKind(msg.Kind, externalLotID)

	var callErr error
	switch kind {
	case outbox.KindCreate:
		payload := provideradapter.LotPayload{
			PartNumber:        item.PartNumber,
			ColorID:           item.ColorID,
			Condition:         string(item.Condition),
			QuantityAvailable: postAvailable,
			PriceCents:        item.PriceCents,
			Notes:             item.Notes,
		}
		var res provideradapter.CreateResult
		res, callErr = adapter.CreateLot(ctx, creds, payload, msg.IdempotencyKey)
		if callErr == nil {
			callErr = itemStore.PutProviderSync(ctx, msg.TenantID, msg.ItemID, msg.Provider, inventory.ProviderSyncState{
				ExternalLotID: res.ExternalLotID,
				Status:        inventory.SyncSyncing,
			})
			externalLotID = res.ExternalLotID
		}
	case outbox.KindUpdate:
		update := provideradapter.DeltaUpdate{
			SignedDelta:      delta,
			RelativeQuantity: delta,
			AbsoluteQuantity: postAvailable,
		}
		callErr = adapter.UpdateLot(ctx, creds, externalLotID, update, msg.IdempotencyKey)
	case outbox.KindDelete:
		callErr = adapter.DeleteLot(ctx, creds, externalLotID, msg.IdempotencyKey)
	}

	if callErr == nil {
		return ratelimit.OutcomeOK, nil
	}

	kindClassified := provideradapter.Classify(callErr)
	switch kindClassified {
	case provideradapter.ErrPermanentValidation, provideradapter.ErrMissingExternalMap:
		return ratelimit.OutcomePermanentFail, callErr
	default:
		return ratelimit.OutcomeTransientFail, callErr
	}
}

// deleteNoop reports whether a delete row has nothing to delete upstream —
// the item was never synced to this provider, so the row succeeds without
// ever acquiring a rate-limit token or calling the adapter. The caller
// checks this before tryAcquire, ahead of the create/update upgrade and
// downgrade effectiveKind applies.
func deleteNoop(kind outbox.Kind, externalLotID string) bool {
	return kind == outbox.KindDelete && externalLotID == ""
}

// effectiveKind upgrades an update to a create when the item has no
// external mapping yet, and downgrades a create to an update when it does —
// this is the "effective operation" determination the drain algorithm makes
// before building the adapter payload.
func effectiveKind(kind outbox.Kind, externalLotID string) outbox.Kind {
	switch kind {
	case outbox.KindCreate:
		if externalLotID != "" {
			return outbox.KindUpdate
		}
	case outbox.KindUpdate:
		if externalLotID == "" {
			return outbox.KindCreate
		}
	}
	return kind
}

// advance commits a successful sync: the outbox row succeeds, and the
// item's per-provider cursor moves to the ledger entry this row covered.
func (w *Worker) advance(ctx context.Context, msg outbox.Message, itemStore *inventory.Store, outboxStore *outbox.Store, entry ledger.QuantityEntry) error {
	externalLotID, err := itemStore.ExternalLotID(ctx, msg.ItemID, msg.Provider)
	if err != nil {
		return fmt.Errorf("reading external lot id: %w", err)
	}

	if err := itemStore.PutProviderSync(ctx, msg.TenantID, msg.ItemID, msg.Provider, inventory.ProviderSyncState{
		ExternalLotID:       externalLotID,
		Status:              inventory.SyncSynced,
		LastSyncedSeq:       msg.ToSeqInclusive,
		LastSyncedAvailable: entry.PostAvailable,
	}); err != nil {
		return fmt.Errorf("advancing provider sync cursor: %w", err)
	}

	return outboxStore.Succeed(ctx, msg.MessageID)
}

// failPermanently marks the outbox row and the item's provider state failed
// without advancing the sync cursor — a human has to intervene.
func (w *Worker) failPermanently(ctx context.Context, msg outbox.Message, itemStore *inventory.Store, outboxStore *outbox.Store, callErr error) error {
	item, err := itemStore.Get(ctx, msg.TenantID, msg.ItemID)
	if err != nil {
		return fmt.Errorf("reloading item: %w", err)
	}

	state := item.ProviderState(msg.Provider)
	state.Status = inventory.SyncFailed
	state.LastError = ""
	if callErr != nil {
		state.LastError = callErr.Error()
	}
	if err := itemStore.PutProviderSync(ctx, msg.TenantID, msg.ItemID, msg.Provider, state); err != nil {
		return fmt.Errorf("marking provider sync failed: %w", err)
	}

	lastError := ""
	if callErr != nil {
		lastError = callErr.Error()
	}
	if err := outboxStore.FailPermanently(ctx, msg.MessageID, lastError); err != nil {
		return err
	}

	w.notifyFailure(ctx, msg, lastError)
	return nil
}

// notifyFailure posts an ops alert for a permanently failed outbox row. It
// never returns an error to the caller — a broken alert channel must not
// stop the drain loop from moving on to the next row.
func (w *Worker) notifyFailure(ctx context.Context, msg outbox.Message, lastError string) {
	if w.notifier == nil {
		return
	}
	slug, err := w.slugs.SlugByID(ctx, msg.TenantID)
	if err != nil {
		slug = msg.TenantID.String()
	}
	w.notifier.PostFailureAlert(ctx, opsnotify.FailureAlert{
		TenantSlug: slug,
		Provider:   msg.Provider,
		Entity:     "lot sync",
		ItemID:     msg.ItemID.String(),
		Reason:     lastError,
		FailedAt:   w.clock.Now(),
	})
}

// retryOrFail reschedules the row with jittered exponential backoff, or
// fails it permanently once maxAttempts is reached.
func (w *Worker) retryOrFail(ctx context.Context, msg outbox.Message, outboxStore *outbox.Store, callErr error) error {
	newAttempt := msg.Attempt + 1
	delay := clock.Backoff(w.clock, newAttempt, w.tuning.BackoffBase, w.tuning.BackoffCap, w.tuning.BackoffJitter)
	nextAttemptAt := w.clock.Now().Add(delay)

	lastError := ""
	if callErr != nil {
		lastError = callErr.Error()
	}
	return outboxStore.RetryOrFail(ctx, msg.MessageID, newAttempt, w.tuning.MaxAttempts, nextAttemptAt, lastError)
}

// capacityFor and windowFor apply a tenant's configured rate-limit override
// when present, falling back to defaultCapacity and defaultWindow otherwise.
func (w *Worker) capacityFor(ctx context.Context, msg outbox.Message) int {
	cfg, err := w.configs.Get(ctx, msg.TenantID, msg.Provider)
	if err == nil && cfg.RateLimitCapacity > 0 {
		return cfg.RateLimitCapacity
	}
	return defaultCapacity(msg.Provider)
}

func (w *Worker) windowFor(ctx context.Context, msg outbox.Message) time.Duration {
	cfg, err := w.configs.Get(ctx, msg.TenantID, msg.Provider)
	if err == nil && cfg.RateLimitWindowMs > 0 {
		return time.Duration(cfg.RateLimitWindowMs) * time.Millisecond
	}
	return defaultWindow(msg.Provider)
}

// defaultCapacity and defaultWindow are the fallback when a tenant has no
// rate-limit override: 60 requests per one-minute window, the same for every
// provider. The per-provider RATE_LIMIT_* settings in internal/config are not
// passed to the worker.
func defaultCapacity(provider string) int { return 60 }
func defaultWindow(provider string) time.Duration { return time.Minute }

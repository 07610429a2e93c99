package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/lotsync/internal/clock"
	"github.com/wisbric/lotsync/pkg/opsnotify"
	"github.com/wisbric/lotsync/pkg/provideradapter"
)

// SourceResolver picks which provider to re-fetch a reference entity from.
// The catalog worker has no per-tenant context (reference data is global),
// so it always uses whichever adapter the caller configures as primary.
type SourceResolver func() (provideradapter.Adapter, provideradapter.Credentials, bool)

// Tuning bundles the catalog worker's operational knobs.
type Tuning struct {
	BatchSize     int
	PollPeriod    time.Duration
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffCap    time.Duration
	BackoffJitter time.Duration
}

// Worker drains the catalog refresh outbox.
type Worker struct {
	pool   *pgxpool.Pool
	clock  clock.Clock
	logger *slog.Logger
	source   SourceResolver
	notifier *opsnotify.Fanout
	tuning   Tuning
}

// NewWorker creates a catalog refresh Worker.
func NewWorker(pool *pgxpool.Pool, clk clock.Clock, logger *slog.Logger, source SourceResolver, notifier *opsnotify.Fanout, tuning Tuning) *Worker {
	return &Worker{pool: pool, clock: clk, logger: logger, source: source, notifier: notifier, tuning: tuning}
}

// Run drains the catalog refresh outbox on a fixed poll interval until ctx
// is cancelled.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("catalog refresh worker started", "poll_period", w.tuning.PollPeriod, "batch_size", w.tuning.BatchSize)
	ticker := time.NewTicker(w.tuning.PollPeriod)
	defer ticker.Stop()

	w.drainOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("catalog refresh worker stopped")
			return
		case <-ticker.C:
			w.drainOnce(ctx)
		}
	}
}

func (w *Worker) drainOnce(ctx context.Context) {
	store := NewStore(w.pool)
	batch, err := store.DueBatch(ctx, w.tuning.BatchSize)
	if err != nil {
		w.logger.Error("listing due catalog refresh batch", "error", err)
		return
	}

	for _, msg := range batch {
		if err := w.processOne(ctx, store, msg); err != nil {
			w.logger.Error("processing catalog refresh row", "id", msg.ID, "entity", msg.Entity, "error", err)
		}
	}
}

func (w *Worker) processOne(ctx context.Context, store *Store, msg RefreshMessage) error {
	if err := store.Lease(ctx, msg.ID, msg.Attempt); err != nil {
		if errors.Is(err, ErrLeaseLost) {
			return nil
		}
		return fmt.Errorf("leasing: %w", err)
	}

	adapter, creds, ok := w.source()
	if !ok {
		return store.RetryOrFail(ctx, msg.ID, msg.Attempt+1, w.tuning.MaxAttempts,
			w.clock.Now().Add(clock.Backoff(w.clock, msg.Attempt+1, w.tuning.BackoffBase, w.tuning.BackoffCap, w.tuning.BackoffJitter)),
			"no reference-data source configured")
	}

	entity, err := adapter.FetchReference(ctx, creds, msg.Entity, msg.PrimaryKey)
	if err != nil {
		return w.retryOrFail(ctx, store, msg, err)
	}

	if err := store.UpsertReference(ctx, msg.Entity, msg.PrimaryKey, msg.SecondaryKey, entity.Payload); err != nil {
		return fmt.Errorf("upserting reference catalog entry: %w", err)
	}

	return store.Succeed(ctx, msg.ID)
}

func (w *Worker) retryOrFail(ctx context.Context, store *Store, msg RefreshMessage, callErr error) error {
	kind := provideradapter.Classify(callErr)
	if kind == provideradapter.ErrPermanentValidation || kind == provideradapter.ErrNotFound {
		if err := store.RetryOrFail(ctx, msg.ID, w.tuning.MaxAttempts, w.tuning.MaxAttempts, w.clock.Now(), callErr.Error()); err != nil {
			return err
		}
		w.notifyFailure(ctx, msg, callErr.Error())
		return nil
	}

	newAttempt := msg.Attempt + 1
	delay := clock.Backoff(w.clock, newAttempt, w.tuning.BackoffBase, w.tuning.BackoffCap, w.tuning.BackoffJitter)
	if err := store.RetryOrFail(ctx, msg.ID, newAttempt, w.tuning.MaxAttempts, w.clock.Now().Add(delay), callErr.Error()); err != nil {
		return err
	}
	if newAttempt >= w.tuning.MaxAttempts {
		w.notifyFailure(ctx, msg, callErr.Error())
	}
	return nil
}

// notifyFailure posts an ops alert for a reference entity that exhausted
// its refresh retries. Reference data has no tenant scope, so the alert
// carries the entity key instead of a tenant slug.
func (w *Worker) notifyFailure(ctx context.Context, msg RefreshMessage, lastError string) {
	if w.notifier == nil {
		return
	}
	w.notifier.PostFailureAlert(ctx, opsnotify.FailureAlert{
		TenantSlug: "-",
		Provider:   "catalog",
		Entity:     msg.Entity,
		ItemID:     msg.PrimaryKey,
		Reason:     lastError,
		FailedAt:   w.clock.Now(),
	})
}

package webhook

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PollBackstop calls its trigger for every tenant on a fixed interval,
// covering the case where a webhook delivery never arrived at all — a
// signature failure or dropped connection leaves no trace to retry from,
// so the backstop runs unconditionally rather than only on detected gaps.
// What a tick does is up to the trigger; the trigger internal/app wires for
// the api mode only logs the tick and enqueues no catalog refresh.
type PollBackstop struct {
	pool     *pgxpool.Pool
	logger   *slog.Logger
	trigger  func(ctx context.Context, tenantSlug string) error
	interval time.Duration
}

// NewPollBackstop creates a PollBackstop.
func NewPollBackstop(pool *pgxpool.Pool, logger *slog.Logger, trigger func(ctx context.Context, tenantSlug string) error, interval time.Duration) *PollBackstop {
	return &PollBackstop{pool: pool, logger: logger, trigger: trigger, interval: interval}
}

// Run polls every tenant on a fixed interval until ctx is cancelled.
func (b *PollBackstop) Run(ctx context.Context) {
	b.logger.Info("webhook poll backstop started", "interval", b.interval)
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	b.pollOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("webhook poll backstop stopped")
			return
		case <-ticker.C:
			b.pollOnce(ctx)
		}
	}
}

func (b *PollBackstop) pollOnce(ctx context.Context) {
	rows, err := b.pool.Query(ctx, `SELECT slug FROM tenants`)
	if err != nil {
		b.logger.Error("listing tenants for webhook poll backstop", "error", err)
		return
	}
	defer rows.Close()

	var slugs []string
	for rows.Next() {
		var slug string
		if err := rows.Scan(&slug); err != nil {
			b.logger.Error("scanning tenant slug", "error", err)
			continue
		}
		slugs = append(slugs, slug)
	}
	if err := rows.Err(); err != nil {
		b.logger.Error("iterating tenants for webhook poll backstop", "error", err)
		return
	}

	for _, slug := range slugs {
		if err := b.trigger(ctx, slug); err != nil {
			b.logger.Error("webhook poll backstop trigger failed", "tenant", slug, "error", err)
		}
	}
}

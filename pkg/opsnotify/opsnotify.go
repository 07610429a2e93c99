// Package opsnotify posts a chat alert when a sync message is marked
// permanently failed and needs a human: an outbox row rejected with a
// permanent validation or missing-mapping error, or a catalog-refresh row
// that failed permanently or exhausted its retry budget. An outbox row that
// exhausts its retries on transient errors is marked failed without an alert.
package opsnotify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// FailureAlert is the provider-agnostic shape of a permanent-failure
// notification.
type FailureAlert struct {
	TenantSlug string
	Provider   string
	Entity     string // "lot sync" or catalog entity name
	ItemID     string
	Reason     string
	FailedAt   time.Time
}

// Notifier posts a FailureAlert to a chat channel.
type Notifier interface {
	Name() string
	PostFailureAlert(ctx context.Context, alert FailureAlert) error
}

// Fanout posts to every enabled Notifier, logging (not failing) on
// individual errors so one broken channel never blocks another.
type Fanout struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewFanout creates a Fanout over the given notifiers. Notifiers that
// report themselves disabled are kept but skipped at post time.
func NewFanout(logger *slog.Logger, notifiers ...Notifier) *Fanout {
	return &Fanout{notifiers: notifiers, logger: logger}
}

// PostFailureAlert posts alert to every configured notifier.
func (f *Fanout) PostFailureAlert(ctx context.Context, alert FailureAlert) {
	for _, n := range f.notifiers {
		if err := n.PostFailureAlert(ctx, alert); err != nil {
			f.logger.Error("ops notification failed", "notifier", n.Name(), "tenant", alert.TenantSlug,
				"provider", alert.Provider, "item_id", alert.ItemID, "error", err)
		}
	}
}

func formatText(alert FailureAlert) string {
	return fmt.Sprintf(":rotating_light: permanent sync failure — tenant=%s provider=%s entity=%s item=%s reason=%q at=%s",
		alert.TenantSlug, alert.Provider, alert.Entity, alert.ItemID, alert.Reason, alert.FailedAt.Format(time.RFC3339))
}

package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/lotsync/internal/dbtx"
)

// dedupTTL is the Redis cache TTL for a seen event — long enough to cover
// the typical redelivery window upstream providers retry within.
const dedupTTL = 24 * time.Hour

// Event identifies one webhook delivery.
type Event struct {
	TenantID   uuid.UUID
	Provider   string
	EventType  string
	ResourceID string
	EventTime  time.Time
}

func redisKey(e Event) string {
	return fmt.Sprintf("webhook:seen:%s:%s:%s:%s:%d", e.TenantID, e.Provider, e.EventType, e.ResourceID, e.EventTime.UnixNano())
}

// Dedup checks and records webhook deliveries, using Redis as a fast cache
// with a Postgres fallback so suppression survives a Redis restart.
type Dedup struct {
	db     dbtx.DBTX
	rdb    *redis.Client
	logger *slog.Logger
}

// NewDedup creates a Dedup.
func NewDedup(db dbtx.DBTX, rdb *redis.Client, logger *slog.Logger) *Dedup {
	return &Dedup{db: db, rdb: rdb, logger: logger}
}

// CheckAndRecord reports whether e has already been processed. If not, it
// records e as seen (both in Redis and, durably, in Postgres) before
// returning false, so a concurrent redelivery racing this one sees it as
// a duplicate.
func (d *Dedup) CheckAndRecord(ctx context.Context, e Event) (duplicate bool, err error) {
	key := redisKey(e)

	seen, err := d.rdb.Exists(ctx, key).Result()
	if err != nil {
		d.logger.Warn("redis dedup lookup failed, falling back to database", "error", err)
	} else if seen > 0 {
		return true, nil
	}

	tag, err := d.db.Exec(ctx,
		`INSERT INTO webhook_events (tenant_id, provider, event_type, resource_id, event_time)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT DO NOTHING`,
		e.TenantID, e.Provider, e.EventType, e.ResourceID, e.EventTime,
	)
	if err != nil {
		return false, fmt.Errorf("recording webhook event: %w", err)
	}

	if setErr := d.rdb.Set(ctx, key, "1", dedupTTL).Err(); setErr != nil {
		d.logger.Warn("failed to warm webhook dedup cache", "error", setErr, "key", key)
	}

	// RowsAffected() == 0 means the insert lost to a conflicting row already
	// present — this delivery is a duplicate.
	return tag.RowsAffected() == 0, nil
}

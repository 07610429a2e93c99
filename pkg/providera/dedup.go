package providera

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/lotsync/internal/dbtx"
)

// dedupTTL is the Redis cache TTL for idempotency keys. The durable source
// of truth is provider_idempotency; Redis only shortens the common case.
const dedupTTL = 24 * time.Hour

// PostgresDedup implements Dedup against the provider_idempotency table,
// warmed by a Redis cache — the same cache-then-fallback shape as the
// webhook/alert deduplicator.
type PostgresDedup struct {
	db  dbtx.DBTX
	rdb *redis.Client
}

// NewPostgresDedup creates a PostgresDedup for Marketplace-A.
func NewPostgresDedup(db dbtx.DBTX, rdb *redis.Client) *PostgresDedup {
	return &PostgresDedup{db: db, rdb: rdb}
}

func redisKey(key string) string {
	return "provideridem:A:" + key
}

func (d *PostgresDedup) Seen(ctx context.Context, key string) ([]byte, bool, error) {
	if val, err := d.rdb.Get(ctx, redisKey(key)).Bytes(); err == nil {
		return val, true, nil
	} else if !errors.Is(err, redis.Nil) {
		// Redis unavailable — fall through to the durable store.
	}

	var result json.RawMessage
	err := d.db.QueryRow(ctx,
		`SELECT result FROM provider_idempotency WHERE provider = 'A' AND idempotency_key = $1`,
		key,
	).Scan(&result)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("checking provider idempotency: %w", err)
	}

	d.rdb.Set(ctx, redisKey(key), []byte(result), dedupTTL)
	return result, true, nil
}

func (d *PostgresDedup) Record(ctx context.Context, key string, result []byte) error {
	_, err := d.db.Exec(ctx,
		`INSERT INTO provider_idempotency (provider, idempotency_key, result)
		 VALUES ('A', $1, $2)
		 ON CONFLICT (provider, idempotency_key) DO NOTHING`,
		key, json.RawMessage(result),
	)
	if err != nil {
		return fmt.Errorf("recording provider idempotency: %w", err)
	}
	d.rdb.Set(ctx, redisKey(key), result, dedupTTL)
	return nil
}

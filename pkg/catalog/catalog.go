// Package catalog implements the reference-catalog refresh outbox: parts,
// part colors, price guides, colors, and categories age out after 30 days
// and get re-fetched through the single adapter the worker's SourceResolver
// supplies, in priority order (1 is highest), with the priority chosen by
// whoever enqueues the refresh.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/lotsync/internal/dbtx"
	"github.com/wisbric/lotsync/pkg/provideradapter"
)

// StaleThreshold is how long a reference-catalog row may go unrefreshed
// before it is eligible for re-enqueue.
const StaleThreshold = 30 * 24 * time.Hour

// Priority enumerates the three refresh priorities; 1 is highest.
type Priority int16

const (
	PriorityHigh   Priority = 1
	PriorityNormal Priority = 2
	PriorityLow    Priority = 3
)

// Status mirrors the outbox state machine: pending → inflight → {pending|succeeded|failed}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInflight  Status = "inflight"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// RefreshMessage is one row of the catalog refresh outbox.
type RefreshMessage struct {
	ID            uuid.UUID
	Entity        provideradapter.ReferenceKind
	PrimaryKey    string
	SecondaryKey  string
	Priority      Priority
	Status        Status
	Attempt       int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
}

// Store provides database operations for the catalog refresh outbox and the
// reference catalog itself.
type Store struct {
	db dbtx.DBTX
}

// NewStore wraps a DBTX (pool or transaction) in a catalog Store.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

const refreshColumns = `id, table_name, primary_key, secondary_key, priority, status,
	attempt, next_attempt_at, last_error, created_at`

func scanRefresh(row pgx.Row) (RefreshMessage, error) {
	var m RefreshMessage
	var secondaryKey, lastError *string
	err := row.Scan(
		&m.ID, &m.Entity, &m.PrimaryKey, &secondaryKey, &m.Priority, &m.Status,
		&m.Attempt, &m.NextAttemptAt, &lastError, &m.CreatedAt,
	)
	if err != nil {
		return RefreshMessage{}, err
	}
	if secondaryKey != nil {
		m.SecondaryKey = *secondaryKey
	}
	if lastError != nil {
		m.LastError = *lastError
	}
	return m, nil
}

// IsStale reports whether lastFetchedAt is old enough to warrant a refresh.
// A zero lastFetchedAt (never fetched) is always stale.
func IsStale(lastFetchedAt time.Time, now time.Time) bool {
	if lastFetchedAt.IsZero() {
		return true
	}
	return now.Sub(lastFetchedAt) >= StaleThreshold
}

// CheckAndEnqueue enqueues a refresh for (entity, primaryKey, secondaryKey)
// if it is stale and has no existing non-terminal row — the partial unique
// index on (table_name, primary_key, secondary_key) WHERE status IN
// ('pending','inflight') enforces the uniqueness half of this, so a
// conflict here just means another enqueue already won the race.
func (s *Store) CheckAndEnqueue(ctx context.Context, entity provideradapter.ReferenceKind, primaryKey, secondaryKey string, lastFetchedHint time.Time, priority Priority, now time.Time) (bool, error) {
	if !IsStale(lastFetchedHint, now) {
		return false, nil
	}

	tag, err := s.db.Exec(ctx,
		`INSERT INTO catalog_refresh_outbox (table_name, primary_key, secondary_key, priority)
		 VALUES ($1, $2, NULLIF($3, ''), $4)
		 ON CONFLICT DO NOTHING`,
		entity, primaryKey, secondaryKey, priority,
	)
	if err != nil {
		return false, fmt.Errorf("enqueueing catalog refresh: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DueBatch returns up to limit pending rows ordered by priority then
// nextAttemptAt, excluding rows with another inflight row for the same key.
func (s *Store) DueBatch(ctx context.Context, limit int) ([]RefreshMessage, error) {
	query := `SELECT ` + refreshColumns + ` FROM catalog_refresh_outbox m
		WHERE m.status = 'pending' AND m.next_attempt_at <= now()
		ORDER BY m.priority ASC, m.next_attempt_at ASC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due catalog refresh batch: %w", err)
	}
	defer rows.Close()

	var out []RefreshMessage
	for rows.Next() {
		m, err := scanRefresh(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning catalog refresh row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ErrLeaseLost is returned by Lease when another worker already owns the row.
var ErrLeaseLost = errors.New("catalog: lease lost, row already owned")

// Lease compare-and-sets a row from pending to inflight.
func (s *Store) Lease(ctx context.Context, id uuid.UUID, observedAttempt int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE catalog_refresh_outbox SET status = 'inflight'
		 WHERE id = $1 AND status = 'pending' AND attempt = $2`,
		id, observedAttempt,
	)
	if err != nil {
		return fmt.Errorf("leasing catalog refresh row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release reverts an inflight row to pending without incrementing attempt.
func (s *Store) Release(ctx context.Context, id uuid.UUID, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE catalog_refresh_outbox SET status = 'pending', next_attempt_at = $2 WHERE id = $1`,
		id, nextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("releasing catalog refresh row: %w", err)
	}
	return nil
}

// Succeed transitions an inflight row to succeeded.
func (s *Store) Succeed(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.Exec(ctx, `UPDATE catalog_refresh_outbox SET status = 'succeeded' WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("succeeding catalog refresh row: %w", err)
	}
	return nil
}

// RetryOrFail increments attempt; if it has reached maxAttempts the row
// becomes failed, otherwise it is rescheduled to pending.
func (s *Store) RetryOrFail(ctx context.Context, id uuid.UUID, newAttempt, maxAttempts int, nextAttemptAt time.Time, lastError string) error {
	if newAttempt >= maxAttempts {
		_, err := s.db.Exec(ctx,
			`UPDATE catalog_refresh_outbox SET status = 'failed', attempt = $2, last_error = $3 WHERE id = $1`,
			id, newAttempt, lastError,
		)
		if err != nil {
			return fmt.Errorf("failing catalog refresh row after max attempts: %w", err)
		}
		return nil
	}

	_, err := s.db.Exec(ctx,
		`UPDATE catalog_refresh_outbox SET status = 'pending', attempt = $2, next_attempt_at = $3, last_error = $4
		 WHERE id = $1`,
		id, newAttempt, nextAttemptAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("rescheduling catalog refresh row: %w", err)
	}
	return nil
}

// GC deletes terminal rows older than retention.
func (s *Store) GC(ctx context.Context, retention time.Duration) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM catalog_refresh_outbox
		 WHERE status IN ('succeeded', 'failed') AND created_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(retention.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("garbage collecting catalog refresh rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// UpsertReference writes a fetched reference-catalog entity, replacing any
// prior payload for the same key and stamping lastFetchedAt to now.
func (s *Store) UpsertReference(ctx context.Context, entity provideradapter.ReferenceKind, primaryKey, secondaryKey string, payload []byte) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO reference_catalog (table_name, primary_key, secondary_key, payload, last_fetched_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (table_name, primary_key, secondary_key) DO UPDATE SET
			payload = EXCLUDED.payload, last_fetched_at = now()`,
		entity, primaryKey, secondaryKey, payload,
	)
	if err != nil {
		return fmt.Errorf("upserting reference catalog entry: %w", err)
	}
	return nil
}

// LastFetchedAt returns when (entity, primaryKey, secondaryKey) was last
// fetched, or the zero time if it has never been fetched.
func (s *Store) LastFetchedAt(ctx context.Context, entity provideradapter.ReferenceKind, primaryKey, secondaryKey string) (time.Time, error) {
	var t time.Time
	err := s.db.QueryRow(ctx,
		`SELECT last_fetched_at FROM reference_catalog WHERE table_name = $1 AND primary_key = $2 AND secondary_key = $3`,
		entity, primaryKey, secondaryKey,
	).Scan(&t)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("reading reference catalog last_fetched_at: %w", err)
	}
	return t, nil
}

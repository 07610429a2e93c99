// Package outbox implements the per-(item, provider) marketplace outbox:
// durable work items representing a pending sync window
// (fromSeqExclusive, toSeqInclusive]. Rows are inserted transactionally by
// the Edit API and drained by pkg/drainworker.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/lotsync/internal/dbtx"
)

// Kind enumerates the operation an outbox message represents.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Status enumerates the outbox state machine:
// pending → inflight → {pending | succeeded | failed}.
type Status string

const (
	StatusPending   Status = "pending"
	StatusInflight  Status = "inflight"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// RetentionPeriod is how long succeeded/failed rows are kept before GC.
const RetentionPeriod = 7 * 24 * time.Hour

// Message is one row of the marketplace outbox.
type Message struct {
	MessageID        uuid.UUID
	TenantID         uuid.UUID
	ItemID           uuid.UUID
	Provider         string
	Kind             Kind
	FromSeqExclusive int64
	ToSeqInclusive   int64
	IdempotencyKey   string
	Status           Status
	Attempt          int
	NextAttemptAt    time.Time
	LastError        string
	CorrelationID    uuid.UUID
	CreatedAt        time.Time
}

// IdempotencyKey builds the stable key identifying an outbox message to its
// adapter: "${itemId}:${provider}:${fromSeqExclusive}-${toSeqInclusive}".
func IdempotencyKey(itemID uuid.UUID, provider string, fromSeqExclusive, toSeqInclusive int64) string {
	return fmt.Sprintf("%s:%s:%d-%d", itemID, provider, fromSeqExclusive, toSeqInclusive)
}

// Store provides database operations for the marketplace outbox.
type Store struct {
	db dbtx.DBTX
}

// NewStore wraps a DBTX (pool or transaction) in an outbox Store.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

const messageColumns = `message_id, tenant_id, item_id, provider, kind, from_seq_exclusive,
	to_seq_inclusive, idempotency_key, status, attempt, next_attempt_at, last_error,
	correlation_id, created_at`

func scanMessage(row pgx.Row) (Message, error) {
	var m Message
	var lastError *string
	err := row.Scan(
		&m.MessageID, &m.TenantID, &m.ItemID, &m.Provider, &m.Kind, &m.FromSeqExclusive,
		&m.ToSeqInclusive, &m.IdempotencyKey, &m.Status, &m.Attempt, &m.NextAttemptAt, &lastError,
		&m.CorrelationID, &m.CreatedAt,
	)
	if err != nil {
		return Message{}, err
	}
	if lastError != nil {
		m.LastError = *lastError
	}
	return m, nil
}

// Enqueue inserts one outbox row. Called from the Edit API within the same
// transaction as the ledger append and item patch. idempotencyKey is unique
// across the tenant's lifetime — a retry of the same edit within the same
// transaction semantics never double-enqueues because the caller only calls
// this once per successful ledger append.
func (s *Store) Enqueue(ctx context.Context, tenantID, itemID uuid.UUID, provider string, kind Kind, fromSeqExclusive, toSeqInclusive int64, correlationID uuid.UUID) (Message, error) {
	key := IdempotencyKey(itemID, provider, fromSeqExclusive, toSeqInclusive)

	query := `INSERT INTO marketplace_outbox
		(tenant_id, item_id, provider, kind, from_seq_exclusive, to_seq_inclusive, idempotency_key, correlation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING ` + messageColumns

	row := s.db.QueryRow(ctx, query, tenantID, itemID, provider, kind, fromSeqExclusive, toSeqInclusive, key, correlationID)
	return scanMessage(row)
}

// DueBatch returns up to limit pending rows whose nextAttemptAt has passed,
// ordered by nextAttemptAt ascending then createdAt ascending for fairness.
// Rows whose (itemId, provider) pair has another inflight row are excluded
// so the drain worker never even attempts to lease a row it cannot legally
// advance — this is the ordering guarantee's enforcement point.
func (s *Store) DueBatch(ctx context.Context, limit int) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM marketplace_outbox m
		WHERE m.status = 'pending' AND m.next_attempt_at <= now()
		AND NOT EXISTS (
			SELECT 1 FROM marketplace_outbox i
			WHERE i.item_id = m.item_id AND i.provider = m.provider AND i.status = 'inflight'
		)
		ORDER BY m.next_attempt_at ASC, m.created_at ASC
		LIMIT $1`

	rows, err := s.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("querying due outbox batch: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outbox rows: %w", err)
	}
	return out, nil
}

// ErrLeaseLost is returned by Lease when the message was no longer pending
// at the observed attempt count — another worker already owns it.
var ErrLeaseLost = errors.New("outbox: lease lost, row already owned")

// Lease attempts to compare-and-set a row from pending to inflight,
// conditioned on the observed attempt count. Returns ErrLeaseLost if the CAS
// did not apply.
func (s *Store) Lease(ctx context.Context, messageID uuid.UUID, observedAttempt int) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE marketplace_outbox SET status = 'inflight'
		 WHERE message_id = $1 AND status = 'pending' AND attempt = $2`,
		messageID, observedAttempt,
	)
	if err != nil {
		return fmt.Errorf("leasing outbox row: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release reverts an inflight row back to pending without incrementing
// attempt, rescheduling nextAttemptAt. Used when tryAcquire denies a token —
// the row was never actually attempted against the provider — and by the
// drain worker to hand back a row whose processing returned an error.
func (s *Store) Release(ctx context.Context, messageID uuid.UUID, nextAttemptAt time.Time) error {
	_, err := s.db.Exec(ctx,
		`UPDATE marketplace_outbox SET status = 'pending', next_attempt_at = $2
		 WHERE message_id = $1`,
		messageID, nextAttemptAt,
	)
	if err != nil {
		return fmt.Errorf("releasing outbox row: %w", err)
	}
	return nil
}

// Succeed transitions an inflight row to succeeded.
func (s *Store) Succeed(ctx context.Context, messageID uuid.UUID) error {
	_, err := s.db.Exec(ctx,
		`UPDATE marketplace_outbox SET status = 'succeeded' WHERE message_id = $1`,
		messageID,
	)
	if err != nil {
		return fmt.Errorf("succeeding outbox row: %w", err)
	}
	return nil
}

// FailPermanently transitions an inflight row directly to failed — used for
// permanent_validation and missing_external_mapping outcomes, which never
// advance the sync cursor and require human intervention.
func (s *Store) FailPermanently(ctx context.Context, messageID uuid.UUID, lastError string) error {
	_, err := s.db.Exec(ctx,
		`UPDATE marketplace_outbox SET status = 'failed', last_error = $2 WHERE message_id = $1`,
		messageID, lastError,
	)
	if err != nil {
		return fmt.Errorf("failing outbox row: %w", err)
	}
	return nil
}

// RetryOrFail increments attempt; if it has reached maxAttempts the row
// becomes failed, otherwise it is rescheduled to pending at nextAttemptAt.
func (s *Store) RetryOrFail(ctx context.Context, messageID uuid.UUID, newAttempt, maxAttempts int, nextAttemptAt time.Time, lastError string) error {
	if newAttempt >= maxAttempts {
		_, err := s.db.Exec(ctx,
			`UPDATE marketplace_outbox SET status = 'failed', attempt = $2, last_error = $3 WHERE message_id = $1`,
			messageID, newAttempt, lastError,
		)
		if err != nil {
			return fmt.Errorf("failing outbox row after max attempts: %w", err)
		}
		return nil
	}

	_, err := s.db.Exec(ctx,
		`UPDATE marketplace_outbox SET status = 'pending', attempt = $2, next_attempt_at = $3, last_error = $4
		 WHERE message_id = $1`,
		messageID, newAttempt, nextAttemptAt, lastError,
	)
	if err != nil {
		return fmt.Errorf("rescheduling outbox row: %w", err)
	}
	return nil
}

// PendingCount returns the number of non-terminal rows for an item, used by
// the status projection.
func (s *Store) PendingCount(ctx context.Context, itemID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM marketplace_outbox WHERE item_id = $1 AND status IN ('pending', 'inflight')`,
		itemID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending outbox rows: %w", err)
	}
	return count, nil
}

// NextRetryAt returns the earliest nextAttemptAt among an item's pending
// rows, if any.
func (s *Store) NextRetryAt(ctx context.Context, itemID uuid.UUID) (*time.Time, error) {
	var t *time.Time
	err := s.db.QueryRow(ctx,
		`SELECT min(next_attempt_at) FROM marketplace_outbox WHERE item_id = $1 AND status = 'pending'`,
		itemID,
	).Scan(&t)
	if err != nil {
		return nil, fmt.Errorf("reading next retry time: %w", err)
	}
	return t, nil
}

// ListByItem returns all non-terminal outbox rows for an item, used by the
// status projection to report per-provider pending state.
func (s *Store) ListByItem(ctx context.Context, itemID uuid.UUID) ([]Message, error) {
	query := `SELECT ` + messageColumns + ` FROM marketplace_outbox
		WHERE item_id = $1 AND status IN ('pending', 'inflight')
		ORDER BY to_seq_inclusive ASC`
	rows, err := s.db.Query(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("listing outbox rows for item: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning outbox row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// GC deletes succeeded/failed rows older than RetentionPeriod.
func (s *Store) GC(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM marketplace_outbox
		 WHERE status IN ('succeeded', 'failed') AND created_at < now() - $1::interval`,
		fmt.Sprintf("%d seconds", int(RetentionPeriod.Seconds())),
	)
	if err != nil {
		return 0, fmt.Errorf("garbage collecting outbox rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

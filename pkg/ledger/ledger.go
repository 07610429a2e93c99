// Package ledger implements the append-only quantity and location ledgers.
// Every entry is keyed by (itemId, seq), seq starting at 1 and increasing by
// one per item; entries are never updated once written.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/lotsync/internal/dbtx"
)

// Source enumerates who triggered a ledger-producing mutation.
type Source string

const (
	SourceUser   Source = "user"
	SourceOrder  Source = "order"
	SourceImport Source = "import"
	SourceSystem Source = "system"
)

// ErrNegativeQuantity is returned when an append would drive postAvailable
// below zero. It is surfaced synchronously to the Edit API caller and never
// retried — the request is wrong, not the provider.
var ErrNegativeQuantity = errors.New("ledger: resulting quantity would be negative")

// QuantityEntry is one append-only row of the quantity ledger.
type QuantityEntry struct {
	ItemID         uuid.UUID
	Seq            int64
	Timestamp      time.Time
	PreAvailable   int
	DeltaAvailable int
	PostAvailable  int
	Reason         string
	Source         Source
	ActorID        string
	CorrelationID  uuid.UUID
}

// LocationEntry is one append-only row of the location ledger.
type LocationEntry struct {
	ItemID        uuid.UUID
	Seq           int64
	Timestamp     time.Time
	FromLocation  string
	ToLocation    string
	Reason        string
	Source        Source
	ActorID       string
	CorrelationID uuid.UUID
}

// Store provides the ledger operations against a DBTX — a pool or an open
// transaction. Edit API callers always pass a transaction so the ledger
// append and the item patch commit or abort together.
type Store struct {
	db dbtx.DBTX
}

// NewStore wraps a DBTX (pool or transaction) in a ledger Store.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

// lastQuantitySeq returns the most recent quantity entry for itemID, or
// (0, 0, nil) if the item has no entries yet.
func (s *Store) lastQuantitySeq(ctx context.Context, itemID uuid.UUID) (seq int64, postAvailable int, err error) {
	row := s.db.QueryRow(ctx,
		`SELECT seq, post_available FROM quantity_ledger WHERE item_id = $1 ORDER BY seq DESC LIMIT 1`,
		itemID,
	)
	err = row.Scan(&seq, &postAvailable)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading last quantity entry: %w", err)
	}
	return seq, postAvailable, nil
}

// AppendQuantity computes the next seq and postAvailable for itemID and
// inserts the entry. Returns ErrNegativeQuantity without writing anything if
// the resulting quantity would be negative.
func (s *Store) AppendQuantity(ctx context.Context, itemID uuid.UUID, delta int, reason string, source Source, actorID string, correlationID uuid.UUID) (QuantityEntry, error) {
	lastSeq, lastPost, err := s.lastQuantitySeq(ctx, itemID)
	if err != nil {
		return QuantityEntry{}, err
	}

	entry := QuantityEntry{
		ItemID:         itemID,
		Seq:            lastSeq + 1,
		PreAvailable:   lastPost,
		DeltaAvailable: delta,
		PostAvailable:  lastPost + delta,
		Reason:         reason,
		Source:         source,
		ActorID:        actorID,
		CorrelationID:  correlationID,
	}
	if entry.PostAvailable < 0 {
		return QuantityEntry{}, ErrNegativeQuantity
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO quantity_ledger
			(item_id, seq, pre_available, delta_available, post_available, reason, source, actor_id, correlation_id)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
		 RETURNING "timestamp"`,
		entry.ItemID, entry.Seq, entry.PreAvailable, entry.DeltaAvailable, entry.PostAvailable,
		entry.Reason, entry.Source, entry.ActorID, entry.CorrelationID,
	)
	if err := row.Scan(&entry.Timestamp); err != nil {
		return QuantityEntry{}, fmt.Errorf("inserting quantity ledger entry: %w", err)
	}
	return entry, nil
}

// AppendLocation inserts a location-move entry with the next seq of the
// item's location ledger. That seq is numbered independently of the quantity
// ledger's; the two ledgers are only tied together by being written in the
// same edit transaction.
func (s *Store) AppendLocation(ctx context.Context, itemID uuid.UUID, fromLocation, toLocation, reason string, source Source, actorID string, correlationID uuid.UUID) (LocationEntry, error) {
	var lastSeq int64
	err := s.db.QueryRow(ctx,
		`SELECT seq FROM location_ledger WHERE item_id = $1 ORDER BY seq DESC LIMIT 1`,
		itemID,
	).Scan(&lastSeq)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return LocationEntry{}, fmt.Errorf("reading last location entry: %w", err)
	}

	entry := LocationEntry{
		ItemID:        itemID,
		Seq:           lastSeq + 1,
		FromLocation:  fromLocation,
		ToLocation:    toLocation,
		Reason:        reason,
		Source:        source,
		ActorID:       actorID,
		CorrelationID: correlationID,
	}

	row := s.db.QueryRow(ctx,
		`INSERT INTO location_ledger
			(item_id, seq, from_location, to_location, reason, source, actor_id, correlation_id)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8)
		 RETURNING "timestamp"`,
		entry.ItemID, entry.Seq, entry.FromLocation, entry.ToLocation,
		entry.Reason, entry.Source, entry.ActorID, entry.CorrelationID,
	)
	if err := row.Scan(&entry.Timestamp); err != nil {
		return LocationEntry{}, fmt.Errorf("inserting location ledger entry: %w", err)
	}
	return entry, nil
}

// ComputeDeltaWindow sums deltaAvailable over the half-open range
// (fromSeqExclusive, toSeqInclusive] for itemID. The drain worker uses this
// to reconstruct the net change an outbox row must carry upstream.
func (s *Store) ComputeDeltaWindow(ctx context.Context, itemID uuid.UUID, fromSeqExclusive, toSeqInclusive int64) (int, error) {
	var total int
	err := s.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(delta_available), 0) FROM quantity_ledger
		 WHERE item_id = $1 AND seq > $2 AND seq <= $3`,
		itemID, fromSeqExclusive, toSeqInclusive,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("computing delta window: %w", err)
	}
	return total, nil
}

// GetEntryAt returns the quantity ledger entry at the given seq, used by the
// drain worker to read postAvailable when advancing a sync cursor.
func (s *Store) GetEntryAt(ctx context.Context, itemID uuid.UUID, seq int64) (QuantityEntry, error) {
	var e QuantityEntry
	e.ItemID = itemID
	e.Seq = seq
	var actorID *string
	row := s.db.QueryRow(ctx,
		`SELECT "timestamp", pre_available, delta_available, post_available, reason, source, actor_id, correlation_id
		 FROM quantity_ledger WHERE item_id = $1 AND seq = $2`,
		itemID, seq,
	)
	if err := row.Scan(&e.Timestamp, &e.PreAvailable, &e.DeltaAvailable, &e.PostAvailable, &e.Reason, &e.Source, &actorID, &e.CorrelationID); err != nil {
		return QuantityEntry{}, fmt.Errorf("reading quantity ledger entry %d: %w", seq, err)
	}
	if actorID != nil {
		e.ActorID = *actorID
	}
	return e, nil
}

// LastSeq returns the highest quantity ledger seq recorded for itemID, or 0
// if the item has no entries.
func (s *Store) LastSeq(ctx context.Context, itemID uuid.UUID) (int64, error) {
	seq, _, err := s.lastQuantitySeq(ctx, itemID)
	return seq, err
}

// Package editapi is the transactional enqueue layer: every local mutation
// — create, update, delete, or a bare quantity adjustment — patches the item
// row, appends to the ledgers, and enqueues one outbox row per enabled
// provider, all inside a single transaction. The transaction either commits
// all of this or none of it; that all-or-nothing guarantee is what the
// outbox pattern's durability rests on.
package editapi

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wisbric/lotsync/internal/clock"
	"github.com/wisbric/lotsync/internal/dbtx"
	"github.com/wisbric/lotsync/pkg/inventory"
	"github.com/wisbric/lotsync/pkg/ledger"
	"github.com/wisbric/lotsync/pkg/outbox"
	"github.com/wisbric/lotsync/pkg/providerconfig"
)

// Reason enumerates why a ledger entry was written. The Edit API only ever
// produces "user"-sourced entries; "order"/"import"/"system" are reserved
// for collaborators out of this package's scope.
const reasonEdit = "edit"

// CreateFields holds the fields accepted by CreateItem.
type CreateFields struct {
	PartNumber        string
	ColorID           string
	Location          string
	FileID            string
	Condition         inventory.Condition
	QuantityAvailable int
	QuantityReserved  int
	PriceCents        *int64
	Notes             string
}

// UpdatePatch holds the optional fields accepted by UpdateItem. A nil field
// is left untouched; this is exact replacement semantics, never an implicit
// merge of nested structures.
type UpdatePatch struct {
	Location          *string
	FileID            *string
	Condition         *inventory.Condition
	QuantityAvailable *int
	Notes             *string
	PriceCents        **int64
}

// Service is the Edit API. It owns the transaction boundary for every
// mutation — callers never hold a transaction across an adapter call, since
// the Edit API never calls an adapter at all (that is the drain worker's
// job, asynchronously).
type Service struct {
	pool          *pgxpool.Pool
	clock         clock.Clock
	credentialKey [32]byte
}

// NewService creates an Edit API service.
func NewService(pool *pgxpool.Pool, clk clock.Clock, credentialKey [32]byte) *Service {
	return &Service{pool: pool, clock: clk, credentialKey: credentialKey}
}

// newPendingSync builds the initial per-provider sync state for a freshly
// enqueued provider: always present, never an optional/missing map entry.
func newPendingSync() inventory.ProviderSyncState {
	return inventory.ProviderSyncState{Status: inventory.SyncPending}
}

// enqueueForEnabledProviders is the shared tail of every mutation: for each
// enabled provider it reads the current sync cursor, enqueues an outbox row
// spanning from that cursor to the item's latest ledger seq, and marks the
// provider pending.
func (s *Service) enqueueForEnabledProviders(ctx context.Context, tx pgx.Tx, tenantID, itemID uuid.UUID, kind outbox.Kind, currentSeq int64, correlationID uuid.UUID) error {
	cfgStore := providerconfig.NewStore(tx, s.credentialKey)
	itemStore := inventory.NewStore(tx)
	outboxStore := outbox.NewStore(tx)

	providers, err := cfgStore.EnabledProviders(ctx, tenantID)
	if err != nil {
		return fmt.Errorf("listing enabled providers: %w", err)
	}

	item, err := itemStore.Get(ctx, tenantID, itemID)
	if err != nil {
		return fmt.Errorf("reloading item: %w", err)
	}

	for _, provider := range providers {
		cur := item.ProviderState(provider).LastSyncedSeq

		if _, err := outboxStore.Enqueue(ctx, tenantID, itemID, provider, kind, cur, currentSeq, correlationID); err != nil {
			return fmt.Errorf("enqueueing outbox row for provider %s: %w", provider, err)
		}

		state := item.ProviderState(provider)
		state.Status = inventory.SyncPending
		if err := itemStore.PutProviderSync(ctx, tenantID, itemID, provider, state); err != nil {
			return fmt.Errorf("marking provider %s pending: %w", provider, err)
		}
	}

	return nil
}

// CreateItem creates a new item, seeds marketplaceSync with one pending
// entry per enabled provider, appends the opening ledger entry, and
// enqueues a create outbox row per provider.
func (s *Service) CreateItem(ctx context.Context, tenantID, actorID uuid.UUID, f CreateFields) (uuid.UUID, error) {
	var itemID uuid.UUID

	err := dbtx.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		cfgStore := providerconfig.NewStore(tx, s.credentialKey)
		providers, err := cfgStore.EnabledProviders(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("listing enabled providers: %w", err)
		}

		sync := inventory.MarketplaceSync{}
		for _, p := range providers {
			sync[p] = newPendingSync()
		}

		itemStore := inventory.NewStore(tx)
		item, err := itemStore.Create(ctx, inventory.CreateParams{
			TenantID:          tenantID,
			PartNumber:        f.PartNumber,
			ColorID:           f.ColorID,
			Location:          f.Location,
			FileID:            f.FileID,
			Condition:         f.Condition,
			QuantityAvailable: f.QuantityAvailable,
			QuantityReserved:  f.QuantityReserved,
			PriceCents:        f.PriceCents,
			Notes:             f.Notes,
			MarketplaceSync:   sync,
		})
		if err != nil {
			return fmt.Errorf("creating item: %w", err)
		}
		itemID = item.ItemID

		correlationID := s.clock.NewID()
		ledgerStore := ledger.NewStore(tx)
		entry, err := ledgerStore.AppendQuantity(ctx, itemID, f.QuantityAvailable, reasonEdit, ledger.SourceUser, actorID.String(), correlationID)
		if err != nil {
			return fmt.Errorf("appending opening ledger entry: %w", err)
		}

		if f.Location != "" {
			if _, err := ledgerStore.AppendLocation(ctx, itemID, "", f.Location, reasonEdit, ledger.SourceUser, actorID.String(), correlationID); err != nil {
				return fmt.Errorf("appending opening location entry: %w", err)
			}
		}

		return s.enqueueForEnabledProviders(ctx, tx, tenantID, itemID, outbox.KindCreate, entry.Seq, correlationID)
	})

	return itemID, err
}

// UpdateItem patches the user-editable fields, appends ledger entries for
// any quantity or location change, and enqueues an update outbox row per
// enabled provider.
func (s *Service) UpdateItem(ctx context.Context, tenantID, actorID, itemID uuid.UUID, patch UpdatePatch, reason string) error {
	if reason == "" {
		reason = reasonEdit
	}

	return dbtx.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		itemStore := inventory.NewStore(tx)
		current, err := itemStore.GetForUpdate(ctx, tenantID, itemID)
		if err != nil {
			return fmt.Errorf("loading item: %w", err)
		}

		correlationID := s.clock.NewID()
		ledgerStore := ledger.NewStore(tx)

		deltaApplied := false
		var lastEntrySeq int64

		if patch.QuantityAvailable != nil {
			delta := *patch.QuantityAvailable - current.QuantityAvailable
			if delta != 0 {
				entry, err := ledgerStore.AppendQuantity(ctx, itemID, delta, reason, ledger.SourceUser, actorID.String(), correlationID)
				if err != nil {
					return err
				}
				lastEntrySeq = entry.Seq
				deltaApplied = true
			}
		}

		if patch.Location != nil && *patch.Location != current.Location {
			if _, err := ledgerStore.AppendLocation(ctx, itemID, current.Location, *patch.Location, reason, ledger.SourceUser, actorID.String(), correlationID); err != nil {
				return fmt.Errorf("appending location entry: %w", err)
			}
		}

		if _, err := itemStore.Patch(ctx, tenantID, itemID, inventory.PatchFields{
			Location:          patch.Location,
			FileID:            patch.FileID,
			Condition:         patch.Condition,
			QuantityAvailable: patch.QuantityAvailable,
			PriceCents:        patch.PriceCents,
			Notes:             patch.Notes,
		}); err != nil {
			return fmt.Errorf("patching item: %w", err)
		}

		if !deltaApplied {
			seq, err := ledgerStore.LastSeq(ctx, itemID)
			if err != nil {
				return fmt.Errorf("reading last seq: %w", err)
			}
			lastEntrySeq = seq
		}

		return s.enqueueForEnabledProviders(ctx, tx, tenantID, itemID, outbox.KindUpdate, lastEntrySeq, correlationID)
	})
}

// AdjustQuantity applies a bare quantity delta (e.g. a stock correction)
// without touching any other field.
func (s *Service) AdjustQuantity(ctx context.Context, tenantID, actorID, itemID uuid.UUID, deltaAvailable int, reason string) error {
	if reason == "" {
		reason = reasonEdit
	}

	return dbtx.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		correlationID := s.clock.NewID()
		ledgerStore := ledger.NewStore(tx)
		entry, err := ledgerStore.AppendQuantity(ctx, itemID, deltaAvailable, reason, ledger.SourceUser, actorID.String(), correlationID)
		if err != nil {
			return err
		}

		newQty := entry.PostAvailable
		if _, err := inventory.NewStore(tx).Patch(ctx, tenantID, itemID, inventory.PatchFields{
			QuantityAvailable: &newQty,
		}); err != nil {
			return fmt.Errorf("patching item quantity: %w", err)
		}

		return s.enqueueForEnabledProviders(ctx, tx, tenantID, itemID, outbox.KindUpdate, entry.Seq, correlationID)
	})
}

// DeleteItem archives the item (never a hard delete) and enqueues a
// terminal delete outbox row per enabled provider.
func (s *Service) DeleteItem(ctx context.Context, tenantID, actorID, itemID uuid.UUID, reason string) error {
	if reason == "" {
		reason = "deleted"
	}

	return dbtx.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		itemStore := inventory.NewStore(tx)
		current, err := itemStore.GetForUpdate(ctx, tenantID, itemID)
		if err != nil {
			return fmt.Errorf("loading item: %w", err)
		}

		correlationID := s.clock.NewID()
		ledgerStore := ledger.NewStore(tx)
		entry, err := ledgerStore.AppendQuantity(ctx, itemID, -current.QuantityAvailable, reason, ledger.SourceUser, actorID.String(), correlationID)
		if err != nil {
			return fmt.Errorf("appending closing ledger entry: %w", err)
		}

		archived := true
		if _, err := itemStore.Patch(ctx, tenantID, itemID, inventory.PatchFields{IsArchived: &archived}); err != nil {
			return fmt.Errorf("archiving item: %w", err)
		}

		return s.enqueueForEnabledProviders(ctx, tx, tenantID, itemID, outbox.KindDelete, entry.Seq, correlationID)
	})
}

// AddItemToFile sets a grouping label on an item. A file is a label only —
// it carries no sync semantics and never touches the ledger or outbox.
func (s *Service) AddItemToFile(ctx context.Context, tenantID, itemID uuid.UUID, fileID string) error {
	return dbtx.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := inventory.NewStore(tx).Patch(ctx, tenantID, itemID, inventory.PatchFields{FileID: &fileID})
		return err
	})
}

// RemoveItemFromFile clears an item's grouping label.
func (s *Service) RemoveItemFromFile(ctx context.Context, tenantID, itemID uuid.UUID) error {
	empty := ""
	return dbtx.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := inventory.NewStore(tx).Patch(ctx, tenantID, itemID, inventory.PatchFields{FileID: &empty})
		return err
	})
}

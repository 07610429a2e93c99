// Package statusquery projects an item's sync state across providers: the
// read side of the write-only Edit API / outbox / drain worker pipeline.
package statusquery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/lotsync/internal/dbtx"
	"github.com/wisbric/lotsync/internal/httpserver"
	"github.com/wisbric/lotsync/pkg/inventory"
	"github.com/wisbric/lotsync/pkg/outbox"
)

// ProviderStatus is the per-provider projection returned for one item.
type ProviderStatus struct {
	Provider          string     `json:"provider"`
	Status            string     `json:"status"`
	ExternalLotID     string     `json:"externalLotId,omitempty"`
	LastSyncAttemptAt *time.Time `json:"lastSyncAttemptAt,omitempty"`
	LastError         string     `json:"lastError,omitempty"`
}

// ItemSyncStatus is the full status projection for one item.
type ItemSyncStatus struct {
	ItemID       uuid.UUID        `json:"itemId"`
	Providers    []ProviderStatus `json:"providers"`
	PendingCount int              `json:"pendingCount"`
	NextRetryAt  *time.Time       `json:"nextRetryAt,omitempty"`
}

// Service answers status-projection queries against the shared pool.
type Service struct {
	db dbtx.DBTX
}

// NewService creates a status-query Service.
func NewService(db dbtx.DBTX) *Service {
	return &Service{db: db}
}

// GetItemSyncStatus builds the full per-provider sync projection for one
// item, plus its aggregate outbox backlog.
func (s *Service) GetItemSyncStatus(ctx context.Context, tenantID, itemID uuid.UUID) (ItemSyncStatus, error) {
	item, err := inventory.NewStore(s.db).Get(ctx, tenantID, itemID)
	if err != nil {
		return ItemSyncStatus{}, fmt.Errorf("loading item: %w", err)
	}

	out := ItemSyncStatus{ItemID: itemID}
	for provider, state := range item.MarketplaceSync {
		ps := ProviderStatus{
			Provider:      provider,
			Status:        string(state.Status),
			ExternalLotID: state.ExternalLotID,
			LastError:     state.LastError,
		}
		if state.LastSyncAttemptAt != nil {
			ps.LastSyncAttemptAt = state.LastSyncAttemptAt
		}
		out.Providers = append(out.Providers, ps)
	}

	outboxStore := outbox.NewStore(s.db)
	count, err := outboxStore.PendingCount(ctx, itemID)
	if err != nil {
		return ItemSyncStatus{}, fmt.Errorf("counting pending outbox rows: %w", err)
	}
	out.PendingCount = count

	nextRetry, err := outboxStore.NextRetryAt(ctx, itemID)
	if err != nil {
		return ItemSyncStatus{}, fmt.Errorf("reading next retry time: %w", err)
	}
	out.NextRetryAt = nextRetry

	return out, nil
}

// ListItemsQuery holds the supported filters for ListItems.
type ListItemsQuery struct {
	TenantID   uuid.UUID
	PartNumber string
	FileID     string
	Archived   *bool
	Cursor     httpserver.CursorParams
}

// ListItems returns a cursor page of items for a tenant, filtered by the
// optional fields in q and ordered newest-updated first.
func (s *Service) ListItems(ctx context.Context, q ListItemsQuery) (httpserver.CursorPage[inventory.Item], error) {
	limit := q.Cursor.Limit

	query := `SELECT item_id, tenant_id, part_number, color_id, location, file_id, condition,
		quantity_available, quantity_reserved, price_cents, notes, is_archived,
		marketplace_sync, created_at, updated_at
		FROM inventory_items
		WHERE tenant_id = $1`
	args := []any{q.TenantID}

	if q.PartNumber != "" {
		args = append(args, q.PartNumber)
		query += fmt.Sprintf(" AND part_number = $%d", len(args))
	}
	if q.FileID != "" {
		args = append(args, q.FileID)
		query += fmt.Sprintf(" AND file_id = $%d", len(args))
	}
	if q.Archived != nil {
		args = append(args, *q.Archived)
		query += fmt.Sprintf(" AND is_archived = $%d", len(args))
	}
	if q.Cursor.After != nil {
		args = append(args, q.Cursor.After.CreatedAt, q.Cursor.After.ID)
		query += fmt.Sprintf(" AND (updated_at, item_id) < ($%d, $%d)", len(args)-1, len(args))
	}

	args = append(args, limit+1)
	query += fmt.Sprintf(" ORDER BY updated_at DESC, item_id DESC LIMIT $%d", len(args))

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return httpserver.CursorPage[inventory.Item]{}, fmt.Errorf("listing items: %w", err)
	}
	defer rows.Close()

	items, err := scanItemRows(rows)
	if err != nil {
		return httpserver.CursorPage[inventory.Item]{}, err
	}

	return httpserver.NewCursorPage(items, limit, func(it inventory.Item) httpserver.Cursor {
		return httpserver.Cursor{CreatedAt: it.UpdatedAt, ID: it.ItemID}
	}), nil
}

// scanItemRows decodes the inventory_items columns used by ListItems. It
// duplicates pkg/inventory's private scan shape rather than importing it,
// since that helper is unexported and this query selects the identical
// column list directly for pagination.
func scanItemRows(rows pgx.Rows) ([]inventory.Item, error) {
	var out []inventory.Item
	for rows.Next() {
		var it inventory.Item
		var location, fileID, notes *string
		var priceCents *int64
		var syncRaw []byte

		if err := rows.Scan(
			&it.ItemID, &it.TenantID, &it.PartNumber, &it.ColorID, &location, &fileID, &it.Condition,
			&it.QuantityAvailable, &it.QuantityReserved, &priceCents, &notes, &it.IsArchived,
			&syncRaw, &it.CreatedAt, &it.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning item row: %w", err)
		}

		if location != nil {
			it.Location = *location
		}
		if fileID != nil {
			it.FileID = *fileID
		}
		if notes != nil {
			it.Notes = *notes
		}
		it.PriceCents = priceCents

		it.MarketplaceSync = inventory.MarketplaceSync{}
		if len(syncRaw) > 0 {
			if err := json.Unmarshal(syncRaw, &it.MarketplaceSync); err != nil {
				return nil, fmt.Errorf("decoding marketplace_sync: %w", err)
			}
		}

		out = append(out, it)
	}
	return out, rows.Err()
}

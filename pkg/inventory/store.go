package inventory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/wisbric/lotsync/internal/dbtx"
)

const itemColumns = `item_id, tenant_id, part_number, color_id, location, file_id, condition,
	quantity_available, quantity_reserved, price_cents, notes, is_archived,
	marketplace_sync, created_at, updated_at`

// Store provides database operations for inventory items.
type Store struct {
	db dbtx.DBTX
}

// NewStore wraps a DBTX (pool or transaction) in an inventory Store.
func NewStore(db dbtx.DBTX) *Store {
	return &Store{db: db}
}

func scanItem(row pgx.Row) (Item, error) {
	var it Item
	var location, fileID, notes *string
	var priceCents *int64
	var syncRaw []byte

	err := row.Scan(
		&it.ItemID, &it.TenantID, &it.PartNumber, &it.ColorID, &location, &fileID, &it.Condition,
		&it.QuantityAvailable, &it.QuantityReserved, &priceCents, &notes, &it.IsArchived,
		&syncRaw, &it.CreatedAt, &it.UpdatedAt,
	)
	if err != nil {
		return Item{}, err
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

	it.MarketplaceSync = MarketplaceSync{}
	if len(syncRaw) > 0 {
		if err := json.Unmarshal(syncRaw, &it.MarketplaceSync); err != nil {
			return Item{}, fmt.Errorf("decoding marketplace_sync: %w", err)
		}
	}

	return it, nil
}

// CreateParams holds the fields needed to create a new item. MarketplaceSync
// is populated by the caller (Edit API) with one SyncPending entry per
// enabled provider.
type CreateParams struct {
	TenantID          uuid.UUID
	PartNumber        string
	ColorID           string
	Location          string
	FileID            string
	Condition         Condition
	QuantityAvailable int
	QuantityReserved  int
	PriceCents        *int64
	Notes             string
	MarketplaceSync   MarketplaceSync
}

// Create inserts a new item and returns the created row.
func (s *Store) Create(ctx context.Context, p CreateParams) (Item, error) {
	syncJSON, err := json.Marshal(p.MarketplaceSync)
	if err != nil {
		return Item{}, fmt.Errorf("encoding marketplace_sync: %w", err)
	}

	query := `INSERT INTO inventory_items
		(tenant_id, part_number, color_id, location, file_id, condition,
		 quantity_available, quantity_reserved, price_cents, notes, marketplace_sync)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7, $8, $9, NULLIF($10, ''), $11)
		RETURNING ` + itemColumns

	row := s.db.QueryRow(ctx, query,
		p.TenantID, p.PartNumber, p.ColorID, p.Location, p.FileID, p.Condition,
		p.QuantityAvailable, p.QuantityReserved, p.PriceCents, p.Notes, syncJSON,
	)
	return scanItem(row)
}

// Get fetches a single tenant-scoped item by ID.
func (s *Store) Get(ctx context.Context, tenantID, itemID uuid.UUID) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE tenant_id = $1 AND item_id = $2`
	row := s.db.QueryRow(ctx, query, tenantID, itemID)
	return scanItem(row)
}

// GetForUpdate is like Get but takes a row lock, for use inside a
// transaction that will immediately patch the row.
func (s *Store) GetForUpdate(ctx context.Context, tenantID, itemID uuid.UUID) (Item, error) {
	query := `SELECT ` + itemColumns + ` FROM inventory_items WHERE tenant_id = $1 AND item_id = $2 FOR UPDATE`
	row := s.db.QueryRow(ctx, query, tenantID, itemID)
	return scanItem(row)
}

// PatchFields holds the user-editable item fields the Edit API may change.
// Each pointer field that is non-nil replaces the corresponding column; this
// is exact replacement semantics, never an implicit merge.
type PatchFields struct {
	Location          *string
	FileID            *string
	Condition         *Condition
	QuantityAvailable *int
	QuantityReserved  *int
	PriceCents        **int64
	Notes             *string
	IsArchived        *bool
}

// Patch applies non-nil fields to the item row and returns the updated row.
func (s *Store) Patch(ctx context.Context, tenantID, itemID uuid.UUID, f PatchFields) (Item, error) {
	current, err := s.GetForUpdate(ctx, tenantID, itemID)
	if err != nil {
		return Item{}, err
	}

	if f.Location != nil {
		current.Location = *f.Location
	}
	if f.FileID != nil {
		current.FileID = *f.FileID
	}
	if f.Condition != nil {
		current.Condition = *f.Condition
	}
	if f.QuantityAvailable != nil {
		current.QuantityAvailable = *f.QuantityAvailable
	}
	if f.QuantityReserved != nil {
		current.QuantityReserved = *f.QuantityReserved
	}
	if f.PriceCents != nil {
		current.PriceCents = *f.PriceCents
	}
	if f.Notes != nil {
		current.Notes = *f.Notes
	}
	if f.IsArchived != nil {
		current.IsArchived = *f.IsArchived
	}

	query := `UPDATE inventory_items SET
		location = NULLIF($3, ''), file_id = NULLIF($4, ''), condition = $5,
		quantity_available = $6, quantity_reserved = $7, price_cents = $8,
		notes = NULLIF($9, ''), is_archived = $10, updated_at = now()
		WHERE tenant_id = $1 AND item_id = $2
		RETURNING ` + itemColumns

	row := s.db.QueryRow(ctx, query,
		tenantID, itemID, current.Location, current.FileID, current.Condition,
		current.QuantityAvailable, current.QuantityReserved, current.PriceCents,
		current.Notes, current.IsArchived,
	)
	return scanItem(row)
}

// PutProviderSync replaces the named provider's sync state in the item's
// marketplace_sync map. This is the only mutation path for sync fields; the
// replacement is of the whole per-provider entry, never a field-level merge.
func (s *Store) PutProviderSync(ctx context.Context, tenantID, itemID uuid.UUID, provider string, state ProviderSyncState) error {
	stateJSON, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encoding provider sync state: %w", err)
	}

	tag, err := s.db.Exec(ctx,
		`UPDATE inventory_items
		 SET marketplace_sync = jsonb_set(marketplace_sync, ARRAY[$3], $4::jsonb, true),
		     updated_at = now()
		 WHERE tenant_id = $1 AND item_id = $2`,
		tenantID, itemID, provider, stateJSON,
	)
	if err != nil {
		return fmt.Errorf("patching provider sync state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ExternalLotID returns the current externalLotId for (itemID, provider)
// without loading the full item row — the drain worker uses this right
// before deciding whether an operation upgrades/downgrades kind.
func (s *Store) ExternalLotID(ctx context.Context, itemID uuid.UUID, provider string) (string, error) {
	var syncRaw []byte
	err := s.db.QueryRow(ctx,
		`SELECT marketplace_sync FROM inventory_items WHERE item_id = $1`,
		itemID,
	).Scan(&syncRaw)
	if err != nil {
		return "", fmt.Errorf("reading marketplace_sync: %w", err)
	}
	var sync MarketplaceSync
	if err := json.Unmarshal(syncRaw, &sync); err != nil {
		return "", fmt.Errorf("decoding marketplace_sync: %w", err)
	}
	return sync[provider].ExternalLotID, nil
}

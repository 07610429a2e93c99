// Package inventory holds the InventoryItem aggregate: the tenant-scoped
// sellable lot record that the Edit API mutates and the drain worker
// annotates with per-provider sync state.
package inventory

import (
	"time"

	"github.com/google/uuid"
)

// Condition enumerates the two supported item conditions.
type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

// SyncStatus enumerates the lifecycle of an item's mirror on one provider.
type SyncStatus string

const (
	SyncPending  SyncStatus = "pending"
	SyncSyncing  SyncStatus = "syncing"
	SyncSynced   SyncStatus = "synced"
	SyncFailed   SyncStatus = "failed"
	SyncDisabled SyncStatus = "disabled"
)

// ProviderSyncState is one provider's entry in an item's sync map. The Edit
// API writes an entry for every provider enabled for the tenant; a provider
// with no entry reads back as SyncDisabled through Item.ProviderState, so
// callers never handle a missing key themselves.
type ProviderSyncState struct {
	ExternalLotID       string     `json:"externalLotId,omitempty"`
	Status              SyncStatus `json:"status"`
	LastSyncAttemptAt   *time.Time `json:"lastSyncAttemptAt,omitempty"`
	LastSyncedSeq       int64      `json:"lastSyncedSeq"`
	LastSyncedAvailable int        `json:"lastSyncedAvailable"`
	LastError           string     `json:"lastError,omitempty"`
}

// MarketplaceSync maps provider code ("A", "B") to its sync state.
type MarketplaceSync map[string]ProviderSyncState

// Item is the tenant-scoped sellable lot.
type Item struct {
	ItemID            uuid.UUID
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
	IsArchived        bool
	MarketplaceSync   MarketplaceSync
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// ProviderState returns the item's sync state for provider, or the disabled
// zero state if the provider has no entry — callers never need a nil check.
func (it Item) ProviderState(provider string) ProviderSyncState {
	if it.MarketplaceSync == nil {
		return ProviderSyncState{Status: SyncDisabled}
	}
	if st, ok := it.MarketplaceSync[provider]; ok {
		return st
	}
	return ProviderSyncState{Status: SyncDisabled}
}

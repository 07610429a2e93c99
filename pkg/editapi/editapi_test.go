package editapi

import (
	"testing"

	"github.com/wisbric/lotsync/pkg/inventory"
)

func TestNewPendingSync(t *testing.T) {
	got := newPendingSync()
	if got.Status != inventory.SyncPending {
		t.Errorf("newPendingSync().Status = %q, want %q", got.Status, inventory.SyncPending)
	}
	if got.ExternalLotID != "" {
		t.Errorf("newPendingSync().ExternalLotID = %q, want empty", got.ExternalLotID)
	}
}

package outbox

import (
	"testing"

	"github.com/google/uuid"
)

func TestIdempotencyKey(t *testing.T) {
	itemID := uuid.MustParse("11111111-1111-1111-1111-111111111111")

	got := IdempotencyKey(itemID, "A", 0, 1)
	want := "11111111-1111-1111-1111-111111111111:A:0-1"
	if got != want {
		t.Errorf("IdempotencyKey() = %q, want %q", got, want)
	}

	// Distinct windows over the same item/provider produce distinct keys.
	other := IdempotencyKey(itemID, "A", 1, 2)
	if other == got {
		t.Error("different windows should produce different idempotency keys")
	}
}

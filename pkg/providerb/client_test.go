package providerb

import (
	"testing"

	"github.com/wisbric/lotsync/pkg/provideradapter"
)

func TestEncodeDelta(t *testing.T) {
	t.Run("relative by default", func(t *testing.T) {
		req := encodeDelta(provideradapter.DeltaUpdate{RelativeQuantity: -3})
		if req.AbsoluteQuantity != nil {
			t.Fatalf("expected no absolute quantity, got %v", *req.AbsoluteQuantity)
		}
		if req.RelativeQuantity == nil || *req.RelativeQuantity != -3 {
			t.Fatalf("relative quantity = %v, want -3", req.RelativeQuantity)
		}
	})

	t.Run("absolute when requested", func(t *testing.T) {
		req := encodeDelta(provideradapter.DeltaUpdate{UseAbsolute: true, AbsoluteQuantity: 7})
		if req.RelativeQuantity != nil {
			t.Fatalf("expected no relative quantity, got %v", *req.RelativeQuantity)
		}
		if req.AbsoluteQuantity == nil || *req.AbsoluteQuantity != 7 {
			t.Fatalf("absolute quantity = %v, want 7", req.AbsoluteQuantity)
		}
	})
}

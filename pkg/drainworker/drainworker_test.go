package drainworker

import (
	"testing"

	"github.com/wisbric/lotsync/pkg/outbox"
)

func TestEffectiveKind(t *testing.T) {
	cases := []struct {
		name          string
		kind          outbox.Kind
		externalLotID string
		want          outbox.Kind
	}{
		{"create without mapping stays create", outbox.KindCreate, "", outbox.KindCreate},
		{"create with existing mapping downgrades to update", outbox.KindCreate, "ext-1", outbox.KindUpdate},
		{"update without mapping upgrades to create", outbox.KindUpdate, "", outbox.KindCreate},
		{"update with mapping stays update", outbox.KindUpdate, "ext-1", outbox.KindUpdate},
		{"delete is untouched", outbox.KindDelete, "ext-1", outbox.KindDelete},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := effectiveKind(tc.kind, tc.externalLotID)
			if got != tc.want {
				t.Errorf("effectiveKind(%q, %q) = %q, want %q", tc.kind, tc.externalLotID, got, tc.want)
			}
		})
	}
}

package opsnotify

import (
	"strings"
	"testing"
	"time"
)

func TestFormatText(t *testing.T) {
	alert := FailureAlert{
		TenantSlug: "acme",
		Provider:   "A",
		Entity:     "lot sync",
		ItemID:     "item-123",
		Reason:     "validation failed",
		FailedAt:   time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC),
	}

	got := formatText(alert)
	for _, want := range []string{"acme", "provider=A", "lot sync", "item-123", `"validation failed"`, "2026-01-02T15:04:05Z"} {
		if !strings.Contains(got, want) {
			t.Errorf("formatText() = %q, missing %q", got, want)
		}
	}
}

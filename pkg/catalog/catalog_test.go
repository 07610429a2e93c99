package catalog

import (
	"testing"
	"time"
)

func TestIsStale(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	cases := []struct {
		name          string
		lastFetchedAt time.Time
		want          bool
	}{
		{"never fetched", time.Time{}, true},
		{"fetched yesterday", now.Add(-24 * time.Hour), false},
		{"fetched exactly 30 days ago", now.Add(-StaleThreshold), true},
		{"fetched 29 days ago", now.Add(-29 * 24 * time.Hour), false},
		{"fetched 31 days ago", now.Add(-31 * 24 * time.Hour), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsStale(tc.lastFetchedAt, now); got != tc.want {
				t.Errorf("IsStale(%v, %v) = %v, want %v", tc.lastFetchedAt, now, got, tc.want)
			}
		})
	}
}

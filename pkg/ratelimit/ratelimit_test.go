package ratelimit

import (
	"testing"
	"time"
)

func TestBackoffForFailures(t *testing.T) {
	tests := []struct {
		failures int64
		want     time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{5, 32 * time.Second},
		{20, circuitOpenCeiling},
	}
	for _, tt := range tests {
		if got := backoffForFailures(tt.failures); got != tt.want {
			t.Errorf("backoffForFailures(%d) = %v, want %v", tt.failures, got, tt.want)
		}
	}
}

func TestBucketKeyAndCircuitKey(t *testing.T) {
	if got, want := bucketKey("t1", "A"), "ratelimit:bucket:t1:A"; got != want {
		t.Errorf("bucketKey() = %q, want %q", got, want)
	}
	if got, want := circuitKey("t1", "A"), "ratelimit:circuit:t1:A"; got != want {
		t.Errorf("circuitKey() = %q, want %q", got, want)
	}
}

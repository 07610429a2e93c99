package clock

import (
	"testing"
	"time"
)

func TestBackoff_GrowsThenCaps(t *testing.T) {
	c := System{}
	base := 1 * time.Second
	ceiling := 5 * time.Minute

	cases := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1 * time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{10, ceiling},
	}

	for _, tc := range cases {
		got := Backoff(noJitter{c}, tc.attempt, base, ceiling, 0)
		if got != tc.want {
			t.Errorf("Backoff(attempt=%d) = %v, want %v", tc.attempt, got, tc.want)
		}
	}
}

// noJitter wraps a Clock and forces Jitter to zero so backoff math is exact.
type noJitter struct{ Clock }

func (noJitter) Jitter(time.Duration) time.Duration { return 0 }

func TestBackoff_NegativeAttemptTreatedAsZero(t *testing.T) {
	got := Backoff(noJitter{System{}}, -1, time.Second, time.Minute, 0)
	if got != time.Second {
		t.Errorf("Backoff(attempt=-1) = %v, want %v", got, time.Second)
	}
}

// Package clock centralizes monotonic timestamps, UUID generation, and
// backoff jitter behind one seam so the drain worker, ledger, and outbox
// can be tested with deterministic values instead of real time and random
// UUIDs.
package clock

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Clock abstracts wall-clock time and ID generation so the drain worker,
// ledger, and outbox can be tested with deterministic values instead of
// real time and random UUIDs.
type Clock interface {
	Now() time.Time
	NewID() uuid.UUID
	// Jitter returns a pseudo-random duration in [0, max).
	Jitter(max time.Duration) time.Duration
}

// System is the production Clock backed by time.Now and crypto-seeded UUIDs.
type System struct{}

// New returns the production Clock.
func New() Clock { return System{} }

func (System) Now() time.Time { return time.Now().UTC() }

func (System) NewID() uuid.UUID { return uuid.New() }

func (System) Jitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(max)))
}

// Backoff computes the exponential-backoff-with-jitter delay used by both the
// marketplace drain worker and the catalog refresh worker: min(base*2^attempt,
// cap) + uniform(0, jitterMax).
func Backoff(c Clock, attempt int, base, ceiling, jitterMax time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			d = ceiling
			break
		}
	}
	if d > ceiling {
		d = ceiling
	}
	return d + c.Jitter(jitterMax)
}

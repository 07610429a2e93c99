// Package ratelimit implements the per-(tenant, provider) token bucket and
// circuit breaker that gates every outbound marketplace call. State lives in
// Redis so the limiter is shared across every worker process.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Outcome classifies the result of an outbound call for breaker bookkeeping.
type Outcome string

const (
	OutcomeOK            Outcome = "ok"
	OutcomeTransientFail Outcome = "transient_fail"
	OutcomePermanentFail Outcome = "permanent_fail"
)

const (
	consecutiveFailureThreshold = 5
	circuitOpenCeiling          = 5 * time.Minute
)

// Result is the outcome of a tryAcquire call.
type Result struct {
	Granted      bool
	RetryAfterMs int64
}

// Limiter gates outbound provider calls with a fixed-window token bucket per
// (tenantId, provider), backed by a circuit breaker that opens on sustained
// transient failure.
type Limiter struct {
	rdb *redis.Client
}

// New creates a Limiter backed by rdb.
func New(rdb *redis.Client) *Limiter {
	return &Limiter{rdb: rdb}
}

func bucketKey(tenantID, provider string) string {
	return fmt.Sprintf("ratelimit:bucket:%s:%s", tenantID, provider)
}

func circuitKey(tenantID, provider string) string {
	return fmt.Sprintf("ratelimit:circuit:%s:%s", tenantID, provider)
}

// TryAcquire checks the circuit breaker first, then the token bucket.
// Acquisition is a standalone step taken before each outbound request — the
// caller must not hold a database transaction across this call.
func (l *Limiter) TryAcquire(ctx context.Context, tenantID, provider string, capacity int, window time.Duration) (Result, error) {
	openUntilMs, err := l.rdb.HGet(ctx, circuitKey(tenantID, provider), "open_until_ms").Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return Result{}, fmt.Errorf("reading circuit state: %w", err)
	}
	if openUntilMs > 0 {
		now := time.Now()
		openUntil := time.UnixMilli(openUntilMs)
		if openUntil.After(now) {
			return Result{Granted: false, RetryAfterMs: openUntil.Sub(now).Milliseconds()}, nil
		}
	}

	key := bucketKey(tenantID, provider)
	count, err := l.rdb.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("incrementing token bucket: %w", err)
	}
	if count == 1 {
		if err := l.rdb.Expire(ctx, key, window).Err(); err != nil {
			return Result{}, fmt.Errorf("setting bucket window expiry: %w", err)
		}
	}

	if int(count) > capacity {
		ttl, err := l.rdb.PTTL(ctx, key).Result()
		if err != nil {
			return Result{}, fmt.Errorf("reading bucket TTL: %w", err)
		}
		if ttl < 0 {
			ttl = window
		}
		return Result{Granted: false, RetryAfterMs: ttl.Milliseconds()}, nil
	}

	return Result{Granted: true}, nil
}

// Report records the outcome of an outbound call against the circuit
// breaker. ok resets the failure streak and closes the circuit;
// transient_fail increments the streak, opening the circuit once it reaches
// five consecutive failures for min(2^failures seconds, 5 minutes);
// permanent_fail is a no-op — the fault is in the request, not the provider.
func (l *Limiter) Report(ctx context.Context, tenantID, provider string, outcome Outcome) error {
	key := circuitKey(tenantID, provider)

	switch outcome {
	case OutcomeOK:
		if err := l.rdb.Del(ctx, key).Err(); err != nil {
			return fmt.Errorf("resetting circuit state: %w", err)
		}
		return nil
	case OutcomePermanentFail:
		return nil
	case OutcomeTransientFail:
		failures, err := l.rdb.HIncrBy(ctx, key, "consecutive_failures", 1).Result()
		if err != nil {
			return fmt.Errorf("incrementing failure streak: %w", err)
		}
		if failures < consecutiveFailureThreshold {
			return nil
		}
		openFor := backoffForFailures(failures)
		openUntil := time.Now().Add(openFor)
		if err := l.rdb.HSet(ctx, key, "open_until_ms", openUntil.UnixMilli()).Err(); err != nil {
			return fmt.Errorf("opening circuit: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("ratelimit: unknown outcome %q", outcome)
	}
}

// backoffForFailures returns min(2^failures * 1s, 5m).
func backoffForFailures(failures int64) time.Duration {
	if failures <= 0 {
		return time.Second
	}
	d := time.Second
	for i := int64(0); i < failures; i++ {
		d *= 2
		if d >= circuitOpenCeiling {
			return circuitOpenCeiling
		}
	}
	if d > circuitOpenCeiling {
		return circuitOpenCeiling
	}
	return d
}

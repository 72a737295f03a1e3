// Package retry re-runs flaky operations with bounded exponential backoff.
// Only failures carrying an allow-listed fault kind are retried; anything
// else propagates on first occurrence.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/bmops/provisioner/internal/lg"
	"github.com/bmops/provisioner/pkg/fault"
)

const baseSleep = 100 * time.Millisecond

// Policy describes one retry envelope. Retries are unbounded in count and
// bounded only by Timeout; each sleep is a real blocking wait on the
// calling goroutine.
type Policy struct {
	// Timeout is the overall wall-clock budget for the operation
	// including sleeps. Exhausting it yields a timeout fault.
	Timeout time.Duration
	// Kinds is the allow-list of retryable fault kinds. An empty list
	// retries nothing.
	Kinds []fault.Kind
	// MaxSleep, when positive, clamps each computed sleep.
	MaxSleep time.Duration
	// Log, when set, records each retry decision.
	Log lg.Logger
}

// Do invokes op, retrying while it fails with an allow-listed kind.
// The sleep before the k-th retry is (2^k - 1) * 100ms for k starting at
// zero, so the first retry happens after a zero-length wait.
func (p Policy) Do(ctx context.Context, op func() error) error {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	step := &stepBackOff{maxSleep: p.MaxSleep}
	wrapped := func() error {
		err := op()
		if err == nil {
			return nil
		}
		if !fault.IsAny(err, p.Kinds...) {
			return backoff.Permanent(err)
		}
		if p.Log != nil {
			p.Log.Warn("operation failed, retrying",
				lg.Err(err),
				lg.Int("failures", step.failures+1),
				lg.Duration("sleep", step.peek()))
		}
		return err
	}

	err := backoff.Retry(wrapped, backoff.WithContext(step, ctx))
	if err == nil {
		return nil
	}
	// A retryable kind can only escape the loop once the budget is gone:
	// either the deadline fired mid-sleep (DeadlineExceeded) or the next
	// sleep would overrun it (last operation error surfaces).
	if errors.Is(err, context.DeadlineExceeded) || fault.IsAny(err, p.Kinds...) {
		return fault.Wrap(fault.Timeout, err, "retry budget of %s exhausted", p.Timeout)
	}
	return err
}

// stepBackOff implements backoff.BackOff with the (2^failures - 1) * 100ms
// sequence: 0s, 100ms, 300ms, 700ms, 1.5s, ... It carries the per-invocation
// retry state (failure count and next sleep).
type stepBackOff struct {
	failures int
	maxSleep time.Duration
}

func (b *stepBackOff) NextBackOff() time.Duration {
	d := b.peek()
	b.failures++
	return d
}

func (b *stepBackOff) Reset() { b.failures = 0 }

// peek computes the sleep for the current failure count without advancing.
// The exponent is capped so the shift can never overflow; long envelopes
// are expected to run with MaxSleep set anyway.
func (b *stepBackOff) peek() time.Duration {
	exp := b.failures
	if exp > 30 {
		exp = 30
	}
	d := time.Duration(int64(1)<<uint(exp)-1) * baseSleep
	if b.maxSleep > 0 && d > b.maxSleep {
		d = b.maxSleep
	}
	return d
}

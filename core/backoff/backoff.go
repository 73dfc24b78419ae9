// Package backoff computes exponential retry delays with jitter.
package backoff

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// Unit is the duration of one backoff unit.
const Unit = time.Millisecond

// Backoff tracks an exponential delay between MinDelay and MaxDelay.
//
// The stored current delay doubles on each failure and resets on success.
// The delay returned from Failed carries a random jitter that is not fed
// back into the stored value, so jitter never compounds.
type Backoff struct {
	minDelay  uint32
	maxDelay  uint32
	curDelay  uint32
	nFailures uint32

	// randN returns a value in [0, n). Replaced in tests.
	randN func(n uint32) uint32
}

// New creates a Backoff. A maxDelay below 2 means unbounded; a minDelay of
// zero is treated as one unit.
func New(minDelay, maxDelay uint32) *Backoff {
	if maxDelay < 2 {
		maxDelay = math.MaxUint32
	}
	if minDelay == 0 {
		minDelay = 1
	}
	if minDelay > maxDelay {
		minDelay = maxDelay
	}
	return &Backoff{
		minDelay: minDelay,
		maxDelay: maxDelay,
		curDelay: minDelay,
		randN:    rand.Uint32N,
	}
}

// Failed records a failure and returns the jittered delay to wait before
// the next attempt.
func (b *Backoff) Failed() uint32 {
	b.nFailures++

	if b.curDelay <= b.maxDelay/2 {
		b.curDelay *= 2
	} else {
		b.curDelay = b.maxDelay
	}

	jitter := min(b.minDelay, b.maxDelay/4)
	if jitter == 0 {
		return b.curDelay
	}
	r := b.randN(jitter + 1)

	if b.curDelay == b.maxDelay {
		return b.curDelay - r
	}
	if b.curDelay > math.MaxUint32-r {
		return math.MaxUint32
	}
	return b.curDelay + r
}

// Succeeded resets the delay to the minimum and clears the failure count.
func (b *Backoff) Succeeded() {
	b.curDelay = b.minDelay
	b.nFailures = 0
}

func (b *Backoff) CurDelay() uint32 { return b.curDelay }
func (b *Backoff) MinDelay() uint32 { return b.minDelay }
func (b *Backoff) MaxDelay() uint32 { return b.maxDelay }
func (b *Backoff) Failures() uint32 { return b.nFailures }

// Duration converts backoff units to a time.Duration.
func Duration(units uint32) time.Duration {
	return time.Duration(units) * Unit
}

// Retry calls fn up to attempts times, sleeping for the backoff delay
// between failures. It returns nil on the first success, the context error
// if ctx ends while waiting, or the last error from fn.
func Retry(ctx context.Context, b *Backoff, attempts int, fn func(ctx context.Context) error) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(ctx); err == nil {
			b.Succeeded()
			return nil
		}
		if i == attempts-1 {
			break
		}
		t := time.NewTimer(Duration(b.Failed()))
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
	return err
}

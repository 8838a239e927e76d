package httpclient

import (
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

var (
	_ backoff.BackOff = (*LinearBackOff)(nil)
	_ backoff.BackOff = (*DecorrelatedJitterBackOff)(nil)
	_ backoff.BackOff = (*JitteredConstantBackOff)(nil)
)

// LinearBackOff grows the wait by a fixed step on every call.
//
// With Initial=1s, Increment=500ms and no jitter the waits are
// 1s, 1.5s, 2s, ... capped at Max.
type LinearBackOff struct {
	Initial   time.Duration
	Increment time.Duration
	Max       time.Duration

	// JitterFactor randomizes each wait by ±factor (0 disables).
	JitterFactor float64

	step int
}

// NewLinearBackOff returns a LinearBackOff starting at initial.
func NewLinearBackOff(initial, increment, maxWait time.Duration) *LinearBackOff {
	return &LinearBackOff{Initial: initial, Increment: increment, Max: maxWait}
}

func (b *LinearBackOff) Reset() { b.step = 0 }

func (b *LinearBackOff) NextBackOff() time.Duration {
	wait := b.Initial + time.Duration(b.step)*b.Increment
	if b.Max > 0 && wait > b.Max {
		wait = b.Max
	}
	b.step++
	return applyJitter(wait, b.JitterFactor)
}

// DecorrelatedJitterBackOff picks each wait uniformly between Base and
// three times the previous wait, capped at Cap.
type DecorrelatedJitterBackOff struct {
	Base time.Duration
	Cap  time.Duration

	prev time.Duration
}

// NewDecorrelatedJitterBackOff returns a DecorrelatedJitterBackOff.
func NewDecorrelatedJitterBackOff(base, maxWait time.Duration) *DecorrelatedJitterBackOff {
	return &DecorrelatedJitterBackOff{Base: base, Cap: maxWait}
}

func (b *DecorrelatedJitterBackOff) Reset() { b.prev = 0 }

func (b *DecorrelatedJitterBackOff) NextBackOff() time.Duration {
	if b.prev < b.Base {
		b.prev = b.Base
	}
	upper := b.prev * 3
	if b.Cap > 0 && upper > b.Cap {
		upper = b.Cap
	}
	b.prev = randomBetween(b.Base, upper)
	return b.prev
}

// JitteredConstantBackOff waits Interval ±JitterFactor every time.
type JitteredConstantBackOff struct {
	Interval     time.Duration
	JitterFactor float64
}

func (b *JitteredConstantBackOff) Reset() {}

func (b *JitteredConstantBackOff) NextBackOff() time.Duration {
	return applyJitter(b.Interval, b.JitterFactor)
}

// applyJitter returns a value in [interval*(1-f), interval*(1+f)].
func applyJitter(interval time.Duration, factor float64) time.Duration {
	if factor <= 0 || interval <= 0 {
		return interval
	}
	if factor > 1 {
		factor = 1
	}
	delta := float64(interval) * factor
	low := float64(interval) - delta
	//nolint:gosec // jitter does not need a cryptographic source
	return time.Duration(low + rand.Float64()*2*delta)
}

//nolint:gosec // jitter does not need a cryptographic source
func randomBetween(low, high time.Duration) time.Duration {
	if low >= high {
		return low
	}
	return low + time.Duration(rand.Int64N(int64(high-low)))
}

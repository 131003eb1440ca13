package courier

import (
	"math"
	"math/rand/v2"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Ensure our backoff strategies implement the backoff.BackOff interface.
var (
	_ backoff.BackOff = (*LinearBackOff)(nil)
	_ backoff.BackOff = (*ConstantBackOffWithJitter)(nil)
)

// backoffDelay computes the wait inserted after attempt number `attempt`
// (1-indexed) before the next attempt starts.
//
// Without jitter the delay is exactly
// min(MaxDelay, MinDelay × BackoffFactor^(attempt−1)). With jitter the
// delay is drawn uniformly from [raw×(1−j), raw×(1+j)], floored to
// whole milliseconds, never negative.
func (p RetryPolicy) backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	raw := float64(p.MinDelay) * math.Pow(p.BackoffFactor, float64(attempt-1))
	if capped := float64(p.MaxDelay); raw > capped {
		raw = capped
	}

	j := p.JitterFraction
	if j <= 0 {
		return time.Duration(raw)
	}
	if j > 1 {
		j = 1
	}

	lo := raw * (1 - j)
	hi := raw * (1 + j)
	//nolint:gosec // intentional weak rand for jitter (not cryptographic)
	spread := lo + rand.Float64()*(hi-lo)

	ms := int64(spread / float64(time.Millisecond))
	if ms < 0 {
		ms = 0
	}
	return time.Duration(ms) * time.Millisecond
}

// LinearBackOff increases the delay by a fixed increment plus jitter.
// Use it with WithRetryBackOff when you want predictable growth without
// exponential explosion.
//
// Delay calculation: initial + (attempt × increment) ± jitter, capped
// at MaxDelay.
type LinearBackOff struct {
	// InitialDelay is the first backoff delay.
	// Default: 500ms
	InitialDelay time.Duration

	// Increment is the fixed amount added to each subsequent delay.
	// Default: 500ms
	Increment time.Duration

	// MaxDelay caps the backoff delay.
	// Default: 30s
	MaxDelay time.Duration

	// JitterFraction adds randomization (0.0-1.0).
	// Default: 0.5
	JitterFraction float64

	// current tracks the base delay before jitter.
	current time.Duration
	// attempt tracks the current attempt number.
	attempt int
}

// NewLinearBackOff creates a LinearBackOff with sensible defaults.
func NewLinearBackOff() *LinearBackOff {
	return &LinearBackOff{
		InitialDelay:   500 * time.Millisecond,
		Increment:      500 * time.Millisecond,
		MaxDelay:       30 * time.Second,
		JitterFraction: 0.5,
	}
}

// Reset resets the backoff to initial state.
func (b *LinearBackOff) Reset() {
	b.current = b.InitialDelay
	b.attempt = 0
}

// NextBackOff returns the next delay with jitter applied.
func (b *LinearBackOff) NextBackOff() time.Duration {
	if b.current == 0 {
		b.current = b.InitialDelay
	}

	delay := applyJitter(b.current, b.JitterFraction)

	b.attempt++
	b.current = b.InitialDelay + time.Duration(b.attempt)*b.Increment
	if b.current > b.MaxDelay {
		b.current = b.MaxDelay
	}

	return delay
}

// ConstantBackOffWithJitter provides a fixed delay with randomization.
// Use it when you want consistent wait times but still need jitter for
// storm prevention.
type ConstantBackOffWithJitter struct {
	// Delay is the base backoff delay.
	// Default: 1s
	Delay time.Duration

	// JitterFraction adds randomization (0.0-1.0).
	// Default: 0.5
	JitterFraction float64
}

// NewConstantBackOffWithJitter creates a ConstantBackOffWithJitter with defaults.
func NewConstantBackOffWithJitter() *ConstantBackOffWithJitter {
	return &ConstantBackOffWithJitter{
		Delay:          1 * time.Second,
		JitterFraction: 0.5,
	}
}

// Reset is a no-op for constant backoff.
func (b *ConstantBackOffWithJitter) Reset() {
	// No state to reset
}

// NextBackOff returns the delay with jitter applied.
func (b *ConstantBackOffWithJitter) NextBackOff() time.Duration {
	return applyJitter(b.Delay, b.JitterFraction)
}

// applyJitter applies randomization to a delay. A fraction of 0.5 means
// the result falls in [delay*0.5, delay*1.5].
func applyJitter(delay time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return delay
	}
	if fraction > 1 {
		fraction = 1
	}

	delta := float64(delay) * fraction
	lo := float64(delay) - delta
	hi := float64(delay) + delta

	//nolint:gosec // intentional weak rand for jitter (not cryptographic)
	return time.Duration(lo + rand.Float64()*(hi-lo))
}
